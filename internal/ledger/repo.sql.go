package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// SQLStore persists journal entries in PostgreSQL.
type SQLStore struct{}

// NewSQLStore constructs SQLStore.
func NewSQLStore() *SQLStore {
	return &SQLStore{}
}

// InsertEntries appends the batch and returns rows with generated ids.
func (s *SQLStore) InsertEntries(ctx context.Context, q db.Querier, entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		var id int64
		err := q.QueryRow(ctx, `INSERT INTO journal_entries
(tenant_id, voucher_id, voucher_type, voucher_number, entry_date, account_id, debit, credit, narration, fiscal_year, is_reversal, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
			entry.TenantID, entry.Source.VoucherID, entry.Source.DocType, entry.Source.Number,
			entry.Date, entry.AccountID, entry.Debit, entry.Credit, entry.Narration,
			entry.FiscalYear, entry.Reversal, entry.CreatedAt).Scan(&id)
		if err != nil {
			return nil, err
		}
		entry.ID = id
		out = append(out, entry)
	}
	return out, nil
}

// ListByVoucher loads every entry for the voucher in insertion order.
func (s *SQLStore) ListByVoucher(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT id, tenant_id, voucher_id, voucher_type, voucher_number, entry_date, account_id, debit, credit, narration, fiscal_year, is_reversal, created_at
FROM journal_entries
WHERE tenant_id=$1 AND voucher_id=$2
ORDER BY id ASC`, tenantID, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.Source.VoucherID, &entry.Source.DocType, &entry.Source.Number,
			&entry.Date, &entry.AccountID, &entry.Debit, &entry.Credit, &entry.Narration,
			&entry.FiscalYear, &entry.Reversal, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
