package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// SQLStore persists inventory data in PostgreSQL.
type SQLStore struct{}

// NewSQLStore constructs SQLStore.
func NewSQLStore() *SQLStore {
	return &SQLStore{}
}

// GetSummary loads the summary row for the key, locking it when inside a
// transaction so concurrent postings against the same key serialize.
func (s *SQLStore) GetSummary(ctx context.Context, q db.Querier, tenantID, itemID, locationID int64) (Summary, error) {
	var summary Summary
	err := q.QueryRow(ctx, `SELECT tenant_id, item_id, location_id, qty, total_value, avg_rate, updated_at
FROM stock_summaries
WHERE tenant_id=$1 AND item_id=$2 AND location_id=$3
FOR UPDATE`, tenantID, itemID, locationID).
		Scan(&summary.TenantID, &summary.ItemID, &summary.LocationID, &summary.Qty, &summary.Value, &summary.AvgRate, &summary.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrSummaryNotFound
		}
		return Summary{}, err
	}
	return summary, nil
}

// UpsertSummary writes the aggregate row for the key.
func (s *SQLStore) UpsertSummary(ctx context.Context, q db.Querier, summary Summary) error {
	_, err := q.Exec(ctx, `INSERT INTO stock_summaries (tenant_id, item_id, location_id, qty, total_value, avg_rate, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (tenant_id, item_id, location_id)
DO UPDATE SET qty=EXCLUDED.qty, total_value=EXCLUDED.total_value, avg_rate=EXCLUDED.avg_rate, updated_at=EXCLUDED.updated_at`,
		summary.TenantID, summary.ItemID, summary.LocationID, summary.Qty, summary.Value, summary.AvgRate, summary.UpdatedAt)
	return err
}

// InsertEntry appends one movement row.
func (s *SQLStore) InsertEntry(ctx context.Context, q db.Querier, entry Entry) (Entry, error) {
	err := q.QueryRow(ctx, `INSERT INTO inventory_ledger_entries
(tenant_id, item_id, location_id, voucher_id, voucher_type, voucher_number, entry_date, direction, qty, rate, value, narration, is_reversal, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		entry.TenantID, entry.ItemID, entry.LocationID, entry.Source.VoucherID, entry.Source.DocType, entry.Source.Number,
		entry.Date, string(entry.Direction), entry.Qty, entry.Rate, entry.Value, entry.Narration, entry.Reversal, entry.CreatedAt).
		Scan(&entry.ID)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ListByVoucher loads every movement for the voucher in insertion order.
func (s *SQLStore) ListByVoucher(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT id, tenant_id, item_id, location_id, voucher_id, voucher_type, voucher_number, entry_date, direction, qty, rate, value, narration, is_reversal, created_at
FROM inventory_ledger_entries
WHERE tenant_id=$1 AND voucher_id=$2
ORDER BY id ASC`, tenantID, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		var direction string
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.ItemID, &entry.LocationID,
			&entry.Source.VoucherID, &entry.Source.DocType, &entry.Source.Number,
			&entry.Date, &direction, &entry.Qty, &entry.Rate, &entry.Value,
			&entry.Narration, &entry.Reversal, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Direction = Direction(direction)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
