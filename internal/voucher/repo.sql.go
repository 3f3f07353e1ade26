package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/db"
	"github.com/keystone-erp/keystone/internal/shared"
)

// SQLStore persists vouchers in PostgreSQL. Lines and links are stored as
// JSONB documents; the ledgers, not the voucher rows, are the reporting
// source of truth.
type SQLStore struct{}

// NewSQLStore constructs SQLStore.
func NewSQLStore() *SQLStore {
	return &SQLStore{}
}

// lineRecord is the persisted shape of a Line. The account reference variants
// flatten into nullable columns of the JSON document.
type lineRecord struct {
	ItemID           int64    `json:"item_id,omitempty"`
	AccountID        int64    `json:"account_id,omitempty"`
	AccountCode      string   `json:"account_code,omitempty"`
	PartyID          int64    `json:"party_id,omitempty"`
	Description      string   `json:"description,omitempty"`
	Qty              float64  `json:"qty,omitempty"`
	Rate             float64  `json:"rate,omitempty"`
	Discount         float64  `json:"discount,omitempty"`
	GSTRate          float64  `json:"gst_rate,omitempty"`
	Amount           float64  `json:"amount,omitempty"`
	Tax              float64  `json:"tax,omitempty"`
	Debit            float64  `json:"debit,omitempty"`
	Credit           float64  `json:"credit,omitempty"`
	SourceLocationID int64    `json:"source_location_id,omitempty"`
	TargetLocationID int64    `json:"target_location_id,omitempty"`
	Role             LineRole `json:"role,omitempty"`
}

func toLineRecords(lines []Line) []lineRecord {
	records := make([]lineRecord, 0, len(lines))
	for _, line := range lines {
		record := lineRecord{
			ItemID:           line.ItemID,
			Description:      line.Description,
			Qty:              line.Qty,
			Rate:             line.Rate,
			Discount:         line.Discount,
			GSTRate:          line.GSTRate,
			Amount:           line.Amount,
			Tax:              line.Tax,
			Debit:            line.Debit,
			Credit:           line.Credit,
			SourceLocationID: line.SourceLocationID,
			TargetLocationID: line.TargetLocationID,
			Role:             line.Role,
		}
		switch ref := line.Account.(type) {
		case ledger.Resolved:
			record.AccountID = ref.AccountID
		case ledger.Symbolic:
			record.AccountCode = ref.Code
		case ledger.PartyLinked:
			record.PartyID = ref.PartyID
		}
		records = append(records, record)
	}
	return records
}

func fromLineRecords(records []lineRecord) []Line {
	lines := make([]Line, 0, len(records))
	for _, record := range records {
		line := Line{
			ItemID:           record.ItemID,
			Description:      record.Description,
			Qty:              record.Qty,
			Rate:             record.Rate,
			Discount:         record.Discount,
			GSTRate:          record.GSTRate,
			Amount:           record.Amount,
			Tax:              record.Tax,
			Debit:            record.Debit,
			Credit:           record.Credit,
			SourceLocationID: record.SourceLocationID,
			TargetLocationID: record.TargetLocationID,
			Role:             record.Role,
		}
		switch {
		case record.AccountID != 0:
			line.Account = ledger.Resolved{AccountID: record.AccountID}
		case record.AccountCode != "":
			line.Account = ledger.Symbolic{Code: record.AccountCode}
		case record.PartyID != 0:
			line.Account = ledger.PartyLinked{PartyID: record.PartyID}
		}
		lines = append(lines, line)
	}
	return lines
}

// Insert persists a new draft.
func (s *SQLStore) Insert(ctx context.Context, q db.Querier, v *Voucher) error {
	linesJSON, err := json.Marshal(toLineRecords(v.Lines))
	if err != nil {
		return err
	}
	linksJSON, err := json.Marshal(v.Links)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO vouchers
(id, tenant_id, doc_type, number, fiscal_year, doc_date, party_id, location_id, lines, links,
 subtotal, discount_total, tax_total, grand_total, narration, status, retired,
 bom_id, subcontracted, job_work_charge, payment_mode, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		v.ID, v.TenantID, string(v.Type), v.Number, v.FiscalYear, v.Date, nullInt(v.PartyID), nullInt(v.LocationID),
		linesJSON, linksJSON, v.Subtotal, v.DiscountTotal, v.TaxTotal, v.GrandTotal, v.Narration, string(v.Status),
		v.Retired, nullInt(v.BOMID), v.Subcontracted, v.JobWorkCharge, v.PaymentMode, v.CreatedBy, v.CreatedAt)
	return err
}

const voucherColumns = `id, tenant_id, doc_type, number, fiscal_year, doc_date, party_id, location_id, lines, links,
subtotal, discount_total, tax_total, grand_total, narration, status, retired,
bom_id, subcontracted, job_work_charge, payment_mode,
created_by, created_at, posted_by, posted_at, cancelled_by, cancelled_at, cancel_reason`

func scanVoucher(scan func(dest ...any) error) (Voucher, error) {
	var v Voucher
	var docType, status string
	var linesJSON, linksJSON []byte
	var partyID, locationID, bomID, postedBy, cancelledBy *int64
	err := scan(&v.ID, &v.TenantID, &docType, &v.Number, &v.FiscalYear, &v.Date, &partyID, &locationID, &linesJSON, &linksJSON,
		&v.Subtotal, &v.DiscountTotal, &v.TaxTotal, &v.GrandTotal, &v.Narration, &status, &v.Retired,
		&bomID, &v.Subcontracted, &v.JobWorkCharge, &v.PaymentMode,
		&v.CreatedBy, &v.CreatedAt, &postedBy, &v.PostedAt, &cancelledBy, &v.CancelledAt, &v.CancelReason)
	if err != nil {
		return Voucher{}, err
	}
	v.Type = DocType(docType)
	v.Status = Status(status)
	if partyID != nil {
		v.PartyID = *partyID
	}
	if locationID != nil {
		v.LocationID = *locationID
	}
	if bomID != nil {
		v.BOMID = *bomID
	}
	if postedBy != nil {
		v.PostedBy = *postedBy
	}
	if cancelledBy != nil {
		v.CancelledBy = *cancelledBy
	}
	var records []lineRecord
	if err := json.Unmarshal(linesJSON, &records); err != nil {
		return Voucher{}, err
	}
	v.Lines = fromLineRecords(records)
	if len(linksJSON) > 0 {
		if err := json.Unmarshal(linksJSON, &v.Links); err != nil {
			return Voucher{}, err
		}
	}
	return v, nil
}

// Get loads one voucher scoped to the tenant.
func (s *SQLStore) Get(ctx context.Context, q db.Querier, tenantID int64, id uuid.UUID) (Voucher, error) {
	row := q.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	v, err := scanVoucher(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

// List loads vouchers for the tenant, newest first, optionally narrowed by
// type and status.
func (s *SQLStore) List(ctx context.Context, q db.Querier, tenantID int64, filter ListFilter) ([]Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE tenant_id=$1`
	args := []any{tenantID}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND doc_type=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, filter.limitOrDefault())
	query += fmt.Sprintf(" ORDER BY created_at DESC, number DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	vouchers := []Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows.Scan)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vouchers, nil
}

// UpdateStatus writes the lifecycle fields. Line items are immutable after
// creation and never rewritten here.
func (s *SQLStore) UpdateStatus(ctx context.Context, q db.Querier, v *Voucher) error {
	tag, err := q.Exec(ctx, `UPDATE vouchers
SET status=$3, retired=$4, posted_by=$5, posted_at=$6, cancelled_by=$7, cancelled_at=$8, cancel_reason=$9
WHERE tenant_id=$1 AND id=$2`,
		v.TenantID, v.ID, string(v.Status), v.Retired,
		nullInt(v.PostedBy), v.PostedAt, nullInt(v.CancelledBy), v.CancelledAt, v.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// SQLBOMStore checks bill-of-materials references in PostgreSQL.
type SQLBOMStore struct {
	q db.Querier
}

// NewSQLBOMStore constructs SQLBOMStore over the pool.
func NewSQLBOMStore(q db.Querier) *SQLBOMStore {
	return &SQLBOMStore{q: q}
}

// Exists reports whether the BOM belongs to the tenant and is active.
func (s *SQLBOMStore) Exists(ctx context.Context, tenantID, bomID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM boms WHERE tenant_id=$1 AND id=$2 AND is_active)`, tenantID, bomID).Scan(&exists)
	return exists, err
}
