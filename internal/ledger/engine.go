package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// Store persists and loads journal rows within the caller's unit of work.
type Store interface {
	InsertEntries(ctx context.Context, q db.Querier, entries []Entry) ([]Entry, error)
	ListByVoucher(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error)
}

// Engine validates and appends balanced journal batches.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine constructs the Engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post appends a balanced batch for one voucher. Nothing is persisted when
// any precondition fails.
func (e *Engine) Post(ctx context.Context, q db.Querier, tenantID int64, source SourceRef, date time.Time, fiscalYear string, inputs []EntryInput) ([]Entry, error) {
	if tenantID == 0 {
		return nil, errors.New("ledger: tenant required")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	var debit, credit float64
	rows := make([]Entry, 0, len(inputs))
	now := e.now().UTC()
	for idx, in := range inputs {
		resolved, ok := in.Account.(Resolved)
		if !ok || resolved.AccountID == 0 {
			return nil, &UnresolvedRefError{Index: idx}
		}
		if in.Debit < 0 || in.Credit < 0 {
			return nil, fmt.Errorf("ledger: entry %d has a negative amount", idx)
		}
		if in.Debit == 0 && in.Credit == 0 {
			return nil, fmt.Errorf("ledger: entry %d has no amount", idx)
		}
		debit += in.Debit
		credit += in.Credit
		rows = append(rows, Entry{
			TenantID:   tenantID,
			Source:     source,
			Date:       date,
			AccountID:  resolved.AccountID,
			Debit:      in.Debit,
			Credit:     in.Credit,
			Narration:  in.Narration,
			FiscalYear: fiscalYear,
			CreatedAt:  now,
		})
	}
	if math.Abs(debit-credit) > BalanceEpsilon {
		return nil, &UnbalancedEntriesError{Debit: debit, Credit: credit}
	}
	return e.store.InsertEntries(ctx, q, rows)
}

// Reverse mirrors every non-reversal entry of the voucher with debit and
// credit swapped. A voucher with no entries reverses to an empty no-op.
func (e *Engine) Reverse(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error) {
	if tenantID == 0 {
		return nil, errors.New("ledger: tenant required")
	}
	existing, err := e.store.ListByVoucher(ctx, q, tenantID, voucherID)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	mirrored := make([]Entry, 0, len(existing))
	for _, entry := range existing {
		if entry.Reversal {
			continue
		}
		mirrored = append(mirrored, Entry{
			TenantID:   entry.TenantID,
			Source:     entry.Source,
			Date:       now,
			AccountID:  entry.AccountID,
			Debit:      entry.Credit,
			Credit:     entry.Debit,
			Narration:  "Reversal: " + entry.Narration,
			FiscalYear: entry.FiscalYear,
			Reversal:   true,
			CreatedAt:  now,
		})
	}
	if len(mirrored) == 0 {
		return nil, nil
	}
	return e.store.InsertEntries(ctx, q, mirrored)
}
