package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// qtyEpsilon absorbs float drift when comparing quantities.
const qtyEpsilon = 0.0001

// Store persists movements and summaries within the caller's unit of work.
type Store interface {
	GetSummary(ctx context.Context, q db.Querier, tenantID, itemID, locationID int64) (Summary, error)
	UpsertSummary(ctx context.Context, q db.Querier, summary Summary) error
	InsertEntry(ctx context.Context, q db.Querier, entry Entry) (Entry, error)
	ListByVoucher(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error)
}

// Engine appends stock movements and maintains the weighted-average summary.
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

// Post applies movements one at a time, in order. Each movement appends a
// ledger row and folds into the summary, so a later movement in the batch
// sees the quantity and average left by an earlier one.
func (e *Engine) Post(ctx context.Context, q db.Querier, tenantID int64, source SourceRef, date time.Time, movements []Movement) ([]Entry, error) {
	return e.post(ctx, q, tenantID, source, date, movements, false)
}

func (e *Engine) post(ctx context.Context, q db.Querier, tenantID int64, source SourceRef, date time.Time, movements []Movement, reversal bool) ([]Entry, error) {
	if tenantID == 0 {
		return nil, errors.New("stock: tenant required")
	}
	entries := make([]Entry, 0, len(movements))
	for idx, m := range movements {
		if m.ItemID == 0 || m.LocationID == 0 {
			return nil, fmt.Errorf("stock: movement %d requires item and location", idx)
		}
		if m.Qty <= 0 {
			return nil, fmt.Errorf("stock: movement %d requires a positive quantity", idx)
		}
		if m.Rate < 0 {
			return nil, fmt.Errorf("stock: movement %d has a negative rate", idx)
		}
		entry, err := e.applyMovement(ctx, q, tenantID, source, date, m, reversal)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *Engine) applyMovement(ctx context.Context, q db.Querier, tenantID int64, source SourceRef, date time.Time, m Movement, reversal bool) (Entry, error) {
	summary, err := e.store.GetSummary(ctx, q, tenantID, m.ItemID, m.LocationID)
	if err != nil && !errors.Is(err, ErrSummaryNotFound) {
		return Entry{}, err
	}
	missing := errors.Is(err, ErrSummaryNotFound)
	if missing {
		summary = Summary{TenantID: tenantID, ItemID: m.ItemID, LocationID: m.LocationID}
	}

	rate := m.Rate
	var value float64
	switch m.Direction {
	case DirectionIn:
		value = m.Qty * m.Rate
		summary.Qty += m.Qty
		summary.Value += value
		if summary.Qty > 0 {
			summary.AvgRate = summary.Value / summary.Qty
		} else {
			summary.AvgRate = 0
		}
	case DirectionOut:
		if missing || summary.Qty+qtyEpsilon < m.Qty {
			return Entry{}, &InsufficientStockError{
				ItemID:     m.ItemID,
				LocationID: m.LocationID,
				Requested:  m.Qty,
				Available:  summary.Qty,
			}
		}
		// Outbound cost always follows the ledger's own average, never the
		// rate supplied on the movement.
		rate = summary.AvgRate
		value = m.Qty * rate
		summary.Qty -= m.Qty
		summary.Value -= value
		if math.Abs(summary.Qty) < qtyEpsilon {
			summary.Qty = 0
		}
		if summary.Value < 0 {
			summary.Value = 0
		}
		if summary.Qty > 0 {
			summary.AvgRate = summary.Value / summary.Qty
		} else {
			summary.AvgRate = 0
			summary.Value = 0
		}
	default:
		return Entry{}, fmt.Errorf("stock: unknown direction %q", m.Direction)
	}

	summary.UpdatedAt = e.now().UTC()
	if err := e.store.UpsertSummary(ctx, q, summary); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		TenantID:   tenantID,
		ItemID:     m.ItemID,
		LocationID: m.LocationID,
		Source:     source,
		Date:       date,
		Direction:  m.Direction,
		Qty:        m.Qty,
		Rate:       rate,
		Value:      value,
		Narration:  m.Narration,
		Reversal:   reversal,
		CreatedAt:  e.now().UTC(),
	}
	return e.store.InsertEntry(ctx, q, entry)
}

// Reverse resubmits every non-reversal movement of the voucher with its
// direction flipped, through the same averaging logic. Reversal moves the
// ledger forward; it does not restore a prior snapshot, so an intervening
// posting against the same key can leave a different average afterwards.
func (e *Engine) Reverse(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]Entry, error) {
	if tenantID == 0 {
		return nil, errors.New("stock: tenant required")
	}
	existing, err := e.store.ListByVoucher(ctx, q, tenantID, voucherID)
	if err != nil {
		return nil, err
	}
	movements := make([]Movement, 0, len(existing))
	var source SourceRef
	for _, entry := range existing {
		if entry.Reversal {
			continue
		}
		source = entry.Source
		movements = append(movements, Movement{
			ItemID:     entry.ItemID,
			LocationID: entry.LocationID,
			Direction:  entry.Direction.Flip(),
			Qty:        entry.Qty,
			Rate:       entry.Rate,
			Narration:  "Reversal: " + entry.Narration,
		})
	}
	if len(movements) == 0 {
		return nil, nil
	}
	return e.post(ctx, q, tenantID, source, e.now().UTC(), movements, true)
}
