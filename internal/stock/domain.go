// Package stock is the inventory ledger engine: append-only stock movements
// plus a materialized per item+location summary kept at weighted-average cost.
package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction marks a movement as inbound or outbound.
type Direction string

const (
	// DirectionIn adds stock to a location.
	DirectionIn Direction = "IN"
	// DirectionOut removes stock from a location.
	DirectionOut Direction = "OUT"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// SourceRef ties movements back to the originating voucher.
type SourceRef struct {
	VoucherID uuid.UUID
	DocType   string
	Number    string
}

// Movement describes one stock movement before persistence.
type Movement struct {
	ItemID     int64
	LocationID int64
	Direction  Direction
	Qty        float64
	Rate       float64
	Narration  string
}

// Entry is a persisted inventory ledger row. Append-only.
type Entry struct {
	ID         int64
	TenantID   int64
	ItemID     int64
	LocationID int64
	Source     SourceRef
	Date       time.Time
	Direction  Direction
	Qty        float64
	Rate       float64
	Value      float64
	Narration  string
	Reversal   bool
	CreatedAt  time.Time
}

// Summary is the materialized aggregate per (tenant, item, location). It must
// always equal the fold of the entry history for its key.
type Summary struct {
	TenantID   int64
	ItemID     int64
	LocationID int64
	Qty        float64
	Value      float64
	AvgRate    float64
	UpdatedAt  time.Time
}

// ErrSummaryNotFound indicates no summary row exists for the key yet.
var ErrSummaryNotFound = errors.New("stock: summary not found")

// InsufficientStockError reports an outbound movement exceeding the available
// quantity at its location.
type InsufficientStockError struct {
	ItemID     int64
	LocationID int64
	Requested  float64
	Available  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for item %d at location %d: requested %.3f, available %.3f",
		e.ItemID, e.LocationID, e.Requested, e.Available)
}
