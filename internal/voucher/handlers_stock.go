package voucher

import (
	"context"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Pure-inventory document types: goods receipt, dispatch, inter-location
// transfer and adjustment. None of them touch the financial ledger.

func inboundLocation(v *Voucher, line Line) int64 {
	if line.TargetLocationID != 0 {
		return line.TargetLocationID
	}
	return v.LocationID
}

func outboundLocation(v *Voucher, line Line) int64 {
	if line.SourceLocationID != 0 {
		return line.SourceLocationID
	}
	return v.LocationID
}

func validateItemLines(v *Voucher) error {
	items := 0
	for idx, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		items++
		if line.Qty <= 0 {
			return validationf("line %d: quantity must be positive", idx+1)
		}
		if line.Rate < 0 {
			return validationf("line %d: rate cannot be negative", idx+1)
		}
	}
	if items == 0 {
		return validationf("at least one item line required")
	}
	return nil
}

type purchaseReceiptHandler struct{}

func (purchaseReceiptHandler) Type() DocType { return DocTypePurchaseReceipt }

func (purchaseReceiptHandler) Validate(_ context.Context, v *Voucher) error {
	if err := validateItemLines(v); err != nil {
		return err
	}
	for idx, line := range v.Lines {
		if line.IsItemLine() && inboundLocation(v, line) == 0 {
			return validationf("line %d: location required", idx+1)
		}
	}
	return nil
}

func (purchaseReceiptHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	movements := make([]stock.Movement, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		movements = append(movements, stock.Movement{
			ItemID:     line.ItemID,
			LocationID: inboundLocation(v, line),
			Direction:  stock.DirectionIn,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Narration:  v.Narration,
		})
	}
	return movements, nil
}

func (purchaseReceiptHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) {
	return nil, nil
}

type deliveryNoteHandler struct{}

func (deliveryNoteHandler) Type() DocType { return DocTypeDeliveryNote }

func (deliveryNoteHandler) Validate(_ context.Context, v *Voucher) error {
	if err := validateItemLines(v); err != nil {
		return err
	}
	for idx, line := range v.Lines {
		if line.IsItemLine() && outboundLocation(v, line) == 0 {
			return validationf("line %d: location required", idx+1)
		}
	}
	return nil
}

func (deliveryNoteHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	movements := make([]stock.Movement, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		movements = append(movements, stock.Movement{
			ItemID:     line.ItemID,
			LocationID: outboundLocation(v, line),
			Direction:  stock.DirectionOut,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Narration:  v.Narration,
		})
	}
	return movements, nil
}

func (deliveryNoteHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) {
	return nil, nil
}

type stockTransferHandler struct{}

func (stockTransferHandler) Type() DocType { return DocTypeStockTransfer }

func (stockTransferHandler) Validate(_ context.Context, v *Voucher) error {
	if err := validateItemLines(v); err != nil {
		return err
	}
	for idx, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		if line.SourceLocationID == 0 || line.TargetLocationID == 0 {
			return validationf("line %d: source and destination locations required", idx+1)
		}
		if line.SourceLocationID == line.TargetLocationID {
			return validationf("line %d: source and destination must differ", idx+1)
		}
	}
	return nil
}

// InventoryEntries emits the OUT leg before the IN leg per line so the
// engine's sequential processing debits the source before crediting the
// destination.
func (stockTransferHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	movements := make([]stock.Movement, 0, 2*len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		movements = append(movements,
			stock.Movement{
				ItemID:     line.ItemID,
				LocationID: line.SourceLocationID,
				Direction:  stock.DirectionOut,
				Qty:        line.Qty,
				Rate:       line.Rate,
				Narration:  v.Narration,
			},
			stock.Movement{
				ItemID:     line.ItemID,
				LocationID: line.TargetLocationID,
				Direction:  stock.DirectionIn,
				Qty:        line.Qty,
				Rate:       line.Rate,
				Narration:  v.Narration,
			})
	}
	return movements, nil
}

func (stockTransferHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) {
	return nil, nil
}

type stockAdjustmentHandler struct{}

func (stockAdjustmentHandler) Type() DocType { return DocTypeStockAdjustment }

func (stockAdjustmentHandler) Validate(_ context.Context, v *Voucher) error {
	items := 0
	for idx, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		items++
		if line.Qty == 0 {
			return validationf("line %d: quantity cannot be zero", idx+1)
		}
		if line.Qty > 0 && line.Rate < 0 {
			return validationf("line %d: rate cannot be negative", idx+1)
		}
		if inboundLocation(v, line) == 0 {
			return validationf("line %d: location required", idx+1)
		}
	}
	if items == 0 {
		return validationf("at least one item line required")
	}
	return nil
}

// InventoryEntries maps signed quantities onto directions: positive adds
// stock at the line rate, negative removes at the ledger average.
func (stockAdjustmentHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	movements := make([]stock.Movement, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		m := stock.Movement{
			ItemID:     line.ItemID,
			LocationID: inboundLocation(v, line),
			Direction:  stock.DirectionIn,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Narration:  v.Narration,
		}
		if line.Qty < 0 {
			m.Direction = stock.DirectionOut
			m.Qty = -line.Qty
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (stockAdjustmentHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) {
	return nil, nil
}
