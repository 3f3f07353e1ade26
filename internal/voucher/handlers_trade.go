package voucher

import (
	"context"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Dual-sided trade documents: each produces stock movements plus a journal of
// principal, revenue/expense and tax legs. Returns invert both ledgers of
// their originating type.

func validateTradeDocument(v *Voucher) error {
	if v.PartyID == 0 {
		return validationf("counterparty required")
	}
	return validateItemLines(v)
}

func itemMovements(v *Voucher, direction stock.Direction) []stock.Movement {
	movements := make([]stock.Movement, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			continue
		}
		location := inboundLocation(v, line)
		if direction == stock.DirectionOut {
			location = outboundLocation(v, line)
		}
		movements = append(movements, stock.Movement{
			ItemID:     line.ItemID,
			LocationID: location,
			Direction:  direction,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Narration:  v.Narration,
		})
	}
	return movements
}

type purchaseInvoiceHandler struct{}

func (purchaseInvoiceHandler) Type() DocType { return DocTypePurchaseInvoice }

func (purchaseInvoiceHandler) Validate(_ context.Context, v *Voucher) error {
	return validateTradeDocument(v)
}

func (purchaseInvoiceHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	return itemMovements(v, stock.DirectionIn), nil
}

func (purchaseInvoiceHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := []ledger.EntryInput{
		{Account: ledger.Symbolic{Code: accounts.CodePurchases}, Debit: v.NetAmount(), Narration: v.Narration},
	}
	if v.TaxTotal > 0 {
		entries = append(entries, ledger.EntryInput{Account: ledger.Symbolic{Code: accounts.CodeGSTInput}, Debit: v.TaxTotal, Narration: v.Narration})
	}
	entries = append(entries, ledger.EntryInput{Account: ledger.PartyLinked{PartyID: v.PartyID}, Credit: v.GrandTotal, Narration: v.Narration})
	return entries, nil
}

type salesInvoiceHandler struct{}

func (salesInvoiceHandler) Type() DocType { return DocTypeSalesInvoice }

func (salesInvoiceHandler) Validate(_ context.Context, v *Voucher) error {
	return validateTradeDocument(v)
}

func (salesInvoiceHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	return itemMovements(v, stock.DirectionOut), nil
}

func (salesInvoiceHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := []ledger.EntryInput{
		{Account: ledger.PartyLinked{PartyID: v.PartyID}, Debit: v.GrandTotal, Narration: v.Narration},
		{Account: ledger.Symbolic{Code: accounts.CodeSales}, Credit: v.NetAmount(), Narration: v.Narration},
	}
	if v.TaxTotal > 0 {
		entries = append(entries, ledger.EntryInput{Account: ledger.Symbolic{Code: accounts.CodeGSTOutput}, Credit: v.TaxTotal, Narration: v.Narration})
	}
	return entries, nil
}

type salesReturnHandler struct{}

func (salesReturnHandler) Type() DocType { return DocTypeSalesReturn }

func (salesReturnHandler) Validate(_ context.Context, v *Voucher) error {
	return validateTradeDocument(v)
}

// InventoryEntries takes the goods back in at the credited rate.
func (salesReturnHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	return itemMovements(v, stock.DirectionIn), nil
}

func (salesReturnHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := []ledger.EntryInput{
		{Account: ledger.PartyLinked{PartyID: v.PartyID}, Credit: v.GrandTotal, Narration: v.Narration},
		{Account: ledger.Symbolic{Code: accounts.CodeSales}, Debit: v.NetAmount(), Narration: v.Narration},
	}
	if v.TaxTotal > 0 {
		entries = append(entries, ledger.EntryInput{Account: ledger.Symbolic{Code: accounts.CodeGSTOutput}, Debit: v.TaxTotal, Narration: v.Narration})
	}
	return entries, nil
}

type purchaseReturnHandler struct{}

func (purchaseReturnHandler) Type() DocType { return DocTypePurchaseReturn }

func (purchaseReturnHandler) Validate(_ context.Context, v *Voucher) error {
	return validateTradeDocument(v)
}

func (purchaseReturnHandler) InventoryEntries(v *Voucher) ([]stock.Movement, error) {
	return itemMovements(v, stock.DirectionOut), nil
}

func (purchaseReturnHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := []ledger.EntryInput{
		{Account: ledger.PartyLinked{PartyID: v.PartyID}, Debit: v.GrandTotal, Narration: v.Narration},
		{Account: ledger.Symbolic{Code: accounts.CodePurchases}, Credit: v.NetAmount(), Narration: v.Narration},
	}
	if v.TaxTotal > 0 {
		entries = append(entries, ledger.EntryInput{Account: ledger.Symbolic{Code: accounts.CodeGSTInput}, Credit: v.TaxTotal, Narration: v.Narration})
	}
	return entries, nil
}
