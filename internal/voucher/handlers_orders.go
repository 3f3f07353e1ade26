package voucher

import (
	"context"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Orders never post to either ledger; they exist to be linked from the
// invoices that fulfil them, and they are the only types that may be retired.

type salesOrderHandler struct{}

func (salesOrderHandler) Type() DocType { return DocTypeSalesOrder }

func (salesOrderHandler) Validate(_ context.Context, v *Voucher) error {
	if v.PartyID == 0 {
		return validationf("counterparty required")
	}
	return validateItemLines(v)
}

func (salesOrderHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (salesOrderHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) { return nil, nil }

type purchaseOrderHandler struct{}

func (purchaseOrderHandler) Type() DocType { return DocTypePurchaseOrder }

func (purchaseOrderHandler) Validate(_ context.Context, v *Voucher) error {
	if v.PartyID == 0 {
		return validationf("counterparty required")
	}
	return validateItemLines(v)
}

func (purchaseOrderHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (purchaseOrderHandler) JournalEntries(*Voucher) ([]ledger.EntryInput, error) { return nil, nil }
