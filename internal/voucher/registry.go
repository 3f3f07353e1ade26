package voucher

import (
	"context"
	"fmt"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Handler produces the ledger effects of one document type. Handlers are
// stateless and never persist anything themselves; they read the in-memory
// voucher plus whatever reference data validation needs.
type Handler interface {
	Type() DocType
	Validate(ctx context.Context, v *Voucher) error
	InventoryEntries(v *Voucher) ([]stock.Movement, error)
	JournalEntries(v *Voucher) ([]ledger.EntryInput, error)
}

// Registry is the immutable type-to-handler table. It is built once in the
// process entry point and injected into the orchestrator.
type Registry struct {
	handlers map[DocType]Handler
}

// NewRegistry builds the table, rejecting duplicate registrations.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	table := make(map[DocType]Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("voucher: nil handler")
		}
		if _, dup := table[h.Type()]; dup {
			return nil, fmt.Errorf("voucher: duplicate handler for %q", h.Type())
		}
		table[h.Type()] = h
	}
	return &Registry{handlers: table}, nil
}

// Lookup returns the handler for the type. There is no default handler.
func (r *Registry) Lookup(t DocType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, &UnknownDocumentTypeError{Type: t}
	}
	return h, nil
}

// DefaultHandlers returns one handler per supported document type.
func DefaultHandlers(boms BOMChecker) []Handler {
	return []Handler{
		&purchaseReceiptHandler{},
		&deliveryNoteHandler{},
		&stockTransferHandler{},
		&stockAdjustmentHandler{},
		&salesInvoiceHandler{},
		&purchaseInvoiceHandler{},
		&salesReturnHandler{},
		&purchaseReturnHandler{},
		&paymentHandler{},
		&receiptHandler{},
		&contraHandler{},
		&journalHandler{},
		&productionHandler{boms: boms},
		&salesOrderHandler{},
		&purchaseOrderHandler{},
	}
}
