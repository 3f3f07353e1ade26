// Package voucher turns business documents into durable accounting and
// inventory facts: the document model, one handler per document type, and the
// orchestrator that drives create, post and cancel.
package voucher

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/shared"
)

// DocType is the closed set of document types. Every type has a registered
// handler; an unregistered type is a wiring bug surfaced at startup.
type DocType string

const (
	DocTypePurchaseReceipt DocType = "PURCHASE_RECEIPT"
	DocTypeDeliveryNote    DocType = "DELIVERY_NOTE"
	DocTypeStockTransfer   DocType = "STOCK_TRANSFER"
	DocTypeStockAdjustment DocType = "STOCK_ADJUSTMENT"
	DocTypeSalesInvoice    DocType = "SALES_INVOICE"
	DocTypePurchaseInvoice DocType = "PURCHASE_INVOICE"
	DocTypeSalesReturn     DocType = "SALES_RETURN"
	DocTypePurchaseReturn  DocType = "PURCHASE_RETURN"
	DocTypePayment         DocType = "PAYMENT"
	DocTypeReceipt         DocType = "RECEIPT"
	DocTypeContra          DocType = "CONTRA"
	DocTypeJournal         DocType = "JOURNAL"
	DocTypeProduction      DocType = "PRODUCTION"
	DocTypeSalesOrder      DocType = "SALES_ORDER"
	DocTypePurchaseOrder   DocType = "PURCHASE_ORDER"
)

// Prefix returns the document number prefix for the type.
func (t DocType) Prefix() string {
	switch t {
	case DocTypePurchaseReceipt:
		return "GRN"
	case DocTypeDeliveryNote:
		return "DN"
	case DocTypeStockTransfer:
		return "STN"
	case DocTypeStockAdjustment:
		return "ADJ"
	case DocTypeSalesInvoice:
		return "SINV"
	case DocTypePurchaseInvoice:
		return "PINV"
	case DocTypeSalesReturn:
		return "CRN"
	case DocTypePurchaseReturn:
		return "DBN"
	case DocTypePayment:
		return "PAY"
	case DocTypeReceipt:
		return "RCV"
	case DocTypeContra:
		return "CTR"
	case DocTypeJournal:
		return "JV"
	case DocTypeProduction:
		return "MFG"
	case DocTypeSalesOrder:
		return "SO"
	case DocTypePurchaseOrder:
		return "PO"
	}
	return "DOC"
}

// NonPosting reports whether the type never reaches the ledgers. Only these
// types may be retired.
func (t DocType) NonPosting() bool {
	return t == DocTypeSalesOrder || t == DocTypePurchaseOrder
}

// Status enumerates the one-directional document lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// LineRole distinguishes production inputs from the produced output.
type LineRole string

const (
	LineRoleNone   LineRole = ""
	LineRoleInput  LineRole = "INPUT"
	LineRoleOutput LineRole = "OUTPUT"
)

// Line is one document line: an item movement line, or an account line
// carrying a debit/credit pair.
type Line struct {
	ItemID      int64
	Account     ledger.AccountRef
	Description string
	Qty         float64
	Rate        float64
	Discount    float64
	GSTRate     float64
	Amount      float64
	Tax         float64
	Debit       float64
	Credit      float64
	// Transfers carry an explicit source and destination per line.
	SourceLocationID int64
	TargetLocationID int64
	Role             LineRole
}

// IsItemLine reports whether the line moves stock.
func (l Line) IsItemLine() bool {
	return l.ItemID != 0
}

// DocLink relates a document to another, e.g. order to invoice.
type DocLink struct {
	Type      DocType   `json:"type"`
	VoucherID uuid.UUID `json:"voucher_id"`
	Number    string    `json:"number"`
}

// Voucher is a business document. Created as a draft by the orchestrator,
// posted and cancelled only through it, never deleted.
type Voucher struct {
	ID         uuid.UUID
	TenantID   int64
	Type       DocType
	Number     string
	FiscalYear string
	Date       time.Time
	PartyID    int64
	LocationID int64
	Lines      []Line
	Links      []DocLink

	Subtotal      float64
	DiscountTotal float64
	TaxTotal      float64
	GrandTotal    float64

	Narration string
	Status    Status
	Retired   bool

	// Production documents.
	BOMID         int64
	Subcontracted bool
	JobWorkCharge float64

	// Payment and receipt documents settle against CASH or BANK.
	PaymentMode string

	CreatedBy    int64
	CreatedAt    time.Time
	PostedBy     int64
	PostedAt     *time.Time
	CancelledBy  int64
	CancelledAt  *time.Time
	CancelReason string
}

// computeTotals fills per-line and document totals. Item line amount is
// qty x rate; line tax is (amount - discount) x gstRate/100. Account lines
// contribute their debit, or their credit on money-movement documents where
// the counter leg is generated by the handler.
func (v *Voucher) computeTotals() {
	var subtotal, discount, tax float64
	for idx := range v.Lines {
		line := &v.Lines[idx]
		if line.IsItemLine() {
			line.Amount = line.Qty * line.Rate
			line.Tax = (line.Amount - line.Discount) * line.GSTRate / 100
			subtotal += line.Amount
			discount += line.Discount
			tax += line.Tax
			continue
		}
		switch v.Type {
		case DocTypeReceipt:
			subtotal += line.Credit
		case DocTypePayment:
			subtotal += line.Debit
		default:
			subtotal += line.Debit
		}
	}
	v.Subtotal = subtotal
	v.DiscountTotal = discount
	v.TaxTotal = tax
	v.GrandTotal = subtotal - discount + tax
}

// NetAmount is the taxable base: subtotal less discount.
func (v *Voucher) NetAmount() float64 {
	return v.Subtotal - v.DiscountTotal
}

// FiscalYearFor derives the April-to-March fiscal year label for a date,
// e.g. 2025-06-15 -> "2025-26".
func FiscalYearFor(date time.Time) string {
	year := date.Year()
	if date.Month() < time.April {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// InvalidStateTransitionError reports an action attempted against the wrong
// document status.
type InvalidStateTransitionError struct {
	Action string
	Status Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("voucher: cannot %s a %s document", e.Action, e.Status)
}

// UnknownDocumentTypeError reports a lookup for a type with no registered
// handler.
type UnknownDocumentTypeError struct {
	Type DocType
}

func (e *UnknownDocumentTypeError) Error() string {
	return fmt.Sprintf("voucher: no handler registered for document type %q", e.Type)
}

// validationf wraps a business-rule violation with the shared validation
// sentinel so the boundary can map it uniformly.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrValidation, fmt.Sprintf(format, args...))
}
