// Package ledger is the financial ledger engine: append-only balanced
// journal batches plus mirrored reversal.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountRef identifies the account an entry posts to. An entry leaves the
// account resolver carrying a Resolved ref or the batch is rejected; the
// variants make that contract a type-level one instead of a field convention.
type AccountRef interface {
	isAccountRef()
}

// Resolved carries a concrete ledger account id.
type Resolved struct {
	AccountID int64
}

func (Resolved) isAccountRef() {}

// Symbolic names a well-known account by code, e.g. SALES or GST_INPUT.
type Symbolic struct {
	Code string
}

func (Symbolic) isAccountRef() {}

// PartyLinked refers to the control account configured for a counterparty.
type PartyLinked struct {
	PartyID int64
}

func (PartyLinked) isAccountRef() {}

// SourceRef ties entries back to the originating voucher.
type SourceRef struct {
	VoucherID uuid.UUID
	DocType   string
	Number    string
}

// EntryInput describes one journal leg before persistence. Exactly one of
// debit/credit is non-zero per conceptual leg, though a row may carry both.
type EntryInput struct {
	Account   AccountRef
	Debit     float64
	Credit    float64
	Narration string
}

// Entry is a persisted journal row. Rows are never updated; a reversal is a
// new row with debit and credit swapped.
type Entry struct {
	ID         int64
	TenantID   int64
	Source     SourceRef
	Date       time.Time
	AccountID  int64
	Debit      float64
	Credit     float64
	Narration  string
	FiscalYear string
	Reversal   bool
	CreatedAt  time.Time
}

// BalanceEpsilon absorbs float rounding when comparing batch totals.
const BalanceEpsilon = 0.01

// UnbalancedEntriesError reports a batch whose debits and credits diverge
// beyond the epsilon.
type UnbalancedEntriesError struct {
	Debit  float64
	Credit float64
}

func (e *UnbalancedEntriesError) Error() string {
	return fmt.Sprintf("ledger: entries unbalanced: debit %.2f credit %.2f", e.Debit, e.Credit)
}

// UnresolvedRefError reports an entry that reached the engine without a
// concrete account id.
type UnresolvedRefError struct {
	Index int
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("ledger: entry %d has no resolved account", e.Index)
}
