package voucher

import (
	"context"
	"math"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Pure-financial document types: cash movements and manual journals. None of
// them touch the inventory ledger.

func settlementCode(v *Voucher) string {
	if v.PaymentMode == "BANK" {
		return accounts.CodeBank
	}
	return accounts.CodeCash
}

func accountLines(v *Voucher) []Line {
	lines := make([]Line, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.IsItemLine() {
			lines = append(lines, line)
		}
	}
	return lines
}

type paymentHandler struct{}

func (paymentHandler) Type() DocType { return DocTypePayment }

// Validate requires debit-side lines; the balancing cash or bank credit is
// generated at posting time.
func (paymentHandler) Validate(_ context.Context, v *Voucher) error {
	lines := accountLines(v)
	if len(lines) == 0 {
		return validationf("at least one account line required")
	}
	for idx, line := range lines {
		if line.Account == nil {
			return validationf("line %d: account required", idx+1)
		}
		if line.Debit <= 0 || line.Credit != 0 {
			return validationf("line %d: payment lines carry a positive debit only", idx+1)
		}
	}
	return nil
}

func (paymentHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (paymentHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := make([]ledger.EntryInput, 0, len(v.Lines)+1)
	for _, line := range accountLines(v) {
		entries = append(entries, ledger.EntryInput{Account: line.Account, Debit: line.Debit, Narration: v.Narration})
	}
	entries = append(entries, ledger.EntryInput{Account: ledger.Symbolic{Code: settlementCode(v)}, Credit: v.GrandTotal, Narration: v.Narration})
	return entries, nil
}

type receiptHandler struct{}

func (receiptHandler) Type() DocType { return DocTypeReceipt }

func (receiptHandler) Validate(_ context.Context, v *Voucher) error {
	lines := accountLines(v)
	if len(lines) == 0 {
		return validationf("at least one account line required")
	}
	for idx, line := range lines {
		if line.Account == nil {
			return validationf("line %d: account required", idx+1)
		}
		if line.Credit <= 0 || line.Debit != 0 {
			return validationf("line %d: receipt lines carry a positive credit only", idx+1)
		}
	}
	return nil
}

func (receiptHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (receiptHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := []ledger.EntryInput{
		{Account: ledger.Symbolic{Code: settlementCode(v)}, Debit: v.GrandTotal, Narration: v.Narration},
	}
	for _, line := range accountLines(v) {
		entries = append(entries, ledger.EntryInput{Account: line.Account, Credit: line.Credit, Narration: v.Narration})
	}
	return entries, nil
}

type contraHandler struct{}

func (contraHandler) Type() DocType { return DocTypeContra }

// Validate restricts contra documents to a single equal debit/credit pair
// between the cash and bank accounts.
func (contraHandler) Validate(_ context.Context, v *Voucher) error {
	lines := accountLines(v)
	if len(lines) != 2 {
		return validationf("contra requires exactly two account lines")
	}
	var debit, credit float64
	for idx, line := range lines {
		sym, ok := line.Account.(ledger.Symbolic)
		if !ok || (sym.Code != accounts.CodeCash && sym.Code != accounts.CodeBank) {
			return validationf("line %d: contra moves between cash and bank only", idx+1)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit <= 0 || math.Abs(debit-credit) > ledger.BalanceEpsilon {
		return validationf("contra lines must carry one equal debit and credit")
	}
	return nil
}

func (contraHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (contraHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := make([]ledger.EntryInput, 0, 2)
	for _, line := range accountLines(v) {
		entries = append(entries, ledger.EntryInput{Account: line.Account, Debit: line.Debit, Credit: line.Credit, Narration: v.Narration})
	}
	return entries, nil
}

type journalHandler struct{}

func (journalHandler) Type() DocType { return DocTypeJournal }

// Validate rejects unbalanced manual line sets at create time, before the
// engine sees them.
func (journalHandler) Validate(_ context.Context, v *Voucher) error {
	lines := accountLines(v)
	if len(lines) < 2 {
		return validationf("journal requires at least two account lines")
	}
	var debit, credit float64
	for idx, line := range lines {
		if line.Account == nil {
			return validationf("line %d: account required", idx+1)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return validationf("line %d: negative amount", idx+1)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return validationf("line %d: no amount", idx+1)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return validationf("line %d: cannot be both debit and credit", idx+1)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if math.Abs(debit-credit) > ledger.BalanceEpsilon {
		return validationf("journal lines must balance: debit %.2f credit %.2f", debit, credit)
	}
	return nil
}

func (journalHandler) InventoryEntries(*Voucher) ([]stock.Movement, error) { return nil, nil }

func (journalHandler) JournalEntries(v *Voucher) ([]ledger.EntryInput, error) {
	entries := make([]ledger.EntryInput, 0, len(v.Lines))
	for _, line := range accountLines(v) {
		narration := line.Description
		if narration == "" {
			narration = v.Narration
		}
		entries = append(entries, ledger.EntryInput{Account: line.Account, Debit: line.Debit, Credit: line.Credit, Narration: narration})
	}
	return entries, nil
}
