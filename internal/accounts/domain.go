// Package accounts resolves symbolic account references to concrete
// tenant-scoped ledger account ids.
package accounts

import (
	"fmt"
	"time"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	TenantID  int64
	Code      string
	Name      string
	Type      AccountType
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Well-known symbolic codes used by document handlers.
const (
	CodeSales          = "SALES"
	CodePurchases      = "PURCHASES"
	CodeGSTOutput      = "GST_OUTPUT"
	CodeGSTInput       = "GST_INPUT"
	CodeCash           = "CASH"
	CodeBank           = "BANK"
	CodeJobWorkCharges = "JOB_WORK_CHARGES"
)

// UnresolvedAccountError reports a symbolic code with no tenant account, or a
// counterparty with no linked account configured.
type UnresolvedAccountError struct {
	Code    string
	PartyID int64
}

func (e *UnresolvedAccountError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("accounts: no account for code %q", e.Code)
	}
	return fmt.Sprintf("accounts: no linked account for party %d", e.PartyID)
}
