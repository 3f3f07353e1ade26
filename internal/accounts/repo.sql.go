package accounts

import (
	"context"

	"github.com/keystone-erp/keystone/internal/platform/db"
)

// SQLStore looks up chart of accounts rows in PostgreSQL.
type SQLStore struct{}

// NewSQLStore constructs SQLStore.
func NewSQLStore() *SQLStore {
	return &SQLStore{}
}

// AccountIDsByCodes resolves active account codes for the tenant in one query.
func (s *SQLStore) AccountIDsByCodes(ctx context.Context, q db.Querier, tenantID int64, codes []string) (map[string]int64, error) {
	rows, err := q.Query(ctx, `SELECT code, id FROM accounts WHERE tenant_id=$1 AND code = ANY($2) AND is_active`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		out[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PartyAccountIDs resolves the control accounts linked to counterparties.
func (s *SQLStore) PartyAccountIDs(ctx context.Context, q db.Querier, tenantID int64, partyIDs []int64) (map[int64]int64, error) {
	rows, err := q.Query(ctx, `SELECT id, account_id FROM parties WHERE tenant_id=$1 AND id = ANY($2) AND account_id IS NOT NULL`, tenantID, partyIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var partyID, accountID int64
		if err := rows.Scan(&partyID, &accountID); err != nil {
			return nil, err
		}
		out[partyID] = accountID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
