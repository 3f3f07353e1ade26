package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/db"
)

// Store batches the account lookups used during resolution.
type Store interface {
	AccountIDsByCodes(ctx context.Context, q db.Querier, tenantID int64, codes []string) (map[string]int64, error)
	PartyAccountIDs(ctx context.Context, q db.Querier, tenantID int64, partyIDs []int64) (map[int64]int64, error)
}

// Resolver fills concrete account ids into journal batches. The chart of
// accounts changes rarely, so code lookups are cached in Redis; party links
// always hit the store.
type Resolver struct {
	store Store
	cache *redis.Client
	ttl   time.Duration
}

// NewResolver constructs the Resolver. cache may be nil.
func NewResolver(store Store, cache *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{store: store, cache: cache, ttl: ttl}
}

// Resolve replaces every symbolic or party-linked reference in the batch with
// a resolved account id, in place. One store query per distinct code set and
// one per distinct party set, never per entry. After a nil return every entry
// carries a concrete account id.
func (r *Resolver) Resolve(ctx context.Context, q db.Querier, tenantID int64, entries []ledger.EntryInput) error {
	if tenantID == 0 {
		return errors.New("accounts: tenant required")
	}

	codeSet := map[string]struct{}{}
	partySet := map[int64]struct{}{}
	for _, entry := range entries {
		switch ref := entry.Account.(type) {
		case ledger.Resolved:
		case ledger.Symbolic:
			codeSet[ref.Code] = struct{}{}
		case ledger.PartyLinked:
			partySet[ref.PartyID] = struct{}{}
		default:
			return errors.New("accounts: entry carries no account reference")
		}
	}

	byCode, err := r.lookupCodes(ctx, q, tenantID, codeSet)
	if err != nil {
		return err
	}
	byParty := map[int64]int64{}
	if len(partySet) > 0 {
		ids := make([]int64, 0, len(partySet))
		for id := range partySet {
			ids = append(ids, id)
		}
		byParty, err = r.store.PartyAccountIDs(ctx, q, tenantID, ids)
		if err != nil {
			return err
		}
	}

	for idx := range entries {
		switch ref := entries[idx].Account.(type) {
		case ledger.Symbolic:
			accountID, ok := byCode[ref.Code]
			if !ok {
				return &UnresolvedAccountError{Code: ref.Code}
			}
			entries[idx].Account = ledger.Resolved{AccountID: accountID}
		case ledger.PartyLinked:
			accountID, ok := byParty[ref.PartyID]
			if !ok {
				return &UnresolvedAccountError{PartyID: ref.PartyID}
			}
			entries[idx].Account = ledger.Resolved{AccountID: accountID}
		}
	}
	return nil
}

func (r *Resolver) lookupCodes(ctx context.Context, q db.Querier, tenantID int64, codeSet map[string]struct{}) (map[string]int64, error) {
	resolved := map[string]int64{}
	missing := []string{}
	for code := range codeSet {
		if id, ok := r.cachedCode(ctx, tenantID, code); ok {
			resolved[code] = id
			continue
		}
		missing = append(missing, code)
	}
	if len(missing) == 0 {
		return resolved, nil
	}
	fetched, err := r.store.AccountIDsByCodes(ctx, q, tenantID, missing)
	if err != nil {
		return nil, err
	}
	for code, id := range fetched {
		resolved[code] = id
		r.cacheCode(ctx, tenantID, code, id)
	}
	return resolved, nil
}

func (r *Resolver) cachedCode(ctx context.Context, tenantID int64, code string) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	id, err := r.cache.Get(ctx, codeCacheKey(tenantID, code)).Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

func (r *Resolver) cacheCode(ctx context.Context, tenantID int64, code string, id int64) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Set(ctx, codeCacheKey(tenantID, code), id, r.ttl).Err()
}

func codeCacheKey(tenantID int64, code string) string {
	return fmt.Sprintf("accounts:%d:%s", tenantID, code)
}
