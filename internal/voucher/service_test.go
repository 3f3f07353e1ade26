package voucher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/db"
	"github.com/keystone-erp/keystone/internal/shared"
	"github.com/keystone-erp/keystone/internal/stock"
)

// The service tests run the real engines and resolver against in-memory
// stores, so a posting exercises the same path as production minus Postgres.

type memoryUOW struct{}

func (memoryUOW) Run(ctx context.Context, fn func(context.Context, db.Querier) error) error {
	return fn(ctx, nil)
}

type memoryVoucherStore struct {
	vouchers map[uuid.UUID]Voucher
}

func (s *memoryVoucherStore) Insert(_ context.Context, _ db.Querier, v *Voucher) error {
	s.vouchers[v.ID] = *v
	return nil
}

func (s *memoryVoucherStore) Get(_ context.Context, _ db.Querier, tenantID int64, id uuid.UUID) (Voucher, error) {
	v, ok := s.vouchers[id]
	if !ok || v.TenantID != tenantID {
		return Voucher{}, shared.ErrNotFound
	}
	return v, nil
}

func (s *memoryVoucherStore) List(_ context.Context, _ db.Querier, tenantID int64, filter ListFilter) ([]Voucher, error) {
	matched := []Voucher{}
	for _, v := range s.vouchers {
		if v.TenantID != tenantID {
			continue
		}
		if filter.Type != "" && v.Type != filter.Type {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Number > matched[j].Number
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Offset >= len(matched) {
		return []Voucher{}, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.limitOrDefault(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memoryVoucherStore) UpdateStatus(_ context.Context, _ db.Querier, v *Voucher) error {
	if _, ok := s.vouchers[v.ID]; !ok {
		return shared.ErrNotFound
	}
	s.vouchers[v.ID] = *v
	return nil
}

type memorySeq struct {
	counters map[string]int64
	fail     bool
}

func (s *memorySeq) Next(_ context.Context, _ db.Querier, tenantID int64, docType, fiscalYear, prefix string) (string, error) {
	if s.fail {
		return "", errors.New("sequence unavailable")
	}
	key := fmt.Sprintf("%d:%s:%s", tenantID, docType, fiscalYear)
	s.counters[key]++
	return fmt.Sprintf("%s-%s-%05d", prefix, fiscalYear, s.counters[key]), nil
}

type memoryStockStore struct {
	summaries map[string]stock.Summary
	entries   []stock.Entry
	nextID    int64
}

func stockKey(tenantID, itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, itemID, locationID)
}

func (s *memoryStockStore) GetSummary(_ context.Context, _ db.Querier, tenantID, itemID, locationID int64) (stock.Summary, error) {
	if summary, ok := s.summaries[stockKey(tenantID, itemID, locationID)]; ok {
		return summary, nil
	}
	return stock.Summary{}, stock.ErrSummaryNotFound
}

func (s *memoryStockStore) UpsertSummary(_ context.Context, _ db.Querier, summary stock.Summary) error {
	s.summaries[stockKey(summary.TenantID, summary.ItemID, summary.LocationID)] = summary
	return nil
}

func (s *memoryStockStore) InsertEntry(_ context.Context, _ db.Querier, entry stock.Entry) (stock.Entry, error) {
	s.nextID++
	entry.ID = s.nextID
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *memoryStockStore) ListByVoucher(_ context.Context, _ db.Querier, tenantID int64, voucherID uuid.UUID) ([]stock.Entry, error) {
	out := []stock.Entry{}
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.Source.VoucherID == voucherID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type memoryLedgerStore struct {
	entries []ledger.Entry
	nextID  int64
}

func (s *memoryLedgerStore) InsertEntries(_ context.Context, _ db.Querier, entries []ledger.Entry) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, 0, len(entries))
	for _, entry := range entries {
		s.nextID++
		entry.ID = s.nextID
		s.entries = append(s.entries, entry)
		out = append(out, entry)
	}
	return out, nil
}

func (s *memoryLedgerStore) ListByVoucher(_ context.Context, _ db.Querier, tenantID int64, voucherID uuid.UUID) ([]ledger.Entry, error) {
	out := []ledger.Entry{}
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.Source.VoucherID == voucherID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memoryLedgerStore) balanceByAccount(tenantID int64) map[int64]float64 {
	totals := map[int64]float64{}
	for _, entry := range s.entries {
		if entry.TenantID == tenantID {
			totals[entry.AccountID] += entry.Debit - entry.Credit
		}
	}
	return totals
}

type fakeAccountStore struct {
	codes   map[string]int64
	parties map[int64]int64
}

func (s *fakeAccountStore) AccountIDsByCodes(_ context.Context, _ db.Querier, _ int64, codes []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, code := range codes {
		if id, ok := s.codes[code]; ok {
			out[code] = id
		}
	}
	return out, nil
}

func (s *fakeAccountStore) PartyAccountIDs(_ context.Context, _ db.Querier, _ int64, partyIDs []int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, partyID := range partyIDs {
		if id, ok := s.parties[partyID]; ok {
			out[partyID] = id
		}
	}
	return out, nil
}

type memoryAudit struct {
	records []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (i *memoryIdem) CheckAndInsert(_ context.Context, tenantID int64, key, _ string) error {
	k := fmt.Sprintf("%d:%s", tenantID, key)
	if i.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[k] = true
	return nil
}

func (i *memoryIdem) Delete(_ context.Context, tenantID int64, key string) error {
	delete(i.keys, fmt.Sprintf("%d:%s", tenantID, key))
	return nil
}

type fakeBOMStore struct {
	ids map[int64]bool
}

func (s fakeBOMStore) Exists(_ context.Context, _, bomID int64) (bool, error) {
	return s.ids[bomID], nil
}

const (
	accountSales      int64 = 11
	accountPurchases  int64 = 12
	accountGSTOutput  int64 = 13
	accountGSTInput   int64 = 14
	accountCash       int64 = 15
	accountBank       int64 = 16
	accountJobWork    int64 = 17
	accountSupplier   int64 = 70
	accountCustomer   int64 = 80
	supplierPartyID   int64 = 7
	customerPartyID   int64 = 8
	contractorPartyID int64 = 7
)

type testEnv struct {
	service  *Service
	vouchers *memoryVoucherStore
	stock    *memoryStockStore
	journal  *memoryLedgerStore
	audit    *memoryAudit
	idem     *memoryIdem
	seq      *memorySeq
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	registry, err := NewRegistry(DefaultHandlers(fakeBOMStore{ids: map[int64]bool{301: true}})...)
	require.NoError(t, err)

	env := &testEnv{
		vouchers: &memoryVoucherStore{vouchers: map[uuid.UUID]Voucher{}},
		stock:    &memoryStockStore{summaries: map[string]stock.Summary{}},
		journal:  &memoryLedgerStore{},
		audit:    &memoryAudit{},
		idem:     &memoryIdem{keys: map[string]bool{}},
		seq:      &memorySeq{counters: map[string]int64{}},
	}
	resolver := accounts.NewResolver(&fakeAccountStore{
		codes: map[string]int64{
			accounts.CodeSales:          accountSales,
			accounts.CodePurchases:      accountPurchases,
			accounts.CodeGSTOutput:      accountGSTOutput,
			accounts.CodeGSTInput:       accountGSTInput,
			accounts.CodeCash:           accountCash,
			accounts.CodeBank:           accountBank,
			accounts.CodeJobWorkCharges: accountJobWork,
		},
		parties: map[int64]int64{supplierPartyID: accountSupplier, customerPartyID: accountCustomer},
	}, nil, time.Minute)

	env.service = NewService(ServiceParams{
		UnitOfWork:  memoryUOW{},
		Store:       env.vouchers,
		Sequences:   env.seq,
		Registry:    registry,
		Resolver:    resolver,
		Stock:       stock.NewEngine(env.stock),
		Ledger:      ledger.NewEngine(env.journal),
		Audit:       env.audit,
		Idempotency: env.idem,
	})
	return env
}

func testIdentity() shared.Identity {
	return shared.Identity{TenantID: 1, UserID: 9}
}

func testDate() time.Time {
	return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
}

// receiveStock posts a purchase receipt to seed inventory.
func (env *testEnv) receiveStock(t *testing.T, itemID, locationID int64, qty, rate float64) Voucher {
	t.Helper()
	v, err := env.service.Create(context.Background(), testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: locationID,
		Lines:      []Line{{ItemID: itemID, Qty: qty, Rate: rate}},
	})
	require.NoError(t, err)
	posted, err := env.service.Post(context.Background(), testIdentity(), v.ID)
	require.NoError(t, err)
	return posted
}

func TestCreatePurchaseInvoiceComputesTotals(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.service.Create(context.Background(), testIdentity(), CreateInput{
		Type:       DocTypePurchaseInvoice,
		Date:       testDate(),
		PartyID:    supplierPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 100, Rate: 50, GSTRate: 18}},
	})
	require.NoError(t, err)

	require.Equal(t, "PINV-2025-26-00001", v.Number)
	require.Equal(t, StatusDraft, v.Status)
	require.Equal(t, "2025-26", v.FiscalYear)
	require.Equal(t, 5000.0, v.Subtotal)
	require.Equal(t, 900.0, v.TaxTotal)
	require.Equal(t, 5900.0, v.GrandTotal)
	require.Equal(t, 5000.0, v.Lines[0].Amount)
	require.Equal(t, 900.0, v.Lines[0].Tax)
	require.Equal(t, int64(9), v.CreatedBy)
}

func TestCreateAppliesLineDiscount(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.service.Create(context.Background(), testIdentity(), CreateInput{
		Type:       DocTypeSalesInvoice,
		Date:       testDate(),
		PartyID:    customerPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 100, Discount: 200, GSTRate: 18}},
	})
	require.NoError(t, err)

	require.Equal(t, 1000.0, v.Subtotal)
	require.Equal(t, 200.0, v.DiscountTotal)
	require.Equal(t, 144.0, v.TaxTotal) // (1000-200) * 18%
	require.Equal(t, 944.0, v.GrandTotal)
}

func TestCreateUnknownType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), testIdentity(), CreateInput{Type: "QUOTE"})
	var unknown *UnknownDocumentTypeError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, DocType("QUOTE"), unknown.Type)
}

func TestCreateValidationFailureAllocatesNothing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), testIdentity(), CreateInput{
		Type:  DocTypePurchaseInvoice,
		Date:  testDate(),
		Lines: []Line{{ItemID: 1, Qty: 100, Rate: 50}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, env.vouchers.vouchers)
	require.Empty(t, env.seq.counters)
}

func TestCreateIdempotencyConflict(t *testing.T) {
	env := newTestEnv(t)
	input := CreateInput{
		Type:           DocTypePurchaseReceipt,
		Date:           testDate(),
		LocationID:     5,
		Lines:          []Line{{ItemID: 1, Qty: 10, Rate: 5}},
		IdempotencyKey: "req-123",
	}

	_, err := env.service.Create(context.Background(), testIdentity(), input)
	require.NoError(t, err)

	_, err = env.service.Create(context.Background(), testIdentity(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, env.vouchers.vouchers, 1)
}

func TestCreateReleasesIdempotencyKeyOnFailure(t *testing.T) {
	env := newTestEnv(t)
	input := CreateInput{
		Type:           DocTypePurchaseReceipt,
		Date:           testDate(),
		LocationID:     5,
		Lines:          []Line{{ItemID: 1, Qty: 10, Rate: 5}},
		IdempotencyKey: "req-456",
	}

	env.seq.fail = true
	_, err := env.service.Create(context.Background(), testIdentity(), input)
	require.Error(t, err)

	// The key was released, so the retry goes through.
	env.seq.fail = false
	_, err = env.service.Create(context.Background(), testIdentity(), input)
	require.NoError(t, err)
}

func TestPostPurchaseInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseInvoice,
		Date:       testDate(),
		PartyID:    supplierPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 100, Rate: 50, GSTRate: 18}},
	})
	require.NoError(t, err)

	posted, err := env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, int64(9), posted.PostedBy)
	require.NotNil(t, posted.PostedAt)

	summary := env.stock.summaries[stockKey(1, 1, 5)]
	require.Equal(t, 100.0, summary.Qty)
	require.Equal(t, 5000.0, summary.Value)

	require.Len(t, env.journal.entries, 3)
	byAccount := map[int64]ledger.Entry{}
	for _, entry := range env.journal.entries {
		byAccount[entry.AccountID] = entry
	}
	require.Equal(t, 5000.0, byAccount[accountPurchases].Debit)
	require.Equal(t, 900.0, byAccount[accountGSTInput].Debit)
	require.Equal(t, 5900.0, byAccount[accountSupplier].Credit)
	require.Equal(t, "2025-26", byAccount[accountSupplier].FiscalYear)
	require.Equal(t, posted.Number, byAccount[accountSupplier].Source.Number)
}

func TestPostInsufficientStockLeavesDraftUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.receiveStock(t, 1, 5, 30, 10)

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypeSalesInvoice,
		Date:       testDate(),
		PartyID:    customerPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 50, Rate: 20}},
	})
	require.NoError(t, err)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 30.0, insufficient.Available)

	// Document stays draft, neither ledger grew.
	stored := env.vouchers.vouchers[v.ID]
	require.Equal(t, StatusDraft, stored.Status)
	require.Empty(t, env.journal.entries)
	require.Equal(t, 30.0, env.stock.summaries[stockKey(1, 1, 5)].Qty)
}

func TestPostProductionUsesWeightedInputCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.receiveStock(t, 1, 5, 120, 55)
	env.receiveStock(t, 2, 5, 30, 75)

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypeProduction,
		Date:       testDate(),
		LocationID: 5,
		BOMID:      301,
		Lines: []Line{
			{ItemID: 1, Qty: 120, Rate: 55, Role: LineRoleInput},
			{ItemID: 2, Qty: 30, Rate: 75, Role: LineRoleInput},
			{ItemID: 3, Qty: 100, Role: LineRoleOutput},
		},
	})
	require.NoError(t, err)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	// 120x55 + 30x75 = 8850 consumed, spread over 100 output units.
	output := env.stock.summaries[stockKey(1, 3, 5)]
	require.Equal(t, 100.0, output.Qty)
	require.InDelta(t, 8850.0, output.Value, 0.001)
	require.InDelta(t, 88.5, output.AvgRate, 0.001)

	require.Equal(t, 0.0, env.stock.summaries[stockKey(1, 1, 5)].Qty)
	require.Equal(t, 0.0, env.stock.summaries[stockKey(1, 2, 5)].Qty)

	// Non-subcontracted production books no journal.
	require.Empty(t, env.journal.entries)
}

func TestPostSubcontractedProductionBooksJobWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.receiveStock(t, 1, 5, 10, 100)

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:          DocTypeProduction,
		Date:          testDate(),
		PartyID:       contractorPartyID,
		LocationID:    5,
		Subcontracted: true,
		JobWorkCharge: 500,
		Lines: []Line{
			{ItemID: 1, Qty: 10, Rate: 100, Role: LineRoleInput},
			{ItemID: 3, Qty: 10, Role: LineRoleOutput},
		},
	})
	require.NoError(t, err)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	require.Len(t, env.journal.entries, 2)
	totals := env.journal.balanceByAccount(1)
	require.Equal(t, 500.0, totals[accountJobWork])
	require.Equal(t, -500.0, totals[accountSupplier])
}

func TestPostTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	posted := env.receiveStock(t, 1, 5, 10, 5)

	_, err := env.service.Post(ctx, testIdentity(), posted.ID)
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, "post", transition.Action)
	require.Equal(t, StatusPosted, transition.Status)
}

func TestPostUnknownVoucher(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Post(context.Background(), testIdentity(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 5}},
	})
	require.NoError(t, err)

	other := shared.Identity{TenantID: 2, UserID: 1}
	_, err = env.service.Post(ctx, other, v.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelReversesBothLedgers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseInvoice,
		Date:       testDate(),
		PartyID:    supplierPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 100, Rate: 50, GSTRate: 18}},
	})
	require.NoError(t, err)
	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	cancelled, err := env.service.Cancel(ctx, testIdentity(), v.ID, "entered against wrong supplier")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "entered against wrong supplier", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	summary := env.stock.summaries[stockKey(1, 1, 5)]
	require.Equal(t, 0.0, summary.Qty)
	require.Equal(t, 0.0, summary.Value)

	require.Len(t, env.journal.entries, 6)
	for account, balance := range env.journal.balanceByAccount(1) {
		require.InDelta(t, 0.0, balance, 0.001, "account %d should net to zero", account)
	}
}

func TestCancelTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	posted := env.receiveStock(t, 1, 5, 10, 5)

	_, err := env.service.Cancel(ctx, testIdentity(), posted.ID, "first")
	require.NoError(t, err)

	stockEntries := len(env.stock.entries)
	journalEntries := len(env.journal.entries)

	_, err = env.service.Cancel(ctx, testIdentity(), posted.ID, "second")
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, "cancel", transition.Action)
	require.Equal(t, StatusCancelled, transition.Status)

	// Nothing was appended by the rejected attempt.
	require.Len(t, env.stock.entries, stockEntries)
	require.Len(t, env.journal.entries, journalEntries)
}

func TestCancelDraftRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 5}},
	})
	require.NoError(t, err)

	_, err = env.service.Cancel(ctx, testIdentity(), v.ID, "oops")
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, StatusDraft, transition.Status)
}

func TestCancelAfterInterveningMovements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.receiveStock(t, 1, 5, 100, 50)
	env.receiveStock(t, 1, 5, 100, 70)

	_, err := env.service.Cancel(ctx, testIdentity(), first.ID, "wrong rate")
	require.NoError(t, err)

	// The reversal issues at the blended average of 60, not the original 50:
	// cancelling moves the ledger forward instead of restoring a snapshot.
	summary := env.stock.summaries[stockKey(1, 1, 5)]
	require.Equal(t, 100.0, summary.Qty)
	require.InDelta(t, 6000.0, summary.Value, 0.01)
	require.InDelta(t, 60.0, summary.AvgRate, 0.01)
}

func TestRetireSalesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypeSalesOrder,
		Date:       testDate(),
		PartyID:    customerPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 5}},
	})
	require.NoError(t, err)

	retired, err := env.service.Retire(ctx, testIdentity(), v.ID)
	require.NoError(t, err)
	require.True(t, retired.Retired)

	// A retired order cannot be posted or retired again.
	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = env.service.Retire(ctx, testIdentity(), v.ID)
	require.ErrorAs(t, err, &transition)
}

func TestRetirePostingTypeRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 5}},
	})
	require.NoError(t, err)

	_, err = env.service.Retire(ctx, testIdentity(), v.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSequenceNumbersPerTypeAndYear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	makeInvoice := func(docType DocType, date time.Time) Voucher {
		partyID := supplierPartyID
		if docType == DocTypeSalesInvoice {
			partyID = customerPartyID
		}
		v, err := env.service.Create(ctx, testIdentity(), CreateInput{
			Type:       docType,
			Date:       date,
			PartyID:    partyID,
			LocationID: 5,
			Lines:      []Line{{ItemID: 1, Qty: 1, Rate: 10}},
		})
		require.NoError(t, err)
		return v
	}

	require.Equal(t, "PINV-2025-26-00001", makeInvoice(DocTypePurchaseInvoice, testDate()).Number)
	require.Equal(t, "PINV-2025-26-00002", makeInvoice(DocTypePurchaseInvoice, testDate()).Number)
	require.Equal(t, "SINV-2025-26-00001", makeInvoice(DocTypeSalesInvoice, testDate()).Number)

	// February falls in the previous fiscal year.
	february := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "PINV-2025-26-00003", makeInvoice(DocTypePurchaseInvoice, february).Number)

	// April starts a fresh counter.
	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "PINV-2026-27-00001", makeInvoice(DocTypePurchaseInvoice, april).Number)
}

func TestStockTransferMovesBetweenLocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.receiveStock(t, 1, 5, 100, 40)

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type: DocTypeStockTransfer,
		Date: testDate(),
		Lines: []Line{
			{ItemID: 1, Qty: 60, Rate: 40, SourceLocationID: 5, TargetLocationID: 6},
		},
	})
	require.NoError(t, err)
	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	require.Equal(t, 40.0, env.stock.summaries[stockKey(1, 1, 5)].Qty)
	require.Equal(t, 60.0, env.stock.summaries[stockKey(1, 1, 6)].Qty)
	// Value moves at the source average.
	require.InDelta(t, 2400.0, env.stock.summaries[stockKey(1, 1, 6)].Value, 0.001)
}

func TestPostPaymentSettlesAgainstBank(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:        DocTypePayment,
		Date:        testDate(),
		PaymentMode: "BANK",
		Lines: []Line{
			{Account: ledger.PartyLinked{PartyID: supplierPartyID}, Debit: 5900},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 5900.0, v.GrandTotal)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	totals := env.journal.balanceByAccount(1)
	require.Equal(t, 5900.0, totals[accountSupplier])
	require.Equal(t, -5900.0, totals[accountBank])
}

func TestPostManualJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type: DocTypeJournal,
		Date: testDate(),
		Lines: []Line{
			{Account: ledger.Symbolic{Code: accounts.CodeBank}, Debit: 250},
			{Account: ledger.Symbolic{Code: accounts.CodeSales}, Credit: 250},
		},
	})
	require.NoError(t, err)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)

	totals := env.journal.balanceByAccount(1)
	require.Equal(t, 250.0, totals[accountBank])
	require.Equal(t, -250.0, totals[accountSales])
}

func TestCreateUnbalancedJournalRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), testIdentity(), CreateInput{
		Type: DocTypeJournal,
		Date: testDate(),
		Lines: []Line{
			{Account: ledger.Symbolic{Code: accounts.CodeBank}, Debit: 250},
			{Account: ledger.Symbolic{Code: accounts.CodeSales}, Credit: 200},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostUnresolvableAccountFailsPosting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Party 99 has no linked account.
	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:        DocTypePayment,
		Date:        testDate(),
		PaymentMode: "CASH",
		Lines: []Line{
			{Account: ledger.PartyLinked{PartyID: 99}, Debit: 100},
		},
	})
	require.NoError(t, err)

	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	var unresolved *accounts.UnresolvedAccountError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, int64(99), unresolved.PartyID)

	require.Equal(t, StatusDraft, env.vouchers.vouchers[v.ID].Status)
	require.Empty(t, env.journal.entries)
}

func TestListFiltersByTypeAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.receiveStock(t, 1, 5, 10, 5)
	draft, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: 5,
		Lines:      []Line{{ItemID: 2, Qty: 4, Rate: 3}},
	})
	require.NoError(t, err)
	_, err = env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypeSalesOrder,
		Date:       testDate(),
		PartyID:    customerPartyID,
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 1, Rate: 10}},
	})
	require.NoError(t, err)

	all, err := env.service.List(ctx, testIdentity(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	receipts, err := env.service.List(ctx, testIdentity(), ListFilter{Type: DocTypePurchaseReceipt})
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	drafts, err := env.service.List(ctx, testIdentity(), ListFilter{Type: DocTypePurchaseReceipt, Status: StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, draft.ID, drafts[0].ID)

	postedOnly, err := env.service.List(ctx, testIdentity(), ListFilter{Status: StatusPosted})
	require.NoError(t, err)
	require.Len(t, postedOnly, 1)
	require.Equal(t, posted.ID, postedOnly[0].ID)

	// Another tenant sees nothing.
	other, err := env.service.List(ctx, shared.Identity{TenantID: 2, UserID: 1}, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.service.Create(ctx, testIdentity(), CreateInput{
		Type:       DocTypePurchaseReceipt,
		Date:       testDate(),
		LocationID: 5,
		Lines:      []Line{{ItemID: 1, Qty: 10, Rate: 5}},
	})
	require.NoError(t, err)
	_, err = env.service.Post(ctx, testIdentity(), v.ID)
	require.NoError(t, err)
	_, err = env.service.Cancel(ctx, testIdentity(), v.ID, "damaged goods")
	require.NoError(t, err)

	require.Len(t, env.audit.records, 3)
	require.Equal(t, "voucher.create", env.audit.records[0].Action)
	require.Equal(t, "voucher.post", env.audit.records[1].Action)
	require.Equal(t, "voucher.cancel", env.audit.records[2].Action)
	require.Equal(t, v.ID.String(), env.audit.records[0].EntityID)
	require.Equal(t, int64(9), env.audit.records[0].ActorID)
	require.Equal(t, "POSTED", env.audit.records[1].After["status"])
}
