package voucher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/db"
	"github.com/keystone-erp/keystone/internal/shared"
	"github.com/keystone-erp/keystone/internal/stock"
)

// Store persists vouchers within the caller's unit of work.
type Store interface {
	Insert(ctx context.Context, q db.Querier, v *Voucher) error
	Get(ctx context.Context, q db.Querier, tenantID int64, id uuid.UUID) (Voucher, error)
	List(ctx context.Context, q db.Querier, tenantID int64, filter ListFilter) ([]Voucher, error)
	UpdateStatus(ctx context.Context, q db.Querier, v *Voucher) error
}

// ListFilter narrows a voucher listing. Zero values match everything.
type ListFilter struct {
	Type   DocType
	Status Status
	Limit  int
	Offset int
}

const defaultListLimit = 50

func (f ListFilter) limitOrDefault() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return defaultListLimit
	}
	return f.Limit
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, q db.Querier, tenantID int64, docType, fiscalYear, prefix string) (string, error)
}

// ResolverPort fills concrete account ids into journal batches.
type ResolverPort interface {
	Resolve(ctx context.Context, q db.Querier, tenantID int64, entries []ledger.EntryInput) error
}

// StockPort is the inventory ledger engine surface the orchestrator uses.
type StockPort interface {
	Post(ctx context.Context, q db.Querier, tenantID int64, source stock.SourceRef, date time.Time, movements []stock.Movement) ([]stock.Entry, error)
	Reverse(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]stock.Entry, error)
}

// LedgerPort is the financial ledger engine surface the orchestrator uses.
type LedgerPort interface {
	Post(ctx context.Context, q db.Querier, tenantID int64, source ledger.SourceRef, date time.Time, fiscalYear string, inputs []ledger.EntryInput) ([]ledger.Entry, error)
	Reverse(ctx context.Context, q db.Querier, tenantID int64, voucherID uuid.UUID) ([]ledger.Entry, error)
}

// IdempotencyPort guards create against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// Service is the voucher orchestrator: the state machine and transaction
// coordinator for create, post and cancel.
type Service struct {
	uow      db.UnitOfWork
	store    Store
	seq      SequencePort
	registry *Registry
	resolver ResolverPort
	stock    StockPort
	ledger   LedgerPort
	audit    shared.Recorder
	idem     IdempotencyPort
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceParams groups the orchestrator dependencies.
type ServiceParams struct {
	UnitOfWork  db.UnitOfWork
	Store       Store
	Sequences   SequencePort
	Registry    *Registry
	Resolver    ResolverPort
	Stock       StockPort
	Ledger      LedgerPort
	Audit       shared.Recorder
	Idempotency IdempotencyPort
	Logger      *slog.Logger
}

// NewService constructs the orchestrator.
func NewService(params ServiceParams) *Service {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:      params.UnitOfWork,
		store:    params.Store,
		seq:      params.Sequences,
		registry: params.Registry,
		resolver: params.Resolver,
		stock:    params.Stock,
		ledger:   params.Ledger,
		audit:    params.Audit,
		idem:     params.Idempotency,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput is the validated draft payload handed in by the request layer.
// Shape validation happened upstream; only business rules run here.
type CreateInput struct {
	Type           DocType
	Date           time.Time
	FiscalYear     string
	PartyID        int64
	LocationID     int64
	Lines          []Line
	Links          []DocLink
	Narration      string
	BOMID          int64
	Subcontracted  bool
	JobWorkCharge  float64
	PaymentMode    string
	IdempotencyKey string
}

// Create validates the draft, allocates its number and persists it.
func (s *Service) Create(ctx context.Context, id shared.Identity, input CreateInput) (Voucher, error) {
	handler, err := s.registry.Lookup(input.Type)
	if err != nil {
		return Voucher{}, err
	}

	date := input.Date
	if date.IsZero() {
		date = s.now().UTC()
	}
	fiscalYear := input.FiscalYear
	if fiscalYear == "" {
		fiscalYear = FiscalYearFor(date)
	}

	v := Voucher{
		ID:            uuid.New(),
		TenantID:      id.TenantID,
		Type:          input.Type,
		FiscalYear:    fiscalYear,
		Date:          date,
		PartyID:       input.PartyID,
		LocationID:    input.LocationID,
		Lines:         input.Lines,
		Links:         input.Links,
		Narration:     input.Narration,
		BOMID:         input.BOMID,
		Subcontracted: input.Subcontracted,
		JobWorkCharge: input.JobWorkCharge,
		PaymentMode:   input.PaymentMode,
		Status:        StatusDraft,
		CreatedBy:     id.UserID,
		CreatedAt:     s.now().UTC(),
	}
	if err := handler.Validate(ctx, &v); err != nil {
		return Voucher{}, err
	}
	v.computeTotals()

	insertedKey := false
	if s.idem != nil && input.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, id.TenantID, input.IdempotencyKey, "voucher"); err != nil {
			return Voucher{}, err
		}
		insertedKey = true
	}

	err = s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		number, err := s.seq.Next(ctx, q, id.TenantID, string(v.Type), v.FiscalYear, v.Type.Prefix())
		if err != nil {
			return err
		}
		v.Number = number
		return s.store.Insert(ctx, q, &v)
	})
	if err != nil {
		if insertedKey {
			if delErr := s.idem.Delete(ctx, id.TenantID, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Voucher{}, err
	}

	s.emitAudit(ctx, id, "voucher.create", &v, nil, snapshot(&v))
	return v, nil
}

// Post drives a draft through both ledgers and flips it to posted. Inventory
// posts first; the resolver then grounds every symbolic account before the
// financial batch is appended. Any failure leaves the document and both
// ledgers untouched when the unit of work is transactional.
func (s *Service) Post(ctx context.Context, id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
	var posted Voucher
	var before map[string]any
	err := s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		v, err := s.store.Get(ctx, q, id.TenantID, voucherID)
		if err != nil {
			return err
		}
		if v.Status != StatusDraft || v.Retired {
			return &InvalidStateTransitionError{Action: "post", Status: v.Status}
		}
		before = snapshot(&v)

		handler, err := s.registry.Lookup(v.Type)
		if err != nil {
			return err
		}
		movements, err := handler.InventoryEntries(&v)
		if err != nil {
			return err
		}
		entries, err := handler.JournalEntries(&v)
		if err != nil {
			return err
		}

		if len(movements) > 0 {
			source := stock.SourceRef{VoucherID: v.ID, DocType: string(v.Type), Number: v.Number}
			if _, err := s.stock.Post(ctx, q, v.TenantID, source, v.Date, movements); err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			if err := s.resolver.Resolve(ctx, q, v.TenantID, entries); err != nil {
				return err
			}
			source := ledger.SourceRef{VoucherID: v.ID, DocType: string(v.Type), Number: v.Number}
			if _, err := s.ledger.Post(ctx, q, v.TenantID, source, v.Date, v.FiscalYear, entries); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		v.Status = StatusPosted
		v.PostedBy = id.UserID
		v.PostedAt = &now
		if err := s.store.UpdateStatus(ctx, q, &v); err != nil {
			return err
		}
		posted = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}

	s.emitAudit(ctx, id, "voucher.post", &posted, before, snapshot(&posted))
	return posted, nil
}

// Cancel reverses both ledgers and flips a posted document to cancelled.
func (s *Service) Cancel(ctx context.Context, id shared.Identity, voucherID uuid.UUID, reason string) (Voucher, error) {
	var cancelled Voucher
	var before map[string]any
	err := s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		v, err := s.store.Get(ctx, q, id.TenantID, voucherID)
		if err != nil {
			return err
		}
		if v.Status != StatusPosted {
			return &InvalidStateTransitionError{Action: "cancel", Status: v.Status}
		}
		before = snapshot(&v)

		if _, err := s.stock.Reverse(ctx, q, v.TenantID, v.ID); err != nil {
			return err
		}
		if _, err := s.ledger.Reverse(ctx, q, v.TenantID, v.ID); err != nil {
			return err
		}

		now := s.now().UTC()
		v.Status = StatusCancelled
		v.CancelledBy = id.UserID
		v.CancelledAt = &now
		v.CancelReason = reason
		if err := s.store.UpdateStatus(ctx, q, &v); err != nil {
			return err
		}
		cancelled = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}

	s.emitAudit(ctx, id, "voucher.cancel", &cancelled, before, snapshot(&cancelled))
	return cancelled, nil
}

// Retire soft-retires a draft of a non-posting type. Posting types are never
// deleted, only cancelled.
func (s *Service) Retire(ctx context.Context, id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
	var retired Voucher
	err := s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		v, err := s.store.Get(ctx, q, id.TenantID, voucherID)
		if err != nil {
			return err
		}
		if !v.Type.NonPosting() {
			return validationf("%s documents cannot be retired", v.Type)
		}
		if v.Status != StatusDraft || v.Retired {
			return &InvalidStateTransitionError{Action: "retire", Status: v.Status}
		}
		v.Retired = true
		if err := s.store.UpdateStatus(ctx, q, &v); err != nil {
			return err
		}
		retired = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}

	s.emitAudit(ctx, id, "voucher.retire", &retired, nil, snapshot(&retired))
	return retired, nil
}

// List loads vouchers within the tenant scope, newest first.
func (s *Service) List(ctx context.Context, id shared.Identity, filter ListFilter) ([]Voucher, error) {
	var vouchers []Voucher
	err := s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		loaded, err := s.store.List(ctx, q, id.TenantID, filter)
		if err != nil {
			return err
		}
		vouchers = loaded
		return nil
	})
	return vouchers, err
}

// Get loads one voucher within the tenant scope.
func (s *Service) Get(ctx context.Context, id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
	var v Voucher
	err := s.uow.Run(ctx, func(ctx context.Context, q db.Querier) error {
		loaded, err := s.store.Get(ctx, q, id.TenantID, voucherID)
		if err != nil {
			return err
		}
		v = loaded
		return nil
	})
	return v, err
}

// emitAudit records the event best-effort; a sink failure never fails the
// operation.
func (s *Service) emitAudit(ctx context.Context, id shared.Identity, action string, v *Voucher, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: id.TenantID,
		ActorID:  id.UserID,
		Action:   action,
		Entity:   "voucher",
		EntityID: v.ID.String(),
		Before:   before,
		After:    after,
		At:       s.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func snapshot(v *Voucher) map[string]any {
	return map[string]any{
		"type":        string(v.Type),
		"number":      v.Number,
		"status":      string(v.Status),
		"subtotal":    v.Subtotal,
		"tax_total":   v.TaxTotal,
		"grand_total": v.GrandTotal,
		"retired":     v.Retired,
	}
}
