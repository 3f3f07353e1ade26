package voucher

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keystone-erp/keystone/internal/accounts"
	"github.com/keystone-erp/keystone/internal/ledger"
	"github.com/keystone-erp/keystone/internal/platform/httpx"
	"github.com/keystone-erp/keystone/internal/shared"
	"github.com/keystone-erp/keystone/internal/stock"
)

// HTTPHandler adapts the orchestrator to the JSON boundary. The gateway in
// front of this service authenticates and authorizes; this layer only decodes
// the payload, runs shape validation and maps errors.
type HTTPHandler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHTTPHandler constructs the handler.
func NewHTTPHandler(logger *slog.Logger, service *Service) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers voucher routes on the provided router.
func (h *HTTPHandler) MountRoutes(r chi.Router) {
	r.Route("/vouchers", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/retire", h.retire)
	})
}

type lineRequest struct {
	ItemID           int64   `json:"item_id"`
	AccountID        int64   `json:"account_id"`
	AccountCode      string  `json:"account_code"`
	PartyID          int64   `json:"party_id"`
	Description      string  `json:"description"`
	Qty              float64 `json:"qty"`
	Rate             float64 `json:"rate"`
	Discount         float64 `json:"discount" validate:"gte=0"`
	GSTRate          float64 `json:"gst_rate" validate:"gte=0,lte=100"`
	Debit            float64 `json:"debit" validate:"gte=0"`
	Credit           float64 `json:"credit" validate:"gte=0"`
	SourceLocationID int64   `json:"source_location_id"`
	TargetLocationID int64   `json:"target_location_id"`
	Role             string  `json:"role" validate:"omitempty,oneof=INPUT OUTPUT"`
}

type createRequest struct {
	Type           string        `json:"type" validate:"required"`
	Date           string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	FiscalYear     string        `json:"fiscal_year"`
	PartyID        int64         `json:"party_id"`
	LocationID     int64         `json:"location_id"`
	Narration      string        `json:"narration" validate:"max=500"`
	PaymentMode    string        `json:"payment_mode" validate:"omitempty,oneof=CASH BANK"`
	BOMID          int64         `json:"bom_id"`
	Subcontracted  bool          `json:"subcontracted"`
	JobWorkCharge  float64       `json:"job_work_charge" validate:"gte=0"`
	IdempotencyKey string        `json:"idempotency_key" validate:"max=128"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Links          []DocLink     `json:"links"`
}

func (req lineRequest) toLine() Line {
	line := Line{
		ItemID:           req.ItemID,
		Description:      req.Description,
		Qty:              req.Qty,
		Rate:             req.Rate,
		Discount:         req.Discount,
		GSTRate:          req.GSTRate,
		Debit:            req.Debit,
		Credit:           req.Credit,
		SourceLocationID: req.SourceLocationID,
		TargetLocationID: req.TargetLocationID,
		Role:             LineRole(req.Role),
	}
	switch {
	case req.AccountID != 0:
		line.Account = ledger.Resolved{AccountID: req.AccountID}
	case req.AccountCode != "":
		line.Account = ledger.Symbolic{Code: req.AccountCode}
	case req.PartyID != 0:
		line.Account = ledger.PartyLinked{PartyID: req.PartyID}
	}
	return line
}

func (h *HTTPHandler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		Type:           DocType(req.Type),
		FiscalYear:     req.FiscalYear,
		PartyID:        req.PartyID,
		LocationID:     req.LocationID,
		Narration:      req.Narration,
		PaymentMode:    req.PaymentMode,
		BOMID:          req.BOMID,
		Subcontracted:  req.Subcontracted,
		JobWorkCharge:  req.JobWorkCharge,
		IdempotencyKey: req.IdempotencyKey,
		Links:          req.Links,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date")
			return
		}
		input.Date = date
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, line.toLine())
	}
	v, err := h.service.Create(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(v))
}

func (h *HTTPHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	filter := ListFilter{
		Type:   DocType(r.URL.Query().Get("type")),
		Status: Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid offset")
			return
		}
		filter.Offset = offset
	}
	vouchers, err := h.service.List(r.Context(), id, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	responses := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		responses = append(responses, toResponse(v))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vouchers": responses})
}

func (h *HTTPHandler) get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
		return h.service.Get(r.Context(), id, voucherID)
	}, http.StatusOK)
}

func (h *HTTPHandler) post(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
		return h.service.Post(r.Context(), id, voucherID)
	}, http.StatusOK)
}

func (h *HTTPHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	h.act(w, r, func(id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
		return h.service.Cancel(r.Context(), id, voucherID, body.Reason)
	}, http.StatusOK)
}

func (h *HTTPHandler) retire(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(id shared.Identity, voucherID uuid.UUID) (Voucher, error) {
		return h.service.Retire(r.Context(), id, voucherID)
	}, http.StatusOK)
}

func (h *HTTPHandler) act(w http.ResponseWriter, r *http.Request, fn func(shared.Identity, uuid.UUID) (Voucher, error), status int) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	voucherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid voucher id")
		return
	}
	v, err := fn(id, voucherID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, status, toResponse(v))
}

// respondError maps the posting taxonomy onto stable HTTP responses so
// callers can tell input problems from configuration problems from state
// conflicts.
func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	var unbalanced *ledger.UnbalancedEntriesError
	var insufficient *stock.InsufficientStockError
	var unresolved *accounts.UnresolvedAccountError
	var transition *InvalidStateTransitionError
	var unknownType *UnknownDocumentTypeError
	switch {
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &unbalanced):
		httpx.Problem(w, http.StatusBadRequest, "Unbalanced Entries", err.Error())
	case errors.As(err, &unknownType):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Document Type", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.As(err, &transition):
		httpx.Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.As(err, &unresolved):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unresolved Account", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("voucher operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type voucherResponse struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	Number        string     `json:"number"`
	FiscalYear    string     `json:"fiscal_year"`
	Date          string     `json:"date"`
	Status        string     `json:"status"`
	PartyID       int64      `json:"party_id,omitempty"`
	LocationID    int64      `json:"location_id,omitempty"`
	Subtotal      float64    `json:"subtotal"`
	DiscountTotal float64    `json:"discount_total"`
	TaxTotal      float64    `json:"tax_total"`
	GrandTotal    float64    `json:"grand_total"`
	Narration     string     `json:"narration,omitempty"`
	Links         []DocLink  `json:"links,omitempty"`
	Retired       bool       `json:"retired,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toResponse(v Voucher) voucherResponse {
	return voucherResponse{
		ID:            v.ID,
		Type:          string(v.Type),
		Number:        v.Number,
		FiscalYear:    v.FiscalYear,
		Date:          v.Date.Format("2006-01-02"),
		Status:        string(v.Status),
		PartyID:       v.PartyID,
		LocationID:    v.LocationID,
		Subtotal:      v.Subtotal,
		DiscountTotal: v.DiscountTotal,
		TaxTotal:      v.TaxTotal,
		GrandTotal:    v.GrandTotal,
		Narration:     v.Narration,
		Links:         v.Links,
		Retired:       v.Retired,
		CancelReason:  v.CancelReason,
		PostedAt:      v.PostedAt,
		CancelledAt:   v.CancelledAt,
	}
}
