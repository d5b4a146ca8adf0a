package pricing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/common"
)

// Handler exposes the pricing rule API.
type Handler struct {
	workflow *Workflow
	resolver Resolver
	validate *validator.Validate
	logger   zerolog.Logger
}

// HandlerConfig groups Handler dependencies.
type HandlerConfig struct {
	Workflow  *Workflow
	Resolver  Resolver
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Handler{workflow: cfg.Workflow, resolver: cfg.Resolver, validate: v, logger: cfg.Logger}
}

type draftPayload struct {
	Name      string           `json:"name" validate:"required,max=200"`
	Scope     *Scope           `json:"scope" validate:"required"`
	BasePrice *decimal.Decimal `json:"basePrice"`
	Slabs     []Slab           `json:"slabs" validate:"required,min=1,max=100"`
}

func (p draftPayload) draft() Draft {
	d := Draft{Name: p.Name, BasePrice: p.BasePrice, Slabs: p.Slabs}
	if p.Scope != nil {
		d.Scope = *p.Scope
	}
	return d
}

type updatePayload struct {
	Version int64 `json:"version" validate:"required,min=1"`
	draftPayload
}

type approvePayload struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type rejectPayload struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

// Create handles POST /pricing-rules.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload draftPayload
	if !h.decode(w, r, &payload) {
		return
	}
	rule, err := h.workflow.Submit(r.Context(), actor, payload.draft())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// List handles GET /pricing-rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown status", map[string]any{"status": raw})
			return
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("scope")); raw != "" {
		scope, err := ParseScopeKey(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.ScopeKey = scope.Key()
	}
	filter.CreatedBy = strings.TrimSpace(r.URL.Query().Get("createdBy"))
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	rules, total, err := h.workflow.Registry().List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rules,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /pricing-rules/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.workflow.Registry().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Update handles PUT /pricing-rules/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload updatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	rule, err := h.workflow.Edit(r.Context(), actor, chi.URLParam(r, "id"), payload.Version, payload.draft())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Approve handles POST /pricing-rules/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload approvePayload
	if !h.decode(w, r, &payload) {
		return
	}
	rule, err := h.workflow.Approve(r.Context(), actor, chi.URLParam(r, "id"), payload.Version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Reject handles POST /pricing-rules/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload rejectPayload
	if !h.decode(w, r, &payload) {
		return
	}
	rule, err := h.workflow.Reject(r.Context(), actor, chi.URLParam(r, "id"), payload.Version, payload.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// PriceForScope handles GET /prices?scope=&quantity=.
func (h *Handler) PriceForScope(w http.ResponseWriter, r *http.Request) {
	quantity, ok := parseQuantity(w, r)
	if !ok {
		return
	}
	res, err := h.resolver.PriceForScope(r.Context(), r.URL.Query().Get("scope"), quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// PriceForSku handles GET /skus/{skuId}/price?quantity=.
func (h *Handler) PriceForSku(w http.ResponseWriter, r *http.Request) {
	quantity, ok := parseQuantity(w, r)
	if !ok {
		return
	}
	res, err := h.resolver.PriceForSku(r.Context(), chi.URLParam(r, "skuId"), quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func parseQuantity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("quantity"))
	if raw == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "quantity is required", nil)
		return 0, false
	}
	quantity, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "quantity must be an integer", map[string]any{"quantity": raw})
		return 0, false
	}
	return quantity, true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return auth.Actor{}, false
	}
	return actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var details any
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			details = map[string]any{"offset": syntaxErr.Offset}
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", details)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", map[string]any{"fields": fields})
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := HTTPError(err)
	if errors.Is(err, ErrInvariantViolation) {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("pricing invariant violation")
	} else if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("pricing request failed")
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}
