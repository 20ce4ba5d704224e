package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/lexassist/internal/auth"
	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/service"
)

// TierHandler serves the tier catalog. Reads are open to any identity;
// writes go through the admin service.
type TierHandler struct {
	catalog service.CatalogService
	admin   service.AdminService
	logger  *slog.Logger
}

// NewTierHandler creates a new TierHandler.
func NewTierHandler(catalog service.CatalogService, admin service.AdminService, logger *slog.Logger) *TierHandler {
	return &TierHandler{
		catalog: catalog,
		admin:   admin,
		logger:  logger,
	}
}

// RegisterRoutes registers tier routes behind the identity middleware.
func (h *TierHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("GET /api/tiers", requireIdentity(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/tiers/{name}", requireIdentity(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/tiers", requireIdentity(http.HandlerFunc(h.Create)))
	mux.Handle("PATCH /api/tiers/{name}", requireIdentity(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/tiers/{name}", requireIdentity(http.HandlerFunc(h.Delete)))
}

// =============================================================================
// Wire types
// =============================================================================

// tierRequest is the JSON body for creating or patching a tier. Null or
// absent quotas mean unlimited.
type tierRequest struct {
	Name              string   `json:"name"`
	DisplayName       string   `json:"display_name"`
	PriceMinor        int64    `json:"price_minor"`
	Currency          string   `json:"currency"`
	UserLimit         *int     `json:"user_limit"`
	DurationDays      int      `json:"duration_days"`
	MaxSearchesPerDay *int     `json:"max_searches_per_day"`
	MaxLawSections    *int     `json:"max_law_sections"`
	MaxCaseHistories  *int     `json:"max_case_histories"`
	DocumentFormats   []string `json:"document_formats"`
	DraftingTypes     []string `json:"drafting_types"`
	Features          []string `json:"features"`
	SharingEnabled    bool     `json:"sharing_enabled"`
	Description       string   `json:"description"`
	SortOrder         int      `json:"sort_order"`
}

// tierResponse is the JSON shape of a tier.
type tierResponse struct {
	Name              string    `json:"name"`
	Label             string    `json:"label"`
	DisplayName       string    `json:"display_name,omitempty"`
	PriceMinor        int64     `json:"price_minor"`
	Currency          string    `json:"currency"`
	DisplayPrice      string    `json:"display_price"`
	UserLimit         *int      `json:"user_limit"`
	DurationDays      int       `json:"duration_days"`
	MaxSearchesPerDay *int      `json:"max_searches_per_day"`
	MaxLawSections    *int      `json:"max_law_sections"`
	MaxCaseHistories  *int      `json:"max_case_histories"`
	DocumentFormats   []string  `json:"document_formats"`
	DraftingTypes     []string  `json:"drafting_types"`
	Features          []string  `json:"features"`
	SharingEnabled    bool      `json:"sharing_enabled"`
	Description       string    `json:"description,omitempty"`
	SortOrder         int       `json:"sort_order"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func limitPtr(v int) *int {
	if v == domain.Unlimited {
		return nil
	}
	return &v
}

func limitValue(p *int) int {
	if p == nil {
		return domain.Unlimited
	}
	return *p
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func fromStrings[T ~string](in []string) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = T(v)
	}
	return out
}

func newTierResponse(t *domain.Tier) tierResponse {
	return tierResponse{
		Name:              string(t.Name),
		Label:             t.Label(),
		DisplayName:       t.DisplayName,
		PriceMinor:        t.PriceMinor,
		Currency:          t.Currency,
		DisplayPrice:      t.DisplayPrice(),
		UserLimit:         t.UserLimit,
		DurationDays:      t.DurationDays,
		MaxSearchesPerDay: limitPtr(t.MaxSearchesPerDay),
		MaxLawSections:    limitPtr(t.MaxLawSections),
		MaxCaseHistories:  limitPtr(t.MaxCaseHistories),
		DocumentFormats:   toStrings(t.DocumentFormats),
		DraftingTypes:     toStrings(t.DraftingTypes),
		Features:          toStrings(t.Features),
		SharingEnabled:    t.SharingEnabled,
		Description:       t.Description,
		SortOrder:         t.SortOrder,
		UpdatedAt:         t.UpdatedAt,
	}
}

func newTierRequest(t *domain.Tier) tierRequest {
	return tierRequest{
		Name:              string(t.Name),
		DisplayName:       t.DisplayName,
		PriceMinor:        t.PriceMinor,
		Currency:          t.Currency,
		UserLimit:         t.UserLimit,
		DurationDays:      t.DurationDays,
		MaxSearchesPerDay: limitPtr(t.MaxSearchesPerDay),
		MaxLawSections:    limitPtr(t.MaxLawSections),
		MaxCaseHistories:  limitPtr(t.MaxCaseHistories),
		DocumentFormats:   toStrings(t.DocumentFormats),
		DraftingTypes:     toStrings(t.DraftingTypes),
		Features:          toStrings(t.Features),
		SharingEnabled:    t.SharingEnabled,
		Description:       t.Description,
		SortOrder:         t.SortOrder,
	}
}

func (req tierRequest) toDomain() domain.Tier {
	return domain.Tier{
		Name:              domain.TierName(req.Name),
		DisplayName:       req.DisplayName,
		PriceMinor:        req.PriceMinor,
		Currency:          req.Currency,
		UserLimit:         req.UserLimit,
		DurationDays:      req.DurationDays,
		MaxSearchesPerDay: limitValue(req.MaxSearchesPerDay),
		MaxLawSections:    limitValue(req.MaxLawSections),
		MaxCaseHistories:  limitValue(req.MaxCaseHistories),
		DocumentFormats:   fromStrings[domain.DocumentFormat](req.DocumentFormats),
		DraftingTypes:     fromStrings[domain.DraftingType](req.DraftingTypes),
		Features:          fromStrings[domain.Feature](req.Features),
		SharingEnabled:    req.SharingEnabled,
		Description:       req.Description,
		SortOrder:         req.SortOrder,
	}
}

// =============================================================================
// Handlers
// =============================================================================

// List handles GET /api/tiers.
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.catalog.ListTiers(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]tierResponse, 0, len(tiers))
	for i := range tiers {
		out = append(out, newTierResponse(&tiers[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": out})
}

// Get handles GET /api/tiers/{name}.
func (h *TierHandler) Get(w http.ResponseWriter, r *http.Request) {
	tier, err := h.catalog.GetTier(r.Context(), domain.TierName(r.PathValue("name")))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTierResponse(tier))
}

// Create handles POST /api/tiers.
func (h *TierHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_tier"

	var req tierRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	saved, err := h.admin.CreateTier(r.Context(), auth.IdentityFromRequest(r), req.toDomain())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTierResponse(saved))
}

// Update handles PATCH /api/tiers/{name}. Fields absent from the body keep
// their current values; an explicit null quota sets it to unlimited.
func (h *TierHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_tier"
	actor := auth.IdentityFromRequest(r)
	name := domain.TierName(r.PathValue("name"))

	current, err := h.catalog.GetTier(r.Context(), name)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req := newTierRequest(current)
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Name != string(name) {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "name", "cannot be changed"))
		return
	}

	saved, err := h.admin.UpdateTier(r.Context(), actor, req.toDomain())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTierResponse(saved))
}

// Delete handles DELETE /api/tiers/{name}.
func (h *TierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.admin.DeleteTier(r.Context(), auth.IdentityFromRequest(r), domain.TierName(r.PathValue("name")))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
