package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/auth"
	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/service"
)

// AccessHandler answers access questions for the calling identity.
type AccessHandler struct {
	gate     service.GateService
	resolver service.ResolverService
	logger   *slog.Logger
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(gate service.GateService, resolver service.ResolverService, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{
		gate:     gate,
		resolver: resolver,
		logger:   logger,
	}
}

// RegisterRoutes registers access routes behind the identity middleware.
func (h *AccessHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("GET /api/access", requireIdentity(http.HandlerFunc(h.Check)))
	mux.Handle("GET /api/me", requireIdentity(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/access/limit", requireIdentity(http.HandlerFunc(h.Limit)))
	mux.Handle("POST /api/access/limit-analysis", requireIdentity(http.HandlerFunc(h.LimitAnalysis)))
}

type windowResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type decisionResponse struct {
	Capability string          `json:"capability"`
	Allowed    bool            `json:"allowed"`
	Reason     string          `json:"reason"`
	Role       string          `json:"role,omitempty"`
	Tier       string          `json:"tier,omitempty"`
	TierSource string          `json:"tier_source,omitempty"`
	Used       *int64          `json:"used,omitempty"`
	Limit      *int            `json:"limit"`
	Window     *windowResponse `json:"window,omitempty"`
	MaxItems   *int            `json:"max_items"`
	ItemCaps   map[string]*int `json:"item_caps,omitempty"`
}

func newDecisionResponse(d domain.AccessDecision) decisionResponse {
	resp := decisionResponse{
		Capability: string(d.Capability),
		Allowed:    d.Allowed,
		Reason:     string(d.Reason),
		Role:       string(d.Role),
		Tier:       string(d.Tier),
		TierSource: string(d.TierSource),
		Limit:      limitPtr(d.Limit),
		MaxItems:   limitPtr(d.MaxItems),
	}
	if d.Window != nil {
		used := d.Used
		resp.Used = &used
		resp.Window = &windowResponse{Start: d.Window.Start, End: d.Window.End}
	}
	if len(d.ItemCaps) > 0 {
		resp.ItemCaps = make(map[string]*int, len(d.ItemCaps))
		for c, v := range d.ItemCaps {
			resp.ItemCaps[string(c)] = limitPtr(v)
		}
	}
	return resp
}

// Check handles GET /api/access?capability=...
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	const op = "handler.check_access"

	capability := domain.ParseCapability(r.URL.Query().Get("capability"))
	if capability == "" {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "capability", "is required"))
		return
	}

	d, err := h.gate.CheckAccess(r.Context(), auth.IdentityFromRequest(r), capability)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newDecisionResponse(d))
}

type meResponse struct {
	UserID         uuid.UUID    `json:"user_id"`
	Role           string       `json:"role"`
	Tier           tierResponse `json:"tier"`
	TierSource     string       `json:"tier_source"`
	Timezone       string       `json:"timezone"`
	OrganizationID *uuid.UUID   `json:"organization_id,omitempty"`
	ValidUntil     *time.Time   `json:"valid_until,omitempty"`
}

// Me handles GET /api/me, returning the caller's resolved role and tier.
func (h *AccessHandler) Me(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context(), auth.IdentityFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tz := res.Timezone
	if tz == "" {
		tz = "UTC"
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:         res.UserID,
		Role:           string(res.Role),
		Tier:           newTierResponse(&res.Tier),
		TierSource:     string(res.Source),
		Timezone:       tz,
		OrganizationID: res.OrganizationID,
		ValidUntil:     res.ValidUntil,
	})
}

// =============================================================================
// Result truncation
// =============================================================================

type limitRequest struct {
	Items []json.RawMessage `json:"items"`
}

type limitResponse struct {
	Capability string            `json:"capability"`
	MaxItems   *int              `json:"max_items"`
	Items      []json.RawMessage `json:"items"`
	Limited    bool              `json:"limited"`
}

// Limit handles POST /api/access/limit?capability=..., cutting an upstream
// list down to the caller's cap for a result-size capability.
func (h *AccessHandler) Limit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.limit_results"

	capability := domain.ParseCapability(r.URL.Query().Get("capability"))
	if capability.Kind() != domain.KindResultSize {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "capability", "must be a list capability"))
		return
	}

	var req limitRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	d, err := h.gate.CheckAccess(r.Context(), auth.IdentityFromRequest(r), capability)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := domain.TruncateFor(req.Items, d)
	if items == nil {
		items = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, limitResponse{
		Capability: string(capability),
		MaxItems:   limitPtr(d.MaxItems),
		Items:      items,
		Limited:    len(items) < len(req.Items),
	})
}

// LimitAnalysis handles POST /api/access/limit-analysis. Both lists of an
// upstream brief analysis are truncated to the caller's tier caps. No quota
// is consumed or checked.
func (h *AccessHandler) LimitAnalysis(w http.ResponseWriter, r *http.Request) {
	const op = "handler.limit_analysis"

	var body domain.AnalysisResult
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), auth.IdentityFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	caps := make(map[domain.Capability]int, 2)
	for _, c := range []domain.Capability{domain.CapListLawSections, domain.CapListCaseHistories} {
		d, err := h.gate.Evaluate(r.Context(), res, c)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		caps[c] = d.MaxItems
	}

	d := domain.Allow(domain.CapAnalyzeBrief)
	d.ItemCaps = caps
	writeJSON(w, http.StatusOK, domain.ApplyAnalysisLimits(body, d))
}
