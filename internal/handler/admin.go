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

// AdminHandler handles organization, subscription, profile and role
// administration requests.
type AdminHandler struct {
	admin  service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("GET /api/organizations", requireIdentity(http.HandlerFunc(h.ListOrganizations)))
	mux.Handle("POST /api/organizations", requireIdentity(http.HandlerFunc(h.CreateOrganization)))
	mux.Handle("POST /api/organizations/{id}/assign-tier", requireIdentity(http.HandlerFunc(h.AssignTier)))
	mux.Handle("GET /api/users", requireIdentity(http.HandlerFunc(h.ListUsers)))
	mux.Handle("GET /api/analytics/roles", requireIdentity(http.HandlerFunc(h.RoleCounts)))
	mux.Handle("PATCH /api/me", requireIdentity(http.HandlerFunc(h.UpdateOwnProfile)))
	mux.Handle("PATCH /api/users/{id}/profile", requireIdentity(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("POST /api/users/{id}/role", requireIdentity(http.HandlerFunc(h.SetRole)))
	mux.Handle("POST /api/users/{id}/revoke-admin", requireIdentity(http.HandlerFunc(h.RevokeAdmin)))
	mux.Handle("POST /api/users/{id}/subscription", requireIdentity(http.HandlerFunc(h.AssignSubscription)))
	mux.Handle("POST /api/subscriptions/{id}/cancel", requireIdentity(http.HandlerFunc(h.CancelSubscription)))
}

type organizationResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newOrganizationResponse(o *domain.Organization) organizationResponse {
	return organizationResponse{ID: o.ID, Name: o.Name, Tier: string(o.TierName), UpdatedAt: o.UpdatedAt}
}

type profileResponse struct {
	UserID         uuid.UUID  `json:"user_id"`
	Role           string     `json:"role"`
	Timezone       string     `json:"timezone,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

func newProfileResponse(p *domain.UserProfile) profileResponse {
	return profileResponse{UserID: p.UserID, Role: string(p.Role), Timezone: p.Timezone, OrganizationID: p.OrganizationID}
}

type subscriptionResponse struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Tier      string     `json:"tier"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
}

func newSubscriptionResponse(s *domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		Tier:      string(s.TierName),
		Status:    string(s.Status),
		StartedAt: s.StartedAt,
		EndsAt:    s.EndsAt,
	}
}

// profileUpdateRequest distinguishes an absent organization_id, which
// leaves membership alone, from null, which clears it.
type profileUpdateRequest struct {
	Timezone       *string         `json:"timezone"`
	OrganizationID json.RawMessage `json:"organization_id"`
}

func (req profileUpdateRequest) toDomain(op string) (domain.ProfileUpdate, error) {
	u := domain.ProfileUpdate{Timezone: req.Timezone}
	switch {
	case len(req.OrganizationID) == 0:
	case string(req.OrganizationID) == "null":
		u.ClearOrganization = true
	default:
		var id uuid.UUID
		if err := json.Unmarshal(req.OrganizationID, &id); err != nil {
			return u, domain.NewValidationError(op, "organization_id", "must be a UUID or null")
		}
		u.OrganizationID = &id
	}
	return u, nil
}

// ListOrganizations handles GET /api/organizations.
func (h *AdminHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.admin.ListOrganizations(r.Context(), auth.IdentityFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]organizationResponse, 0, len(orgs))
	for i := range orgs {
		out = append(out, newOrganizationResponse(&orgs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": out})
}

// CreateOrganization handles POST /api/organizations.
func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_organization"

	var req struct {
		Name string `json:"name"`
		Tier string `json:"tier"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	org, err := h.admin.CreateOrganization(r.Context(), auth.IdentityFromRequest(r), req.Name, domain.TierName(req.Tier))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrganizationResponse(org))
}

// AssignTier handles POST /api/organizations/{id}/assign-tier.
func (h *AdminHandler) AssignTier(w http.ResponseWriter, r *http.Request) {
	const op = "handler.assign_tier"

	orgID, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Tier == "" {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "tier", "is required"))
		return
	}

	org, err := h.admin.AssignTierToOrganization(r.Context(), auth.IdentityFromRequest(r), orgID, domain.TierName(req.Tier))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrganizationResponse(org))
}

// SetRole handles POST /api/users/{id}/role.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	const op = "handler.set_role"

	target, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	role, err := domain.ParseRole(op, req.Role)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	profile, err := h.admin.SetUserRole(r.Context(), auth.IdentityFromRequest(r), target, role)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

// RevokeAdmin handles POST /api/users/{id}/revoke-admin.
func (h *AdminHandler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	const op = "handler.revoke_admin"

	target, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	profile, err := h.admin.RevokeAdminRole(r.Context(), auth.IdentityFromRequest(r), target)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

// ListUsers handles GET /api/users?limit=&offset=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	const op = "handler.list_users"

	limit, err := queryInt(r, op, "limit")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, op, "offset")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	users, err := h.admin.ListUsers(r.Context(), auth.IdentityFromRequest(r), limit, offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]profileResponse, 0, len(users))
	for i := range users {
		out = append(out, newProfileResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// RoleCounts handles GET /api/analytics/roles.
func (h *AdminHandler) RoleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.admin.CountUsersByRole(r.Context(), auth.IdentityFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make(map[string]int64, len(counts))
	for role, n := range counts {
		out[string(role)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// UpdateOwnProfile handles PATCH /api/me.
func (h *AdminHandler) UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromRequest(r)
	h.updateProfile(w, r, "handler.update_own_profile", actor, actor)
}

// UpdateProfile handles PATCH /api/users/{id}/profile.
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_profile"

	target, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.updateProfile(w, r, op, auth.IdentityFromRequest(r), target)
}

func (h *AdminHandler) updateProfile(w http.ResponseWriter, r *http.Request, op string, actor, target uuid.UUID) {
	var req profileUpdateRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	update, err := req.toDomain(op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	profile, err := h.admin.UpdateProfile(r.Context(), actor, target, update)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

// AssignSubscription handles POST /api/users/{id}/subscription.
func (h *AdminHandler) AssignSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.assign_subscription"

	target, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Tier   string     `json:"tier"`
		EndsAt *time.Time `json:"ends_at"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Tier == "" {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "tier", "is required"))
		return
	}

	sub, err := h.admin.AssignSubscription(r.Context(), auth.IdentityFromRequest(r), target, domain.TierName(req.Tier), req.EndsAt)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubscriptionResponse(sub))
}

// CancelSubscription handles POST /api/subscriptions/{id}/cancel.
func (h *AdminHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.cancel_subscription"

	id, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub, err := h.admin.CancelSubscription(r.Context(), auth.IdentityFromRequest(r), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}
