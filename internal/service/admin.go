package service

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/metrics"
	"github.com/DukeRupert/lexassist/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// AdminService performs privileged writes. Every method checks the actor
// against the access gate before touching the store, and invalidates cached
// resolutions before returning.
type AdminService interface {
	// ListOrganizations returns every organization. Requires an admin.
	ListOrganizations(ctx context.Context, actor uuid.UUID) ([]domain.Organization, error)

	// AssignTierToOrganization binds an organization to a tier.
	AssignTierToOrganization(ctx context.Context, actor, orgID uuid.UUID, tier domain.TierName) (*domain.Organization, error)

	// SetUserRole changes a user's role. Requires super_admin.
	SetUserRole(ctx context.Context, actor, target uuid.UUID, role domain.Role) (*domain.UserProfile, error)

	// RevokeAdminRole returns an admin or super_admin to the user role.
	RevokeAdminRole(ctx context.Context, actor, target uuid.UUID) (*domain.UserProfile, error)

	// CreateTier registers a new tier name and stores the tier.
	CreateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (*domain.Tier, error)

	// UpdateTier replaces an existing tier definition.
	UpdateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (*domain.Tier, error)

	// DeleteTier removes an unreferenced tier.
	DeleteTier(ctx context.Context, actor uuid.UUID, name domain.TierName) error

	// ListUsers pages through stored profiles. Requires an admin.
	ListUsers(ctx context.Context, actor uuid.UUID, limit, offset int) ([]domain.UserProfile, error)

	// CountUsersByRole reports how many stored profiles hold each role.
	CountUsersByRole(ctx context.Context, actor uuid.UUID) (map[domain.Role]int64, error)

	// UpdateProfile changes timezone or organization membership. Identities
	// may change their own timezone; anything else requires an admin.
	UpdateProfile(ctx context.Context, actor, target uuid.UUID, update domain.ProfileUpdate) (*domain.UserProfile, error)

	// CreateOrganization creates an organization on tier, free when empty.
	CreateOrganization(ctx context.Context, actor uuid.UUID, name string, tier domain.TierName) (*domain.Organization, error)

	// AssignSubscription gives target an active subscription to tier,
	// ending any active one it already holds. A nil endsAt is open-ended.
	AssignSubscription(ctx context.Context, actor, target uuid.UUID, tier domain.TierName, endsAt *time.Time) (*domain.Subscription, error)

	// CancelSubscription cancels a subscription. The tier stays honored
	// until a future end date; without one it ends now.
	CancelSubscription(ctx context.Context, actor, subscriptionID uuid.UUID) (*domain.Subscription, error)
}

const (
	DefaultUserPageSize = 50
	MaxUserPageSize     = 200

	maxOrganizationName = 200
)

// =============================================================================
// Implementation
// =============================================================================

type adminService struct {
	store   AdminStore
	catalog CatalogService
	gate    GateService
	cache   ResolutionCache
	retry   RetryPolicy
	now     func() time.Time
	logger  *slog.Logger
}

// NewAdminService creates a new AdminService. A nil cache disables
// invalidation and a nil now uses time.Now.
func NewAdminService(store AdminStore, catalog CatalogService, gate GateService, cache ResolutionCache, retry RetryPolicy, now func() time.Time, logger *slog.Logger) AdminService {
	if now == nil {
		now = time.Now
	}
	return &adminService{
		store:   store,
		catalog: catalog,
		gate:    gate,
		cache:   cache,
		retry:   retry,
		now:     now,
		logger:  logger,
	}
}

// require checks the actor against the gate for capability c.
func (s *adminService) require(ctx context.Context, op string, actor uuid.UUID, c domain.Capability) error {
	if actor == uuid.Nil {
		return domain.Unauthorized(op, "Identity is required")
	}
	d, err := s.gate.CheckAccess(ctx, actor, c)
	if err != nil {
		return err
	}
	if !d.Allowed {
		s.logger.Warn("admin mutation refused", "op", op, "actor", actor, "capability", c, "role", d.Role)
		return d.Err(op)
	}
	return nil
}

func (s *adminService) ListOrganizations(ctx context.Context, actor uuid.UUID) ([]domain.Organization, error) {
	const op = "admin.list_organizations"

	if err := s.require(ctx, op, actor, domain.CapAssignOrgTier); err != nil {
		return nil, err
	}

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) ([]domain.Organization, error) {
		rows, err := s.store.ListOrganizations(ctx)
		if err != nil {
			return nil, storeError(err, op, "Organization", "")
		}
		orgs := make([]domain.Organization, 0, len(rows))
		for _, row := range rows {
			orgs = append(orgs, repoOrganizationToDomain(row))
		}
		return orgs, nil
	})
}

func (s *adminService) AssignTierToOrganization(ctx context.Context, actor, orgID uuid.UUID, tier domain.TierName) (org *domain.Organization, err error) {
	const op = "admin.assign_org_tier"
	defer func() { recordMutation(op, err) }()

	if err := s.require(ctx, op, actor, domain.CapAssignOrgTier); err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetTier(ctx, tier); err != nil {
		return nil, err
	}

	row, err := s.store.UpdateOrganizationTier(ctx, repository.UpdateOrganizationTierParams{
		ID:       orgID,
		TierName: string(tier),
	})
	if err != nil {
		return nil, storeError(err, op, "Organization", orgID.String())
	}

	// Members of the organization are not enumerated, so drop everything.
	if err := s.bump(ctx, op); err != nil {
		return nil, err
	}

	o := repoOrganizationToDomain(row)
	s.logger.Info("organization tier assigned", "actor", actor, "organization_id", o.ID, "tier", o.TierName)
	return &o, nil
}

func (s *adminService) SetUserRole(ctx context.Context, actor, target uuid.UUID, role domain.Role) (profile *domain.UserProfile, err error) {
	const op = "admin.set_user_role"
	defer func() { recordMutation(op, err) }()

	if !role.Valid() {
		return nil, domain.NewValidationError(op, "role", "must be one of user, admin, super_admin")
	}
	if target == uuid.Nil {
		return nil, domain.Invalid(op, "Target identity is required")
	}

	if err := s.require(ctx, op, actor, domain.CapAssignRoles); err != nil {
		return nil, err
	}

	actorRole, err := s.currentRole(ctx, op, actor)
	if err != nil {
		return nil, err
	}
	targetRole, err := s.currentRole(ctx, op, target)
	if err != nil {
		return nil, err
	}
	if actorRole != domain.RoleSuperAdmin && (role == domain.RoleSuperAdmin || targetRole == domain.RoleSuperAdmin) {
		return nil, domain.Forbidden(op, "Only a super_admin can grant or change the super_admin role")
	}

	updated, err := s.setRole(ctx, op, target, role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed", "actor", actor, "target", target, "from", targetRole, "to", role)
	return updated, nil
}

func (s *adminService) RevokeAdminRole(ctx context.Context, actor, target uuid.UUID) (profile *domain.UserProfile, err error) {
	const op = "admin.revoke_admin"
	defer func() { recordMutation(op, err) }()

	if target == uuid.Nil {
		return nil, domain.Invalid(op, "Target identity is required")
	}

	if err := s.require(ctx, op, actor, domain.CapRevokeAdmin); err != nil {
		return nil, err
	}

	current, err := s.currentRole(ctx, op, target)
	if err != nil {
		return nil, err
	}
	if !current.IsAdministrative() {
		return nil, domain.Invalid(op, "Target does not hold an admin role")
	}

	updated, err := s.setRole(ctx, op, target, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin role revoked", "actor", actor, "target", target, "from", current)
	return updated, nil
}

func (s *adminService) CreateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (saved *domain.Tier, err error) {
	const op = "admin.create_tier"
	defer func() { recordMutation(op, err) }()

	if err := s.require(ctx, op, actor, domain.CapManageTiers); err != nil {
		return nil, err
	}

	normalizeTier(&tier)
	if err := tier.Validate(op); err != nil {
		return nil, err
	}

	_, err = s.catalog.GetTier(ctx, tier.Name)
	switch {
	case err == nil:
		return nil, domain.Conflict(op, "Tier "+string(tier.Name)+" already exists")
	case !domain.IsNotFound(err):
		return nil, err
	}

	if err := s.catalog.RegisterTierName(ctx, tier.Name); err != nil {
		return nil, err
	}
	saved, err = s.catalog.UpsertTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	if err := s.bump(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("tier created", "actor", actor, "tier", saved.Name)
	return saved, nil
}

func (s *adminService) UpdateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (saved *domain.Tier, err error) {
	const op = "admin.update_tier"
	defer func() { recordMutation(op, err) }()

	if err := s.require(ctx, op, actor, domain.CapManageTiers); err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetTier(ctx, tier.Name); err != nil {
		return nil, err
	}
	saved, err = s.catalog.UpsertTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	if err := s.bump(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("tier updated", "actor", actor, "tier", saved.Name)
	return saved, nil
}

func (s *adminService) DeleteTier(ctx context.Context, actor uuid.UUID, name domain.TierName) (err error) {
	const op = "admin.delete_tier"
	defer func() { recordMutation(op, err) }()

	if err := s.require(ctx, op, actor, domain.CapManageTiers); err != nil {
		return err
	}
	if err := s.catalog.DeleteTier(ctx, name); err != nil {
		return err
	}
	if err := s.bump(ctx, op); err != nil {
		return err
	}

	s.logger.Info("tier deleted", "actor", actor, "tier", name)
	return nil
}

// =============================================================================
// Users and Profiles
// =============================================================================

func (s *adminService) ListUsers(ctx context.Context, actor uuid.UUID, limit, offset int) ([]domain.UserProfile, error) {
	const op = "admin.list_users"

	if limit == 0 {
		limit = DefaultUserPageSize
	}
	if limit < 0 || limit > MaxUserPageSize {
		return nil, domain.NewValidationError(op, "limit", "must be between 1 and 200")
	}
	if offset < 0 || offset > math.MaxInt32 {
		return nil, domain.NewValidationError(op, "offset", "must not be negative")
	}

	if err := s.require(ctx, op, actor, domain.CapManageRegularUsers); err != nil {
		return nil, err
	}

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) ([]domain.UserProfile, error) {
		rows, err := s.store.ListUserProfiles(ctx, repository.ListUserProfilesParams{
			Limit:  int32(limit),
			Offset: int32(offset),
		})
		if err != nil {
			return nil, storeError(err, op, "User profile", "")
		}
		users := make([]domain.UserProfile, 0, len(rows))
		for _, row := range rows {
			users = append(users, repoProfileToDomain(row))
		}
		return users, nil
	})
}

func (s *adminService) CountUsersByRole(ctx context.Context, actor uuid.UUID) (map[domain.Role]int64, error) {
	const op = "admin.count_users_by_role"

	if err := s.require(ctx, op, actor, domain.CapViewBasicAnalytics); err != nil {
		return nil, err
	}

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) (map[domain.Role]int64, error) {
		counts := make(map[domain.Role]int64, 3)
		for _, role := range []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleSuperAdmin} {
			n, err := s.store.CountUsersByRole(ctx, string(role))
			if err != nil {
				return nil, storeError(err, op, "User profile", "")
			}
			counts[role] = n
		}
		return counts, nil
	})
}

func (s *adminService) UpdateProfile(ctx context.Context, actor, target uuid.UUID, update domain.ProfileUpdate) (profile *domain.UserProfile, err error) {
	const op = "admin.update_profile"
	defer func() { recordMutation(op, err) }()

	if actor == uuid.Nil {
		return nil, domain.Unauthorized(op, "Identity is required")
	}
	if target == uuid.Nil {
		return nil, domain.Invalid(op, "Target identity is required")
	}
	if update.Timezone != nil {
		if err := domain.ValidateTimezone(op, *update.Timezone); err != nil {
			return nil, err
		}
	}
	if update.Timezone == nil && !update.TouchesMembership() {
		return nil, domain.Invalid(op, "Nothing to update")
	}

	if actor != target || update.TouchesMembership() {
		if err := s.require(ctx, op, actor, domain.CapManageRegularUsers); err != nil {
			return nil, err
		}
	}

	if update.OrganizationID != nil && !update.ClearOrganization {
		if _, err := s.store.GetOrganization(ctx, *update.OrganizationID); err != nil {
			return nil, storeError(err, op, "Organization", update.OrganizationID.String())
		}
	}

	current, err := readWithRetry(ctx, s.retry, op, func(ctx context.Context) (domain.UserProfile, error) {
		row, err := s.store.GetUserProfile(ctx, target)
		if err != nil {
			derr := storeError(err, op, "User profile", target.String())
			if domain.IsNotFound(derr) {
				return domain.DefaultProfile(target), nil
			}
			return domain.UserProfile{}, derr
		}
		return repoProfileToDomain(row), nil
	})
	if err != nil {
		return nil, err
	}

	if update.Timezone != nil {
		current.Timezone = *update.Timezone
	}
	switch {
	case update.ClearOrganization:
		current.OrganizationID = nil
	case update.OrganizationID != nil:
		current.OrganizationID = update.OrganizationID
	}

	row, err := s.store.UpsertUserProfile(ctx, repository.UpsertUserProfileParams{
		UserID:         target,
		Timezone:       current.Timezone,
		OrganizationID: domain.ToNullUUID(current.OrganizationID),
	})
	if err != nil {
		return nil, storeError(err, op, "User profile", target.String())
	}
	if err := s.invalidate(ctx, op, target); err != nil {
		return nil, err
	}

	p := repoProfileToDomain(row)
	s.logger.Info("user profile updated", "actor", actor, "target", target, "timezone", p.Timezone, "organization_id", p.OrganizationID)
	return &p, nil
}

// =============================================================================
// Organizations and Subscriptions
// =============================================================================

func (s *adminService) CreateOrganization(ctx context.Context, actor uuid.UUID, name string, tier domain.TierName) (org *domain.Organization, err error) {
	const op = "admin.create_organization"
	defer func() { recordMutation(op, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError(op, "name", "is required")
	}
	if utf8.RuneCountInString(name) > maxOrganizationName {
		return nil, domain.NewValidationError(op, "name", "must be at most 200 characters")
	}
	if tier == "" {
		tier = domain.TierFree
	}

	if err := s.require(ctx, op, actor, domain.CapAssignOrgTier); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetTier(ctx, tier); err != nil {
		return nil, err
	}

	row, err := s.store.CreateOrganization(ctx, repository.CreateOrganizationParams{
		Name:     name,
		TierName: string(tier),
	})
	if err != nil {
		return nil, storeError(err, op, "Organization", "")
	}

	o := repoOrganizationToDomain(row)
	s.logger.Info("organization created", "actor", actor, "organization_id", o.ID, "tier", o.TierName)
	return &o, nil
}

func (s *adminService) AssignSubscription(ctx context.Context, actor, target uuid.UUID, tier domain.TierName, endsAt *time.Time) (sub *domain.Subscription, err error) {
	const op = "admin.assign_subscription"
	defer func() { recordMutation(op, err) }()

	if target == uuid.Nil {
		return nil, domain.Invalid(op, "Target identity is required")
	}
	now := s.now()
	if endsAt != nil && !endsAt.After(now) {
		return nil, domain.NewValidationError(op, "ends_at", "must be in the future")
	}

	if err := s.require(ctx, op, actor, domain.CapManageRegularUsers); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetTier(ctx, tier); err != nil {
		return nil, err
	}

	row, err := s.store.ReplaceActiveSubscription(ctx, repository.CreateSubscriptionParams{
		UserID:    target,
		TierName:  string(tier),
		Status:    string(domain.SubscriptionStatusActive),
		StartedAt: now,
		EndsAt:    domain.ToNullTime(endsAt),
	})
	if err != nil {
		return nil, storeError(err, op, "Subscription", "")
	}
	if err := s.invalidate(ctx, op, target); err != nil {
		return nil, err
	}

	out := repoSubscriptionToDomain(row)
	s.logger.Info("subscription assigned", "actor", actor, "target", target, "subscription_id", out.ID, "tier", out.TierName)
	return &out, nil
}

func (s *adminService) CancelSubscription(ctx context.Context, actor, subscriptionID uuid.UUID) (sub *domain.Subscription, err error) {
	const op = "admin.cancel_subscription"
	defer func() { recordMutation(op, err) }()

	if subscriptionID == uuid.Nil {
		return nil, domain.Invalid(op, "Subscription id is required")
	}

	if err := s.require(ctx, op, actor, domain.CapManageRegularUsers); err != nil {
		return nil, err
	}

	existing, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, storeError(err, op, "Subscription", subscriptionID.String())
	}
	if domain.SubscriptionStatus(existing.Status) == domain.SubscriptionStatusCanceled {
		return nil, domain.Conflict(op, "Subscription is already canceled")
	}

	// A paid period still running is honored to its end.
	now := s.now()
	endsAt := existing.EndsAt
	if !endsAt.Valid || !endsAt.Time.After(now) {
		endsAt = sql.NullTime{Time: now, Valid: true}
	}

	row, err := s.store.UpdateSubscriptionStatus(ctx, repository.UpdateSubscriptionStatusParams{
		ID:     subscriptionID,
		Status: string(domain.SubscriptionStatusCanceled),
		EndsAt: endsAt,
	})
	if err != nil {
		return nil, storeError(err, op, "Subscription", subscriptionID.String())
	}
	if err := s.invalidate(ctx, op, row.UserID); err != nil {
		return nil, err
	}

	out := repoSubscriptionToDomain(row)
	s.logger.Info("subscription canceled", "actor", actor, "target", out.UserID, "subscription_id", out.ID, "ends_at", out.EndsAt)
	return &out, nil
}

func (s *adminService) currentRole(ctx context.Context, op string, userID uuid.UUID) (domain.Role, error) {
	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) (domain.Role, error) {
		row, err := s.store.GetUserProfile(ctx, userID)
		if err != nil {
			derr := storeError(err, op, "User profile", userID.String())
			if domain.IsNotFound(derr) {
				return domain.RoleUser, nil
			}
			return "", derr
		}
		return domain.Role(row.Role), nil
	})
}

func (s *adminService) setRole(ctx context.Context, op string, target uuid.UUID, role domain.Role) (*domain.UserProfile, error) {
	row, err := s.store.UpdateUserRoleGuarded(ctx, repository.UpsertUserRoleParams{
		UserID: target,
		Role:   string(role),
	})
	if err != nil {
		return nil, storeError(err, op, "User profile", target.String())
	}
	if err := s.invalidate(ctx, op, target); err != nil {
		return nil, err
	}
	p := repoProfileToDomain(row)
	return &p, nil
}

// invalidate drops one identity's cached resolution. The write has already
// committed when this fails, so the error says so.
func (s *adminService) invalidate(ctx context.Context, op string, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Error("failed to invalidate cached resolution", "op", op, "user_id", userID, "error", err)
		return domain.Transient(err, op, "Change saved but cached access could not be refreshed")
	}
	return nil
}

func (s *adminService) bump(ctx context.Context, op string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.BumpVersion(ctx); err != nil {
		s.logger.Error("failed to bump resolution cache version", "op", op, "error", err)
		return domain.Transient(err, op, "Change saved but cached access could not be refreshed")
	}
	return nil
}

func recordMutation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	metrics.MutationFinished(op, outcome)
}
