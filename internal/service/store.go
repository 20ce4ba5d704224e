// Package service contains the business logic layer.
//
// This file declares the store ports the access services depend on and
// translates repository failures into domain errors.
package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/repository"
)

// =============================================================================
// Store Ports
// =============================================================================

// CatalogStore persists tiers and the tier-name registry.
type CatalogStore interface {
	ListTiers(ctx context.Context) ([]repository.Tier, error)
	GetTier(ctx context.Context, name string) (repository.Tier, error)
	UpsertTier(ctx context.Context, arg repository.UpsertTierParams) (repository.Tier, error)
	DeleteTierIfUnreferenced(ctx context.Context, name string) (repository.CountTierReferencesRow, error)
	TierNameExists(ctx context.Context, name string) (bool, error)
	InsertTierName(ctx context.Context, name string) error
}

// IdentityStore reads the records a resolution is built from.
type IdentityStore interface {
	GetUserProfile(ctx context.Context, userID uuid.UUID) (repository.UserProfile, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]repository.Subscription, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (repository.Organization, error)
}

// UsageStore persists usage records.
type UsageStore interface {
	CreateUsageRecord(ctx context.Context, arg repository.CreateUsageRecordParams) (repository.UsageRecord, error)
	CountUsageRecords(ctx context.Context, arg repository.CountUsageRecordsParams) (int64, error)
	CountUsageRecordsByAction(ctx context.Context, arg repository.CountUsageRecordsByActionParams) ([]repository.CountUsageRecordsByActionRow, error)
}

// AdminStore performs privileged writes to roles, profiles, organizations
// and subscriptions.
type AdminStore interface {
	GetUserProfile(ctx context.Context, userID uuid.UUID) (repository.UserProfile, error)
	ListUserProfiles(ctx context.Context, arg repository.ListUserProfilesParams) ([]repository.UserProfile, error)
	CountUsersByRole(ctx context.Context, role string) (int64, error)
	UpsertUserProfile(ctx context.Context, arg repository.UpsertUserProfileParams) (repository.UserProfile, error)
	UpdateUserRoleGuarded(ctx context.Context, arg repository.UpsertUserRoleParams) (repository.UserProfile, error)

	GetOrganization(ctx context.Context, id uuid.UUID) (repository.Organization, error)
	ListOrganizations(ctx context.Context) ([]repository.Organization, error)
	CreateOrganization(ctx context.Context, arg repository.CreateOrganizationParams) (repository.Organization, error)
	UpdateOrganizationTier(ctx context.Context, arg repository.UpdateOrganizationTierParams) (repository.Organization, error)

	GetSubscription(ctx context.Context, id uuid.UUID) (repository.Subscription, error)
	ReplaceActiveSubscription(ctx context.Context, arg repository.CreateSubscriptionParams) (repository.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, arg repository.UpdateSubscriptionStatusParams) (repository.Subscription, error)
}

// Store is everything the services need from persistence.
// *repository.Store satisfies it.
type Store interface {
	CatalogStore
	IdentityStore
	UsageStore
	AdminStore
}

var _ Store = (*repository.Store)(nil)

// =============================================================================
// Error Translation
// =============================================================================

// storeError maps a repository failure to the domain taxonomy. Errors that
// are already domain errors pass through. Anything unrecognised is treated
// as a transient store failure.
func storeError(err error, op, resource, id string) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &de), errors.As(err, &ve):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return domain.NotFound(op, resource, id)
	case errors.Is(err, repository.ErrTierInUse):
		return domain.Conflict(op, "Tier is still in use by subscriptions or organizations")
	case errors.Is(err, repository.ErrLastSuperAdmin):
		return domain.Conflict(op, "Cannot demote the last super_admin")
	case repository.IsUniqueViolation(err):
		return domain.Conflict(op, resource+" already exists")
	case repository.IsForeignKeyViolation(err):
		return domain.Conflict(op, resource+" references a record that does not exist")
	case repository.IsCheckViolation(err):
		return domain.Invalid(op, resource+" has an invalid value")
	}
	return domain.Transient(err, op, "Failed to access "+resource)
}

// =============================================================================
// Conversions
// =============================================================================

func repoTierToDomain(t repository.Tier) domain.Tier {
	return domain.Tier{
		Name:              domain.TierName(t.Name),
		DisplayName:       t.DisplayName,
		PriceMinor:        t.PriceMinor,
		Currency:          t.Currency,
		UserLimit:         domain.NullIntPtr(t.UserLimit),
		DurationDays:      int(t.DurationDays),
		MaxSearchesPerDay: domain.NullIntValue(t.MaxSearchesPerDay),
		MaxLawSections:    domain.NullIntValue(t.MaxLawSections),
		MaxCaseHistories:  domain.NullIntValue(t.MaxCaseHistories),
		DocumentFormats:   convertStrings[domain.DocumentFormat](t.DocumentFormats),
		DraftingTypes:     convertStrings[domain.DraftingType](t.DraftingTypes),
		Features:          convertStrings[domain.Feature](t.Features),
		SharingEnabled:    t.SharingEnabled,
		Description:       t.Description,
		SortOrder:         int(t.SortOrder),
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func domainTierToParams(t domain.Tier) repository.UpsertTierParams {
	return repository.UpsertTierParams{
		Name:              string(t.Name),
		DisplayName:       t.DisplayName,
		PriceMinor:        t.PriceMinor,
		Currency:          t.Currency,
		UserLimit:         domain.ToNullIntPtr(t.UserLimit),
		DurationDays:      int32(t.DurationDays),
		MaxSearchesPerDay: domain.ToNullLimit(t.MaxSearchesPerDay),
		MaxLawSections:    domain.ToNullLimit(t.MaxLawSections),
		MaxCaseHistories:  domain.ToNullLimit(t.MaxCaseHistories),
		DocumentFormats:   stringsOf(t.DocumentFormats),
		DraftingTypes:     stringsOf(t.DraftingTypes),
		Features:          stringsOf(t.Features),
		SharingEnabled:    t.SharingEnabled,
		Description:       t.Description,
		SortOrder:         int32(t.SortOrder),
	}
}

func repoProfileToDomain(p repository.UserProfile) domain.UserProfile {
	return domain.UserProfile{
		UserID:         p.UserID,
		Role:           domain.Role(p.Role),
		Timezone:       p.Timezone,
		OrganizationID: domain.NullUUIDValue(p.OrganizationID),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func repoSubscriptionToDomain(s repository.Subscription) domain.Subscription {
	return domain.Subscription{
		ID:        s.ID,
		UserID:    s.UserID,
		TierName:  domain.TierName(s.TierName),
		Status:    domain.SubscriptionStatus(s.Status),
		StartedAt: s.StartedAt,
		EndsAt:    domain.NullTimeValue(s.EndsAt),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func repoOrganizationToDomain(o repository.Organization) domain.Organization {
	return domain.Organization{
		ID:        o.ID,
		Name:      o.Name,
		TierName:  domain.TierName(o.TierName),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func convertStrings[T ~string](in []string) []T {
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = T(s)
	}
	return out
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
