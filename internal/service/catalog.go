package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/lexassist/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CatalogService manages tier definitions and the tier-name registry.
//
// It performs no authorization. Privileged callers go through
// AdminService, which gates every write.
type CatalogService interface {
	// ListTiers returns every tier ordered by sort order, then name.
	ListTiers(ctx context.Context) ([]domain.Tier, error)

	// GetTier returns the named tier or a NotFound error.
	GetTier(ctx context.Context, name domain.TierName) (*domain.Tier, error)

	// UpsertTier validates and stores a tier. The name must already be in
	// the registry.
	UpsertTier(ctx context.Context, tier domain.Tier) (*domain.Tier, error)

	// DeleteTier removes an unreferenced tier. The free tier cannot be deleted.
	DeleteTier(ctx context.Context, name domain.TierName) error

	// RegisterTierName adds a name to the registry. Registering an existing
	// name is a no-op.
	RegisterTierName(ctx context.Context, name domain.TierName) error
}

// =============================================================================
// Implementation
// =============================================================================

type catalogService struct {
	store  CatalogStore
	retry  RetryPolicy
	logger *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store CatalogStore, retry RetryPolicy, logger *slog.Logger) CatalogService {
	return &catalogService{
		store:  store,
		retry:  retry,
		logger: logger,
	}
}

func (s *catalogService) ListTiers(ctx context.Context) ([]domain.Tier, error) {
	const op = "catalog.list_tiers"

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) ([]domain.Tier, error) {
		rows, err := s.store.ListTiers(ctx)
		if err != nil {
			s.logger.Error("failed to list tiers", "error", err)
			return nil, storeError(err, op, "Tier", "")
		}
		tiers := make([]domain.Tier, 0, len(rows))
		for _, row := range rows {
			tiers = append(tiers, repoTierToDomain(row))
		}
		return tiers, nil
	})
}

func (s *catalogService) GetTier(ctx context.Context, name domain.TierName) (*domain.Tier, error) {
	const op = "catalog.get_tier"

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) (*domain.Tier, error) {
		row, err := s.store.GetTier(ctx, string(name))
		if err != nil {
			return nil, storeError(err, op, "Tier", string(name))
		}
		tier := repoTierToDomain(row)
		return &tier, nil
	})
}

func (s *catalogService) UpsertTier(ctx context.Context, tier domain.Tier) (*domain.Tier, error) {
	const op = "catalog.upsert_tier"

	normalizeTier(&tier)
	if err := tier.Validate(op); err != nil {
		return nil, err
	}

	registered, err := readWithRetry(ctx, s.retry, op, func(ctx context.Context) (bool, error) {
		ok, err := s.store.TierNameExists(ctx, string(tier.Name))
		return ok, storeError(err, op, "Tier name", string(tier.Name))
	})
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, domain.NewValidationError(op, "name", "is not a registered tier name")
	}

	row, err := s.store.UpsertTier(ctx, domainTierToParams(tier))
	if err != nil {
		s.logger.Error("failed to upsert tier", "tier", tier.Name, "error", err)
		return nil, storeError(err, op, "Tier", string(tier.Name))
	}

	saved := repoTierToDomain(row)
	s.logger.Info("tier saved", "tier", saved.Name)
	return &saved, nil
}

func (s *catalogService) DeleteTier(ctx context.Context, name domain.TierName) error {
	const op = "catalog.delete_tier"

	if name == domain.TierFree {
		return domain.Conflict(op, "The free tier is the fallback and cannot be deleted")
	}

	refs, err := s.store.DeleteTierIfUnreferenced(ctx, string(name))
	if err != nil {
		derr := storeError(err, op, "Tier", string(name))
		if domain.ErrorCode(derr) == domain.ECONFLICT {
			s.logger.Info("tier delete refused",
				"tier", name,
				"subscriptions", refs.SubscriptionCount,
				"organizations", refs.OrganizationCount,
			)
		}
		return derr
	}

	s.logger.Info("tier deleted", "tier", name)
	return nil
}

func (s *catalogService) RegisterTierName(ctx context.Context, name domain.TierName) error {
	const op = "catalog.register_tier_name"

	if !domain.ValidTierNameFormat(name) {
		return domain.NewValidationError(op, "name", "must be a lowercase slug of 2-32 characters")
	}
	if err := s.store.InsertTierName(ctx, string(name)); err != nil {
		return storeError(err, op, "Tier name", string(name))
	}
	return nil
}

// normalizeTier fills defaults that callers may leave empty.
func normalizeTier(t *domain.Tier) {
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if t.Currency == "" {
		t.Currency = domain.DefaultCurrency
	}
	if t.DocumentFormats == nil {
		t.DocumentFormats = []domain.DocumentFormat{}
	}
	if t.DraftingTypes == nil {
		t.DraftingTypes = []domain.DraftingType{}
	}
	if t.Features == nil {
		t.Features = []domain.Feature{}
	}
}
