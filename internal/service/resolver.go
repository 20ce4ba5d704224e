package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/metrics"
)

// ResolutionCache stores resolved identities between requests. A cache must
// honour Invalidate and BumpVersion before the mutation that triggered them
// returns, and must discard a Set whose stamp predates either of them.
type ResolutionCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Resolution, domain.CacheStamp, bool, error)
	Set(ctx context.Context, res *domain.Resolution, stamp domain.CacheStamp, ttl time.Duration) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
	BumpVersion(ctx context.Context) error
}

// =============================================================================
// Interface Definition
// =============================================================================

// ResolverService resolves an identity's role and active tier.
type ResolverService interface {
	// Resolve returns the identity's role, active tier and where the tier
	// came from.
	Resolve(ctx context.Context, userID uuid.UUID) (*domain.Resolution, error)

	// ResolveRole returns the identity's role, defaulting to user.
	ResolveRole(ctx context.Context, userID uuid.UUID) (domain.Role, error)

	// ResolveActiveTier returns the tier the identity currently has.
	ResolveActiveTier(ctx context.Context, userID uuid.UUID) (*domain.Tier, error)
}

// =============================================================================
// Implementation
// =============================================================================

type resolverService struct {
	store    IdentityStore
	catalog  CatalogService
	cache    ResolutionCache
	cacheTTL time.Duration
	retry    RetryPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// ResolverOptions configures a ResolverService. A nil Cache or zero CacheTTL
// disables caching.
type ResolverOptions struct {
	Cache    ResolutionCache
	CacheTTL time.Duration
	Retry    RetryPolicy
	Now      func() time.Time
}

// NewResolverService creates a new ResolverService.
func NewResolverService(store IdentityStore, catalog CatalogService, opts ResolverOptions, logger *slog.Logger) ResolverService {
	s := &resolverService{
		store:    store,
		catalog:  catalog,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		retry:    opts.Retry,
		now:      opts.Now,
		logger:   logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cacheTTL <= 0 {
		s.cache = nil
	}
	return s
}

func (s *resolverService) ResolveRole(ctx context.Context, userID uuid.UUID) (domain.Role, error) {
	res, err := s.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}
	return res.Role, nil
}

func (s *resolverService) ResolveActiveTier(ctx context.Context, userID uuid.UUID) (*domain.Tier, error) {
	res, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &res.Tier, nil
}

// Resolve applies the tier precedence: an honored subscription of the
// identity's own, then the organization's tier, then free.
func (s *resolverService) Resolve(ctx context.Context, userID uuid.UUID) (*domain.Resolution, error) {
	const op = "resolver.resolve"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "Identity is required")
	}

	now := s.now()

	lookup := s.fromCache(ctx, userID, now)
	if lookup.hit {
		return lookup.res, nil
	}

	var (
		profile domain.UserProfile
		subs    []domain.Subscription
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.loadProfile(gctx, userID)
		profile = p
		return err
	})
	g.Go(func() error {
		list, err := s.loadSubscriptions(gctx, userID)
		subs = list
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &domain.Resolution{
		UserID:         userID,
		Role:           profile.Role,
		Timezone:       profile.Timezone,
		OrganizationID: profile.OrganizationID,
		ResolvedAt:     now,
	}
	if !res.Role.Valid() {
		s.logger.Warn("unknown stored role, treating as user", "user_id", userID, "role", profile.Role)
		res.Role = domain.RoleUser
	}

	found, err := s.tierFromSubscriptions(ctx, subs, now, res)
	if err != nil {
		return nil, err
	}
	if !found && profile.OrganizationID != nil {
		found, err = s.tierFromOrganization(ctx, *profile.OrganizationID, res)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		if err := s.freeTier(ctx, res); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("identity resolved",
		"user_id", userID,
		"role", res.Role,
		"tier", res.Tier.Name,
		"source", res.Source,
	)

	s.toCache(ctx, res, lookup, now)
	return res, nil
}

func (s *resolverService) loadProfile(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error) {
	const op = "resolver.load_profile"

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) (domain.UserProfile, error) {
		row, err := s.store.GetUserProfile(ctx, userID)
		if err != nil {
			derr := storeError(err, op, "User profile", userID.String())
			if domain.IsNotFound(derr) {
				return domain.DefaultProfile(userID), nil
			}
			s.logger.Error("failed to load user profile", "user_id", userID, "error", err)
			return domain.UserProfile{}, derr
		}
		return repoProfileToDomain(row), nil
	})
}

func (s *resolverService) loadSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	const op = "resolver.load_subscriptions"

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) ([]domain.Subscription, error) {
		rows, err := s.store.ListSubscriptionsByUser(ctx, userID)
		if err != nil {
			derr := storeError(err, op, "Subscription", userID.String())
			if domain.IsNotFound(derr) {
				return nil, nil
			}
			s.logger.Error("failed to load subscriptions", "user_id", userID, "error", err)
			return nil, derr
		}
		subs := make([]domain.Subscription, 0, len(rows))
		for _, row := range rows {
			subs = append(subs, repoSubscriptionToDomain(row))
		}
		return subs, nil
	})
}

// honoredSubscriptions returns the subscriptions honored at now, active
// first and then by latest end date.
func honoredSubscriptions(subs []domain.Subscription, now time.Time) []domain.Subscription {
	var honored []domain.Subscription
	for _, sub := range subs {
		if sub.HonoredAt(now) {
			honored = append(honored, sub)
		}
	}
	sort.SliceStable(honored, func(i, j int) bool {
		a, b := honored[i], honored[j]
		aActive := a.Status == domain.SubscriptionStatusActive
		bActive := b.Status == domain.SubscriptionStatusActive
		if aActive != bActive {
			return aActive
		}
		switch {
		case a.EndsAt == nil:
			return b.EndsAt != nil
		case b.EndsAt == nil:
			return false
		}
		return a.EndsAt.After(*b.EndsAt)
	})
	return honored
}

func (s *resolverService) tierFromSubscriptions(ctx context.Context, subs []domain.Subscription, now time.Time, res *domain.Resolution) (bool, error) {
	for _, sub := range honoredSubscriptions(subs, now) {
		tier, err := s.catalog.GetTier(ctx, sub.TierName)
		if domain.IsNotFound(err) {
			s.logger.Warn("subscription names a missing tier",
				"user_id", sub.UserID,
				"subscription_id", sub.ID,
				"tier", sub.TierName,
			)
			continue
		}
		if err != nil {
			return false, err
		}
		res.Tier = *tier
		res.Source = domain.TierSourceSubscription
		res.ValidUntil = sub.EndsAt
		return true, nil
	}
	return false, nil
}

func (s *resolverService) tierFromOrganization(ctx context.Context, orgID uuid.UUID, res *domain.Resolution) (bool, error) {
	const op = "resolver.load_organization"

	org, err := readWithRetry(ctx, s.retry, op, func(ctx context.Context) (*domain.Organization, error) {
		row, err := s.store.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, storeError(err, op, "Organization", orgID.String())
		}
		o := repoOrganizationToDomain(row)
		return &o, nil
	})
	if domain.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tier, err := s.catalog.GetTier(ctx, org.TierName)
	if domain.IsNotFound(err) {
		s.logger.Warn("organization names a missing tier", "organization_id", org.ID, "tier", org.TierName)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res.Tier = *tier
	res.Source = domain.TierSourceOrganization
	return true, nil
}

func (s *resolverService) freeTier(ctx context.Context, res *domain.Resolution) error {
	tier, err := s.catalog.GetTier(ctx, domain.TierFree)
	switch {
	case domain.IsNotFound(err):
		s.logger.Warn("free tier missing from catalog, using built-in defaults")
		res.Tier = domain.FreeTierFallback()
	case err != nil:
		return err
	default:
		res.Tier = *tier
	}
	res.Source = domain.TierSourceDefault
	return nil
}

// cacheLookup is the outcome of a cache read. stamp is only meaningful when
// writable is set.
type cacheLookup struct {
	res      *domain.Resolution
	hit      bool
	stamp    domain.CacheStamp
	writable bool
}

// fromCache must run before any store read so the returned stamp predates
// whatever the store returns.
func (s *resolverService) fromCache(ctx context.Context, userID uuid.UUID, now time.Time) cacheLookup {
	if s.cache == nil {
		return cacheLookup{}
	}
	res, stamp, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		metrics.CacheLookup("error")
		s.logger.Warn("resolution cache read failed", "user_id", userID, "error", err)
		return cacheLookup{}
	}
	if !ok || res.ExpiresWithin(s.cacheTTL, now) == 0 {
		metrics.CacheLookup("miss")
		return cacheLookup{stamp: stamp, writable: true}
	}
	metrics.CacheLookup("hit")
	return cacheLookup{res: res, hit: true}
}

func (s *resolverService) toCache(ctx context.Context, res *domain.Resolution, lookup cacheLookup, now time.Time) {
	if s.cache == nil || !lookup.writable {
		return
	}
	ttl := res.ExpiresWithin(s.cacheTTL, now)
	if err := s.cache.Set(ctx, res, lookup.stamp, ttl); err != nil {
		s.logger.Warn("resolution cache write failed", "user_id", res.UserID, "error", err)
	}
}
