package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/repository"
)

func TestResolver_NoSubscriptionNoOrganizationIsFree(t *testing.T) {
	ts := newTestServices(false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := uuid.New()
		if i%2 == 0 {
			ts.store.putProfile(id, domain.RoleUser, "", nil)
		}

		tier, err := ts.resolver.ResolveActiveTier(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TierFree, tier.Name)

		role, err := ts.resolver.ResolveRole(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleUser, role)
	}
}

func TestResolver_SubscriptionOverridesOrganization(t *testing.T) {
	ts := newTestServices(false)
	ctx := context.Background()

	org := ts.store.putOrganization("Mehta Chambers", domain.TierEnterprise)
	id := uuid.New()
	ts.store.putProfile(id, domain.RoleUser, "", &org)
	ts.store.putSubscription(id, domain.TierPro, domain.SubscriptionStatusActive, nil)

	res, err := ts.resolver.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, res.Tier.Name)
	assert.Equal(t, domain.TierSourceSubscription, res.Source)
	assert.Nil(t, res.ValidUntil)
}

func TestResolver_OrganizationTier(t *testing.T) {
	ts := newTestServices(false)

	org := ts.store.putOrganization("Mehta Chambers", domain.TierEnterprise)
	id := uuid.New()
	ts.store.putProfile(id, domain.RoleAdmin, "Asia/Kolkata", &org)

	res, err := ts.resolver.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierEnterprise, res.Tier.Name)
	assert.Equal(t, domain.TierSourceOrganization, res.Source)
	assert.Equal(t, domain.RoleAdmin, res.Role)
	assert.Equal(t, "Asia/Kolkata", res.Location().String())
}

func TestResolver_SubscriptionStatus(t *testing.T) {
	future := testNow.Add(72 * time.Hour)
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name       string
		status     domain.SubscriptionStatus
		endsAt     *time.Time
		wantTier   domain.TierName
		validUntil *time.Time
	}{
		{"active open-ended", domain.SubscriptionStatusActive, nil, domain.TierPro, nil},
		{"active within term", domain.SubscriptionStatusActive, &future, domain.TierPro, &future},
		{"active past term", domain.SubscriptionStatusActive, &past, domain.TierFree, nil},
		{"canceled within paid period", domain.SubscriptionStatusCanceled, &future, domain.TierPro, &future},
		{"canceled after paid period", domain.SubscriptionStatusCanceled, &past, domain.TierFree, nil},
		{"canceled without end date", domain.SubscriptionStatusCanceled, nil, domain.TierFree, nil},
		{"past due within paid period", domain.SubscriptionStatusPastDue, &future, domain.TierPro, &future},
		{"past due without end date", domain.SubscriptionStatusPastDue, nil, domain.TierFree, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices(false)
			id := uuid.New()
			ts.store.putSubscription(id, domain.TierPro, tt.status, tt.endsAt)

			res, err := ts.resolver.Resolve(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, res.Tier.Name)
			assert.Equal(t, tt.validUntil, res.ValidUntil)
		})
	}
}

func TestResolver_ActiveWinsOverCanceled(t *testing.T) {
	ts := newTestServices(false)
	id := uuid.New()
	future := testNow.Add(240 * time.Hour)

	ts.store.putSubscription(id, domain.TierEnterprise, domain.SubscriptionStatusCanceled, &future)
	ts.store.putSubscription(id, domain.TierPro, domain.SubscriptionStatusActive, nil)

	tier, err := ts.resolver.ResolveActiveTier(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, tier.Name)
}

func TestResolver_MissingSubscriptionTierFallsThrough(t *testing.T) {
	ts := newTestServices(false)

	org := ts.store.putOrganization("Iyer Legal", domain.TierPro)
	id := uuid.New()
	ts.store.putProfile(id, domain.RoleUser, "", &org)
	ts.store.putSubscription(id, domain.TierEnterprise, domain.SubscriptionStatusActive, nil)
	ts.store.deleteTierRow(string(domain.TierEnterprise))

	res, err := ts.resolver.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, res.Tier.Name)
	assert.Equal(t, domain.TierSourceOrganization, res.Source)
}

func TestResolver_MissingOrganizationFallsBackToFree(t *testing.T) {
	ts := newTestServices(false)
	gone := uuid.New()
	id := uuid.New()
	ts.store.putProfile(id, domain.RoleUser, "", &gone)

	res, err := ts.resolver.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, res.Tier.Name)
	assert.Equal(t, domain.TierSourceDefault, res.Source)
}

func TestResolver_FreeTierMissingUsesBuiltin(t *testing.T) {
	ts := newTestServices(false)
	ts.store.deleteTierRow(string(domain.TierFree))

	tier, err := ts.resolver.ResolveActiveTier(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier.Name)
	assert.Equal(t, 10, tier.MaxSearchesPerDay)
}

func TestResolver_UnknownStoredRoleIsUser(t *testing.T) {
	ts := newTestServices(false)
	id := uuid.New()
	ts.store.putProfile(id, "owner", "", nil)

	role, err := ts.resolver.ResolveRole(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, role)
}

func TestResolver_StoreFailureIsTransient(t *testing.T) {
	ts := newTestServices(false)
	ts.store.failNext("GetUserProfile", 10)

	_, err := ts.resolver.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 3, ts.store.callCount("GetUserProfile"))
}

func TestResolver_NilIdentity(t *testing.T) {
	ts := newTestServices(false)

	_, err := ts.resolver.Resolve(context.Background(), uuid.Nil)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestResolver_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("second resolution is served from cache", func(t *testing.T) {
		ts := newTestServices(true)
		id := uuid.New()

		_, err := ts.resolver.Resolve(ctx, id)
		require.NoError(t, err)
		_, err = ts.resolver.Resolve(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, 1, ts.store.callCount("GetUserProfile"))
		assert.Equal(t, 5*time.Minute, ts.cache.ttls[id])
	})

	t.Run("ttl is capped at the end of the paid period", func(t *testing.T) {
		ts := newTestServices(true)
		id := uuid.New()
		soon := testNow.Add(90 * time.Second)
		ts.store.putSubscription(id, domain.TierPro, domain.SubscriptionStatusCanceled, &soon)

		res, err := ts.resolver.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TierPro, res.Tier.Name)
		assert.Equal(t, 90*time.Second, ts.cache.ttls[id])
	})

	t.Run("cache errors fall back to the store", func(t *testing.T) {
		ts := newTestServices(true)
		ts.cache.getErr = errors.New("redis: connection refused")

		tier, err := ts.resolver.ResolveActiveTier(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, domain.TierFree, tier.Name)
	})
}

// pausingStore holds GetUserProfile open after the row has been read so a
// mutation can commit while the resolution is still in flight.
type pausingStore struct {
	*fakeStore
	loaded  chan struct{}
	release chan struct{}
}

func (s *pausingStore) GetUserProfile(ctx context.Context, userID uuid.UUID) (repository.UserProfile, error) {
	row, err := s.fakeStore.GetUserProfile(ctx, userID)
	close(s.loaded)
	<-s.release
	return row, err
}

// A resolution read before a role revocation must not be cached after the
// revocation's invalidation.
func TestResolver_InFlightReadDoesNotOutliveRevocation(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(true)

	super, target := uuid.New(), uuid.New()
	ts.store.putProfile(super, domain.RoleSuperAdmin, "", nil)
	ts.store.putProfile(target, domain.RoleAdmin, "", nil)

	slow := &pausingStore{fakeStore: ts.store, loaded: make(chan struct{}), release: make(chan struct{})}
	resolver := NewResolverService(slow, ts.catalog, ResolverOptions{
		Cache:    ts.cache,
		CacheTTL: 5 * time.Minute,
		Retry:    noRetryDelay,
		Now:      fixedClock,
	}, testLogger())

	done := make(chan *domain.Resolution, 1)
	go func() {
		res, err := resolver.Resolve(ctx, target)
		assert.NoError(t, err)
		done <- res
	}()

	<-slow.loaded
	p, err := ts.admin.RevokeAdminRole(ctx, super, target)
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, p.Role)
	close(slow.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, domain.RoleAdmin, stale.Role, "the in-flight read saw the old row")
	assert.False(t, ts.cache.cached(target), "the stale resolution was not stored")

	d, err := ts.gate.CheckAccess(ctx, target, domain.CapAssignOrgTier)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.RoleUser, d.Role)
}

func TestHonoredSubscriptions_Order(t *testing.T) {
	later := testNow.Add(48 * time.Hour)
	sooner := testNow.Add(24 * time.Hour)

	subs := []domain.Subscription{
		{TierName: "a", Status: domain.SubscriptionStatusCanceled, StartedAt: testNow.Add(-time.Hour), EndsAt: &sooner},
		{TierName: "b", Status: domain.SubscriptionStatusPastDue, StartedAt: testNow.Add(-time.Hour), EndsAt: &later},
		{TierName: "c", Status: domain.SubscriptionStatusActive, StartedAt: testNow.Add(-time.Hour), EndsAt: &sooner},
		{TierName: "d", Status: domain.SubscriptionStatusCanceled, StartedAt: testNow.Add(-time.Hour)},
	}

	got := honoredSubscriptions(subs, testNow)
	require.Len(t, got, 3)
	assert.Equal(t, domain.TierName("c"), got[0].TierName)
	assert.Equal(t, domain.TierName("b"), got[1].TierName)
	assert.Equal(t, domain.TierName("a"), got[2].TierName)
}
