package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/lexassist/internal/domain"
)

func newTestCache(t *testing.T) (*Resolutions, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResolutions(client), mr
}

func testResolution(userID uuid.UUID) *domain.Resolution {
	return &domain.Resolution{
		UserID:     userID,
		Role:       domain.RoleAdmin,
		Tier:       domain.DefaultTiers()[1],
		Source:     domain.TierSourceSubscription,
		Timezone:   "Asia/Kolkata",
		ResolvedAt: time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC),
	}
}

// store writes a resolution under the identity's current stamp.
func store(t *testing.T, c *Resolutions, id uuid.UUID, ttl time.Duration) {
	t.Helper()
	stamp, err := c.Stamp(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), testResolution(id), stamp, ttl))
}

func TestResolutions_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	_, stamp, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, testResolution(id), stamp, time.Minute))

	got, _, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, domain.TierPro, got.Tier.Name)
	assert.Equal(t, 50, got.Tier.MaxSearchesPerDay)
	assert.Equal(t, domain.TierSourceSubscription, got.Source)
}

func TestResolutions_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	store(t, c, a, time.Minute)
	store(t, c, b, time.Minute)
	require.NoError(t, c.Invalidate(ctx, a))

	_, _, ok, _ := c.Get(ctx, a)
	assert.False(t, ok)
	_, _, ok, _ = c.Get(ctx, b)
	assert.True(t, ok, "other identities stay cached")
}

func TestResolutions_WriteStampedBeforeInvalidateIsDiscarded(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	_, stamp, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	// The role changes and the entry is invalidated while the first
	// resolution is still reading the store.
	require.NoError(t, c.Invalidate(ctx, id))
	require.NoError(t, c.Set(ctx, testResolution(id), stamp, time.Minute))

	_, fresh, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "the stale write is never read back")
	assert.Equal(t, stamp.Generation+1, fresh.Generation)

	require.NoError(t, c.Set(ctx, testResolution(id), fresh, time.Minute))
	_, _, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolutions_WriteStampedBeforeBumpIsDiscarded(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	_, stamp, _, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.BumpVersion(ctx))
	require.NoError(t, c.Set(ctx, testResolution(id), stamp, time.Minute))

	_, _, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolutions_BumpVersionDropsEverything(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	store(t, c, id, time.Minute)
	before, err := c.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, c.BumpVersion(ctx))

	after, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	_, _, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolutions_TTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	store(t, c, id, 30*time.Second)
	mr.FastForward(31 * time.Second)

	_, _, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	store(t, c, id, 0)
	_, _, ok, _ = c.Get(ctx, id)
	assert.False(t, ok, "zero ttl is not stored")
}

func TestResolutions_CorruptEntryIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	key, err := c.key(ctx, id)
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "{not json"))

	_, _, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestResolutions_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewResolutions(client)
	mr.Close()

	_, _, _, err = c.Get(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var n Nop
	ctx := context.Background()
	require.NoError(t, n.Set(ctx, testResolution(uuid.New()), domain.CacheStamp{}, time.Minute))
	_, _, ok, err := n.Get(ctx, uuid.New())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, n.Invalidate(ctx, uuid.New()))
	assert.NoError(t, n.BumpVersion(ctx))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestResolutions_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewResolutions(client)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
