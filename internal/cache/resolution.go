package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/lexassist/internal/domain"
)

const (
	keyPrefix  = "lexassist:resolution"
	versionKey = keyPrefix + ":version"
)

// Resolutions caches resolved role and tier per identity. Keys embed a
// catalog version, so a single increment drops every entry, and a
// per-identity generation advanced by Invalidate.
type Resolutions struct {
	client *redis.Client
}

// NewResolutions wraps a Redis client.
func NewResolutions(client *redis.Client) *Resolutions {
	return &Resolutions{client: client}
}

// Ping checks the Redis connection.
func (c *Resolutions) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Version returns the current catalog version, initialising it when missing.
func (c *Resolutions) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func generationKey(userID uuid.UUID) string {
	return keyPrefix + ":gen:" + userID.String()
}

func entryKey(userID uuid.UUID, stamp domain.CacheStamp) string {
	return keyPrefix + ":" + strconv.FormatInt(stamp.Version, 10) + ":" +
		userID.String() + ":" + strconv.FormatInt(stamp.Generation, 10)
}

// Stamp returns the catalog version and the identity's invalidation
// generation. A missing generation is zero.
func (c *Resolutions) Stamp(ctx context.Context, userID uuid.UUID) (domain.CacheStamp, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return domain.CacheStamp{}, err
	}
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.CacheStamp{}, err
	}
	return domain.CacheStamp{Version: ver, Generation: gen}, nil
}

func (c *Resolutions) key(ctx context.Context, userID uuid.UUID) (string, error) {
	stamp, err := c.Stamp(ctx, userID)
	if err != nil {
		return "", err
	}
	return entryKey(userID, stamp), nil
}

// Get returns the cached resolution and the stamp it was looked up under.
// The bool is false on a miss; the stamp is valid either way and must be
// handed back to Set.
func (c *Resolutions) Get(ctx context.Context, userID uuid.UUID) (*domain.Resolution, domain.CacheStamp, bool, error) {
	stamp, err := c.Stamp(ctx, userID)
	if err != nil {
		return nil, domain.CacheStamp{}, false, err
	}
	key := entryKey(userID, stamp)
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, stamp, false, nil
	}
	if err != nil {
		return nil, domain.CacheStamp{}, false, err
	}
	var res domain.Resolution
	if err := json.Unmarshal(payload, &res); err != nil {
		// Drop entries written by an incompatible build.
		_ = c.client.Del(ctx, key).Err()
		return nil, stamp, false, nil
	}
	return &res, stamp, true, nil
}

// Set stores res for ttl under stamp. Once Invalidate or BumpVersion has
// moved past stamp the entry is written to a key no reader computes, so a
// resolution read before a mutation can never be served after it. A
// non-positive ttl stores nothing.
func (c *Resolutions) Set(ctx context.Context, res *domain.Resolution, stamp domain.CacheStamp, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(res.UserID, stamp), raw, ttl).Err()
}

// Invalidate drops the cached resolution for one identity and advances its
// generation so in-flight writes stamped earlier are discarded. The
// generation key never expires; a reset to zero could revive an entry
// written under an old stamp.
func (c *Resolutions) Invalidate(ctx context.Context, userID uuid.UUID) error {
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

// BumpVersion invalidates every cached resolution. Old entries are left to
// expire.
func (c *Resolutions) BumpVersion(ctx context.Context) error {
	return c.client.Incr(ctx, versionKey).Err()
}

// Nop is a cache that never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID) (*domain.Resolution, domain.CacheStamp, bool, error) {
	return nil, domain.CacheStamp{}, false, nil
}

func (Nop) Set(context.Context, *domain.Resolution, domain.CacheStamp, time.Duration) error {
	return nil
}

func (Nop) Invalidate(context.Context, uuid.UUID) error { return nil }
func (Nop) BumpVersion(context.Context) error          { return nil }
