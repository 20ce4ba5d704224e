package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resolution is the role and active tier resolved for one identity at a
// point in time.
type Resolution struct {
	UserID         uuid.UUID  `json:"user_id"`
	Role           Role       `json:"role"`
	Tier           Tier       `json:"tier"`
	Source         TierSource `json:"source"`
	Timezone       string     `json:"timezone,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`

	// ValidUntil is when the subscription that supplied the tier stops
	// being honored. Nil when the tier did not come from a dated
	// subscription.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Location returns the identity's timezone, falling back to UTC.
func (r *Resolution) Location() *time.Location {
	return LocationFor(r.Timezone)
}

// ExpiresWithin caps ttl so a cached resolution never outlives ValidUntil.
// Returns zero when the resolution is already stale.
func (r *Resolution) ExpiresWithin(ttl time.Duration, now time.Time) time.Duration {
	if r.ValidUntil == nil {
		return ttl
	}
	left := r.ValidUntil.Sub(now)
	if left <= 0 {
		return 0
	}
	if left < ttl {
		return left
	}
	return ttl
}

// CacheStamp identifies the cache state a resolution was read under. A
// resolution may only be stored under the stamp taken before its store
// reads began, so writes racing an invalidation land nowhere.
type CacheStamp struct {
	Version    int64
	Generation int64
}
