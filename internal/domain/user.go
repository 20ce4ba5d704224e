// Package domain contains core business types and interfaces.
//
// This file defines identities as the access gate sees them: the user
// profile carrying role and timezone, subscriptions, and organizations.
// Authentication itself happens upstream; an identity here is the
// provider's user UUID.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role is the single administrative role held by an identity.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdministrative reports whether r is admin or super_admin.
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole converts a string into a Role.
func ParseRole(op, s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", NewValidationError(op, "role", "must be one of user, admin, super_admin")
	}
	return r, nil
}

// UserProfile holds the per-identity settings relevant to access control.
type UserProfile struct {
	UserID         uuid.UUID
	Role           Role
	Timezone       string // IANA name; empty means UTC
	OrganizationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultProfile is the profile assumed for identities with no stored row.
func DefaultProfile(userID uuid.UUID) UserProfile {
	return UserProfile{UserID: userID, Role: RoleUser}
}

// Location returns the profile's timezone, falling back to UTC.
func (p *UserProfile) Location() *time.Location {
	return LocationFor(p.Timezone)
}

// ValidateTimezone checks that tz is empty or a loadable IANA name.
func ValidateTimezone(op, tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return NewValidationError(op, "timezone", "must be an IANA timezone name such as Asia/Kolkata")
	}
	return nil
}

// ProfileUpdate changes an identity's settings. Nil fields are left as they
// are. ClearOrganization removes the identity from its organization and
// wins over OrganizationID.
type ProfileUpdate struct {
	Timezone          *string
	OrganizationID    *uuid.UUID
	ClearOrganization bool
}

// TouchesMembership reports whether u changes organization membership.
func (u ProfileUpdate) TouchesMembership() bool {
	return u.OrganizationID != nil || u.ClearOrganization
}

// SubscriptionStatus represents the possible states of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// Subscription binds an identity to a tier.
type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TierName  TierName
	Status    SubscriptionStatus
	StartedAt time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HonoredAt reports whether the subscription grants its tier at now.
//
// An active subscription is honored until EndsAt, if set. A canceled or
// past_due subscription keeps its tier only within the paid period, so it
// needs an EndsAt in the future.
func (s *Subscription) HonoredAt(now time.Time) bool {
	if now.Before(s.StartedAt) {
		return false
	}
	switch s.Status {
	case SubscriptionStatusActive:
		return s.EndsAt == nil || now.Before(*s.EndsAt)
	case SubscriptionStatusCanceled, SubscriptionStatusPastDue:
		return s.EndsAt != nil && now.Before(*s.EndsAt)
	}
	return false
}

// Organization is a multi-seat account bound to a tier.
type Organization struct {
	ID        uuid.UUID
	Name      string
	TierName  TierName
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// NullIntValue extracts an int from sql.NullInt32, mapping NULL to Unlimited.
func NullIntValue(ni sql.NullInt32) int {
	if ni.Valid {
		return int(ni.Int32)
	}
	return Unlimited
}

// NullIntPtr extracts an *int from sql.NullInt32.
func NullIntPtr(ni sql.NullInt32) *int {
	if ni.Valid {
		v := int(ni.Int32)
		return &v
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullLimit converts a quota value to sql.NullInt32, mapping Unlimited to NULL.
func ToNullLimit(v int) sql.NullInt32 {
	if v == Unlimited {
		return sql.NullInt32{Valid: false}
	}
	return sql.NullInt32{Int32: int32(v), Valid: true}
}

// ToNullIntPtr converts an *int to sql.NullInt32.
func ToNullIntPtr(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{Valid: false}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// ToNullUUID converts a uuid pointer to uuid.NullUUID.
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// NullUUIDValue extracts a uuid pointer from uuid.NullUUID.
func NullUUIDValue(nu uuid.NullUUID) *uuid.UUID {
	if nu.Valid {
		id := nu.UUID
		return &id
	}
	return nil
}
