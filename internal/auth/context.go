// Package auth provides identity context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles. Authentication happens upstream;
// the identity stored here is the provider's user UUID.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the key used to store the caller's identity in context.
	identityContextKey contextKey = "identity"
)

// GetIdentity retrieves the caller's identity from the context.
//
// Returns uuid.Nil if no identity is present.
//
// Usage:
//
//	id := auth.GetIdentity(r.Context())
//	if id == uuid.Nil {
//	    // Handle anonymous request
//	}
func GetIdentity(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(identityContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// IdentityFromRequest retrieves the caller's identity from the request context.
func IdentityFromRequest(r *http.Request) uuid.UUID {
	return GetIdentity(r.Context())
}

// SetIdentity stores an identity in the context.
//
// This is typically called by the identity middleware after parsing the
// trusted header.
func SetIdentity(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
