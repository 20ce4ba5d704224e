// Package middleware contains HTTP middleware for the access gate API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/auth"
	"github.com/DukeRupert/lexassist/internal/handler"
)

// DefaultIdentityHeader is set by the upstream gateway after it has
// authenticated the caller.
const DefaultIdentityHeader = "X-User-ID"

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityMiddleware reads the caller's identity from a trusted header.
type IdentityMiddleware struct {
	header string
	logger *slog.Logger
}

// NewIdentityMiddleware creates a new IdentityMiddleware. An empty header
// uses DefaultIdentityHeader.
func NewIdentityMiddleware(header string, logger *slog.Logger) *IdentityMiddleware {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return &IdentityMiddleware{
		header: header,
		logger: logger,
	}
}

// RequireIdentity rejects requests without a valid identity with 401.
func (m *IdentityMiddleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.parse(r)
		if !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetIdentity(r.Context(), id)))
	})
}

func (m *IdentityMiddleware) parse(r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(m.header))
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		m.logger.Warn("malformed identity header", "header", m.header, "path", r.URL.Path)
		return uuid.Nil, false
	}
	return id, true
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, identityMw.RequireIdentity)
//	mux.Handle("GET /api/usage", stack(usageHandler))
//
// This is equivalent to:
//
//	mux.Handle("GET /api/usage",
//	    loggingMw(identityMw.RequireIdentity(usageHandler)))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
