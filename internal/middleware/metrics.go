package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/lexassist/internal/handler"
)

// MetricsAuthMiddleware guards the Prometheus scrape endpoint with HTTP basic
// auth. With no credentials configured it lets every request through.
type MetricsAuthMiddleware struct {
	userHash [sha256.Size]byte
	passHash [sha256.Size]byte
	enabled  bool
	logger   *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		userHash: sha256.Sum256([]byte(username)),
		passHash: sha256.Sum256([]byte(password)),
		enabled:  username != "" || password != "",
		logger:   logger,
	}
}

// Handler wraps the scrape handler.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			m.logger.Warn("metrics scrape rejected", "ip", getClientIP(r))
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compares fixed-length digests so neither the comparison time
// nor its length depends on the configured secret.
func (m *MetricsAuthMiddleware) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.userHash[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.passHash[:])
	return userOK&passOK == 1
}
