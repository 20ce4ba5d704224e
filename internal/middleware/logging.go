package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request correlation ID. An inbound value is
// kept; otherwise one is generated.
const RequestIDHeader = "X-Request-ID"

// quietPaths are hit often enough by health checks that logging them drowns everything else.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// loggedParams are the only query parameters written to the request log.
var loggedParams = []string{"capability"}

// RequestLoggingMiddleware writes one log line per request with the caller
// identity, matched route, status and latency.
type RequestLoggingMiddleware struct {
	logger         *slog.Logger
	identityHeader string
}

// NewRequestLoggingMiddleware creates a new request logging middleware. An
// empty identityHeader uses DefaultIdentityHeader.
func NewRequestLoggingMiddleware(logger *slog.Logger, identityHeader string) *RequestLoggingMiddleware {
	if identityHeader == "" {
		identityHeader = DefaultIdentityHeader
	}
	return &RequestLoggingMiddleware{
		logger:         logger,
		identityHeader: identityHeader,
	}
}

// Handler returns middleware that logs every request outside quietPaths.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
			"user_agent", r.UserAgent(),
		}
		if r.Pattern != "" {
			attrs = append(attrs, "route", r.Pattern)
		}
		if id := r.Header.Get(m.identityHeader); id != "" {
			attrs = append(attrs, "user_id", id)
		}
		q := r.URL.Query()
		for _, p := range loggedParams {
			if v := q.Get(p); v != "" {
				attrs = append(attrs, p, v)
			}
		}

		switch {
		case rec.status >= 500:
			m.logger.Error("request", attrs...)
		case rec.status == http.StatusTooManyRequests:
			m.logger.Warn("request", attrs...)
		default:
			m.logger.Info("request", attrs...)
		}
	})
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
