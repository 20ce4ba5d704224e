package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health. The database is required; the cache is
// reported but never fails the check.
type HealthHandler struct {
	db     Pinger
	cache  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(db, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, logger: logger}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Check)
}

// Check reports dependency status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]string{"status": "ok", "database": "ok"}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database unreachable", "error", err)
		resp["status"] = "unavailable"
		resp["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		resp["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("health check: cache unreachable", "error", err)
			resp["cache"] = "unreachable"
		}
	} else {
		resp["cache"] = "disabled"
	}

	writeJSON(w, status, resp)
}
