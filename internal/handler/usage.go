package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/auth"
	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/service"
)

// UsageHandler records actions and reports today's usage for the caller.
type UsageHandler struct {
	usage  service.UsageService
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usage service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

// RegisterRoutes registers usage routes behind the identity middleware.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("POST /api/usage", requireIdentity(http.HandlerFunc(h.Record)))
	mux.Handle("GET /api/usage", requireIdentity(http.HandlerFunc(h.Summary)))
}

type usageRecordResponse struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type usageSummaryResponse struct {
	Window      windowResponse   `json:"window"`
	Counts      map[string]int64 `json:"counts"`
	SearchLimit *int             `json:"search_limit"`
	Remaining   *int             `json:"remaining"`
}

// Record handles POST /api/usage.
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	const op = "handler.record_usage"

	var req struct {
		Action   string         `json:"action"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rec, err := h.usage.RecordUsage(r.Context(), auth.IdentityFromRequest(r), domain.ActionType(req.Action), req.Metadata)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, usageRecordResponse{
		ID:         rec.ID,
		Action:     string(rec.Action),
		OccurredAt: rec.OccurredAt,
		Metadata:   rec.Metadata,
	})
}

// Summary handles GET /api/usage.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.usage.Summary(r.Context(), auth.IdentityFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	counts := make(map[string]int64, len(sum.Counts))
	for a, n := range sum.Counts {
		counts[string(a)] = n
	}
	writeJSON(w, http.StatusOK, usageSummaryResponse{
		Window:      windowResponse{Start: sum.Window.Start, End: sum.Window.End},
		Counts:      counts,
		SearchLimit: limitPtr(sum.SearchLimit),
		Remaining:   limitPtr(sum.Remaining()),
	})
}
