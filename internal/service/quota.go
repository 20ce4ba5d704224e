// Package service contains the business logic layer.
//
// This file implements the usage tracker: an append-only log of actions
// and the windowed counts quotas are checked against.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/metrics"
	"github.com/DukeRupert/lexassist/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService records usage and reports windowed counts.
type UsageService interface {
	// RecordUsage appends a usage record. It never rejects on quota.
	RecordUsage(ctx context.Context, userID uuid.UUID, action domain.ActionType, metadata map[string]any) (*domain.UsageRecord, error)

	// GetUsageCount counts records for action in [start, end).
	GetUsageCount(ctx context.Context, userID uuid.UUID, action domain.ActionType, start, end time.Time) (int64, error)

	// Summary reports today's counts per action in the identity's timezone.
	Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	store    UsageStore
	resolver ResolverService
	retry    RetryPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// NewUsageService creates a new UsageService. A nil now uses time.Now.
func NewUsageService(store UsageStore, resolver ResolverService, retry RetryPolicy, now func() time.Time, logger *slog.Logger) UsageService {
	if now == nil {
		now = time.Now
	}
	return &usageService{
		store:    store,
		resolver: resolver,
		retry:    retry,
		now:      now,
		logger:   logger,
	}
}

func (s *usageService) RecordUsage(ctx context.Context, userID uuid.UUID, action domain.ActionType, metadata map[string]any) (*domain.UsageRecord, error) {
	const op = "usage.record"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "Identity is required")
	}
	if !action.Valid() {
		return nil, domain.NewValidationError(op, "action", "unknown action type")
	}

	meta := pqtype.NullRawMessage{}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, domain.NewValidationError(op, "metadata", "must be JSON-encodable")
		}
		meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	row, err := s.store.CreateUsageRecord(ctx, repository.CreateUsageRecordParams{
		UserID:     userID,
		Action:     string(action),
		OccurredAt: s.now().UTC(),
		Metadata:   meta,
	})
	if err != nil {
		s.logger.Error("failed to record usage", "user_id", userID, "action", action, "error", err)
		return nil, storeError(err, op, "Usage record", "")
	}

	metrics.UsageRecorded(string(action))

	return &domain.UsageRecord{
		ID:         row.ID,
		UserID:     row.UserID,
		Action:     domain.ActionType(row.Action),
		OccurredAt: row.OccurredAt,
		Metadata:   metadata,
	}, nil
}

func (s *usageService) GetUsageCount(ctx context.Context, userID uuid.UUID, action domain.ActionType, start, end time.Time) (int64, error) {
	const op = "usage.count"

	if userID == uuid.Nil {
		return 0, domain.Invalid(op, "Identity is required")
	}
	if !action.Valid() {
		return 0, domain.NewValidationError(op, "action", "unknown action type")
	}
	if !end.After(start) {
		return 0, domain.Invalid(op, "Window end must be after its start")
	}

	return readWithRetry(ctx, s.retry, op, func(ctx context.Context) (int64, error) {
		count, err := s.store.CountUsageRecords(ctx, repository.CountUsageRecordsParams{
			UserID: userID,
			Action: string(action),
			Start:  start,
			End:    end,
		})
		if err != nil {
			s.logger.Error("failed to count usage", "user_id", userID, "action", action, "error", err)
			return 0, storeError(err, op, "Usage record", "")
		}
		return count, nil
	})
}

func (s *usageService) Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "usage.summary"

	res, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	window := domain.DailyWindow(s.now(), res.Location())

	rows, err := readWithRetry(ctx, s.retry, op, func(ctx context.Context) ([]repository.CountUsageRecordsByActionRow, error) {
		rows, err := s.store.CountUsageRecordsByAction(ctx, repository.CountUsageRecordsByActionParams{
			UserID: userID,
			Start:  window.Start,
			End:    window.End,
		})
		return rows, storeError(err, op, "Usage record", "")
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.ActionType]int64, len(domain.KnownActions))
	for _, a := range domain.KnownActions {
		counts[a] = 0
	}
	for _, row := range rows {
		counts[domain.ActionType(row.Action)] = row.Count
	}

	return &domain.UsageSummary{
		UserID:      userID,
		Window:      window,
		Counts:      counts,
		SearchLimit: res.Tier.MaxSearchesPerDay,
	}, nil
}
