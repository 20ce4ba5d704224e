// Package domain contains core business types and interfaces.
//
// This file defines usage records and the time windows quotas are
// counted in.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ActionType identifies a quota-consuming action.
type ActionType string

const (
	ActionAnalyzeBrief   ActionType = "analyze_brief"
	ActionSearch         ActionType = "search"
	ActionExportDocument ActionType = "export_document"
	ActionDraftCaseFile  ActionType = "draft_case_file"
)

// KnownActions lists every action the tracker accepts.
var KnownActions = []ActionType{
	ActionAnalyzeBrief, ActionSearch, ActionExportDocument, ActionDraftCaseFile,
}

// QuotaActions are the actions whose records count toward the daily search
// quota. Both the search and analyze_brief capabilities spend from it.
var QuotaActions = []ActionType{ActionAnalyzeBrief, ActionSearch}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	return slices.Contains(KnownActions, a)
}

// ConsumesQuota reports whether records of a count toward the daily quota.
func (a ActionType) ConsumesQuota() bool {
	return slices.Contains(QuotaActions, a)
}

// UsageRecord is an append-only log entry for one attempted action.
type UsageRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Action     ActionType
	OccurredAt time.Time
	Metadata   map[string]any
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DailyWindow returns the calendar day containing now in loc.
//
// The end is computed with AddDate so days with a DST transition are 23 or
// 25 hours long rather than a fixed 24.
func DailyWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// LocationFor loads an IANA timezone, falling back to UTC when the name is
// empty or unknown.
func LocationFor(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsageSummary reports today's usage per action for one identity.
type UsageSummary struct {
	UserID      uuid.UUID
	Window      Window
	Counts      map[ActionType]int64
	SearchLimit int
}

// QuotaUsed sums the window's records across QuotaActions.
func (s *UsageSummary) QuotaUsed() int64 {
	var n int64
	for _, a := range QuotaActions {
		n += s.Counts[a]
	}
	return n
}

// Remaining returns the searches left in the window, or Unlimited.
func (s *UsageSummary) Remaining() int {
	if s.SearchLimit == Unlimited {
		return Unlimited
	}
	left := s.SearchLimit - int(s.QuotaUsed())
	if left < 0 {
		return 0
	}
	return left
}
