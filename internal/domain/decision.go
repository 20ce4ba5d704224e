package domain

import (
	"encoding/json"
	"fmt"
)

// DecisionReason explains an access decision.
type DecisionReason string

const (
	ReasonAllowed            DecisionReason = "allowed"
	ReasonForbiddenRole      DecisionReason = "forbidden_role"
	ReasonQuotaExceeded      DecisionReason = "quota_exceeded"
	ReasonFeatureUnavailable DecisionReason = "feature_unavailable"
	ReasonUnknownCapability  DecisionReason = "unknown_capability"
)

// AccessDecision is the gate's answer for one capability request. Denials
// are ordinary values, not errors.
type AccessDecision struct {
	Capability Capability
	Allowed    bool
	Reason     DecisionReason
	Role       Role
	Tier       TierName
	TierSource TierSource

	// Quota checks only.
	Used   int64
	Limit  int
	Window *Window

	// MaxItems caps list results; Unlimited means no cap.
	MaxItems int
	// ItemCaps carries per-list caps for capabilities that return several lists.
	ItemCaps map[Capability]int
}

// Allow builds an allowing decision with no item cap.
func Allow(c Capability) AccessDecision {
	return AccessDecision{Capability: c, Allowed: true, Reason: ReasonAllowed, MaxItems: Unlimited, Limit: Unlimited}
}

// Deny builds a denying decision.
func Deny(c Capability, reason DecisionReason) AccessDecision {
	return AccessDecision{Capability: c, Allowed: false, Reason: reason, MaxItems: Unlimited, Limit: Unlimited}
}

// Err converts a denial into a Forbidden error for callers that want one.
// Returns nil when the decision allows.
func (d AccessDecision) Err(op string) error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonQuotaExceeded:
		return Forbidden(op, fmt.Sprintf("Daily limit of %d reached for %s", d.Limit, d.Capability))
	case ReasonForbiddenRole:
		return Forbidden(op, fmt.Sprintf("Your role does not permit %s", d.Capability))
	case ReasonFeatureUnavailable:
		return Forbidden(op, fmt.Sprintf("Your plan does not include %s", d.Capability))
	}
	return Forbidden(op, fmt.Sprintf("Unknown capability %q", d.Capability))
}

// CapFor returns the item cap the decision carries for list capability c.
// Lists the decision says nothing about are not capped.
func (d AccessDecision) CapFor(c Capability) int {
	if v, ok := d.ItemCaps[c]; ok {
		return v
	}
	if d.Capability == c {
		return d.MaxItems
	}
	return Unlimited
}

// Truncate keeps at most limit items, preserving order. The second result
// reports whether anything was dropped.
func Truncate[T any](items []T, limit int) ([]T, bool) {
	if limit < 0 || len(items) <= limit {
		return items, false
	}
	return items[:limit], true
}

// TruncateFor applies the decision's MaxItems to items.
func TruncateFor[T any](items []T, d AccessDecision) []T {
	out, _ := Truncate(items, d.MaxItems)
	return out
}

// AnalysisResult is the portion of an upstream brief analysis the gate
// limits. Items are opaque to this service.
type AnalysisResult struct {
	LawSections          []json.RawMessage `json:"lawSections"`
	CaseHistories        []json.RawMessage `json:"caseHistories"`
	LimitedLawSections   bool              `json:"limitedLawSections,omitempty"`
	LimitedCaseHistories bool              `json:"limitedCaseHistories,omitempty"`
}

// ApplyAnalysisLimits truncates both result lists using the caps carried by
// an analyze_brief decision and flags any list that was cut.
func ApplyAnalysisLimits(res AnalysisResult, d AccessDecision) AnalysisResult {
	var cut bool
	res.LawSections, cut = Truncate(res.LawSections, d.CapFor(CapListLawSections))
	res.LimitedLawSections = res.LimitedLawSections || cut
	res.CaseHistories, cut = Truncate(res.CaseHistories, d.CapFor(CapListCaseHistories))
	res.LimitedCaseHistories = res.LimitedCaseHistories || cut
	return res
}

// TierSource records which precedence rule chose the active tier.
type TierSource string

const (
	TierSourceSubscription TierSource = "subscription"
	TierSourceOrganization TierSource = "organization"
	TierSourceDefault      TierSource = "default"
)
