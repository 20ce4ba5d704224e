package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/metrics"
)

// =============================================================================
// Interface Definition
// =============================================================================

// GateService decides whether an identity may exercise a capability.
//
// A denial is returned as a decision with Allowed false, not as an error.
// Errors mean the decision could not be made.
type GateService interface {
	// CheckAccess resolves the identity and evaluates the capability.
	CheckAccess(ctx context.Context, userID uuid.UUID, capability domain.Capability) (domain.AccessDecision, error)

	// Evaluate decides for an identity that has already been resolved.
	Evaluate(ctx context.Context, res *domain.Resolution, capability domain.Capability) (domain.AccessDecision, error)
}

// =============================================================================
// Implementation
// =============================================================================

type gateService struct {
	resolver ResolverService
	usage    UsageService
	now      func() time.Time
	logger   *slog.Logger
}

// NewGateService creates a new GateService. A nil now uses time.Now.
func NewGateService(resolver ResolverService, usage UsageService, now func() time.Time, logger *slog.Logger) GateService {
	if now == nil {
		now = time.Now
	}
	return &gateService{
		resolver: resolver,
		usage:    usage,
		now:      now,
		logger:   logger,
	}
}

func (s *gateService) CheckAccess(ctx context.Context, userID uuid.UUID, capability domain.Capability) (domain.AccessDecision, error) {
	res, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	return s.Evaluate(ctx, res, capability)
}

func (s *gateService) Evaluate(ctx context.Context, res *domain.Resolution, capability domain.Capability) (domain.AccessDecision, error) {
	var (
		d   domain.AccessDecision
		err error
	)

	switch capability.Kind() {
	case domain.KindAdministrative:
		d = s.administrative(res, capability)
	case domain.KindQuota:
		d, err = s.quota(ctx, res, capability)
		if err != nil {
			return domain.AccessDecision{}, err
		}
	case domain.KindResultSize:
		d = domain.Allow(capability)
		d.MaxItems = listCap(&res.Tier, capability)
	case domain.KindFeature:
		d = s.feature(res, capability)
	default:
		d = domain.Deny(capability, domain.ReasonUnknownCapability)
	}

	d.Role = res.Role
	d.Tier = res.Tier.Name
	d.TierSource = res.Source

	s.observe(res, d)
	return d, nil
}

func (s *gateService) administrative(res *domain.Resolution, c domain.Capability) domain.AccessDecision {
	permitted := res.Role.IsAdministrative()
	if c.SuperAdminOnly() {
		permitted = res.Role == domain.RoleSuperAdmin
	}
	if !permitted {
		return domain.Deny(c, domain.ReasonForbiddenRole)
	}
	return domain.Allow(c)
}

// quota counts today's search and analyze_brief records in the identity's
// timezone. Two concurrent requests may both see the last free slot; the resulting
// overage of one is accepted.
func (s *gateService) quota(ctx context.Context, res *domain.Resolution, c domain.Capability) (domain.AccessDecision, error) {
	limit := res.Tier.MaxSearchesPerDay

	d := domain.Allow(c)
	if c == domain.CapAnalyzeBrief {
		d.MaxItems = res.Tier.MaxLawSections
		d.ItemCaps = map[domain.Capability]int{
			domain.CapListLawSections:   res.Tier.MaxLawSections,
			domain.CapListCaseHistories: res.Tier.MaxCaseHistories,
		}
	}
	if limit == domain.Unlimited {
		return d, nil
	}

	window := domain.DailyWindow(s.now(), res.Location())
	var used int64
	for _, action := range domain.QuotaActions {
		n, err := s.usage.GetUsageCount(ctx, res.UserID, action, window.Start, window.End)
		if err != nil {
			return domain.AccessDecision{}, err
		}
		used += n
	}

	d.Used = used
	d.Limit = limit
	d.Window = &window
	if used >= int64(limit) {
		d.Allowed = false
		d.Reason = domain.ReasonQuotaExceeded
	}
	return d, nil
}

func (s *gateService) feature(res *domain.Resolution, c domain.Capability) domain.AccessDecision {
	tier := &res.Tier

	var ok bool
	if f, isExport := c.ExportFormat(); isExport {
		ok = tier.HasFormat(f)
	} else if t, isDraft := c.DraftingType(); isDraft {
		ok = tier.HasDraftingType(t)
	} else {
		switch c {
		case domain.CapCaseDrafting:
			ok = len(tier.DraftingTypes) > 0
		case domain.CapSharing:
			ok = tier.SharingEnabled
		default:
			ok = tier.HasFeature(domain.Feature(c))
		}
	}

	if !ok {
		return domain.Deny(c, domain.ReasonFeatureUnavailable)
	}
	return domain.Allow(c)
}

func listCap(t *domain.Tier, c domain.Capability) int {
	if c == domain.CapListCaseHistories {
		return t.MaxCaseHistories
	}
	return t.MaxLawSections
}

func (s *gateService) observe(res *domain.Resolution, d domain.AccessDecision) {
	label := string(d.Capability)
	if d.Reason == domain.ReasonUnknownCapability {
		label = "unknown"
	}
	metrics.DecisionMade(label, string(d.Reason))

	if d.Allowed {
		s.logger.Debug("access allowed",
			"user_id", res.UserID,
			"capability", d.Capability,
			"tier", d.Tier,
			"max_items", d.MaxItems,
		)
		return
	}
	s.logger.Info("access denied",
		"user_id", res.UserID,
		"capability", d.Capability,
		"reason", d.Reason,
		"role", d.Role,
		"tier", d.Tier,
		"used", d.Used,
		"limit", d.Limit,
	)
}
