package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/auth"
	"github.com/DukeRupert/lexassist/internal/domain"
)

var errNotStubbed = errors.New("not stubbed")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// identity returns middleware that injects a fixed caller identity.
func identity(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.SetIdentity(r.Context(), id)))
		})
	}
}

// =============================================================================
// Mock services
// =============================================================================

type mockCatalog struct {
	tiers map[domain.TierName]domain.Tier
	err   error
}

func (m *mockCatalog) ListTiers(ctx context.Context) ([]domain.Tier, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Tier
	for _, t := range domain.DefaultTiers() {
		if v, ok := m.tiers[t.Name]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetTier(ctx context.Context, name domain.TierName) (*domain.Tier, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tiers[name]
	if !ok {
		return nil, domain.NotFound("catalog.get_tier", "Tier", string(name))
	}
	return &t, nil
}

func (m *mockCatalog) UpsertTier(ctx context.Context, tier domain.Tier) (*domain.Tier, error) {
	return nil, errNotStubbed
}

func (m *mockCatalog) DeleteTier(ctx context.Context, name domain.TierName) error {
	return errNotStubbed
}

func (m *mockCatalog) RegisterTierName(ctx context.Context, name domain.TierName) error {
	return errNotStubbed
}

func newMockCatalog() *mockCatalog {
	m := &mockCatalog{tiers: map[domain.TierName]domain.Tier{}}
	for _, t := range domain.DefaultTiers() {
		m.tiers[t.Name] = t
	}
	return m
}

type mockAdmin struct {
	actor  uuid.UUID
	target uuid.UUID
	tier   domain.Tier
	update domain.ProfileUpdate
	endsAt *time.Time
	limit  int
	offset int
	err    error

	calls int
}

func (m *mockAdmin) ListOrganizations(ctx context.Context, actor uuid.UUID) ([]domain.Organization, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return []domain.Organization{{ID: uuid.New(), Name: "Kapoor Law Offices", TierName: domain.TierPro}}, nil
}

func (m *mockAdmin) AssignTierToOrganization(ctx context.Context, actor, orgID uuid.UUID, tier domain.TierName) (*domain.Organization, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Organization{ID: orgID, Name: "Kapoor Law Offices", TierName: tier}, nil
}

func (m *mockAdmin) SetUserRole(ctx context.Context, actor, target uuid.UUID, role domain.Role) (*domain.UserProfile, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &domain.UserProfile{UserID: target, Role: role}, nil
}

func (m *mockAdmin) RevokeAdminRole(ctx context.Context, actor, target uuid.UUID) (*domain.UserProfile, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &domain.UserProfile{UserID: target, Role: domain.RoleUser}, nil
}

func (m *mockAdmin) CreateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (*domain.Tier, error) {
	m.calls++
	m.actor = actor
	m.tier = tier
	if m.err != nil {
		return nil, m.err
	}
	if tier.Currency == "" {
		tier.Currency = domain.DefaultCurrency
	}
	return &tier, nil
}

func (m *mockAdmin) UpdateTier(ctx context.Context, actor uuid.UUID, tier domain.Tier) (*domain.Tier, error) {
	m.calls++
	m.actor = actor
	m.tier = tier
	if m.err != nil {
		return nil, m.err
	}
	return &tier, nil
}

func (m *mockAdmin) DeleteTier(ctx context.Context, actor uuid.UUID, name domain.TierName) error {
	m.calls++
	m.actor = actor
	return m.err
}

func (m *mockAdmin) ListUsers(ctx context.Context, actor uuid.UUID, limit, offset int) ([]domain.UserProfile, error) {
	m.calls++
	m.actor = actor
	m.limit, m.offset = limit, offset
	if m.err != nil {
		return nil, m.err
	}
	return []domain.UserProfile{{UserID: uuid.New(), Role: domain.RoleAdmin, Timezone: "Asia/Kolkata"}}, nil
}

func (m *mockAdmin) CountUsersByRole(ctx context.Context, actor uuid.UUID) (map[domain.Role]int64, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return map[domain.Role]int64{domain.RoleUser: 12, domain.RoleAdmin: 2, domain.RoleSuperAdmin: 1}, nil
}

func (m *mockAdmin) UpdateProfile(ctx context.Context, actor, target uuid.UUID, update domain.ProfileUpdate) (*domain.UserProfile, error) {
	m.calls++
	m.actor, m.target, m.update = actor, target, update
	if m.err != nil {
		return nil, m.err
	}
	p := &domain.UserProfile{UserID: target, Role: domain.RoleUser, OrganizationID: update.OrganizationID}
	if update.Timezone != nil {
		p.Timezone = *update.Timezone
	}
	return p, nil
}

func (m *mockAdmin) CreateOrganization(ctx context.Context, actor uuid.UUID, name string, tier domain.TierName) (*domain.Organization, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	if tier == "" {
		tier = domain.TierFree
	}
	return &domain.Organization{ID: uuid.New(), Name: name, TierName: tier}, nil
}

func (m *mockAdmin) AssignSubscription(ctx context.Context, actor, target uuid.UUID, tier domain.TierName, endsAt *time.Time) (*domain.Subscription, error) {
	m.calls++
	m.actor, m.target, m.endsAt = actor, target, endsAt
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Subscription{ID: uuid.New(), UserID: target, TierName: tier, Status: domain.SubscriptionStatusActive, StartedAt: time.Now().UTC(), EndsAt: endsAt}, nil
}

func (m *mockAdmin) CancelSubscription(ctx context.Context, actor, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	m.calls++
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Subscription{ID: subscriptionID, UserID: uuid.New(), TierName: domain.TierPro, Status: domain.SubscriptionStatusCanceled}, nil
}

type mockGate struct {
	decision domain.AccessDecision
	err      error
	asked    domain.Capability
	actor    uuid.UUID
}

func (m *mockGate) CheckAccess(ctx context.Context, userID uuid.UUID, capability domain.Capability) (domain.AccessDecision, error) {
	m.asked = capability
	m.actor = userID
	if m.err != nil {
		return domain.AccessDecision{}, m.err
	}
	d := m.decision
	d.Capability = capability
	return d, nil
}

func (m *mockGate) Evaluate(ctx context.Context, res *domain.Resolution, capability domain.Capability) (domain.AccessDecision, error) {
	return m.CheckAccess(ctx, res.UserID, capability)
}

type mockResolver struct {
	res *domain.Resolution
	err error
}

func (m *mockResolver) Resolve(ctx context.Context, userID uuid.UUID) (*domain.Resolution, error) {
	if m.err != nil {
		return nil, m.err
	}
	r := *m.res
	r.UserID = userID
	return &r, nil
}

func (m *mockResolver) ResolveRole(ctx context.Context, userID uuid.UUID) (domain.Role, error) {
	res, err := m.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}
	return res.Role, nil
}

func (m *mockResolver) ResolveActiveTier(ctx context.Context, userID uuid.UUID) (*domain.Tier, error) {
	res, err := m.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &res.Tier, nil
}

type mockUsage struct {
	recorded []domain.UsageRecord
	summary  *domain.UsageSummary
	err      error
}

func (m *mockUsage) RecordUsage(ctx context.Context, userID uuid.UUID, action domain.ActionType, metadata map[string]any) (*domain.UsageRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !action.Valid() {
		return nil, domain.NewValidationError("usage.record", "action", "unknown action type")
	}
	rec := domain.UsageRecord{ID: uuid.New(), UserID: userID, Action: action, OccurredAt: time.Now().UTC(), Metadata: metadata}
	m.recorded = append(m.recorded, rec)
	return &rec, nil
}

func (m *mockUsage) GetUsageCount(ctx context.Context, userID uuid.UUID, action domain.ActionType, start, end time.Time) (int64, error) {
	return 0, errNotStubbed
}

func (m *mockUsage) Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := *m.summary
	s.UserID = userID
	return &s, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(ctx context.Context) error { return m.err }
