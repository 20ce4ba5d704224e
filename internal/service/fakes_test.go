package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/repository"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// testNow is the fixed clock used across service tests.
var testNow = time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time { return testNow }

var noRetryDelay = RetryPolicy{Attempts: 3, BaseDelay: time.Microsecond}

// fakeStore is an in-memory Store. Failures can be injected per method.
type fakeStore struct {
	mu        sync.Mutex
	tierNames map[string]bool
	tiers     map[string]repository.Tier
	profiles  map[uuid.UUID]repository.UserProfile
	subs      []repository.Subscription
	orgs      map[uuid.UUID]repository.Organization
	usage     []repository.UsageRecord

	calls    map[string]int
	writes   int
	failures map[string]int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		tierNames: map[string]bool{},
		tiers:     map[string]repository.Tier{},
		profiles:  map[uuid.UUID]repository.UserProfile{},
		orgs:      map[uuid.UUID]repository.Organization{},
		calls:     map[string]int{},
		failures:  map[string]int{},
	}
	for _, t := range domain.DefaultTiers() {
		s.tierNames[string(t.Name)] = true
		s.tiers[string(t.Name)] = tierRow(domainTierToParams(t))
	}
	return s
}

func tierRow(p repository.UpsertTierParams) repository.Tier {
	return repository.Tier{
		Name:              p.Name,
		DisplayName:       p.DisplayName,
		PriceMinor:        p.PriceMinor,
		Currency:          p.Currency,
		UserLimit:         p.UserLimit,
		DurationDays:      p.DurationDays,
		MaxSearchesPerDay: p.MaxSearchesPerDay,
		MaxLawSections:    p.MaxLawSections,
		MaxCaseHistories:  p.MaxCaseHistories,
		DocumentFormats:   slices.Clone(p.DocumentFormats),
		DraftingTypes:     slices.Clone(p.DraftingTypes),
		Features:          slices.Clone(p.Features),
		SharingEnabled:    p.SharingEnabled,
		Description:       p.Description,
		SortOrder:         p.SortOrder,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
}

// enter records a call and returns an injected failure, if any.
func (s *fakeStore) enter(method string) error {
	s.calls[method]++
	if s.failures[method] > 0 {
		s.failures[method]--
		return errConnRefused
	}
	return nil
}

func (s *fakeStore) failNext(method string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = n
}

func (s *fakeStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Seeding helpers.

func (s *fakeStore) putProfile(userID uuid.UUID, role domain.Role, tz string, org *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = repository.UserProfile{
		UserID:         userID,
		Role:           string(role),
		Timezone:       tz,
		OrganizationID: domain.ToNullUUID(org),
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func (s *fakeStore) putSubscription(userID uuid.UUID, tier domain.TierName, status domain.SubscriptionStatus, endsAt *time.Time) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.subs = append(s.subs, repository.Subscription{
		ID:        id,
		UserID:    userID,
		TierName:  string(tier),
		Status:    string(status),
		StartedAt: testNow.AddDate(0, -1, 0),
		EndsAt:    domain.ToNullTime(endsAt),
		CreatedAt: testNow,
		UpdatedAt: testNow,
	})
	return id
}

func (s *fakeStore) removeSubscription(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = slices.DeleteFunc(s.subs, func(sub repository.Subscription) bool { return sub.ID == id })
}

func (s *fakeStore) putOrganization(name string, tier domain.TierName) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.orgs[id] = repository.Organization{ID: id, Name: name, TierName: string(tier), CreatedAt: testNow, UpdatedAt: testNow}
	return id
}

func (s *fakeStore) putUsage(userID uuid.UUID, action domain.ActionType, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, repository.UsageRecord{ID: uuid.New(), UserID: userID, Action: string(action), OccurredAt: at})
}

func (s *fakeStore) deleteTierRow(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tiers, name)
}

// CatalogStore

func (s *fakeStore) ListTiers(ctx context.Context) ([]repository.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTiers"); err != nil {
		return nil, err
	}
	out := make([]repository.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *fakeStore) GetTier(ctx context.Context, name string) (repository.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTier"); err != nil {
		return repository.Tier{}, err
	}
	t, ok := s.tiers[name]
	if !ok {
		return repository.Tier{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *fakeStore) UpsertTier(ctx context.Context, arg repository.UpsertTierParams) (repository.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertTier"); err != nil {
		return repository.Tier{}, err
	}
	s.writes++
	row := tierRow(arg)
	s.tiers[arg.Name] = row
	return row, nil
}

func (s *fakeStore) DeleteTierIfUnreferenced(ctx context.Context, name string) (repository.CountTierReferencesRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var refs repository.CountTierReferencesRow
	if err := s.enter("DeleteTierIfUnreferenced"); err != nil {
		return refs, err
	}
	if _, ok := s.tiers[name]; !ok {
		return refs, sql.ErrNoRows
	}
	for _, sub := range s.subs {
		if sub.TierName == name {
			refs.SubscriptionCount++
		}
	}
	for _, org := range s.orgs {
		if org.TierName == name {
			refs.OrganizationCount++
		}
	}
	if refs.SubscriptionCount > 0 || refs.OrganizationCount > 0 {
		return refs, repository.ErrTierInUse
	}
	s.writes++
	delete(s.tiers, name)
	return refs, nil
}

func (s *fakeStore) TierNameExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("TierNameExists"); err != nil {
		return false, err
	}
	return s.tierNames[name], nil
}

func (s *fakeStore) InsertTierName(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("InsertTierName"); err != nil {
		return err
	}
	s.writes++
	s.tierNames[name] = true
	return nil
}

// IdentityStore and AdminStore

func (s *fakeStore) GetUserProfile(ctx context.Context, userID uuid.UUID) (repository.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserProfile"); err != nil {
		return repository.UserProfile{}, err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return repository.UserProfile{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *fakeStore) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListSubscriptionsByUser"); err != nil {
		return nil, err
	}
	var out []repository.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) GetOrganization(ctx context.Context, id uuid.UUID) (repository.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetOrganization"); err != nil {
		return repository.Organization{}, err
	}
	o, ok := s.orgs[id]
	if !ok {
		return repository.Organization{}, sql.ErrNoRows
	}
	return o, nil
}

func (s *fakeStore) ListOrganizations(ctx context.Context) ([]repository.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListOrganizations"); err != nil {
		return nil, err
	}
	out := make([]repository.Organization, 0, len(s.orgs))
	for _, o := range s.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) UpdateOrganizationTier(ctx context.Context, arg repository.UpdateOrganizationTierParams) (repository.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateOrganizationTier"); err != nil {
		return repository.Organization{}, err
	}
	o, ok := s.orgs[arg.ID]
	if !ok {
		return repository.Organization{}, sql.ErrNoRows
	}
	s.writes++
	o.TierName = arg.TierName
	s.orgs[arg.ID] = o
	return o, nil
}

func (s *fakeStore) UpdateUserRoleGuarded(ctx context.Context, arg repository.UpsertUserRoleParams) (repository.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateUserRoleGuarded"); err != nil {
		return repository.UserProfile{}, err
	}
	supers := 0
	targetIsSuper := false
	for id, p := range s.profiles {
		if p.Role == string(domain.RoleSuperAdmin) {
			supers++
			if id == arg.UserID {
				targetIsSuper = true
			}
		}
	}
	if targetIsSuper && arg.Role != string(domain.RoleSuperAdmin) && supers <= 1 {
		return repository.UserProfile{}, repository.ErrLastSuperAdmin
	}
	s.writes++
	p, ok := s.profiles[arg.UserID]
	if !ok {
		p = repository.UserProfile{UserID: arg.UserID, CreatedAt: testNow}
	}
	p.Role = arg.Role
	p.UpdatedAt = testNow
	s.profiles[arg.UserID] = p
	return p, nil
}

func (s *fakeStore) ListUserProfiles(ctx context.Context, arg repository.ListUserProfilesParams) ([]repository.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListUserProfiles"); err != nil {
		return nil, err
	}
	all := make([]repository.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].UserID.String() < all[j].UserID.String()
	})
	start := min(int(arg.Offset), len(all))
	end := min(start+int(arg.Limit), len(all))
	return all[start:end], nil
}

func (s *fakeStore) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountUsersByRole"); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range s.profiles {
		if p.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpsertUserProfile(ctx context.Context, arg repository.UpsertUserProfileParams) (repository.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertUserProfile"); err != nil {
		return repository.UserProfile{}, err
	}
	s.writes++
	p, ok := s.profiles[arg.UserID]
	if !ok {
		p = repository.UserProfile{UserID: arg.UserID, Role: string(domain.RoleUser), CreatedAt: testNow}
	}
	p.Timezone = arg.Timezone
	p.OrganizationID = arg.OrganizationID
	p.UpdatedAt = testNow
	s.profiles[arg.UserID] = p
	return p, nil
}

func (s *fakeStore) CreateOrganization(ctx context.Context, arg repository.CreateOrganizationParams) (repository.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateOrganization"); err != nil {
		return repository.Organization{}, err
	}
	s.writes++
	o := repository.Organization{ID: uuid.New(), Name: arg.Name, TierName: arg.TierName, CreatedAt: testNow, UpdatedAt: testNow}
	s.orgs[o.ID] = o
	return o, nil
}

func (s *fakeStore) GetSubscription(ctx context.Context, id uuid.UUID) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetSubscription"); err != nil {
		return repository.Subscription{}, err
	}
	for _, sub := range s.subs {
		if sub.ID == id {
			return sub, nil
		}
	}
	return repository.Subscription{}, sql.ErrNoRows
}

func (s *fakeStore) ReplaceActiveSubscription(ctx context.Context, arg repository.CreateSubscriptionParams) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReplaceActiveSubscription"); err != nil {
		return repository.Subscription{}, err
	}
	s.writes++
	for i, sub := range s.subs {
		if sub.UserID == arg.UserID && sub.Status == string(domain.SubscriptionStatusActive) {
			s.subs[i].Status = string(domain.SubscriptionStatusCanceled)
			s.subs[i].EndsAt = sql.NullTime{Time: arg.StartedAt, Valid: true}
		}
	}
	sub := repository.Subscription{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		TierName:  arg.TierName,
		Status:    arg.Status,
		StartedAt: arg.StartedAt,
		EndsAt:    arg.EndsAt,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *fakeStore) UpdateSubscriptionStatus(ctx context.Context, arg repository.UpdateSubscriptionStatusParams) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateSubscriptionStatus"); err != nil {
		return repository.Subscription{}, err
	}
	for i, sub := range s.subs {
		if sub.ID == arg.ID {
			s.writes++
			s.subs[i].Status = arg.Status
			s.subs[i].EndsAt = arg.EndsAt
			return s.subs[i], nil
		}
	}
	return repository.Subscription{}, sql.ErrNoRows
}

// UsageStore

func (s *fakeStore) CreateUsageRecord(ctx context.Context, arg repository.CreateUsageRecordParams) (repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateUsageRecord"); err != nil {
		return repository.UsageRecord{}, err
	}
	s.writes++
	rec := repository.UsageRecord{
		ID:         uuid.New(),
		UserID:     arg.UserID,
		Action:     arg.Action,
		OccurredAt: arg.OccurredAt,
		Metadata:   arg.Metadata,
	}
	s.usage = append(s.usage, rec)
	return rec, nil
}

func (s *fakeStore) CountUsageRecords(ctx context.Context, arg repository.CountUsageRecordsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountUsageRecords"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.usage {
		if r.UserID == arg.UserID && r.Action == arg.Action &&
			!r.OccurredAt.Before(arg.Start) && r.OccurredAt.Before(arg.End) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountUsageRecordsByAction(ctx context.Context, arg repository.CountUsageRecordsByActionParams) ([]repository.CountUsageRecordsByActionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountUsageRecordsByAction"); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, r := range s.usage {
		if r.UserID == arg.UserID && !r.OccurredAt.Before(arg.Start) && r.OccurredAt.Before(arg.End) {
			counts[r.Action]++
		}
	}
	var out []repository.CountUsageRecordsByActionRow
	for a, n := range counts {
		out = append(out, repository.CountUsageRecordsByActionRow{Action: a, Count: n})
	}
	return out, nil
}

// fakeCache is an in-memory ResolutionCache that records its calls. Entries
// are keyed by stamp like the Redis implementation, so a write under an old
// stamp is never read back.
type fakeCache struct {
	mu          sync.Mutex
	version     int64
	generations map[uuid.UUID]int64
	entries     map[uuid.UUID]domain.Resolution
	stamps      map[uuid.UUID]domain.CacheStamp
	ttls        map[uuid.UUID]time.Duration
	invalidated []uuid.UUID
	bumps       int
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		version:     1,
		generations: map[uuid.UUID]int64{},
		entries:     map[uuid.UUID]domain.Resolution{},
		stamps:      map[uuid.UUID]domain.CacheStamp{},
		ttls:        map[uuid.UUID]time.Duration{},
	}
}

func (c *fakeCache) current(userID uuid.UUID) domain.CacheStamp {
	return domain.CacheStamp{Version: c.version, Generation: c.generations[userID]}
}

func (c *fakeCache) Get(ctx context.Context, userID uuid.UUID) (*domain.Resolution, domain.CacheStamp, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, domain.CacheStamp{}, false, c.getErr
	}
	stamp := c.current(userID)
	r, ok := c.entries[userID]
	if !ok || c.stamps[userID] != stamp {
		return nil, stamp, false, nil
	}
	return &r, stamp, true, nil
}

func (c *fakeCache) Set(ctx context.Context, res *domain.Resolution, stamp domain.CacheStamp, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls[res.UserID] = ttl
	if ttl > 0 && stamp == c.current(res.UserID) {
		c.entries[res.UserID] = *res
		c.stamps[res.UserID] = stamp
	}
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	c.generations[userID]++
	delete(c.entries, userID)
	return nil
}

func (c *fakeCache) BumpVersion(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	c.version++
	c.entries = map[uuid.UUID]domain.Resolution{}
	return nil
}

// cached reports whether a readable entry exists for userID.
func (c *fakeCache) cached(userID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID]
	return ok && c.stamps[userID] == c.current(userID)
}

// testServices wires every service over one fake store.
type testServices struct {
	store    *fakeStore
	cache    *fakeCache
	catalog  CatalogService
	resolver ResolverService
	usage    UsageService
	gate     GateService
	admin    AdminService
}

func newTestServices(withCache bool) *testServices {
	ts := &testServices{store: newFakeStore()}

	opts := Options{Retry: noRetryDelay, Now: fixedClock}
	if withCache {
		ts.cache = newFakeCache()
		opts.Cache = ts.cache
		opts.CacheTTL = 5 * time.Minute
	}

	svc := New(ts.store, opts, testLogger())
	ts.catalog = svc.Catalog
	ts.resolver = svc.Resolver
	ts.usage = svc.Usage
	ts.gate = svc.Gate
	ts.admin = svc.Admin
	return ts
}
