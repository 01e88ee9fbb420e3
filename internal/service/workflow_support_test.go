package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/realtime"
	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var (
	villageJ   = models.Jurisdiction{DistrictID: "D1", TalukID: "T1", PanchayatID: "P1", VillageID: "V1"}
	otherJ     = models.Jurisdiction{DistrictID: "D1", TalukID: "T2", PanchayatID: "P9", VillageID: "V9"}
	villagerA  = Actor{ID: "11111111-1111-1111-1111-111111111111", Role: models.RoleVillager, Verified: true, Scope: models.ScopeFor(models.RoleVillager, "11111111-1111-1111-1111-111111111111", villageJ)}
	inchargeA  = Actor{ID: "vi-1", Role: models.RoleVillageIncharge, Verified: true, Scope: models.ScopeFor(models.RoleVillageIncharge, "vi-1", villageJ)}
	pdoA       = Actor{ID: "pdo-1", Role: models.RolePDO, Verified: true, Scope: models.ScopeFor(models.RolePDO, "pdo-1", villageJ)}
	tdoA       = Actor{ID: "tdo-1", Role: models.RoleTDO, Verified: true, Scope: models.ScopeFor(models.RoleTDO, "tdo-1", villageJ)}
	ddoA       = Actor{ID: "ddo-1", Role: models.RoleDDO, Verified: true, Scope: models.ScopeFor(models.RoleDDO, "ddo-1", villageJ)}
	outsiderA  = Actor{ID: "pdo-9", Role: models.RolePDO, Verified: true, Scope: models.ScopeFor(models.RolePDO, "pdo-9", otherJ)}
	testIssue  = "22222222-2222-2222-2222-222222222222"
	testFundID = "33333333-3333-3333-3333-333333333333"
)

// memIssueStore is an in-memory issueStore with version checks.
type memIssueStore struct {
	mu          sync.Mutex
	issues      map[string]*models.Issue
	created     []*models.Issue
	audits      []*models.AuditLog
	records     []repository.TransitionRecord
	applyErrs   []error
	commitErr   error
	findErr     error
	lastFilter  models.IssueFilter
	listResults []models.Issue
}

func newMemIssueStore(issues ...models.Issue) *memIssueStore {
	s := &memIssueStore{issues: map[string]*models.Issue{}}
	for i := range issues {
		issue := issues[i]
		s.issues[issue.ID] = &issue
	}
	return s
}

func (s *memIssueStore) Create(_ context.Context, issue *models.Issue, _ models.UserRole, audit *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *issue
	s.issues[issue.ID] = &copy
	s.created = append(s.created, issue)
	s.audits = append(s.audits, audit)
	return nil
}

func (s *memIssueStore) FindByID(_ context.Context, id string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	issue, ok := s.issues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *issue
	return &copy, nil
}

func (s *memIssueStore) ApplyTransition(_ context.Context, rec repository.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.applyErrs) > 0 {
		err := s.applyErrs[0]
		s.applyErrs = s.applyErrs[1:]
		if err != nil {
			return err
		}
	}
	issue, ok := s.issues[rec.EntityID]
	if !ok {
		return sql.ErrNoRows
	}
	if issue.Version != rec.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	issue.Apply(rec.Delta, rec.At)
	s.records = append(s.records, rec)
	s.audits = append(s.audits, rec.Audit)
	if err := s.commitErr; err != nil {
		s.commitErr = nil
		return err
	}
	return nil
}

func (s *memIssueStore) recorded(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.EventID == eventID {
			return true
		}
	}
	return false
}

func (s *memIssueStore) List(_ context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	return s.listResults, len(s.listResults), nil
}

// memFundStore is an in-memory fundRequestStore.
type memFundStore struct {
	mu         sync.Mutex
	requests   map[string]*models.FundRequest
	created    []*models.FundRequest
	records    []repository.TransitionRecord
	rows       []models.FundRequest
	listed     bool
	lastFilter models.FundRequestFilter
}

func newMemFundStore(requests ...models.FundRequest) *memFundStore {
	s := &memFundStore{requests: map[string]*models.FundRequest{}}
	for i := range requests {
		fr := requests[i]
		s.requests[fr.ID] = &fr
	}
	return s
}

func (s *memFundStore) Create(_ context.Context, fr *models.FundRequest, _ models.UserRole, _ *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *fr
	s.requests[fr.ID] = &copy
	s.created = append(s.created, fr)
	return nil
}

func (s *memFundStore) FindByID(_ context.Context, id string) (*models.FundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *fr
	return &copy, nil
}

func (s *memFundStore) ApplyTransition(_ context.Context, rec repository.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.requests[rec.EntityID]
	if !ok {
		return sql.ErrNoRows
	}
	if fr.Version != rec.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	fr.Apply(rec.Delta, rec.At)
	s.records = append(s.records, rec)
	return nil
}

// List mirrors the store query: priority classified with the filter's policy, newest first, paged.
func (s *memFundStore) List(_ context.Context, filter models.FundRequestFilter) ([]models.FundRequest, int, error) {
	s.listed = true
	s.lastFilter = filter
	matched := make([]models.FundRequest, 0, len(s.rows))
	for _, fr := range s.rows {
		if filter.Priority != nil && filter.PriorityPolicy.Classify(fr.Amount, fr.Purpose) != *filter.Priority {
			continue
		}
		matched = append(matched, fr)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	page, size := pageBounds(filter.Page, filter.PageSize)
	start := min((page-1)*size, len(matched))
	end := min(start+size, len(matched))
	return matched[start:end], len(matched), nil
}

type stubTimeline struct {
	events    []models.WorkflowEvent
	recorded  func(eventID string) bool
	lookupErr error
}

func (s *stubTimeline) Timeline(context.Context, workflow.Entity, string) ([]models.WorkflowEvent, error) {
	return s.events, nil
}

func (s *stubTimeline) Recorded(_ context.Context, eventID string) (bool, error) {
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.recorded != nil && s.recorded(eventID), nil
}

// memDirectory serves user rows for actor re-validation.
type memDirectory struct {
	users map[string]models.User
}

func directoryOf(users ...models.User) *memDirectory {
	d := &memDirectory{users: map[string]models.User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

// userFor is the stored row behind a test actor.
func userFor(a Actor, status models.VerificationStatus) models.User {
	return models.User{
		ID:                 a.ID,
		Role:               a.Role,
		VerificationStatus: status,
		Jurisdiction:       a.Scope.Jurisdiction,
		Active:             true,
	}
}

// memIdempotency mimics SETNX semantics.
type memIdempotency struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
	err      error
}

func (m *memIdempotency) Reserve(_ context.Context, scope, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	k := scope + "|" + key
	if m.keys[k] {
		return false, nil
	}
	m.keys[k] = true
	return true, nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "|" + key
	delete(m.keys, k)
	m.released = append(m.released, k)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// memCache is a CacheRepository keeping JSON payloads in a map.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	c.deleted = append(c.deleted, pattern)
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
