package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memTenantRepo struct {
	mu         sync.Mutex
	usage      map[uint]int64
	incErr     error
	increments int
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{usage: make(map[uint]int64)}
}

func (r *memTenantRepo) Create(t *model.Tenant) error                 { return nil }
func (r *memTenantRepo) FindByID(id uint) (*model.Tenant, error)      { return nil, gorm.ErrRecordNotFound }
func (r *memTenantRepo) FindByEmail(e string) (*model.Tenant, error)  { return nil, gorm.ErrRecordNotFound }
func (r *memTenantRepo) Update(t *model.Tenant) error                 { return nil }
func (r *memTenantRepo) ResetExpiredPeriods(c time.Time) (int64, error) { return 0, nil }
func (r *memTenantRepo) FindByBillingCustomerID(id string) (*model.Tenant, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *memTenantRepo) UpdateSubscription(id uint, tier, status string, limit int64) error {
	return nil
}

func (r *memTenantRepo) IncrementUsage(tenantID uint, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incErr != nil {
		return r.incErr
	}
	r.increments++
	r.usage[tenantID] += delta
	return nil
}

type memUsageRepo struct {
	mu     sync.Mutex
	events []model.UsageEvent
	err    error
}

func (r *memUsageRepo) Insert(e *model.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.events {
		if existing.RequestID == e.RequestID {
			return repository.ErrDuplicateEvent
		}
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *memUsageRepo) Stats(tenantID uint, since time.Time) (*model.DashboardAnalytics, error) {
	return &model.DashboardAnalytics{}, nil
}

func (r *memUsageRepo) DailyVolume(tenantID uint, since time.Time) ([]model.DailyQueryVolume, error) {
	return nil, nil
}

type memSessionRepo struct {
	mu      sync.Mutex
	entries map[string][]model.SessionEntry
	err     error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{entries: make(map[string][]model.SessionEntry)}
}

func (r *memSessionRepo) Append(ctx context.Context, tenantID uint, sessionID string, entries []model.SessionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries[sessionID] = append(r.entries[sessionID], entries...)
	return nil
}

func (r *memSessionRepo) History(ctx context.Context, tenantID uint, sessionID string, limit int) ([]model.SessionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[sessionID], nil
}

func (r *memSessionRepo) EnsureExpiry(ctx context.Context) (int, error) { return 0, nil }

type memIdemStore struct {
	mu      sync.Mutex
	markers map[string]bool
}

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{markers: make(map[string]bool)}
}

func (s *memIdemStore) Acquire(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers[key] {
		return false, nil
	}
	s.markers[key] = true
	return true, nil
}

func (s *memIdemStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, key)
	return nil
}

func taskBytes(t *testing.T, task tasks.TurnRecordTask) []byte {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return b
}

func sampleTask() tasks.TurnRecordTask {
	return tasks.TurnRecordTask{
		RequestID:  "req-1",
		TenantID:   1,
		SessionID:  "sess-1",
		Query:      "where is my order?",
		Answer:     "It ships tomorrow.",
		TokensUsed: 1,
		ElapsedMs:  420,
	}
}

func TestRecorderHandle_WritesAll(t *testing.T) {
	tenantRepo := newMemTenantRepo()
	usageRepo := &memUsageRepo{}
	sessionRepo := newMemSessionRepo()
	rec := NewRecorder(tenantRepo, usageRepo, sessionRepo, newMemIdemStore())

	err := rec.Handle(context.Background(), "req-1", taskBytes(t, sampleTask()))
	require.NoError(t, err)

	assert.Equal(t, int64(1), tenantRepo.usage[1])

	require.Len(t, usageRepo.events, 1)
	assert.Equal(t, "chat_query", usageRepo.events[0].QueryType)
	assert.True(t, usageRepo.events[0].Resolved)
	assert.Equal(t, int64(420), usageRepo.events[0].ResponseTimeMs)

	entries, _ := sessionRepo.History(context.Background(), 1, "sess-1", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "where is my order?", entries[0].Content)
	assert.Equal(t, "assistant", entries[1].Role)
}

func TestRecorderHandle_ReplayIncrementsZero(t *testing.T) {
	tenantRepo := newMemTenantRepo()
	usageRepo := &memUsageRepo{}
	sessionRepo := newMemSessionRepo()
	rec := NewRecorder(tenantRepo, usageRepo, sessionRepo, newMemIdemStore())

	payload := taskBytes(t, sampleTask())
	require.NoError(t, rec.Handle(context.Background(), "req-1", payload))
	require.NoError(t, rec.Handle(context.Background(), "req-1", payload))

	assert.Equal(t, int64(1), tenantRepo.usage[1])
	assert.Equal(t, 1, tenantRepo.increments)
	assert.Len(t, usageRepo.events, 1)

	entries, _ := sessionRepo.History(context.Background(), 1, "sess-1", 10)
	assert.Len(t, entries, 2)
}

func TestRecorderHandle_SessionFailureDoesNotBlockUsage(t *testing.T) {
	tenantRepo := newMemTenantRepo()
	usageRepo := &memUsageRepo{}
	sessionRepo := newMemSessionRepo()
	sessionRepo.err = errors.New("redis down")
	rec := NewRecorder(tenantRepo, usageRepo, sessionRepo, newMemIdemStore())

	err := rec.Handle(context.Background(), "req-1", taskBytes(t, sampleTask()))
	require.Error(t, err)

	// usage and the event landed despite the session failure
	assert.Equal(t, int64(1), tenantRepo.usage[1])
	assert.Len(t, usageRepo.events, 1)

	// redelivery retries only the failed write
	sessionRepo.err = nil
	require.NoError(t, rec.Handle(context.Background(), "req-1", taskBytes(t, sampleTask())))

	assert.Equal(t, 1, tenantRepo.increments)
	assert.Len(t, usageRepo.events, 1)
	entries, _ := sessionRepo.History(context.Background(), 1, "sess-1", 10)
	assert.Len(t, entries, 2)
}

func TestRecorderHandle_IncrementFailureReleasesMarker(t *testing.T) {
	tenantRepo := newMemTenantRepo()
	tenantRepo.incErr = errors.New("mysql down")
	usageRepo := &memUsageRepo{}
	sessionRepo := newMemSessionRepo()
	rec := NewRecorder(tenantRepo, usageRepo, sessionRepo, newMemIdemStore())

	err := rec.Handle(context.Background(), "req-1", taskBytes(t, sampleTask()))
	require.Error(t, err)
	assert.Equal(t, int64(0), tenantRepo.usage[1])

	tenantRepo.incErr = nil
	require.NoError(t, rec.Handle(context.Background(), "req-1", taskBytes(t, sampleTask())))
	assert.Equal(t, int64(1), tenantRepo.usage[1])
}

func TestRecorderHandle_ConcurrentTurnsAllCounted(t *testing.T) {
	tenantRepo := newMemTenantRepo()
	usageRepo := &memUsageRepo{}
	sessionRepo := newMemSessionRepo()
	rec := NewRecorder(tenantRepo, usageRepo, sessionRepo, newMemIdemStore())

	// n turns complete at once; the counter must land on exactly n with no
	// lost updates
	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		task := sampleTask()
		task.RequestID = fmt.Sprintf("req-%d", i)
		task.SessionID = fmt.Sprintf("sess-%d", i)
		payload := taskBytes(t, task)
		key := task.RequestID
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rec.Handle(context.Background(), key, payload))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), tenantRepo.usage[1])
	assert.Equal(t, n, tenantRepo.increments)
	assert.Len(t, usageRepo.events, n)
}

func TestRecorderHandle_MalformedPayloadNotRetried(t *testing.T) {
	rec := NewRecorder(newMemTenantRepo(), &memUsageRepo{}, newMemSessionRepo(), newMemIdemStore())
	require.NoError(t, rec.Handle(context.Background(), "bad", []byte("not json")))
}
