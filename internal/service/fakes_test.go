package service

import (
	"context"
	"sync"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"

	"gorm.io/gorm"
)

type fakeTenantRepo struct {
	mu         sync.Mutex
	tenants    map[uint]*model.Tenant
	increments []int64
	subUpdates []string
	incErr     error
}

func newFakeTenantRepo(tenants ...*model.Tenant) *fakeTenantRepo {
	m := make(map[uint]*model.Tenant)
	for _, t := range tenants {
		m[t.ID] = t
	}
	return &fakeTenantRepo{tenants: m}
}

func (r *fakeTenantRepo) Create(t *model.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		t.ID = uint(len(r.tenants) + 1)
	}
	r.tenants[t.ID] = t
	return nil
}

func (r *fakeTenantRepo) FindByID(id uint) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *fakeTenantRepo) FindByEmail(email string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Email == email {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) FindByBillingCustomerID(customerID string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.BillingCustomerID == customerID {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) Update(t *model.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return nil
}

func (r *fakeTenantRepo) IncrementUsage(tenantID uint, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incErr != nil {
		return r.incErr
	}
	r.increments = append(r.increments, delta)
	if t, ok := r.tenants[tenantID]; ok {
		t.CurrentUsage += delta
	}
	return nil
}

func (r *fakeTenantRepo) UpdateSubscription(tenantID uint, tier, status string, usageLimit int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subUpdates = append(r.subUpdates, tier+"/"+status)
	if t, ok := r.tenants[tenantID]; ok {
		t.SubscriptionTier = tier
		t.SubscriptionStatus = status
		t.UsageLimit = usageLimit
	}
	return nil
}

func (r *fakeTenantRepo) ResetExpiredPeriods(cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeUsageRepo struct {
	mu     sync.Mutex
	events []model.UsageEvent
}

func (r *fakeUsageRepo) Insert(e *model.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events {
		if existing.RequestID == e.RequestID {
			return repository.ErrDuplicateEvent
		}
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeUsageRepo) Stats(tenantID uint, since time.Time) (*model.DashboardAnalytics, error) {
	return &model.DashboardAnalytics{}, nil
}

func (r *fakeUsageRepo) DailyVolume(tenantID uint, since time.Time) ([]model.DailyQueryVolume, error) {
	return nil, nil
}

type fakeAPIKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*model.APIKey
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{keys: make(map[string]*model.APIKey)}
}

func (r *fakeAPIKeyRepo) Create(k *model.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.KeyHash] = k
	return nil
}

func (r *fakeAPIKeyRepo) FindByHash(keyHash string) (*model.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[keyHash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return k, nil
}

func (r *fakeAPIKeyRepo) TouchLastUsed(keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[keyHash]; ok {
		now := time.Now()
		k.LastUsed = &now
	}
	return nil
}

func (r *fakeAPIKeyRepo) ListByTenant(tenantID uint) ([]model.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.APIKey
	for _, k := range r.keys {
		if k.TenantID == tenantID {
			out = append(out, *k)
		}
	}
	return out, nil
}

type publishedTask struct {
	key     string
	payload interface{}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedTask
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedTask{key: key, payload: payload})
	return nil
}

type fakeIdemStore struct {
	mu      sync.Mutex
	markers map[string]bool
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{markers: make(map[string]bool)}
}

func (s *fakeIdemStore) Acquire(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers[key] {
		return false, nil
	}
	s.markers[key] = true
	return true, nil
}

func (s *fakeIdemStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, key)
	return nil
}

type fakeRetrieval struct {
	chunks []model.RetrievedChunk
}

func (r *fakeRetrieval) Retrieve(ctx context.Context, tenant *model.Tenant, query string, k int) []model.RetrievedChunk {
	return r.chunks
}
