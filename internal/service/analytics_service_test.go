package service

import (
	"context"
	"errors"
	"testing"

	"comerse-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_ValidatesSatisfaction(t *testing.T) {
	svc := NewAnalyticsService(&fakeUsageRepo{}, newFakeTenantRepo(), newFakeIdemStore())
	ctx := context.Background()

	bad := 6
	err := svc.Track(ctx, &model.UsageEvent{TenantID: 1, RequestID: "r1", SatisfactionScore: &bad})
	require.ErrorIs(t, err, ErrValidation)

	zero := 0
	err = svc.Track(ctx, &model.UsageEvent{TenantID: 1, RequestID: "r2", SatisfactionScore: &zero})
	require.ErrorIs(t, err, ErrValidation)

	ok := 5
	err = svc.Track(ctx, &model.UsageEvent{TenantID: 1, RequestID: "r3", SatisfactionScore: &ok})
	require.NoError(t, err)
}

func TestTrack_IncrementsUsageForResolvedBillableEvents(t *testing.T) {
	tenant := &model.Tenant{ID: 1, CurrentUsage: 0, UsageLimit: 50}
	tenantRepo := newFakeTenantRepo(tenant)
	svc := NewAnalyticsService(&fakeUsageRepo{}, tenantRepo, newFakeIdemStore())
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, &model.UsageEvent{TenantID: 1, RequestID: "billable", TokensUsed: 1, Resolved: true}))
	assert.Equal(t, int64(1), tenant.CurrentUsage)

	// unresolved events are recorded but never billed
	require.NoError(t, svc.Track(ctx, &model.UsageEvent{TenantID: 1, RequestID: "unresolved", TokensUsed: 1, Resolved: false}))
	assert.Equal(t, int64(1), tenant.CurrentUsage)
}

func TestTrack_DuplicateRequestIDIsIdempotent(t *testing.T) {
	tenant := &model.Tenant{ID: 1, UsageLimit: 50}
	tenantRepo := newFakeTenantRepo(tenant)
	usageRepo := &fakeUsageRepo{}
	svc := NewAnalyticsService(usageRepo, tenantRepo, newFakeIdemStore())
	ctx := context.Background()

	event := &model.UsageEvent{TenantID: 1, RequestID: "dup", TokensUsed: 1, Resolved: true}
	require.NoError(t, svc.Track(ctx, event))
	require.NoError(t, svc.Track(ctx, event))

	assert.Len(t, usageRepo.events, 1)
	assert.Equal(t, int64(1), tenant.CurrentUsage)
}

func TestTrack_RetryAfterIncrementFailureStillIncrements(t *testing.T) {
	tenant := &model.Tenant{ID: 1, UsageLimit: 50}
	tenantRepo := newFakeTenantRepo(tenant)
	usageRepo := &fakeUsageRepo{}
	svc := NewAnalyticsService(usageRepo, tenantRepo, newFakeIdemStore())
	ctx := context.Background()

	// the event insert lands but the increment fails
	tenantRepo.incErr = errors.New("mysql down")
	event := &model.UsageEvent{TenantID: 1, RequestID: "split", TokensUsed: 1, Resolved: true}
	require.Error(t, svc.Track(ctx, event))
	assert.Len(t, usageRepo.events, 1)
	assert.Equal(t, int64(0), tenant.CurrentUsage)

	// the retry hits the duplicate event but still runs the increment,
	// exactly once
	tenantRepo.incErr = nil
	require.NoError(t, svc.Track(ctx, event))
	assert.Equal(t, int64(1), tenant.CurrentUsage)
	require.NoError(t, svc.Track(ctx, event))
	assert.Equal(t, int64(1), tenant.CurrentUsage)
	assert.Len(t, usageRepo.events, 1)
}

func TestTrack_DefaultsQueryType(t *testing.T) {
	usageRepo := &fakeUsageRepo{}
	svc := NewAnalyticsService(usageRepo, newFakeTenantRepo(&model.Tenant{ID: 1}), newFakeIdemStore())

	require.NoError(t, svc.Track(context.Background(), &model.UsageEvent{TenantID: 1, RequestID: "typed"}))
	assert.Equal(t, "manual", usageRepo.events[0].QueryType)
}
