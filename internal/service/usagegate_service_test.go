package service

import (
	"testing"

	"comerse-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageGateStatus(t *testing.T) {
	tests := []struct {
		name        string
		current     int64
		limit       int64
		wantAllowed bool
		wantPct     int
	}{
		{name: "under limit", current: 10, limit: 50, wantAllowed: true, wantPct: 20},
		{name: "percentage rounds half up", current: 2, limit: 3, wantAllowed: true, wantPct: 67},
		{name: "percentage rounds down", current: 1, limit: 3, wantAllowed: true, wantPct: 33},
		{name: "at limit", current: 50, limit: 50, wantAllowed: false, wantPct: 100},
		{name: "over limit", current: 60, limit: 50, wantAllowed: false, wantPct: 120},
		{name: "unlimited plan", current: 99999, limit: -1, wantAllowed: true, wantPct: 0},
		{name: "zero usage", current: 0, limit: 500, wantAllowed: true, wantPct: 0},
	}

	gate := NewUsageGateService(newFakeTenantRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := &model.Tenant{
				ID:               1,
				CurrentUsage:     tt.current,
				UsageLimit:       tt.limit,
				SubscriptionTier: "starter",
			}
			status := gate.Status(tenant)
			assert.Equal(t, tt.wantAllowed, status.Allowed)
			assert.Equal(t, tt.wantPct, status.UsagePercentage)
			assert.Equal(t, tt.current, status.CurrentUsage)
			assert.Equal(t, tt.limit, status.MonthlyLimit)
			assert.Equal(t, "starter", status.PlanName)
		})
	}
}

func TestUsageGateCheck_TenantNotFound(t *testing.T) {
	gate := NewUsageGateService(newFakeTenantRepo())
	_, err := gate.Check(42)
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestUsageGateCheck_LoadsTenant(t *testing.T) {
	repo := newFakeTenantRepo(&model.Tenant{ID: 7, CurrentUsage: 3, UsageLimit: 50, SubscriptionTier: "trial"})
	gate := NewUsageGateService(repo)

	status, err := gate.Check(7)
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, "trial", status.PlanName)
}
