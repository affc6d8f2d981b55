package service

import (
	"errors"
	"fmt"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"

	"gorm.io/gorm"
)

// UsageGateService is the pre-flight plan-limit check. It only reads, so it
// is safe to call concurrently for the same tenant; the authoritative
// increment happens in the recorder.
type UsageGateService interface {
	Check(tenantID uint) (*model.UsageStatus, error)
	// Status computes the gate payload from an already-loaded tenant,
	// avoiding a second read on the chat path.
	Status(tenant *model.Tenant) *model.UsageStatus
}

type usageGateService struct {
	tenantRepo repository.TenantRepository
}

// NewUsageGateService creates a UsageGateService.
func NewUsageGateService(tenantRepo repository.TenantRepository) UsageGateService {
	return &usageGateService{tenantRepo: tenantRepo}
}

func (s *usageGateService) Check(tenantID uint) (*model.UsageStatus, error) {
	tenant, err := s.tenantRepo.FindByID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return s.Status(tenant), nil
}

func (s *usageGateService) Status(tenant *model.Tenant) *model.UsageStatus {
	status := &model.UsageStatus{
		CurrentUsage: tenant.CurrentUsage,
		MonthlyLimit: tenant.UsageLimit,
		PlanName:     tenant.SubscriptionTier,
	}
	// negative limit means unlimited
	status.Allowed = tenant.UsageLimit < 0 || tenant.CurrentUsage < tenant.UsageLimit
	if tenant.UsageLimit > 0 {
		// round half up: 2 of 3 reports 67, not 66
		status.UsagePercentage = int((tenant.CurrentUsage*100 + tenant.UsageLimit/2) / tenant.UsageLimit)
	}
	return status
}
