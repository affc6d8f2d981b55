// Package repository implements the data access layer.
package repository

import (
	"time"

	"comerse-go/internal/model"

	"gorm.io/gorm"
)

// TenantRepository persists tenant accounts and their usage counters.
type TenantRepository interface {
	Create(t *model.Tenant) error
	FindByID(id uint) (*model.Tenant, error)
	FindByEmail(email string) (*model.Tenant, error)
	FindByBillingCustomerID(customerID string) (*model.Tenant, error)
	Update(t *model.Tenant) error
	// IncrementUsage adds delta to the tenant's usage counter with a single
	// atomic UPDATE. Concurrent completions for the same tenant must not
	// lose updates, so this is never a read-modify-write in Go.
	IncrementUsage(tenantID uint, delta int64) error
	UpdateSubscription(tenantID uint, tier, status string, usageLimit int64) error
	// ResetExpiredPeriods zeroes the usage counter for every tenant whose
	// billing period started before cutoff and stamps a new period start.
	ResetExpiredPeriods(cutoff time.Time) (int64, error)
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a gorm-backed TenantRepository.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(t *model.Tenant) error {
	return r.db.Create(t).Error
}

func (r *tenantRepository) FindByID(id uint) (*model.Tenant, error) {
	var t model.Tenant
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) FindByEmail(email string) (*model.Tenant, error) {
	var t model.Tenant
	if err := r.db.Where("email = ?", email).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) FindByBillingCustomerID(customerID string) (*model.Tenant, error) {
	var t model.Tenant
	if err := r.db.Where("billing_customer_id = ?", customerID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) Update(t *model.Tenant) error {
	return r.db.Save(t).Error
}

func (r *tenantRepository) IncrementUsage(tenantID uint, delta int64) error {
	return r.db.Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		UpdateColumn("current_usage", gorm.Expr("current_usage + ?", delta)).Error
}

func (r *tenantRepository) UpdateSubscription(tenantID uint, tier, status string, usageLimit int64) error {
	return r.db.Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"subscription_tier":   tier,
			"subscription_status": status,
			"usage_limit":         usageLimit,
		}).Error
}

func (r *tenantRepository) ResetExpiredPeriods(cutoff time.Time) (int64, error) {
	res := r.db.Model(&model.Tenant{}).
		Where("period_start < ?", cutoff).
		Updates(map[string]interface{}{
			"current_usage": 0,
			"period_start":  time.Now(),
		})
	return res.RowsAffected, res.Error
}
