// Package model contains the application's data model definitions.
package model

import "time"

// Tenant is a merchant account: the unit of data isolation and billing.
// Subscription fields are mutated by the billing webhook handler; the usage
// counter is mutated only through TenantRepository.IncrementUsage.
type Tenant struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email              string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Password           string    `gorm:"type:varchar(255);not null" json:"-"`
	Company            string    `gorm:"type:varchar(255);not null" json:"company"`
	Industry           string    `gorm:"type:varchar(100)" json:"industry"`
	ToneOfVoice        string    `gorm:"type:varchar(100);default:friendly" json:"toneOfVoice"`
	Namespace          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"namespace"`
	SubscriptionTier   string    `gorm:"type:varchar(32);not null;default:trial" json:"subscriptionTier"`
	SubscriptionStatus string    `gorm:"type:varchar(32);not null;default:active" json:"subscriptionStatus"`
	BillingCustomerID  string    `gorm:"type:varchar(64);index" json:"-"`
	CurrentUsage       int64     `gorm:"not null;default:0" json:"currentUsage"`
	UsageLimit         int64     `gorm:"not null;default:50" json:"usageLimit"`
	PeriodStart        time.Time `gorm:"not null" json:"periodStart"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Profile is the subset of tenant fields the prompt composer consumes.
type Profile struct {
	Company     string
	Industry    string
	ToneOfVoice string
}

// Profile extracts the prompt-facing fields.
func (t *Tenant) Profile() Profile {
	return Profile{
		Company:     t.Company,
		Industry:    t.Industry,
		ToneOfVoice: t.ToneOfVoice,
	}
}

// PlanLimit returns the metered-query limit for a subscription tier.
// A negative limit means unlimited.
func PlanLimit(tier string) int64 {
	switch tier {
	case "starter":
		return 500
	case "pro":
		return 2000
	case "enterprise":
		return -1
	default: // trial
		return 50
	}
}
