package model

import "time"

// UsageEvent is one write-once record per query. It feeds both real-time
// limit enforcement (through the tenant counter) and historical analytics.
type UsageEvent struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID          uint      `gorm:"not null;index:idx_usage_tenant_created" json:"tenantId"`
	RequestID         string    `gorm:"type:varchar(64);uniqueIndex" json:"requestId"`
	QueryType         string    `gorm:"type:varchar(32);not null" json:"queryType"` // chat_query, chat_abandoned, manual
	TokensUsed        int       `gorm:"not null;default:1" json:"tokensUsed"`
	ResponseTimeMs    int64     `json:"responseTimeMs"`
	Resolved          bool      `gorm:"not null;default:true" json:"resolved"`
	SatisfactionScore *int      `gorm:"default:null" json:"satisfactionScore"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index:idx_usage_tenant_created" json:"createdAt"`
}

func (UsageEvent) TableName() string {
	return "usage_events"
}

// UsageStatus is the usage-gate payload.
type UsageStatus struct {
	Allowed         bool   `json:"allowed"`
	CurrentUsage    int64  `json:"currentUsage"`
	MonthlyLimit    int64  `json:"monthlyLimit"`
	PlanName        string `json:"planName"`
	UsagePercentage int    `json:"usagePercentage"`
}

// DashboardAnalytics aggregates usage events for the dashboard.
type DashboardAnalytics struct {
	TotalQueries      int64              `json:"totalQueries"`
	ResolutionRate    float64            `json:"resolutionRate"`
	AvgSatisfaction   float64            `json:"avgSatisfaction"`
	AvgResponseTimeMs float64            `json:"avgResponseTimeMs"`
	QueryVolume       []DailyQueryVolume `json:"queryVolume"`
}

// DailyQueryVolume is one day's query count.
type DailyQueryVolume struct {
	Date    string `json:"date"`
	Queries int64  `json:"queries"`
}
