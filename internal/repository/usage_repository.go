package repository

import (
	"errors"
	"strings"
	"time"

	"comerse-go/internal/model"

	"gorm.io/gorm"
)

// ErrDuplicateEvent reports an insert rejected by the request-id unique
// index, i.e. the event was already recorded for this request.
var ErrDuplicateEvent = errors.New("usage event already recorded for request")

// UsageEventRepository persists the append-only usage event history.
// Events are write-once and never updated.
type UsageEventRepository interface {
	Insert(e *model.UsageEvent) error
	Stats(tenantID uint, since time.Time) (*model.DashboardAnalytics, error)
	DailyVolume(tenantID uint, since time.Time) ([]model.DailyQueryVolume, error)
}

type usageEventRepository struct {
	db *gorm.DB
}

// NewUsageEventRepository creates a gorm-backed UsageEventRepository.
func NewUsageEventRepository(db *gorm.DB) UsageEventRepository {
	return &usageEventRepository{db: db}
}

func (r *usageEventRepository) Insert(e *model.UsageEvent) error {
	err := r.db.Create(e).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return ErrDuplicateEvent
	}
	return err
}

func (r *usageEventRepository) Stats(tenantID uint, since time.Time) (*model.DashboardAnalytics, error) {
	var row struct {
		Total    int64
		Resolved int64
		AvgSat   float64
		AvgRT    float64
	}
	err := r.db.Model(&model.UsageEvent{}).
		Select(
			"COUNT(*) AS total, "+
				"SUM(CASE WHEN resolved THEN 1 ELSE 0 END) AS resolved, "+
				"COALESCE(AVG(satisfaction_score), 0) AS avg_sat, "+
				"COALESCE(AVG(NULLIF(response_time_ms, 0)), 0) AS avg_rt").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &model.DashboardAnalytics{
		TotalQueries:      row.Total,
		AvgSatisfaction:   round1(row.AvgSat),
		AvgResponseTimeMs: round1(row.AvgRT),
	}
	if row.Total > 0 {
		stats.ResolutionRate = round1(float64(row.Resolved) / float64(row.Total) * 100)
	}
	return stats, nil
}

func (r *usageEventRepository) DailyVolume(tenantID uint, since time.Time) ([]model.DailyQueryVolume, error) {
	var volume []model.DailyQueryVolume
	err := r.db.Model(&model.UsageEvent{}).
		Select("DATE(created_at) AS date, COUNT(*) AS queries").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group("DATE(created_at)").
		Order("date").
		Scan(&volume).Error
	return volume, err
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
