package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
)

// AnalyticsService aggregates usage events for the merchant dashboard and
// records manual usage events posted by the widget (satisfaction feedback,
// manually tracked queries).
type AnalyticsService interface {
	Dashboard(tenantID uint, timeRange string) (*model.DashboardAnalytics, error)
	// Track inserts a caller-supplied usage event. Duplicate request ids are
	// treated as success so retried submissions stay idempotent.
	Track(ctx context.Context, event *model.UsageEvent) error
}

type analyticsService struct {
	usageRepo  repository.UsageEventRepository
	tenantRepo repository.TenantRepository
	idem       repository.IdempotencyStore
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(usageRepo repository.UsageEventRepository, tenantRepo repository.TenantRepository, idem repository.IdempotencyStore) AnalyticsService {
	return &analyticsService{usageRepo: usageRepo, tenantRepo: tenantRepo, idem: idem}
}

// Dashboard computes the aggregate stats and daily volume for the window.
// Supported ranges are 7d, 30d and 90d; anything else falls back to 30d.
func (s *analyticsService) Dashboard(tenantID uint, timeRange string) (*model.DashboardAnalytics, error) {
	var days int
	switch timeRange {
	case "7d":
		days = 7
	case "90d":
		days = 90
	default:
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	stats, err := s.usageRepo.Stats(tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage stats: %w", err)
	}

	volume, err := s.usageRepo.DailyVolume(tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query volume: %w", err)
	}
	stats.QueryVolume = volume
	return stats, nil
}

func (s *analyticsService) Track(ctx context.Context, event *model.UsageEvent) error {
	if event.QueryType == "" {
		event.QueryType = "manual"
	}
	if event.SatisfactionScore != nil {
		score := *event.SatisfactionScore
		if score < 1 || score > 5 {
			return fmt.Errorf("%w: satisfaction score must be between 1 and 5", ErrValidation)
		}
	}
	if err := s.usageRepo.Insert(event); err != nil && !errors.Is(err, repository.ErrDuplicateEvent) {
		return err
	}

	// Resolved billable events count against the plan limit. The increment
	// carries its own marker so a retry after an insert-success /
	// increment-failure split still runs the increment exactly once.
	if event.Resolved && event.TokensUsed > 0 {
		marker := event.RequestID + ":track"
		fresh, err := s.idem.Acquire(ctx, marker)
		if err != nil {
			return fmt.Errorf("failed to acquire usage marker: %w", err)
		}
		if fresh {
			if incErr := s.tenantRepo.IncrementUsage(event.TenantID, int64(event.TokensUsed)); incErr != nil {
				_ = s.idem.Release(ctx, marker)
				return fmt.Errorf("failed to increment usage: %w", incErr)
			}
		}
	}
	return nil
}
