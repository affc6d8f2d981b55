package handler

import (
	"net/http"

	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler serves the merchant dashboard aggregates.
type AnalyticsHandler struct {
	analytics service.AnalyticsService
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(analytics service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard handles GET /api/v1/analytics/dashboard?timeRange=30d (session auth).
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	stats, err := h.analytics.Dashboard(tenant.ID, c.DefaultQuery("timeRange", "30d"))
	if err != nil {
		log.Errorf("Dashboard: failed to aggregate, tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    stats,
	})
}
