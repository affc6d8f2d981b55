package handler

import (
	"errors"
	"net/http"
	"strconv"

	"comerse-go/internal/model"
	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UsageHandler exposes the usage gate and manual event tracking.
type UsageHandler struct {
	identity  service.IdentityService
	gate      service.UsageGateService
	analytics service.AnalyticsService
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(identity service.IdentityService, gate service.UsageGateService, analytics service.AnalyticsService) *UsageHandler {
	return &UsageHandler{identity: identity, gate: gate, analytics: analytics}
}

// Check handles GET /api/v1/usage/check. Accepts either an API key header or
// an explicit tenantId query parameter (internal callers).
func (h *UsageHandler) Check(c *gin.Context) {
	tenantID, err := h.resolveTenantID(c)
	if err != nil {
		writeUsageError(c, err)
		return
	}

	status, err := h.gate.Check(tenantID)
	if err != nil {
		writeUsageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    status,
	})
}

// TrackRequest is the manual usage-event payload.
type TrackRequest struct {
	TenantID          uint   `json:"tenantId"`
	RequestID         string `json:"requestId"`
	QueryType         string `json:"queryType"`
	TokensUsed        int    `json:"tokensUsed"`
	ResponseTimeMs    int64  `json:"responseTimeMs"`
	Resolved          bool   `json:"resolved"`
	SatisfactionScore *int   `json:"satisfactionScore"`
}

// Track handles POST /api/v1/usage/track.
func (h *UsageHandler) Track(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	tenantID := req.TenantID
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		tenant, err := h.identity.Resolve(c.Request.Context(), service.Credential{APIKey: apiKey})
		if err != nil {
			writeUsageError(c, err)
			return
		}
		tenantID = tenant.ID
	}
	if tenantID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId is required"})
		return
	}
	if req.TokensUsed < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokensUsed must be non-negative"})
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	event := &model.UsageEvent{
		TenantID:          tenantID,
		RequestID:         requestID,
		QueryType:         req.QueryType,
		TokensUsed:        req.TokensUsed,
		ResponseTimeMs:    req.ResponseTimeMs,
		Resolved:          req.Resolved,
		SatisfactionScore: req.SatisfactionScore,
	}
	if err := h.analytics.Track(c.Request.Context(), event); err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("Track: failed to record usage event, tenant=%d error: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "usage recorded",
		"data":    gin.H{"requestId": requestID},
	})
}

func (h *UsageHandler) resolveTenantID(c *gin.Context) (uint, error) {
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		tenant, err := h.identity.Resolve(c.Request.Context(), service.Credential{APIKey: apiKey})
		if err != nil {
			return 0, err
		}
		return tenant.ID, nil
	}
	if raw := c.Query("tenantId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, service.ErrValidation
		}
		return uint(id), nil
	}
	return 0, service.ErrUnauthenticated
}

func writeUsageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
	case errors.Is(err, service.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
