package handler

import (
	"errors"
	"io"
	"net/http"

	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// BillingHandler receives payment-provider webhooks.
type BillingHandler struct {
	billing service.BillingService
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(billing service.BillingService) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// Webhook handles POST /api/v1/payments/webhook. The signature covers the
// raw body, so the body is read before any JSON parsing.
func (h *BillingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if err := h.billing.VerifySignature(body, signature); err != nil {
		log.Warnf("webhook rejected: bad signature from %s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := h.billing.HandleEvent(body); err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
			return
		}
		// a 500 makes the provider retry the delivery
		log.Errorf("webhook processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok"})
}
