package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/log"

	"gorm.io/gorm"
)

// ErrBadSignature rejects a webhook whose HMAC does not match the raw body.
var ErrBadSignature = errors.New("webhook signature mismatch")

// BillingService settles payment-provider webhook events against orders and
// tenant subscriptions. Events are processed at-least-once: every handler
// below is a state overwrite, so replays converge to the same row.
type BillingService interface {
	// VerifySignature checks the hex HMAC-SHA256 of the raw request body.
	VerifySignature(body []byte, signature string) error
	HandleEvent(body []byte) error
}

type billingService struct {
	tenantRepo repository.TenantRepository
	orderRepo  repository.PaymentOrderRepository
	secret     []byte
}

// NewBillingService creates a BillingService.
func NewBillingService(tenantRepo repository.TenantRepository, orderRepo repository.PaymentOrderRepository, webhookSecret string) BillingService {
	return &billingService{
		tenantRepo: tenantRepo,
		orderRepo:  orderRepo,
		secret:     []byte(webhookSecret),
	}
}

func (s *billingService) VerifySignature(body []byte, signature string) error {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

func (s *billingService) HandleEvent(body []byte) error {
	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook payload: %v", ErrValidation, err)
	}

	switch event.EventType {
	case "payment.completed":
		return s.settleOrder(&event, "completed")
	case "payment.failed":
		return s.settleOrder(&event, "failed")
	case "subscription.cancelled":
		return s.cancelSubscription(&event)
	case "recurring.payment.success":
		return s.renewSubscription(&event)
	case "recurring.payment.failed":
		return s.suspendSubscription(&event)
	default:
		// unknown event types are acknowledged so the provider stops retrying
		log.Warnf("ignoring unknown webhook event type: %s", event.EventType)
		return nil
	}
}

// settleOrder finalizes a checkout order. A completed payment also activates
// the plan the order was for.
func (s *billingService) settleOrder(event *model.WebhookEvent, status string) error {
	order, err := s.orderRepo.FindByID(event.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("webhook references unknown order: %s", event.OrderID)
			return nil
		}
		return fmt.Errorf("failed to load order %s: %w", event.OrderID, err)
	}

	if err := s.orderRepo.UpdateStatus(order.ID, status); err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}

	if status != "completed" {
		log.Infof("payment failed: order=%s tenant=%d", order.ID, order.TenantID)
		return nil
	}

	limit := model.PlanLimit(order.Plan)
	if err := s.tenantRepo.UpdateSubscription(order.TenantID, order.Plan, "active", limit); err != nil {
		return fmt.Errorf("failed to activate subscription for tenant %d: %w", order.TenantID, err)
	}
	log.Infof("subscription activated: tenant=%d plan=%s limit=%d", order.TenantID, order.Plan, limit)
	return nil
}

// cancelSubscription drops the tenant back to the trial tier at period end.
func (s *billingService) cancelSubscription(event *model.WebhookEvent) error {
	tenant, err := s.findTenant(event.CustomerID)
	if err != nil || tenant == nil {
		return err
	}
	if err := s.tenantRepo.UpdateSubscription(tenant.ID, "trial", "cancelled", model.PlanLimit("trial")); err != nil {
		return fmt.Errorf("failed to cancel subscription for tenant %d: %w", tenant.ID, err)
	}
	log.Infof("subscription cancelled: tenant=%d", tenant.ID)
	return nil
}

// renewSubscription reactivates the current tier after a successful recurring
// charge and restarts the usage period.
func (s *billingService) renewSubscription(event *model.WebhookEvent) error {
	tenant, err := s.findTenant(event.CustomerID)
	if err != nil || tenant == nil {
		return err
	}
	if err := s.tenantRepo.UpdateSubscription(tenant.ID, tenant.SubscriptionTier, "active", model.PlanLimit(tenant.SubscriptionTier)); err != nil {
		return fmt.Errorf("failed to renew subscription for tenant %d: %w", tenant.ID, err)
	}
	log.Infof("subscription renewed: tenant=%d plan=%s", tenant.ID, tenant.SubscriptionTier)
	return nil
}

// suspendSubscription marks the subscription past_due; the tier and limit are
// untouched until the provider cancels or the charge succeeds on retry.
func (s *billingService) suspendSubscription(event *model.WebhookEvent) error {
	tenant, err := s.findTenant(event.CustomerID)
	if err != nil || tenant == nil {
		return err
	}
	if err := s.tenantRepo.UpdateSubscription(tenant.ID, tenant.SubscriptionTier, "past_due", tenant.UsageLimit); err != nil {
		return fmt.Errorf("failed to suspend subscription for tenant %d: %w", tenant.ID, err)
	}
	log.Warnf("recurring payment failed, subscription past due: tenant=%d", tenant.ID)
	return nil
}

func (s *billingService) findTenant(customerID string) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.FindByBillingCustomerID(customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("webhook references unknown customer: %s", customerID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tenant for customer %s: %w", customerID, err)
	}
	return tenant, nil
}
