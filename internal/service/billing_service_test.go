package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"comerse-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.PaymentOrder
}

func newFakeOrderRepo(orders ...*model.PaymentOrder) *fakeOrderRepo {
	m := make(map[string]*model.PaymentOrder)
	for _, o := range orders {
		m[o.ID] = o
	}
	return &fakeOrderRepo{orders: m}
}

func (r *fakeOrderRepo) Create(o *model.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) FindByID(id string) (*model.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) UpdateStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.Status = status
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc := NewBillingService(newFakeTenantRepo(), newFakeOrderRepo(), "topsecret")
	body := []byte(`{"event_type":"payment.completed"}`)

	require.NoError(t, svc.VerifySignature(body, sign("topsecret", body)))
	require.ErrorIs(t, svc.VerifySignature(body, sign("wrongsecret", body)), ErrBadSignature)
	require.ErrorIs(t, svc.VerifySignature(body, "deadbeef"), ErrBadSignature)
	require.ErrorIs(t, svc.VerifySignature(body, ""), ErrBadSignature)
}

func TestHandleEvent_PaymentCompleted(t *testing.T) {
	tenant := &model.Tenant{ID: 1, SubscriptionTier: "trial", UsageLimit: 50}
	tenantRepo := newFakeTenantRepo(tenant)
	orderRepo := newFakeOrderRepo(&model.PaymentOrder{ID: "ord-1", TenantID: 1, Plan: "pro", Status: "pending"})
	svc := NewBillingService(tenantRepo, orderRepo, "s")

	err := svc.HandleEvent([]byte(`{"event_type":"payment.completed","order_id":"ord-1"}`))
	require.NoError(t, err)

	order, _ := orderRepo.FindByID("ord-1")
	assert.Equal(t, "completed", order.Status)
	assert.Equal(t, "pro", tenant.SubscriptionTier)
	assert.Equal(t, "active", tenant.SubscriptionStatus)
	assert.Equal(t, int64(2000), tenant.UsageLimit)
}

func TestHandleEvent_PaymentFailed(t *testing.T) {
	tenant := &model.Tenant{ID: 1, SubscriptionTier: "trial", UsageLimit: 50}
	tenantRepo := newFakeTenantRepo(tenant)
	orderRepo := newFakeOrderRepo(&model.PaymentOrder{ID: "ord-2", TenantID: 1, Plan: "starter", Status: "pending"})
	svc := NewBillingService(tenantRepo, orderRepo, "s")

	err := svc.HandleEvent([]byte(`{"event_type":"payment.failed","order_id":"ord-2"}`))
	require.NoError(t, err)

	order, _ := orderRepo.FindByID("ord-2")
	assert.Equal(t, "failed", order.Status)
	// plan never changes on a failed payment
	assert.Equal(t, "trial", tenant.SubscriptionTier)
	assert.Equal(t, int64(50), tenant.UsageLimit)
}

func TestHandleEvent_SubscriptionCancelled(t *testing.T) {
	tenant := &model.Tenant{ID: 1, BillingCustomerID: "cust-1", SubscriptionTier: "pro", UsageLimit: 2000}
	svc := NewBillingService(newFakeTenantRepo(tenant), newFakeOrderRepo(), "s")

	err := svc.HandleEvent([]byte(`{"event_type":"subscription.cancelled","customer_id":"cust-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "trial", tenant.SubscriptionTier)
	assert.Equal(t, "cancelled", tenant.SubscriptionStatus)
	assert.Equal(t, int64(50), tenant.UsageLimit)
}

func TestHandleEvent_RecurringPayment(t *testing.T) {
	tenant := &model.Tenant{ID: 1, BillingCustomerID: "cust-2", SubscriptionTier: "starter", SubscriptionStatus: "active", UsageLimit: 500}
	svc := NewBillingService(newFakeTenantRepo(tenant), newFakeOrderRepo(), "s")

	require.NoError(t, svc.HandleEvent([]byte(`{"event_type":"recurring.payment.failed","customer_id":"cust-2"}`)))
	assert.Equal(t, "past_due", tenant.SubscriptionStatus)
	assert.Equal(t, "starter", tenant.SubscriptionTier)

	require.NoError(t, svc.HandleEvent([]byte(`{"event_type":"recurring.payment.success","customer_id":"cust-2"}`)))
	assert.Equal(t, "active", tenant.SubscriptionStatus)
	assert.Equal(t, int64(500), tenant.UsageLimit)
}

func TestHandleEvent_UnknownTypeAccepted(t *testing.T) {
	svc := NewBillingService(newFakeTenantRepo(), newFakeOrderRepo(), "s")
	require.NoError(t, svc.HandleEvent([]byte(`{"event_type":"something.new"}`)))
}

func TestHandleEvent_UnknownOrderAccepted(t *testing.T) {
	svc := NewBillingService(newFakeTenantRepo(), newFakeOrderRepo(), "s")
	require.NoError(t, svc.HandleEvent([]byte(`{"event_type":"payment.completed","order_id":"missing"}`)))
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	svc := NewBillingService(newFakeTenantRepo(), newFakeOrderRepo(), "s")
	require.ErrorIs(t, svc.HandleEvent([]byte(`not json`)), ErrValidation)
}
