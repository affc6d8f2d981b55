package model

import "time"

// PaymentOrder is a checkout order created by the external payment flow and
// settled by the webhook handler.
type PaymentOrder struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenantId"`
	Plan      string    `gorm:"type:varchar(32);not null" json:"plan"`
	AmountCts int64     `gorm:"not null" json:"amountCents"`
	Status    string    `gorm:"type:varchar(32);not null;default:pending" json:"status"` // pending, completed, failed
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// WebhookEvent is the payment provider's event envelope.
type WebhookEvent struct {
	EventType  string `json:"event_type"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
}
