package repository

import (
	"comerse-go/internal/model"

	"gorm.io/gorm"
)

// PaymentOrderRepository persists checkout orders settled by the billing
// webhook.
type PaymentOrderRepository interface {
	Create(o *model.PaymentOrder) error
	FindByID(id string) (*model.PaymentOrder, error)
	UpdateStatus(id, status string) error
}

type paymentOrderRepository struct {
	db *gorm.DB
}

// NewPaymentOrderRepository creates a gorm-backed PaymentOrderRepository.
func NewPaymentOrderRepository(db *gorm.DB) PaymentOrderRepository {
	return &paymentOrderRepository{db: db}
}

func (r *paymentOrderRepository) Create(o *model.PaymentOrder) error {
	return r.db.Create(o).Error
}

func (r *paymentOrderRepository) FindByID(id string) (*model.PaymentOrder, error) {
	var o model.PaymentOrder
	if err := r.db.Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *paymentOrderRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&model.PaymentOrder{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}
