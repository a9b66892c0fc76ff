package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/toolbox_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Record 记录支付，同一发票只记录一次，返回是否新增
func (r *PaymentRepository) Record(payment *model.Payment) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_invoice_id"}},
		DoNothing: true,
	}).Create(payment)
	return result.RowsAffected > 0, result.Error
}

func (r *PaymentRepository) ListByUser(userID int64, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("user_id = ?", userID).Order("paid_at DESC").Limit(limit).Find(&payments).Error
	return payments, err
}
