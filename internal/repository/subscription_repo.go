package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) Update(sub *model.Subscription) error {
	return r.db.Omit("Plan").Save(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Preload("Plan").Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByStripeID(stripeID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Preload("Plan").Where("stripe_subscription_id = ?", stripeID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetCurrent 获取用户当前未取消的订阅（最新的一条）
func (r *SubscriptionRepository) GetCurrent(userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Preload("Plan").
		Where("user_id = ? AND status <> ?", userID, model.SubscriptionCanceled).
		Order("start_date DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListLive 查询用户所有 active / trialing 订阅
func (r *SubscriptionRepository) ListLive(userID int64) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]model.SubscriptionStatus{model.SubscriptionActive, model.SubscriptionTrialing}).
		Find(&subs).Error
	return subs, err
}

// ListSyncable 查询需要与支付平台同步的订阅
func (r *SubscriptionRepository) ListSyncable() ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Preload("Plan").
		Where("status <> ? AND stripe_subscription_id IS NOT NULL", model.SubscriptionCanceled).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

// ListDueForExpiry 查询已到周期末且标记了周期末取消的订阅
func (r *SubscriptionRepository) ListDueForExpiry(now time.Time) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Where("status <> ? AND cancel_at_period_end = ? AND current_period_end <= ?",
		model.SubscriptionCanceled, true, now).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

// List 管理后台分页查询，status 为空时不过滤
func (r *SubscriptionRepository) List(page, pageSize int, status string) ([]*model.Subscription, int64, error) {
	var subs []*model.Subscription
	var total int64

	query := r.db.Model(&model.Subscription{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Preload("Plan").Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&subs).Error; err != nil {
		return nil, 0, err
	}

	return subs, total, nil
}

// CountByStatus 按状态统计订阅数
func (r *SubscriptionRepository) CountByStatus() (map[model.SubscriptionStatus]int64, error) {
	var rows []struct {
		Status model.SubscriptionStatus
		Count  int64
	}
	err := r.db.Model(&model.Subscription{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[model.SubscriptionStatus]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Count
	}
	return result, nil
}
