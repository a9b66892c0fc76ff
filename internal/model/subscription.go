package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type BillingInterval string

const (
	BillingMonthly BillingInterval = "monthly"
	BillingYearly  BillingInterval = "yearly"
)

type Subscription struct {
	ID                   int64              `gorm:"primaryKey" json:"id"`
	UserID               int64              `gorm:"not null;index" json:"user_id"`
	PlanID               int64              `gorm:"not null;index" json:"plan_id"`
	Status               SubscriptionStatus `gorm:"size:20;not null;index" json:"status"`
	BillingInterval      BillingInterval    `gorm:"size:20;not null;default:monthly" json:"billing_interval"`
	StartDate            time.Time          `gorm:"not null" json:"start_date"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	CurrentPeriodEnd     *time.Time         `gorm:"index" json:"current_period_end,omitempty"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	CancelAtPeriodEnd    bool               `gorm:"default:false" json:"cancel_at_period_end"`
	StripeSubscriptionID *string            `gorm:"size:100;uniqueIndex" json:"-"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`

	// 关联
	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsLive 是否为 active 或 trialing
func (s *Subscription) IsLive() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

type Payment struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	SubscriptionID  int64           `gorm:"not null;index" json:"subscription_id"`
	StripeInvoiceID string          `gorm:"size:100;uniqueIndex;not null" json:"-"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string          `gorm:"size:10;not null;default:usd" json:"currency"`
	Status          string          `gorm:"size:20;not null" json:"status"`
	PaidAt          time.Time       `json:"paid_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
