package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedToolLimit 表示不限次数
const UnlimitedToolLimit = -1

type Plan struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	Name               string          `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description        string          `gorm:"type:text" json:"description"`
	PriceMonthly       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price_monthly"`
	PriceYearly        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price_yearly"`
	ToolLimit          int             `gorm:"not null;default:-1" json:"tool_limit"`
	Features           StringArray     `gorm:"type:json" json:"features"`
	IsActive           bool            `gorm:"default:true;index" json:"is_active"`
	StripeProductID    string          `gorm:"size:100" json:"-"`
	StripePriceMonthly string          `gorm:"column:stripe_price_id_monthly;size:100" json:"-"`
	StripePriceYearly  string          `gorm:"column:stripe_price_id_yearly;size:100" json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// IsUnlimited 是否不限次数
func (p *Plan) IsUnlimited() bool {
	return p.ToolLimit == UnlimitedToolLimit
}

// PriceID 返回对应计费周期的 Stripe price id
func (p *Plan) PriceID(interval BillingInterval) string {
	if interval == BillingYearly {
		return p.StripePriceYearly
	}
	return p.StripePriceMonthly
}
