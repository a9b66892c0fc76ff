// Package payment 封装支付方（Stripe）的调用，对外只暴露本项目需要的字段。
package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/toolbox_server/internal/model"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	UserID     int64
	PlanID     int64
	Interval   model.BillingInterval
	TrialDays  int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CompletedCheckout 查询到的结账会话
type CompletedCheckout struct {
	ID           string
	Complete     bool
	CustomerID   string
	Metadata     map[string]string
	Subscription *Subscription
}

// Subscription 支付方的订阅快照
type Subscription struct {
	ID                string
	CustomerID        string
	Status            model.SubscriptionStatus
	RawStatus         string
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
	LatestInvoice     *Invoice
}

type Invoice struct {
	ID       string
	Paid     bool
	Amount   decimal.Decimal
	Currency string
	PaidAt   time.Time
}

// MapStatus 将支付方的订阅状态归并到本地四种状态
func MapStatus(raw string) model.SubscriptionStatus {
	switch strings.ToLower(raw) {
	case "trialing":
		return model.SubscriptionTrialing
	case "active":
		return model.SubscriptionActive
	case "canceled", "incomplete_expired":
		return model.SubscriptionCanceled
	default:
		// past_due, unpaid, incomplete, paused
		return model.SubscriptionPastDue
	}
}

// ToMinorUnits 金额转为最小货币单位（分）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits 最小货币单位转为金额
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
