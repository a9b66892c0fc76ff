package dto

import "github.com/qs3c/toolbox_server/internal/model"

// CheckoutRequest 创建结账会话
type CheckoutRequest struct {
	PlanID          int64                 `json:"plan_id" binding:"required,min=1"`
	BillingInterval model.BillingInterval `json:"billing_interval" binding:"required,oneof=monthly yearly"`
}

// CheckoutResponse 结账跳转地址
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ConfirmCheckoutRequest 结账返回后确认
type ConfirmCheckoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// CancelRequest 取消订阅，默认在周期末取消
type CancelRequest struct {
	Immediately bool `json:"immediately"`
}

// BillingPortalRequest 账单管理
type BillingPortalRequest struct {
	ReturnURL string `json:"return_url" binding:"omitempty,url"`
}

// BillingPortalResponse 账单管理地址
type BillingPortalResponse struct {
	URL string `json:"url"`
}

// SubscriptionInfo 订阅信息
type SubscriptionInfo struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Plan              *PlanInfo `json:"plan"`
	Status            string    `json:"status"`
	BillingInterval   string    `json:"billing_interval"`
	StartDate         string    `json:"start_date"`
	EndDate           string    `json:"end_date,omitempty"`
	CurrentPeriodEnd  string    `json:"current_period_end,omitempty"`
	TrialEnd          string    `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

// MySubscriptionResponse 当前用户的订阅与生效套餐
type MySubscriptionResponse struct {
	Subscription  *SubscriptionInfo `json:"subscription"`
	EffectivePlan *PlanInfo         `json:"effective_plan"`
	Entitled      bool              `json:"entitled"`
}
