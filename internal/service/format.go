package service

import (
	"time"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/model/dto"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	return &dto.UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		FullName:      user.FullName,
		IsActive:      user.IsActive,
		IsAdmin:       user.IsAdmin,
		EmailVerified: user.EmailVerified,
		LastLoginAt:   formatTimePtr(user.LastLoginAt),
		CreatedAt:     formatTime(user.CreatedAt),
	}
}

func buildUsageItem(u *model.ToolUsage) *dto.UsageItem {
	item := &dto.UsageItem{
		ID:          u.ID,
		ToolID:      u.ToolID,
		Status:      u.Status,
		StartedAt:   formatTime(u.StartedAt),
		CompletedAt: formatTimePtr(u.CompletedAt),
	}
	if len(u.InputData) > 0 {
		item.InputData = []byte(u.InputData)
	}
	if len(u.ResultData) > 0 {
		item.ResultData = []byte(u.ResultData)
	}
	if u.Tool != nil {
		item.ToolName = u.Tool.Name
	}
	return item
}

func buildSubscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	info := &dto.SubscriptionInfo{
		ID:                sub.ID,
		UserID:            sub.UserID,
		Status:            string(sub.Status),
		BillingInterval:   string(sub.BillingInterval),
		StartDate:         formatTime(sub.StartDate),
		EndDate:           formatTimePtr(sub.EndDate),
		CurrentPeriodEnd:  formatTimePtr(sub.CurrentPeriodEnd),
		TrialEnd:          formatTimePtr(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Plan != nil {
		info.Plan = dto.NewPlanInfo(sub.Plan)
	}
	return info
}
