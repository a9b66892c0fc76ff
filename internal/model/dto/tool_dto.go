package dto

import (
	"encoding/json"

	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/model"
)

// ToolWithAccess 工具及当前用户的使用权限
type ToolWithAccess struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Icon        model.ToolIcon       `json:"icon"`
	IsActive    bool                 `json:"is_active"`
	IsPremium   bool                 `json:"is_premium"`
	Access      entitlement.Decision `json:"access"`
}

// ToolRequest 创建工具请求
type ToolRequest struct {
	Name        string         `json:"name" binding:"required,max=100"`
	Description string         `json:"description" binding:"max=2000"`
	Icon        model.ToolIcon `json:"icon" binding:"required"`
	IsActive    *bool          `json:"is_active,omitempty"`
	IsPremium   bool           `json:"is_premium"`
}

// UpdateToolRequest 更新工具请求
type UpdateToolRequest struct {
	Name        *string         `json:"name,omitempty" binding:"omitempty,max=100"`
	Description *string         `json:"description,omitempty" binding:"omitempty,max=2000"`
	Icon        *model.ToolIcon `json:"icon,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
	IsPremium   *bool           `json:"is_premium,omitempty"`
}

// StartUsageRequest 开始使用工具
type StartUsageRequest struct {
	InputData json.RawMessage `json:"input_data,omitempty"`
}

// UpdateUsageRequest 更新使用记录状态
type UpdateUsageRequest struct {
	Status     model.UsageStatus `json:"status" binding:"required,oneof=IN_PROGRESS COMPLETED FAILED"`
	ResultData json.RawMessage   `json:"result_data,omitempty"`
}

// SaveProgressRequest 保存草稿
type SaveProgressRequest struct {
	FormData json.RawMessage `json:"form_data" binding:"required"`
}

// UsageItem 使用记录
type UsageItem struct {
	ID          int64             `json:"id"`
	ToolID      int64             `json:"tool_id"`
	ToolName    string            `json:"tool_name,omitempty"`
	Status      model.UsageStatus `json:"status"`
	InputData   json.RawMessage   `json:"input_data,omitempty"`
	ResultData  json.RawMessage   `json:"result_data,omitempty"`
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// StartUsageResponse 开始使用的结果
type StartUsageResponse struct {
	Usage         *UsageItem            `json:"usage"`
	RemainingUses entitlement.Remaining `json:"remaining_uses"`
}

// ProgressResponse 草稿
type ProgressResponse struct {
	ToolID   int64           `json:"tool_id"`
	FormData json.RawMessage `json:"form_data"`
	SavedAt  string          `json:"saved_at"`
}

// ToolUsageSummary 本月单个工具的使用情况
type ToolUsageSummary struct {
	ToolID     int64                 `json:"tool_id"`
	ToolName   string                `json:"tool_name"`
	UsageCount int64                 `json:"usage_count"`
	Limit      entitlement.Remaining `json:"limit"`
	Remaining  entitlement.Remaining `json:"remaining"`
	IsPremium  bool                  `json:"is_premium"`
}

// SubscriptionSummary 用量页的订阅摘要
type SubscriptionSummary struct {
	Plan        string `json:"plan"`
	Status      string `json:"status"`
	RenewalDate string `json:"renewal_date,omitempty"`
}

// UsageStatsResponse 用量统计
type UsageStatsResponse struct {
	Subscription    SubscriptionSummary `json:"subscription"`
	UsageThisMonth  []*ToolUsageSummary `json:"usage_this_month"`
	TotalUsageCount int64               `json:"total_usage_count"`
}
