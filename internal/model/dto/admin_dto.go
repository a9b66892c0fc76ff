package dto

import (
	"encoding/json"

	"github.com/qs3c/toolbox_server/internal/repository"
)

// AdminStatsResponse 管理后台概览
type AdminStatsResponse struct {
	TotalUsers            int64            `json:"total_users"`
	ActiveUsers           int64            `json:"active_users"`
	NewUsersThisMonth     int64            `json:"new_users_this_month"`
	TotalTools            int64            `json:"total_tools"`
	TotalUsage            int64            `json:"total_usage"`
	SubscriptionsByStatus map[string]int64 `json:"subscriptions_by_status"`
}

// AdminUserItem 管理后台用户列表项
type AdminUserItem struct {
	UserInfo
	Plan string `json:"plan"`
}

// AdminActivityResponse 用户活跃排行
type AdminActivityResponse struct {
	TopUsers []*repository.UserUsageCount `json:"top_users"`
}

// SystemLogItem 系统日志
type SystemLogItem struct {
	ID             int64           `json:"id"`
	Level          string          `json:"level"`
	Message        string          `json:"message"`
	Source         string          `json:"source"`
	UserID         *int64          `json:"user_id,omitempty"`
	AdditionalData json.RawMessage `json:"additional_data,omitempty"`
	CreatedAt      string          `json:"created_at"`
}
