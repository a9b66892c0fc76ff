package model

import (
	"time"

	"gorm.io/datatypes"
)

type UsageStatus string

const (
	UsageStarted    UsageStatus = "STARTED"
	UsageInProgress UsageStatus = "IN_PROGRESS"
	UsageCompleted  UsageStatus = "COMPLETED"
	UsageFailed     UsageStatus = "FAILED"
)

// OpenUsageStatuses 可以继续流转的状态
var OpenUsageStatuses = []UsageStatus{UsageStarted, UsageInProgress}

// IsTerminal 是否为终态
func (s UsageStatus) IsTerminal() bool {
	return s == UsageCompleted || s == UsageFailed
}

// ToolUsage 一次工具调用记录，input/result 为不透明的 JSON 文档
type ToolUsage struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	UserID      int64          `gorm:"not null;index:idx_usage_user_tool_started,priority:1" json:"user_id"`
	ToolID      int64          `gorm:"not null;index:idx_usage_user_tool_started,priority:2" json:"tool_id"`
	Status      UsageStatus    `gorm:"size:20;not null;index" json:"status"`
	InputData   datatypes.JSON `json:"input_data,omitempty"`
	ResultData  datatypes.JSON `json:"result_data,omitempty"`
	StartedAt   time.Time      `gorm:"not null;index:idx_usage_user_tool_started,priority:3" json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	// 关联
	Tool *Tool `gorm:"foreignKey:ToolID" json:"tool,omitempty"`
}

func (ToolUsage) TableName() string {
	return "tool_usages"
}

// SavedProgress 每个用户每个工具一份草稿
type SavedProgress struct {
	ID       int64          `gorm:"primaryKey" json:"id"`
	UserID   int64          `gorm:"not null;uniqueIndex:idx_progress_user_tool,priority:1" json:"user_id"`
	ToolID   int64          `gorm:"not null;uniqueIndex:idx_progress_user_tool,priority:2" json:"tool_id"`
	FormData datatypes.JSON `json:"form_data"`
	SavedAt  time.Time      `gorm:"not null" json:"saved_at"`
}

func (SavedProgress) TableName() string {
	return "saved_progress"
}
