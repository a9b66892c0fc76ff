package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

type SystemLog struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	Level          string         `gorm:"size:20;not null;index" json:"level"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	Source         string         `gorm:"size:100" json:"source"`
	UserID         *int64         `gorm:"index" json:"user_id,omitempty"`
	AdditionalData datatypes.JSON `json:"additional_data,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string {
	return "system_logs"
}
