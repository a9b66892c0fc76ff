package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolIcon 工具图标，只允许固定取值
type ToolIcon string

const (
	IconChartBar ToolIcon = "chart-bar"
	IconFileText ToolIcon = "file-text"
	IconImage    ToolIcon = "image"
	IconGlobe    ToolIcon = "globe"
	IconCode     ToolIcon = "code"
)

var toolIcons = []ToolIcon{IconChartBar, IconFileText, IconImage, IconGlobe, IconCode}

// ToolIcons 返回全部合法图标
func ToolIcons() []ToolIcon {
	out := make([]ToolIcon, len(toolIcons))
	copy(out, toolIcons)
	return out
}

// ParseToolIcon 解析图标，非法值返回错误
func ParseToolIcon(s string) (ToolIcon, error) {
	for _, icon := range toolIcons {
		if string(icon) == s {
			return icon, nil
		}
	}
	return "", fmt.Errorf("invalid tool icon %q", s)
}

func (i ToolIcon) Valid() bool {
	_, err := ParseToolIcon(string(i))
	return err == nil
}

func (i *ToolIcon) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	icon, err := ParseToolIcon(s)
	if err != nil {
		return err
	}
	*i = icon
	return nil
}

type Tool struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        ToolIcon  `gorm:"size:20;not null;default:code" json:"icon"`
	IsActive    bool      `gorm:"default:true;index" json:"is_active"`
	IsPremium   bool      `gorm:"default:false" json:"is_premium"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Tool) TableName() string {
	return "tools"
}
