package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported StringArray source %T", value)
	}
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&Plan{},
		&Subscription{},
		&Payment{},
		&Tool{},
		&ToolUsage{},
		&SavedProgress{},
		&SystemLog{},
	}
}
