package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList 以JSON文本形式存储的字符串列表(关键词)
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			*l = StringList{}
			return nil
		}
		return json.Unmarshal(v, l)
	case string:
		if v == "" {
			*l = StringList{}
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan keywords from %T", value)
	}
}

type Topic struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Source    string     `gorm:"size:50;not null" json:"source"`
	FeedURL   string     `gorm:"size:500;not null" json:"feed_url"`
	Keywords  StringList `gorm:"type:text" json:"keywords"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
