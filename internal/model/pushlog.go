package model

import "time"

// 推送日志状态
const (
	PushStatusPending = "pending" // 预留给后续的推送/投递阶段
	PushStatusSuccess = "success"
	PushStatusFailed  = "failed"
)

type PushLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Post      Post      `gorm:"foreignKey:PostID" json:"post,omitempty"`
	Status    string    `gorm:"size:50;not null" json:"status"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
