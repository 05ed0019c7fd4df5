package model

import "time"

type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TopicID     uint      `gorm:"not null;index" json:"topic_id"`
	Topic       Topic     `gorm:"foreignKey:TopicID" json:"topic,omitempty"`
	Title       string    `gorm:"size:500;not null" json:"title"`
	Content     string    `gorm:"type:text" json:"content"`
	Link        string    `gorm:"size:500;not null" json:"link"`
	UID         string    `gorm:"size:255;uniqueIndex;not null" json:"uid"`
	PublishedAt time.Time `json:"published_at"`
	IsPushed    bool      `gorm:"default:false" json:"is_pushed"`
	CreatedAt   time.Time `json:"created_at"`
}
