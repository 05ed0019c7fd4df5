package service

import (
	"time"

	"gorm.io/gorm"

	"forum-monitor/internal/model"
)

type StatusService struct {
	db *gorm.DB
}

type SystemStats struct {
	// 订阅统计
	TopicsTotal  int64 `json:"topics_total"`
	ActiveTopics int64 `json:"active_topics"`

	// 帖子与日志统计
	PostsTotal int64 `json:"posts_total"`
	LogsTotal  int64 `json:"logs_total"`

	// 定时任务信息
	NextFetchTime time.Time `json:"next_fetch_time,omitzero"`
}

func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{db: db}
}

// GetSystemStats 获取系统统计
func (s *StatusService) GetSystemStats() (*SystemStats, error) {
	stats := &SystemStats{}

	s.db.Model(&model.Topic{}).Count(&stats.TopicsTotal)
	s.db.Model(&model.Topic{}).Where("is_active = ?", true).Count(&stats.ActiveTopics)
	s.db.Model(&model.Post{}).Count(&stats.PostsTotal)
	s.db.Model(&model.PushLog{}).Count(&stats.LogsTotal)

	return stats, nil
}
