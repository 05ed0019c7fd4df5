package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"forum-monitor/internal/fetcher"
	"forum-monitor/internal/logger"
	"forum-monitor/internal/model"
)

// TopicFailure 单个订阅在本轮中的失败记录
type TopicFailure struct {
	TopicID uint   `json:"topic_id"`
	Topic   string `json:"topic"`
	Reason  string `json:"reason"`
}

// CycleReport 一轮抓取的统计结果
type CycleReport struct {
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	TopicsChecked  int            `json:"topics_checked"`
	EntriesFetched int            `json:"entries_fetched"`
	EntriesMatched int            `json:"entries_matched"`
	PostsCreated   int            `json:"posts_created"`
	Duplicates     int            `json:"duplicates"`
	Failures       []TopicFailure `json:"failures,omitempty"`
}

// MonitorService 执行订阅抓取的完整流水线:
// 抓取 → 归一化 → 关键词匹配 → 去重 → 落库
type MonitorService struct {
	db      *gorm.DB
	fetcher *fetcher.Fetcher
	workers int
}

func NewMonitorService(db *gorm.DB, f *fetcher.Fetcher, workers int) *MonitorService {
	if workers <= 0 {
		workers = 1
	}
	return &MonitorService{db: db, fetcher: f, workers: workers}
}

// RunCycle 处理所有启用的订阅。单个订阅的失败只计入报告,不会中断整轮;
// 只有加载订阅列表失败时整轮中止并返回错误(此时报告中处理数为零)。
func (s *MonitorService) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{StartedAt: time.Now()}

	var topics []model.Topic
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&topics).Error; err != nil {
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("load active topics: %w", err)
	}
	report.TopicsChecked = len(topics)

	// 订阅之间相互独立,标识键带来源前缀,不会跨订阅冲突
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, topic := range topics {
		topic := topic
		g.Go(func() error {
			s.processTopic(gctx, topic, report, &mu)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	return report, nil
}

func (s *MonitorService) processTopic(ctx context.Context, topic model.Topic, report *CycleReport, mu *sync.Mutex) {
	entries, err := s.fetcher.Fetch(ctx, topic.Source, topic.FeedURL)
	if err != nil {
		logger.Warnf("[monitor] fetch topic %q failed: %v", topic.Name, err)
		mu.Lock()
		report.Failures = append(report.Failures, TopicFailure{
			TopicID: topic.ID,
			Topic:   topic.Name,
			Reason:  err.Error(),
		})
		mu.Unlock()
		return
	}

	mu.Lock()
	report.EntriesFetched += len(entries)
	mu.Unlock()

	for _, entry := range entries {
		// 既无guid又无链接的条目没有可用的身份锚点,直接丢弃
		if entry.UID == "" {
			continue
		}

		// 未命中关键词的条目静默丢弃,不写日志
		if !fetcher.MatchKeywords(entry.Title+" "+entry.Content, topic.Keywords) {
			continue
		}
		mu.Lock()
		report.EntriesMatched++
		mu.Unlock()

		created, err := s.persistEntry(ctx, topic.ID, entry)
		if err != nil {
			// 存储不可用时放弃该订阅本轮剩余的写入,其他订阅不受影响;
			// 下一轮调度会自然补齐缺失的部分
			logger.Errorf("[monitor] persist %s failed: %v", entry.UID, err)
			mu.Lock()
			report.Failures = append(report.Failures, TopicFailure{
				TopicID: topic.ID,
				Topic:   topic.Name,
				Reason:  err.Error(),
			})
			mu.Unlock()
			return
		}

		mu.Lock()
		if created {
			report.PostsCreated++
		} else {
			report.Duplicates++
		}
		mu.Unlock()
	}
}

// persistEntry 先查重再插入。uid唯一索引是并发场景下的最终保证,
// 插入时的重复键冲突按"已存在"处理而不是错误。
func (s *MonitorService) persistEntry(ctx context.Context, topicID uint, entry fetcher.Entry) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("uid = ?", entry.UID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check uid: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	post := model.Post{
		TopicID:     topicID,
		Title:       entry.Title,
		Content:     entry.Content,
		Link:        entry.Link,
		UID:         entry.UID,
		PublishedAt: entry.PublishedAt,
	}

	// 帖子和成功日志在同一事务中写入
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		return tx.Create(&model.PushLog{
			PostID: post.ID,
			Status: model.PushStatusSuccess,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		s.recordFailure(ctx, entry.UID, err)
		return false, fmt.Errorf("insert post: %w", err)
	}
	return true, nil
}

// recordFailure 尽力写入失败日志。日志需要关联帖子,
// 只有该uid已有帖子时才有落点,否则失败只体现在报告中。
func (s *MonitorService) recordFailure(ctx context.Context, uid string, cause error) {
	var post model.Post
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&post).Error; err != nil {
		return
	}
	_ = s.db.WithContext(ctx).Create(&model.PushLog{
		PostID:  post.ID,
		Status:  model.PushStatusFailed,
		Message: cause.Error(),
	}).Error
}
