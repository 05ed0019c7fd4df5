package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"forum-monitor/internal/fetcher"
	"forum-monitor/internal/model"
	"forum-monitor/internal/service"
)

type Handler struct {
	db        *gorm.DB
	monitor   *service.MonitorService
	status    *service.StatusService
	fetcher   *fetcher.Fetcher
	scheduler interface {
		GetNextFetchTime() time.Time
	}
}

func NewHandler(db *gorm.DB, monitor *service.MonitorService, f *fetcher.Fetcher) *Handler {
	return &Handler{
		db:      db,
		monitor: monitor,
		status:  service.NewStatusService(db),
		fetcher: f,
	}
}

// SetScheduler 设置调度器引用
func (h *Handler) SetScheduler(scheduler interface {
	GetNextFetchTime() time.Time
}) {
	h.scheduler = scheduler
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		// Topics
		api.GET("/topics", h.ListTopics)
		api.POST("/topics", h.CreateTopic)
		api.GET("/topics/:id", h.GetTopic)
		api.PUT("/topics/:id", h.UpdateTopic)
		api.DELETE("/topics/:id", h.DeleteTopic)

		// Posts / Logs
		api.GET("/posts", h.ListPosts)
		api.GET("/logs", h.ListLogs)

		// System
		api.GET("/system/stats", h.GetStats)
		api.POST("/fetch", h.TriggerFetch)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// pagination 解析skip/limit查询参数
func pagination(c *gin.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return skip, limit
}

func paginated(c *gin.Context, items interface{}, total int64, skip, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
		"skip":  skip,
		"limit": limit,
	})
}

// ===== Topic相关 =====

type TopicInput struct {
	Name     string   `json:"name" binding:"required"`
	Source   string   `json:"source" binding:"required"`
	FeedURL  string   `json:"feed_url" binding:"required"`
	Keywords []string `json:"keywords"`
	IsActive *bool    `json:"is_active"`
}

type TopicUpdate struct {
	Name     *string   `json:"name"`
	Source   *string   `json:"source"`
	FeedURL  *string   `json:"feed_url"`
	Keywords *[]string `json:"keywords"`
	IsActive *bool     `json:"is_active"`
}

func (h *Handler) ListTopics(c *gin.Context) {
	skip, limit := pagination(c)

	var total int64
	h.db.Model(&model.Topic{}).Count(&total)

	var topics []model.Topic
	h.db.Order("id ASC").Offset(skip).Limit(limit).Find(&topics)

	paginated(c, topics, total, skip, limit)
}

func (h *Handler) CreateTopic(c *gin.Context) {
	var input TopicInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.fetcher.Supported(input.Source) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported source: %s (supported: %s)",
				input.Source, strings.Join(h.fetcher.Sources(), ", ")),
		})
		return
	}

	topic := model.Topic{
		Name:     input.Name,
		Source:   strings.ToLower(input.Source),
		FeedURL:  input.FeedURL,
		Keywords: model.StringList(input.Keywords),
		IsActive: true,
	}
	if input.IsActive != nil {
		topic.IsActive = *input.IsActive
	}

	if err := h.db.Create(&topic).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic with the same name already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, topic)
}

func (h *Handler) GetTopic(c *gin.Context) {
	var topic model.Topic
	if err := h.db.First(&topic, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (h *Handler) UpdateTopic(c *gin.Context) {
	var topic model.Topic
	if err := h.db.First(&topic, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
		return
	}

	var input TopicUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Source != nil {
		if !h.fetcher.Supported(*input.Source) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unsupported source: %s (supported: %s)",
					*input.Source, strings.Join(h.fetcher.Sources(), ", ")),
			})
			return
		}
		updates["source"] = strings.ToLower(*input.Source)
	}
	if input.FeedURL != nil {
		updates["feed_url"] = *input.FeedURL
	}
	if input.Keywords != nil {
		updates["keywords"] = model.StringList(*input.Keywords)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := h.db.Model(&topic).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "topic with the same name already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.db.First(&topic, topic.ID)
	}

	c.JSON(http.StatusOK, topic)
}

func (h *Handler) DeleteTopic(c *gin.Context) {
	var topic model.Topic
	if err := h.db.First(&topic, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
		return
	}

	// 级联清理该订阅的帖子及其日志
	err := h.db.Transaction(func(tx *gorm.DB) error {
		postIDs := tx.Model(&model.Post{}).Select("id").Where("topic_id = ?", topic.ID)
		if err := tx.Where("post_id IN (?)", postIDs).Delete(&model.PushLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("topic_id = ?", topic.ID).Delete(&model.Post{}).Error; err != nil {
			return err
		}
		return tx.Delete(&topic).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// ===== Post相关 =====

func (h *Handler) ListPosts(c *gin.Context) {
	skip, limit := pagination(c)

	query := h.db.Model(&model.Post{})

	if topicID := c.Query("topic_id"); topicID != "" {
		query = query.Where("topic_id = ?", topicID)
	}
	if source := c.Query("source"); source != "" {
		query = query.Where("topic_id IN (?)",
			h.db.Model(&model.Topic{}).Select("id").Where("source = ?", source))
	}

	var total int64
	query.Count(&total)

	var posts []model.Post
	query.Preload("Topic").
		Order("created_at DESC, id DESC").
		Offset(skip).
		Limit(limit).
		Find(&posts)

	paginated(c, posts, total, skip, limit)
}

// ===== PushLog相关 =====

func (h *Handler) ListLogs(c *gin.Context) {
	skip, limit := pagination(c)

	query := h.db.Model(&model.PushLog{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var logs []model.PushLog
	query.Preload("Post").
		Order("created_at DESC, id DESC").
		Offset(skip).
		Limit(limit).
		Find(&logs)

	paginated(c, logs, total, skip, limit)
}

// ===== System相关 =====

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.status.GetSystemStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 添加定时任务信息
	if h.scheduler != nil {
		stats.NextFetchTime = h.scheduler.GetNextFetchTime()
	}

	c.JSON(http.StatusOK, stats)
}

// TriggerFetch 手动触发一轮抓取,语义与定时任务相同
func (h *Handler) TriggerFetch(c *gin.Context) {
	report, err := h.monitor.RunCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
