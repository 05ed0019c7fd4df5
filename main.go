package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"forum-monitor/config"
	"forum-monitor/internal/fetcher"
	"forum-monitor/internal/handler"
	"forum-monitor/internal/logger"
	"forum-monitor/internal/model"
	"forum-monitor/internal/scheduler"
	"forum-monitor/internal/service"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		log.Fatal("Failed to init logger:", err)
	}
	defer logger.Sync()

	// 初始化数据库。TranslateError把驱动的唯一约束冲突翻译成gorm.ErrDuplicatedKey,
	// 去重逻辑依赖这一点
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("Failed to create data dir:", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path+"?_busy_timeout=5000"), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect database:", err)
	}

	// 自动迁移
	if err := db.AutoMigrate(&model.Topic{}, &model.Post{}, &model.PushLog{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// 初始化服务
	f := fetcher.New(cfg.Monitor.FetchTimeoutDuration())
	monitorSvc := service.NewMonitorService(db, f, cfg.Monitor.Workers)

	// 启动定时任务
	sched := scheduler.NewScheduler(monitorSvc, cfg.Monitor.Cron)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	// 初始化Gin
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()

	// 注册路由
	h := handler.NewHandler(db, monitorSvc, f)
	h.SetScheduler(sched)
	h.RegisterRoutes(r)

	// 启动服务
	logger.Infof("Server starting on %s", cfg.GetServerAddress())
	if err := r.Run(cfg.GetServerAddress()); err != nil {
		log.Fatal("Server stopped:", err)
	}
}
