// Package logger 提供全局结构化日志,支持按大小滚动的文件输出。
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// L 全局logger实例
var L *zap.SugaredLogger

func init() {
	// Init之前使用默认配置,输出到stderr
	z, _ := zap.NewProduction()
	L = z.Sugar()
}

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	File       string // 日志文件路径,为空则只输出到控制台
	MaxSize    int    // 单个日志文件最大大小(MB)
	MaxBackups int    // 保留的旧文件数量
	MaxAge     int    // 旧文件保留天数
}

// Init 按配置初始化全局logger
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		if cfg.Level != "" {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var output io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    defaultInt(cfg.MaxSize, 64),
			MaxBackups: defaultInt(cfg.MaxBackups, 3),
			MaxAge:     defaultInt(cfg.MaxAge, 7),
			Compress:   true,
		}
		output = io.MultiWriter(os.Stderr, rotated)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(output),
		level,
	)
	L = zap.New(core).Sugar()
	return nil
}

// Sync 刷新缓冲区,退出前调用
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func Debugf(template string, args ...interface{}) { L.Debugf(template, args...) }

func Infof(template string, args ...interface{}) { L.Infof(template, args...) }

func Warnf(template string, args ...interface{}) { L.Warnf(template, args...) }

func Errorf(template string, args ...interface{}) { L.Errorf(template, args...) }
