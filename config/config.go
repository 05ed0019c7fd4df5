package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MonitorConfig struct {
	Cron         string `yaml:"cron"`          // 抓取周期
	FetchTimeout int    `yaml:"fetch_timeout"` // 单个源的抓取超时(秒)
	Workers      int    `yaml:"workers"`       // 并发处理的订阅数上限
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	// 默认配置
	cfg := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Path: "data/monitor.db",
		},
		Monitor: MonitorConfig{
			Cron:         "*/5 * * * *", // 每5分钟
			FetchTimeout: 15,
			Workers:      4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	// 如果配置文件存在,读取配置
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("config file not found: %s, using defaults", configPath)
	}

	// 环境变量覆盖配置
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if cron := os.Getenv("FETCH_CRON"); cron != "" {
		cfg.Monitor.Cron = cron
	}

	return cfg, nil
}

// FetchTimeoutDuration 抓取超时
func (m MonitorConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(m.FetchTimeout) * time.Second
}

// GetServerAddress 获取服务器监听地址
func (c *Config) GetServerAddress() string {
	// 如果端口是纯数字,加上冒号前缀
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}
