package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"DataWalker/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量名。
const EnvConfigPath = "WALKER_CONFIG"

// Config 描述了 DataWalker 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Registry RegistryConfig `json:"registry"`
	Catalog  CatalogConfig  `json:"catalog"`
	Walker   WalkerConfig   `json:"walker"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Logging  logger.Config  `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述运行存储后端的连接信息。
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store"`
}

// RunStoreConfig 支持 memory、sqlite 与 mysql 三种驱动。
type RunStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述运行队列的驱动与连接参数。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	Workers  int            `json:"workers"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// RegistryConfig 指向模块与数据源的描述文件。
type RegistryConfig struct {
	ModulesFile string `json:"modules_file"`
	SourcesFile string `json:"sources_file"`
}

// CatalogConfig 指向外部模块目录的配置文件。
type CatalogConfig struct {
	ConfigFile string `json:"config_file"`
}

// WalkerConfig 控制分析周期的行为参数。
type WalkerConfig struct {
	MaxStrategies    int     `json:"max_strategies"`
	MinScore         float64 `json:"min_score"`
	WorkerCount      int     `json:"worker_count"`
	StepTimeoutSec   int     `json:"step_timeout_seconds"`
	SummaryInsights  int     `json:"summary_insights"`
	MaxRetries       int     `json:"max_retries"`
	MaxFollowupDepth int     `json:"max_followup_depth"`
}

// StepTimeout 把秒数换算为 time.Duration。
func (w WalkerConfig) StepTimeout() time.Duration {
	return time.Duration(w.StepTimeoutSec) * time.Second
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
// path 为空时回退到 WALKER_CONFIG 环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}

	if c.Registry.ModulesFile != "" && !filepath.IsAbs(c.Registry.ModulesFile) {
		c.Registry.ModulesFile = filepath.Join(baseDir, c.Registry.ModulesFile)
	}
	if c.Registry.SourcesFile != "" && !filepath.IsAbs(c.Registry.SourcesFile) {
		c.Registry.SourcesFile = filepath.Join(baseDir, c.Registry.SourcesFile)
	}
	if c.Catalog.ConfigFile != "" && !filepath.IsAbs(c.Catalog.ConfigFile) {
		c.Catalog.ConfigFile = filepath.Join(baseDir, c.Catalog.ConfigFile)
	}

	if c.Walker.MaxStrategies <= 0 {
		c.Walker.MaxStrategies = 5
	}
	if c.Walker.WorkerCount <= 0 {
		c.Walker.WorkerCount = 4
	}
	if c.Walker.StepTimeoutSec <= 0 {
		c.Walker.StepTimeoutSec = 30
	}
	if c.Walker.SummaryInsights <= 0 {
		c.Walker.SummaryInsights = 5
	}
	if c.Walker.MaxRetries <= 0 {
		c.Walker.MaxRetries = 3
	}
	if c.Walker.MaxFollowupDepth < 0 {
		c.Walker.MaxFollowupDepth = 0
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
