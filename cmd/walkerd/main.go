package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"DataWalker/internal/api"
	"DataWalker/internal/config"
	"DataWalker/internal/modules"
	"DataWalker/internal/observability/alerting"
	"DataWalker/internal/registry"
	"DataWalker/internal/run"
	"DataWalker/internal/walker"
	"DataWalker/pkg/capability"
	"DataWalker/pkg/logger"
)

// main 是 DataWalker 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx); err != nil {
		log.Fatalf("walkerd 运行失败: %v", err)
	}
}

func runDaemon(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "walker.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	reg := registry.New()
	catalog := capability.NewCatalog()
	if err := modules.RegisterBuiltins(catalog, reg); err != nil {
		return err
	}
	if cfg.Registry.ModulesFile != "" {
		if err := reg.LoadModules(cfg.Registry.ModulesFile); err != nil {
			return err
		}
	}
	if cfg.Registry.SourcesFile != "" {
		if err := reg.LoadSources(cfg.Registry.SourcesFile); err != nil {
			return err
		}
	}
	if cfg.Catalog.ConfigFile != "" {
		catalogCfg, err := capability.LoadCatalogConfig(cfg.Catalog.ConfigFile)
		if err != nil {
			return err
		}
		if err := catalog.LoadConfigured(catalogCfg); err != nil {
			return err
		}
	}

	runStore, err := createRunStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = runStore.Close() }()

	runQueue, err := createRunQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := runQueue.Close(); err != nil {
			logger.L().Warn("关闭运行队列失败", "error", err)
		}
	}()

	w := walker.New(reg, catalog,
		walker.WithMaxStrategies(cfg.Walker.MaxStrategies),
		walker.WithMinScore(cfg.Walker.MinScore),
		walker.WithWorkerCount(cfg.Walker.WorkerCount),
		walker.WithStepTimeout(cfg.Walker.StepTimeout()),
		walker.WithSummaryInsights(cfg.Walker.SummaryInsights),
	)

	runService := run.NewService(runStore, runQueue, cfg.Walker.MaxRetries)
	alerter := alerting.NewFanout(&alerting.LogNotifier{})
	processor := run.NewProcessor(w, runStore, runQueue, runQueue,
		run.WithProcessorWorkers(cfg.Queue.Workers),
		run.WithMaxFollowupDepth(cfg.Walker.MaxFollowupDepth),
		run.WithFollowupService(runService),
		run.WithAlertDispatcher(alerter),
		run.WithProcessorLogger(logger.Named("processor")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, runService)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createRunStore(cfg *config.Config) (run.Store, error) {
	switch cfg.Storage.RunStore.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Storage.RunStore.DSN
		if path == "" {
			path = filepath.Join(cfg.Runtime.DataDir, "walker.db")
		}
		return run.NewSQLiteStore(path)
	case "mysql":
		return run.NewMySQLStore(cfg.Storage.RunStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.RunStore.Driver)
	}
}

func createRunQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(1024), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: 5 * time.Second,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
