package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/database"
	"github.com/qs3c/toolbox_server/internal/pkg/email"
	"github.com/qs3c/toolbox_server/internal/pkg/logger"
	"github.com/qs3c/toolbox_server/internal/pkg/oss"
	"github.com/qs3c/toolbox_server/internal/pkg/queue"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/service"
	"github.com/qs3c/toolbox_server/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Log, "worker")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	emailQueue := queue.NewQueue(rdb, cfg.Queue.EmailQueue)
	processor := worker.NewProcessor(emailQueue, email.NewService(&cfg.Email), cfg.Queue.MaxAttempts)

	// 创建 context 用于优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("max_workers", cfg.Queue.MaxWorkers).Msg("email worker started")
		return processor.Run(ctx, cfg.Queue.MaxWorkers)
	})

	// 日志归档需要数据库和 OSS（可选）
	if cfg.Cron.ArchiveInterval > 0 && cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn().Err(err).Msg("failed to init OSS client, log archiving disabled")
		} else {
			db, err := database.NewMySQL(&cfg.Database)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect database")
			}
			logs := service.NewLogService(repository.NewSystemLogRepository(db))
			archiver := worker.NewArchiver(logs, ossClient, cfg.Cron.LogRetention, cfg.Cron.ArchiveInterval)
			g.Go(func() error {
				archiver.Start(ctx)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
	}
	log.Info().Msg("worker shutdown complete")
}
