package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/api"
	"github.com/qs3c/toolbox_server/internal/api/handler"
	"github.com/qs3c/toolbox_server/internal/api/middleware"
	"github.com/qs3c/toolbox_server/internal/database"
	"github.com/qs3c/toolbox_server/internal/pkg/cron"
	"github.com/qs3c/toolbox_server/internal/pkg/logger"
	"github.com/qs3c/toolbox_server/internal/pkg/metrics"
	"github.com/qs3c/toolbox_server/internal/pkg/oauth"
	"github.com/qs3c/toolbox_server/internal/pkg/payment"
	"github.com/qs3c/toolbox_server/internal/pkg/pubsub"
	"github.com/qs3c/toolbox_server/internal/pkg/queue"
	"github.com/qs3c/toolbox_server/internal/pkg/ws"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/service"
)

const shutdownTimeout = 10 * time.Second

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
	logger.Init(cfg.Log, "server")

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	log.Info().Msg("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	m := metrics.Get()
	emailQueue := queue.NewQueue(rdb, cfg.Queue.EmailQueue)
	publisher := pubsub.NewPublisher(rdb)
	wsHub := ws.NewHub()

	// 支付平台（可选），未配置时结账相关接口返回配置错误
	var gateway service.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		stripeGateway, err := payment.NewStripeGateway(&cfg.Stripe)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init stripe gateway")
		}
		gateway = stripeGateway
	} else {
		log.Warn().Msg("stripe secret key not set, checkout disabled")
	}

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	planRepo := repository.NewPlanRepository(db)
	toolRepo := repository.NewToolRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	logRepo := repository.NewSystemLogRepository(db)

	// 初始化 Service
	logService := service.NewLogService(logRepo)
	planService := service.NewPlanService(planRepo, cfg)
	quotaService := service.NewQuotaService(db, planRepo, subRepo, toolRepo, usageRepo, cfg)
	usageService := service.NewUsageService(db, userRepo, toolRepo, usageRepo, quotaService, publisher, cfg)
	toolService := service.NewToolService(toolRepo)
	authService := service.NewAuthService(userRepo, tokenRepo, oauth.NewGithubOAuth(&cfg.OAuth.Github),
		oauth.NewStateStore(rdb), emailQueue, logService, cfg)
	userService := service.NewUserService(userRepo, tokenRepo, usageRepo, logService)
	subscriptionService := service.NewSubscriptionService(db, userRepo, planRepo, subRepo, paymentRepo,
		quotaService, gateway, emailQueue, logService, cfg)
	adminService := service.NewAdminService(userRepo, tokenRepo, toolRepo, subRepo, usageRepo, quotaService, logService)

	// Free 套餐是权益判定的兜底，启动时确保存在
	if _, err := planService.EnsureFreePlan(); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure free plan")
	}

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewToolHandler(quotaService, usageService, toolService),
		handler.NewPlanHandler(planService),
		handler.NewSubscriptionHandler(subscriptionService),
		handler.NewAdminHandler(adminService, logService),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins),
		middleware.NewRateLimiter(rdb, time.Minute),
		m,
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// 多实例部署时通过 Redis 转发调用事件到持有连接的实例
	g.Go(func() error {
		err := pubsub.NewSubscriber(rdb).Subscribe(ctx, wsHub.Forward)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	cronService := cron.NewService(subscriptionService, cfg.Cron.ExpireInterval, cfg.Cron.ReconcileInterval)
	cronService.Start()
	g.Go(func() error {
		<-ctx.Done()
		cronService.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server shutdown complete")
}
