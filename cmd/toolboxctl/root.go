package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/database"
	"github.com/qs3c/toolbox_server/internal/pkg/logger"
	"github.com/qs3c/toolbox_server/internal/pkg/payment"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/service"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "toolboxctl",
		Short:         "Operator commands for the toolbox server",
		Long:          "toolboxctl seeds initial data, syncs plans to Stripe, reconciles subscriptions and archives old system logs.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to config.yaml")

	load := func() (*app, error) {
		return wireApp(configPath)
	}

	rootCmd.AddCommand(
		newSeedCmd(load),
		newStripeSyncCmd(load),
		newReconcileCmd(load),
		newArchiveLogsCmd(load),
	)
	return rootCmd
}

// app 命令共享的依赖
type app struct {
	cfg           *config.Config
	db            *gorm.DB
	logs          *service.LogService
	plans         *service.PlanService
	subscriptions *service.SubscriptionService
	seed          *service.SeedService
	gateway       *payment.StripeGateway
}

type loader func() (*app, error)

func wireApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log, "toolboxctl")

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{cfg: cfg, db: db}

	var gateway service.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		if a.gateway, err = payment.NewStripeGateway(&cfg.Stripe); err != nil {
			return nil, fmt.Errorf("init stripe: %w", err)
		}
		gateway = a.gateway
	}

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	toolRepo := repository.NewToolRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	a.logs = service.NewLogService(repository.NewSystemLogRepository(db))
	a.plans = service.NewPlanService(planRepo, cfg)
	quota := service.NewQuotaService(db, planRepo, subRepo, toolRepo, usageRepo, cfg)
	// CLI 不发送通知邮件
	a.subscriptions = service.NewSubscriptionService(db, userRepo, planRepo, subRepo,
		repository.NewPaymentRepository(db), quota, gateway, nil, a.logs, cfg)
	a.seed = service.NewSeedService(a.plans, planRepo, toolRepo, userRepo, cfg)
	return a, nil
}
