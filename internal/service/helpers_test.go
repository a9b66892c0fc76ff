package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/pkg/email"
	"github.com/qs3c/toolbox_server/internal/pkg/pubsub"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Mode = "release"
	cfg.Server.FrontendURL = "http://localhost:3000"
	cfg.JWT.Secret = "test-secret-key-for-testing"
	cfg.Entitlement.SerializeStarts = true
	return cfg
}

type testEnv struct {
	db  *gorm.DB
	cfg *config.Config

	userRepo    *repository.UserRepository
	tokenRepo   *repository.RefreshTokenRepository
	planRepo    *repository.PlanRepository
	toolRepo    *repository.ToolRepository
	subRepo     *repository.SubscriptionRepository
	paymentRepo *repository.PaymentRepository
	usageRepo   *repository.UsageRepository
	logRepo     *repository.SystemLogRepository

	logs      *LogService
	quota     *QuotaService
	usage     *UsageService
	publisher *fakePublisher
	notifier  *fakeNotifier
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	env := &testEnv{
		db:          db,
		cfg:         testConfig(),
		userRepo:    repository.NewUserRepository(db),
		tokenRepo:   repository.NewRefreshTokenRepository(db),
		planRepo:    repository.NewPlanRepository(db),
		toolRepo:    repository.NewToolRepository(db),
		subRepo:     repository.NewSubscriptionRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		usageRepo:   repository.NewUsageRepository(db),
		logRepo:     repository.NewSystemLogRepository(db),
		publisher:   &fakePublisher{},
		notifier:    &fakeNotifier{},
	}
	env.logs = NewLogService(env.logRepo)
	env.quota = NewQuotaService(db, env.planRepo, env.subRepo, env.toolRepo, env.usageRepo, env.cfg)
	env.usage = NewUsageService(db, env.userRepo, env.toolRepo, env.usageRepo, env.quota, env.publisher, env.cfg)
	return env
}

// at 固定各服务的当前时间
func (e *testEnv) at(now time.Time) {
	fn := func() time.Time { return now }
	e.quota.now = fn
	e.usage.now = fn
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*pubsub.UsageEvent
}

func (p *fakePublisher) PublishUsage(_ context.Context, ev *pubsub.UsageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) all() []*pubsub.UsageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pubsub.UsageEvent(nil), p.events...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []*email.Message
}

func (n *fakeNotifier) Push(_ context.Context, msg *email.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *fakeNotifier) kinds() []email.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]email.Kind, 0, len(n.messages))
	for _, m := range n.messages {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}
