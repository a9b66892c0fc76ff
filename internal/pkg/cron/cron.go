package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SubscriptionMaintainer 订阅维护任务
type SubscriptionMaintainer interface {
	// ExpireDue 结束已到期的订阅，返回处理数量
	ExpireDue(ctx context.Context) (int, error)
	// Reconcile 与支付平台同步订阅状态，返回发生变更的数量
	Reconcile(ctx context.Context) (int, error)
}

type Service struct {
	subs              SubscriptionMaintainer
	expireInterval    time.Duration
	reconcileInterval time.Duration
	stopChan          chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
}

func NewService(subs SubscriptionMaintainer, expireInterval, reconcileInterval time.Duration) *Service {
	return &Service{
		subs:              subs,
		expireInterval:    expireInterval,
		reconcileInterval: reconcileInterval,
		stopChan:          make(chan struct{}),
	}
}

// Start 启动定时任务，间隔小于等于 0 的任务不启动
func (s *Service) Start() {
	if s.expireInterval > 0 {
		s.wg.Add(1)
		go s.loop("expire", s.expireInterval, s.expire)
	}
	if s.reconcileInterval > 0 {
		s.wg.Add(1)
		go s.loop("reconcile", s.reconcileInterval, s.reconcile)
	}
	log.Info().
		Dur("expire_interval", s.expireInterval).
		Dur("reconcile_interval", s.reconcileInterval).
		Msg("cron service started")
}

// Stop 停止定时任务并等待正在执行的任务结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	log.Info().Msg("cron service stopped")
}

func (s *Service) loop(name string, interval time.Duration, run func(context.Context) (int, error)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := run(ctx)
			cancel()
			if err != nil {
				log.Error().Err(err).Str("job", name).Msg("cron job failed")
				continue
			}
			if n > 0 {
				log.Info().Str("job", name).Int("affected", n).Msg("cron job completed")
			}
		}
	}
}

func (s *Service) expire(ctx context.Context) (int, error) {
	return s.subs.ExpireDue(ctx)
}

func (s *Service) reconcile(ctx context.Context) (int, error) {
	return s.subs.Reconcile(ctx)
}

// RunNow 立即执行一轮到期处理与同步（手动触发）
func (s *Service) RunNow(ctx context.Context) error {
	if _, err := s.subs.ExpireDue(ctx); err != nil {
		return err
	}
	_, err := s.subs.Reconcile(ctx)
	return err
}
