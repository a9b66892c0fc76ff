package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/internal/service"
)

// Archiver 后台定期把过期系统日志归档到对象存储
type Archiver struct {
	logs      *service.LogService
	store     service.ArchiveStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewArchiver 创建归档器
func NewArchiver(logs *service.LogService, store service.ArchiveStore, retention, interval time.Duration) *Archiver {
	return &Archiver{
		logs:      logs,
		store:     store,
		retention: retention,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start 启动归档循环，启动后先执行一次
func (a *Archiver) Start(ctx context.Context) {
	a.run(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("archiver stopped")
			return
		case <-ticker.C:
			a.run(ctx)
		}
	}
}

func (a *Archiver) run(ctx context.Context) {
	before := a.now().Add(-a.retention)
	result, err := a.logs.Archive(ctx, a.store, before, 0, false)
	if err != nil {
		log.Error().Err(err).Time("before", before).Msg("archive system logs failed")
		return
	}
	log.Debug().Int64("archived", result.Archived).Time("before", before).Msg("archive run finished")
}
