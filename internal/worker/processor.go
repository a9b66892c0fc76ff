package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/toolbox_server/internal/pkg/email"
)

const popTimeout = 5 * time.Second

// Sender 邮件发送
type Sender interface {
	Send(ctx context.Context, msg *email.Message) error
}

// Queue 邮件队列
type Queue interface {
	Push(ctx context.Context, msg *email.Message) error
	Pop(ctx context.Context, timeout time.Duration) (*email.Message, error)
}

// Processor 邮件任务处理器
type Processor struct {
	queue       Queue
	sender      Sender
	maxAttempts int
}

// NewProcessor 创建邮件任务处理器
func NewProcessor(queue Queue, sender Sender, maxAttempts int) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Processor{
		queue:       queue,
		sender:      sender,
		maxAttempts: maxAttempts,
	}
}

// Process 发送一封邮件，失败时重新入队直到达到最大次数
func (p *Processor) Process(ctx context.Context, msg *email.Message) error {
	err := p.sender.Send(ctx, msg)
	if err == nil {
		log.Info().Str("kind", string(msg.Kind)).Str("to", msg.To).Msg("email sent")
		return nil
	}

	msg.Attempts++
	logger := log.With().Str("kind", string(msg.Kind)).Str("to", msg.To).Int("attempts", msg.Attempts).Logger()

	// 模板不存在时重试没有意义
	if errors.Is(err, email.ErrUnknownKind) || msg.Attempts >= p.maxAttempts {
		logger.Error().Err(err).Msg("email dropped")
		return err
	}

	if pushErr := p.queue.Push(ctx, msg); pushErr != nil {
		logger.Error().Err(pushErr).Msg("failed to requeue email")
		return pushErr
	}
	logger.Warn().Err(err).Msg("email send failed, requeued")
	return err
}

// Run 启动 workers 个消费协程，ctx 取消后返回
func (p *Processor) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			p.consume(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) consume(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker", workerID).Msg("worker shutting down")
			return
		default:
		}

		msg, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("failed to pop email")
			// 队列异常时稍作等待，避免空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}

		_ = p.Process(ctx, msg)
	}
}
