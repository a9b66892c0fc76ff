package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelUsageEvents = "usage_events"

	TypeUsageUpdate = "usage_update"
)

// UsageEvent 工具调用状态变化，转发给用户的 WebSocket 连接
type UsageEvent struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id"`
	UsageID   int64     `json:"usage_id"`
	ToolID    int64     `json:"tool_id"`
	Status    string    `json:"status"`
	Remaining string    `json:"remaining_uses,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishUsage 发布调用状态变化
func (p *Publisher) PublishUsage(ctx context.Context, ev *UsageEvent) error {
	ev.Type = TypeUsageUpdate
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal usage event: %w", err)
	}
	return p.client.Publish(ctx, ChannelUsageEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅调用事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*UsageEvent)) error {
	sub := s.client.Subscribe(ctx, ChannelUsageEvents)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev UsageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue // 忽略解析错误
			}
			handler(&ev)
		}
	}
}
