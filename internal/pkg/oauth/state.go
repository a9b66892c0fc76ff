package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	stateKeyPrefix = "toolbox:oauth:state:"
	stateTTL       = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore 在 Redis 中保存 OAuth state，一次性使用
type StateStore struct {
	rdb *redis.Client
}

func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{rdb: rdb}
}

// Generate 生成 state 并记录登录完成后的跳转地址
func (s *StateStore) Generate(ctx context.Context, redirectURI string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, stateKeyPrefix+state, redirectURI, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return state, nil
}

// Consume 校验并删除 state，返回跳转地址
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	redirectURI, err := s.rdb.GetDel(ctx, stateKeyPrefix+state).Result()
	if err == redis.Nil {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state: %w", err)
	}
	return redirectURI, nil
}
