package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/internal/pkg/response"
)

const rateLimitKeyPrefix = "toolbox:ratelimit:"

// RateLimiter 基于 Redis 的固定窗口限流，按 IP + 路由计数
type RateLimiter struct {
	rdb    *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{rdb: rdb, window: window, now: time.Now}
}

// Limit 返回限流中间件，scope 区分不同的限额
func (l *RateLimiter) Limit(scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		now := l.now()
		windowStart := now.Truncate(l.window)
		reset := windowStart.Add(l.window)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := fmt.Sprintf("%s%s:%s:%s:%d", rateLimitKeyPrefix, scope, c.ClientIP(), route, windowStart.Unix())

		count, err := l.incr(c.Request.Context(), key)
		if err != nil {
			// Redis 不可用时放行
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if int(count) > limit {
			retryAfter := int(reset.Sub(now).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.RateLimitError(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
