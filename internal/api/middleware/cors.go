package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/config"
)

var (
	defaultAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultAllowedHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
)

// CORS 跨域中间件，只放行配置中的 Origin
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultAllowedMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultAllowedHeaders
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			_, ok := allowed[origin]
			return ok
		},
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}
