package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/api/handler"
	"github.com/qs3c/toolbox_server/internal/api/middleware"
	"github.com/qs3c/toolbox_server/internal/pkg/metrics"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
)

type Router struct {
	authHandler         *handler.AuthHandler
	userHandler         *handler.UserHandler
	toolHandler         *handler.ToolHandler
	planHandler         *handler.PlanHandler
	subscriptionHandler *handler.SubscriptionHandler
	adminHandler        *handler.AdminHandler
	websocketHandler    *handler.WebSocketHandler
	limiter             *middleware.RateLimiter
	metrics             *metrics.Metrics
	cfg                 *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	toolHandler *handler.ToolHandler,
	planHandler *handler.PlanHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	limiter *middleware.RateLimiter,
	m *metrics.Metrics,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:         authHandler,
		userHandler:         userHandler,
		toolHandler:         toolHandler,
		planHandler:         planHandler,
		subscriptionHandler: subscriptionHandler,
		adminHandler:        adminHandler,
		websocketHandler:    websocketHandler,
		limiter:             limiter,
		metrics:             m,
		cfg:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog(r.metrics))
	engine.Use(middleware.CORS(r.cfg.CORS))

	// 运维接口
	engine.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := r.limiter
	if !r.cfg.RateLimit.Enabled {
		limiter = nil
	}

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		auth.Use(limiter.Limit("auth", r.cfg.RateLimit.AuthPerMin))
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.Refresh)
			auth.POST("/logout", r.authHandler.Logout)
			auth.POST("/verify-email", r.authHandler.VerifyEmail)
			auth.POST("/password-reset-request", r.authHandler.RequestPasswordReset)
			auth.POST("/reset-password", r.authHandler.ResetPassword)
			auth.GET("/github", r.authHandler.GithubAuth)
			auth.GET("/github/callback", r.authHandler.GithubCallback)
		}

		limited := api.Group("")
		limited.Use(limiter.Limit("api", r.cfg.RateLimit.RequestsPerMin))

		// 公开接口 - 套餐
		limited.GET("/plans", r.planHandler.ListPublic)

		// 需要认证的接口
		authenticated := limited.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
				user.GET("/activity", r.userHandler.Activity)
				user.GET("/stats", r.userHandler.Stats)
			}

			// 工具
			tools := authenticated.Group("/tools")
			{
				tools.GET("", r.toolHandler.List)
				tools.GET("/:id", r.toolHandler.Get)
				tools.POST("/:id/usage", r.toolHandler.StartUsage)
				tools.PUT("/:id/progress", r.toolHandler.SaveProgress)
				tools.GET("/:id/progress", r.toolHandler.GetProgress)
			}

			// 使用记录
			usage := authenticated.Group("/usage")
			{
				usage.GET("", r.toolHandler.History)
				usage.GET("/stats", r.toolHandler.UsageStats)
				usage.GET("/:id", r.toolHandler.GetUsage)
				usage.PUT("/:id", r.toolHandler.UpdateUsage)
			}

			// 订阅
			subs := authenticated.Group("/subscriptions")
			{
				subs.GET("/me", r.subscriptionHandler.Mine)
				subs.POST("/checkout", r.subscriptionHandler.Checkout)
				subs.POST("/confirm", r.subscriptionHandler.Confirm)
				subs.POST("/cancel", r.subscriptionHandler.Cancel)
				subs.POST("/reactivate", r.subscriptionHandler.Reactivate)
				subs.POST("/billing-portal", r.subscriptionHandler.BillingPortal)
			}

			// 管理后台
			admin := authenticated.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				admin.GET("/stats", r.adminHandler.Stats)
				admin.GET("/logs", r.adminHandler.Logs)

				admin.GET("/users", r.adminHandler.Users)
				admin.GET("/users/activity", r.adminHandler.UserActivity)
				admin.POST("/users/:id/activate", r.adminHandler.Activate)
				admin.POST("/users/:id/deactivate", r.adminHandler.Deactivate)
				admin.POST("/users/:id/make-admin", r.adminHandler.MakeAdmin)
				admin.POST("/users/:id/remove-admin", r.adminHandler.RemoveAdmin)

				admin.GET("/plans", r.planHandler.AdminList)
				admin.POST("/plans", r.planHandler.Create)
				admin.PUT("/plans/:id", r.planHandler.Update)
				admin.DELETE("/plans/:id", r.planHandler.Deactivate)

				admin.GET("/tools", r.toolHandler.AdminList)
				admin.GET("/tools/usage", r.adminHandler.ToolUsage)
				admin.POST("/tools", r.toolHandler.Create)
				admin.PUT("/tools/:id", r.toolHandler.Update)

				admin.GET("/subscriptions", r.subscriptionHandler.AdminList)
			}
		}
	}

	return engine
}
