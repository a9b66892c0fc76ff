package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/toolbox_server/internal/pkg/jwt"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

const (
	IdentityKey = "identity"
)

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(IdentityKey, service.Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin})
		c.Next()
	}
}

// AdminOnly 仅管理员可访问，需放在 Auth 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if !id.IsAdmin {
			response.PermissionError(c, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetIdentity 从上下文获取调用方身份
func GetIdentity(c *gin.Context) (service.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return service.Identity{}, false
	}
	id, ok := value.(service.Identity)
	return id, ok
}
