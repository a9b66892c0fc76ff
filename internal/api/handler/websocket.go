package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/internal/pkg/jwt"
	"github.com/qs3c/toolbox_server/internal/pkg/ws"
)

type WebSocketHandler struct {
	hub       *ws.Hub
	jwtSecret string
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler allowedOrigins 为空时不校验 Origin
func NewWebSocketHandler(hub *ws.Hub, jwtSecret string, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &WebSocketHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handle WebSocket 连接处理，推送使用记录状态变化
// GET /api/v1/ws?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("websocket upgrade failed")
		return
	}

	client := &ws.Client{
		UserID: claims.UserID,
		Conn:   conn,
	}
	h.hub.Register(client)

	// 只读取消息以检测断开
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
