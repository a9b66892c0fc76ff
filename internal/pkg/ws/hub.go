package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/internal/pkg/pubsub"
)

const writeWait = 5 * time.Second

// Hub 按用户管理 WebSocket 连接，一个用户可以有多个连接
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	log.Debug().Int64("user_id", client.UserID).Int("user_conns", len(h.clients[client.UserID])).Msg("ws connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	log.Debug().Int64("user_id", client.UserID).Msg("ws disconnected")
}

// SendToUser 向用户的所有连接发送消息，写失败的连接会被移除
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := h.clients[userID]
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("ws write failed")
			h.Unregister(c)
			c.Conn.Close()
		}
	}
	return nil
}

// Forward 将调用事件推送给对应用户
func (h *Hub) Forward(ev *pubsub.UsageEvent) {
	if err := h.SendToUser(ev.UserID, &Message{Type: ev.Type, Data: ev}); err != nil {
		log.Error().Err(err).Int64("usage_id", ev.UsageID).Msg("forward usage event failed")
	}
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
