package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType 看板事件类型
type EventType string

const (
	EventDatasetLoaded     EventType = "dataset_loaded"
	EventTrainingCompleted EventType = "training_completed"
	EventModelReloaded     EventType = "model_reloaded"
	EventHeartbeat         EventType = "heartbeat"
	EventPong              EventType = "pong"
)

const (
	writeWait         = 10 * time.Second
	pingPeriod        = 30 * time.Second
	pongWait          = 60 * time.Second
	maxMessageSize    = 4096
	sendBufferSize    = 64
	HeartbeatInterval = 30 * time.Second
)

// Event 推送给看板的消息
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        string          `json:"id"`
}

// ClientMessage 客户端发来的控制消息
type ClientMessage struct {
	Type  string    `json:"type"` // subscribe / unsubscribe / ping
	Topic EventType `json:"topic,omitempty"`
}

// Client 一个看板连接。未订阅任何主题时接收全部事件
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[EventType]bool
}

func (c *Client) wants(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type outgoing struct {
	event   EventType
	payload []byte
	to      *Client
}

// DashboardHub 看板事件中心：数据加载、训练完成、模型重载
type DashboardHub struct {
	clients    map[*Client]bool
	broadcast  chan outgoing
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader

	Heartbeat time.Duration
	logger    *zap.Logger
	metrics   *MetricsCollector
}

// NewDashboardHub 创建事件中心，需调用 Run 启动
func NewDashboardHub(logger *zap.Logger, metrics *MetricsCollector) *DashboardHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outgoing, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		Heartbeat: HeartbeatInterval,
		logger:    logger.Named("dashboard-hub"),
		metrics:   metrics,
	}
}

// Run 事件循环，ctx 取消后关闭所有连接
func (h *DashboardHub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.Heartbeat)
	defer func() {
		heartbeat.Stop()
		close(h.done)
		h.logger.Info("dashboard hub stopped")
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(n)
			h.logger.Info("client connected", zap.String("client", client.id), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(n)
			h.logger.Info("client disconnected", zap.String("client", client.id), zap.Int("total", n))

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-heartbeat.C:
			payload, err := encodeEvent(EventHeartbeat, map[string]int{"clients": h.ClientCount()})
			if err == nil {
				h.deliver(outgoing{event: EventHeartbeat, payload: payload})
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(0)
			return
		}
	}
}

func (h *DashboardHub) deliver(msg outgoing) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if msg.to != nil && client != msg.to {
			continue
		}
		if msg.to == nil && !client.wants(msg.event) {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			// 慢客户端直接断开
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("dropping slow client", zap.String("client", client.id))
		}
	}
}

// Publish 广播事件；队列满或 hub 已停止时丢弃
func (h *DashboardHub) Publish(t EventType, data any) error {
	payload, err := encodeEvent(t, data)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.broadcast <- outgoing{event: t, payload: payload}:
	default:
		h.logger.Warn("broadcast queue is full, dropping event", zap.String("type", string(t)))
	}
	return nil
}

// ClientCount 当前连接数
func (h *DashboardHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP 升级为 websocket 并注册客户端
func (h *DashboardHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[EventType]bool),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *DashboardHub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *DashboardHub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		h.handleClientMessage(c, msg)
	}
}

func (h *DashboardHub) handleClientMessage(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.subscriptions[msg.Topic] = true
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subscriptions, msg.Topic)
		c.mu.Unlock()
	case "ping":
		payload, err := encodeEvent(EventPong, nil)
		if err != nil {
			return
		}
		select {
		case h.broadcast <- outgoing{event: EventPong, payload: payload, to: c}:
		case <-h.done:
		}
	default:
		h.logger.Debug("unknown client message", zap.String("client", c.id), zap.String("type", msg.Type))
	}
}

func encodeEvent(t EventType, data any) ([]byte, error) {
	ev := Event{Type: t, Timestamp: time.Now().UTC(), ID: uuid.NewString()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s event: %w", t, err)
		}
		ev.Data = raw
	}
	return json.Marshal(ev)
}
