package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"exam_center_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	monitorWriteWait  = 10 * time.Second
	monitorPongWait   = 60 * time.Second
	monitorPingPeriod = (monitorPongWait * 9) / 10
)

var monitorUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MonitorHub 阅卷实时监控：把 redis 上的阅卷/考试事件广播给在线的运维端，
// 替代旧系统对结果目录的周期全量扫描。
type MonitorHub struct {
	Redis *redis.Client

	mu      sync.RWMutex
	clients map[*monitorClient]bool

	cancel context.CancelFunc
}

type monitorClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewMonitorHub(rdb *redis.Client) *MonitorHub {
	return &MonitorHub{
		Redis:   rdb,
		clients: make(map[*monitorClient]bool),
	}
}

// Run 订阅事件频道并转发给所有在线客户端
func (h *MonitorHub) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	pubsub := h.Redis.Subscribe(ctx, GradingEventChannel, ExamEventChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.broadcast(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
}

func (h *MonitorHub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

type monitorFrame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

func (h *MonitorHub) broadcast(channel string, payload []byte) {
	frame, err := json.Marshal(monitorFrame{Channel: channel, Payload: payload, Time: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// 慢客户端直接丢帧，不阻塞广播
		}
	}
}

// ServeWS 把 HTTP 连接升级为监控 websocket
func (h *MonitorHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := monitorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("monitor websocket upgrade failed", zap.Error(err))
		return
	}

	client := &monitorClient{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go client.writePump()
	go h.readPump(client)
}

func (h *MonitorHub) readPump(c *monitorClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(monitorPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(monitorPongWait))
		return nil
	})
	for {
		// 监控端是纯下行通道，收到的消息一律忽略
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *monitorClient) writePump() {
	ticker := time.NewTicker(monitorPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(monitorWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(monitorWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
