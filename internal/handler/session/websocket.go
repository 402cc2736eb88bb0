package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	sessionService "github.com/zhouzirui/shopally-web/backend/internal/service/session"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// feedConn 串行化对同一连接的写入
type feedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *feedConn) send(msgType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
}

func (c *feedConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleBasketFeed 通过 WebSocket 推送比较篮快照。任何标签页或实例修改比较篮后，
// 所有连接都会收到最新内容；客户端也可以发送 {"type":"toggle","data":<product>}。
func (h *Handler) handleBasketFeed(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	fc := &feedConn{conn: conn}
	updates, err := e.WatchBasket(ctx)
	if err != nil {
		_ = fc.send("error", map[string]string{"message": "basket feed unavailable"})
		h.logger.Warn("watch basket failed", zap.Error(err))
		return
	}

	go h.writeLoop(ctx, cancel, fc, updates)
	h.readLoop(ctx, fc, e)
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, fc *feedConn, updates <-chan []product.Product) {
	defer cancel()
	defer fc.conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case basket, ok := <-updates:
			if !ok {
				return
			}
			if err := fc.send("basket", basket); err != nil {
				return
			}
		case <-ticker.C:
			if err := fc.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, fc *feedConn, e *sessionService.Engine) {
	conn := fc.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("basket feed read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "toggle":
			var p product.Product
			if err := json.Unmarshal(msg.Data, &p); err != nil || p.ID == "" {
				_ = fc.send("error", map[string]string{"message": "invalid product payload"})
				continue
			}
			if _, err := e.ToggleCompare(ctx, p); err != nil {
				message := "toggle failed"
				if notice, ok := sessionService.AsNotice(err); ok {
					message = notice.Message
				}
				_ = fc.send("error", map[string]string{"message": message})
			}
		default:
			_ = fc.send("error", map[string]string{"message": "unsupported message type: " + msg.Type})
		}
	}
}
