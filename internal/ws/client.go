package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope written to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Request is what clients send to manage their subscriptions.
type Request struct {
	Action       string `json:"action"` // "subscribe" or "unsubscribe"
	Table        string `json:"table"`
	ConfessionID string `json:"confession_id"`
}

// Client is one websocket connection and the subscriptions it owns.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[Filter]*Subscription
	once   sync.Once
}

// ServeWs upgrades the request and starts the client's pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[Filter]*Subscription),
	}
	if !hub.addClient(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// shutdown releases every subscription and stops the write pump.
func (c *Client) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		for f, s := range c.subs {
			s.Close()
			delete(c.subs, f)
		}
		close(c.send)
	})
}

// deliver queues msg without blocking. A client that cannot keep up is
// disconnected.
func (c *Client) deliver(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error("marshal websocket message", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.log.Warn("dropping slow websocket client")
		c.conn.Close()
	}
}

func (c *Client) handle(req Request) {
	f := Filter{Table: req.Table, ConfessionID: req.ConfessionID}
	if !Subscribable(f.Table) {
		c.deliver(Message{Type: "error", Data: "unknown table"})
		return
	}

	switch req.Action {
	case "subscribe":
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if _, exists := c.subs[f]; !exists {
			c.subs[f] = c.hub.Subscribe(f, func(e Event) {
				c.deliver(Message{Type: "change", Data: e})
			})
		}
		c.mu.Unlock()
		c.deliver(Message{Type: "subscribed", Data: f})
	case "unsubscribe":
		c.mu.Lock()
		if s, ok := c.subs[f]; ok {
			s.Close()
			delete(c.subs, f)
		}
		c.mu.Unlock()
		c.deliver(Message{Type: "unsubscribed", Data: f})
	default:
		c.deliver(Message{Type: "error", Data: "unknown action"})
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read failed", zap.Error(err))
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.deliver(Message{Type: "error", Data: "invalid request"})
				continue
			}
			return
		}
		c.handle(req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
