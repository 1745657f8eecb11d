// Package ws delivers change notifications for confessions, likes and
// comments, both to in-process subscribers and to websocket clients.
package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Tables clients may watch.
const (
	TableConfessions = "confessions"
	TableLikes       = "confession_likes"
	TableComments    = "confession_comments"
)

// Subscribable reports whether table may be watched over the websocket.
func Subscribable(table string) bool {
	switch table {
	case TableConfessions, TableLikes, TableComments:
		return true
	}
	return false
}

// Event describes one row change.
type Event struct {
	Table        string    `json:"table"`
	Type         EventType `json:"type"`
	ConfessionID string    `json:"confessionId,omitempty"`
	Record       any       `json:"record,omitempty"`
}

// Filter selects events. Empty fields match anything.
type Filter struct {
	Table        string `json:"table"`
	ConfessionID string `json:"confessionId,omitempty"`
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	return f.ConfessionID == "" || f.ConfessionID == e.ConfessionID
}

// Subscription is a live registration. Close it when the watcher goes away.
type Subscription struct {
	id     uint64
	hub    *Hub
	filter Filter
	fn     func(Event)
	once   sync.Once
}

// Filter returns the filter the subscription was created with.
func (s *Subscription) Filter() Filter { return s.filter }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}

// Gauge is the subset of a prometheus gauge the hub reports client counts to.
type Gauge interface {
	Set(float64)
}

// Hub fans events out to subscribers and tracks websocket clients.
type Hub struct {
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]struct{}
	clientsN   Gauge
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithClientGauge reports the number of connected websocket clients.
func WithClientGauge(g Gauge) Option {
	return func(h *Hub) { h.clientsN = g }
}

func NewHub(log *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		log:        log,
		subs:       make(map[uint64]*Subscription),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe calls fn for every published event matching filter until the
// returned subscription is closed. fn runs on the publisher's goroutine and
// must not block.
func (h *Hub) Subscribe(filter Filter, fn func(Event)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, hub: h, filter: filter, fn: fn}
	h.subs[s.id] = s
	return s
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// SubscriberCount returns the number of open subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers e to every matching subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	matched := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.filter.Matches(e) {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range matched {
		s.fn(e)
	}
}

// Run owns the websocket client set. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.reportClients()
			h.log.Debug("websocket client connected", zap.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.shutdown()
				h.reportClients()
				h.log.Debug("websocket client disconnected", zap.Int("clients", len(h.clients)))
			}
		case <-ctx.Done():
			for c := range h.clients {
				c.shutdown()
				delete(h.clients, c)
			}
			h.reportClients()
			return
		}
	}
}

func (h *Hub) reportClients() {
	if h.clientsN != nil {
		h.clientsN.Set(float64(len(h.clients)))
	}
}

func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.shutdown()
	}
}
