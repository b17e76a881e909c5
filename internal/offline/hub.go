package offline

import (
	"encoding/json"
	"sync"
	"time"
)

// hubClient is one connected client context. Messages are delivered through
// a buffered channel; a client that cannot keep up loses messages rather
// than stalling the worker.
type hubClient struct {
	id        int64
	ch        chan []byte
	claimedBy string
}

const clientBuffer = 16

// Hub tracks every open client context so lifecycle claim and event
// broadcasts can reach all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[int64]*hubClient
	nextID  int64
	version string
	dropLog *rateLimitedLogger
}

func NewHub() *Hub {
	return &Hub{
		clients: map[int64]*hubClient{},
		dropLog: newRateLimitedLogger(time.Minute),
	}
}

// Subscribe registers a client context and returns it with its release
// function. The client is stamped with the version that currently controls
// the hub, if any.
func (h *Hub) Subscribe() (*hubClient, func()) {
	h.mu.Lock()
	h.nextID++
	c := &hubClient{
		id:        h.nextID,
		ch:        make(chan []byte, clientBuffer),
		claimedBy: h.version,
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	return c, func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
	}
}

// ClaimAll stamps every connected client with the given version tag so they
// are considered controlled by this instance without reconnecting.
func (h *Hub) ClaimAll(version string) {
	h.mu.Lock()
	h.version = version
	for _, c := range h.clients {
		c.claimedBy = version
	}
	h.mu.Unlock()
}

// Broadcast delivers a JSON-encoded message to every connected client.
// Delivery is non-blocking: slow clients drop the message.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.ch <- data:
		default:
			h.dropLog.Printf("hub: dropping message for slow client %d", c.id)
		}
	}
}

// Count returns the number of connected client contexts.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// syncCompleteMessage is broadcast after every background sync cycle.
type syncCompleteMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// notificationMessage routes a rendered push notification to the clients.
type notificationMessage struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}
