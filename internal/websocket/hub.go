package websocket

import (
	"context"
	"sync"
)

// Hub tracks live connections so they can be counted per user and closed
// together on shutdown.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		byUser:     make(map[string]map[string]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		stopped:    make(chan struct{}),
	}
}

// Run applies registrations until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Register adds a client. A client registered after the hub stopped is
// closed straight away.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	set, ok := h.byUser[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.byUser[c.UserID] = set
	}
	set[c.ID] = c
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID)
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.byUser = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
