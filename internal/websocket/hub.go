package websocket

import (
	"context"
	"errors"
	"sync"

	"chat-sync/internal/changefeed"
	"chat-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

var ErrHubStopped = errors.New("hub stopped")

// Presence records which users hold a live connection. Optional.
type Presence interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// Hub tracks connected clients and pushes change events to all of them.
// Every client receives every event; the events carry no row data.
type Hub struct {
	clients     map[*Client]bool
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	presence Presence
	pubsub   *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	logger *logger.Logger
}

func NewHub(presence Presence, log *logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan []byte, 256),
		presence:    presence,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      log.With("component", "hub"),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case data := <-h.broadcast:
			h.broadcastToAll(data)

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.closeAll()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
	<-h.done
}

// Publish implements changefeed.Publisher for single-node deployments.
func (h *Hub) Publish(ctx context.Context, table changefeed.Table) error {
	data, err := changefeed.Encode(changefeed.NewEvent(table))
	if err != nil {
		return err
	}
	return h.enqueue(ctx, data)
}

func (h *Hub) enqueue(ctx context.Context, data []byte) error {
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BridgeRedis forwards events published on redis by any node to this hub's clients.
func (h *Hub) BridgeRedis(pubsub *redis.PubSub) {
	h.pubsub = pubsub
	go func() {
		for msg := range pubsub.Channel() {
			if _, err := changefeed.Decode([]byte(msg.Payload)); err != nil {
				h.logger.Debug("Ignoring redis message", "channel", msg.Channel, "error", err)
				continue
			}
			if err := h.enqueue(h.ctx, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}()
}

// ClientCount reports the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	firstConn := len(h.userClients[client.userID]) == 0
	h.userClients[client.userID][client] = true
	h.mu.Unlock()

	h.logger.Info("Client registered", "clientID", client.id, "userID", client.userID)
	client.SendMessage(NewConnectMessage(client.id))

	if h.presence != nil && firstConn {
		if err := h.presence.SetUserOnline(h.ctx, client.userID); err != nil {
			h.logger.Error("Failed to set user online", "userID", client.userID, "error", err)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	lastConn := false
	if conns := h.userClients[client.userID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.userID)
			lastConn = true
		}
	}
	h.mu.Unlock()

	client.closeSendChannel()
	h.logger.Info("Client unregistered", "clientID", client.id, "userID", client.userID)

	if h.presence != nil && lastConn {
		if err := h.presence.SetUserOffline(h.ctx, client.userID); err != nil {
			h.logger.Error("Failed to set user offline", "userID", client.userID, "error", err)
		}
	}
}

func (h *Hub) broadcastToAll(data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			h.logger.Debug("Dropping slow client", "clientID", c.id, "userID", c.userID)
			h.unregisterClient(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]bool)
	h.userClients = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for c := range clients {
		c.closeSendChannel()
	}
}
