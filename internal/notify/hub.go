// Package notify routes terminal job events to the websocket connections of
// their owners.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
)

// outboundBuffer is how many undelivered events a slow client may queue
// before new events for it are dropped.
const outboundBuffer = 16

// Client is one live connection registered under an owner.
type Client struct {
	ID       uuid.UUID
	OwnerID  string
	Outbound chan domain.Event

	closeOnce sync.Once
}

// Hub maps owner ids to their live connections. Absence of a connection
// drops the event: there is no persistence or replay.
type Hub struct {
	mu     sync.RWMutex
	owners map[string]map[*Client]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		owners: make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a connection for ownerID. The caller must Unregister it.
func (h *Hub) Register(ownerID string) *Client {
	c := &Client{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Outbound: make(chan domain.Event, outboundBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.owners[ownerID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.owners[ownerID] = clients
	}
	clients[c] = struct{}{}

	h.logger.Debug("Notification client registered",
		zap.String("client_id", c.ID.String()),
		zap.String("owner_id", ownerID),
	)
	return c
}

// Unregister removes c and closes its outbound channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.owners[c.OwnerID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.owners, c.OwnerID)
		}
	}
	c.closeOnce.Do(func() { close(c.Outbound) })

	h.logger.Debug("Notification client unregistered",
		zap.String("client_id", c.ID.String()),
		zap.String("owner_id", c.OwnerID),
	)
}

// Deliver pushes ev to every connection of its owner without blocking and
// returns how many connections accepted it.
func (h *Hub) Deliver(ev domain.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.owners[ev.OwnerID] {
		select {
		case c.Outbound <- ev:
			delivered++
		default:
			h.logger.Warn("Dropping notification; outbound buffer full",
				zap.String("client_id", c.ID.String()),
				zap.String("job_id", ev.JobID.String()),
			)
		}
	}
	return delivered
}

// Connected reports whether ownerID has at least one live connection.
func (h *Hub) Connected(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID]) > 0
}

// Forward routes an event received from the bus. Every API instance sees
// every event, so most have no connection for the owner.
func (h *Hub) Forward(ev domain.Event) {
	if !h.Connected(ev.OwnerID) {
		metrics.NotificationsDelivered.WithLabelValues("no_subscriber").Inc()
		h.logger.Debug("No local connection for notification",
			zap.String("owner_id", ev.OwnerID),
			zap.String("job_id", ev.JobID.String()),
		)
		return
	}
	if h.Deliver(ev) == 0 {
		metrics.NotificationsDelivered.WithLabelValues("dropped").Inc()
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("delivered").Inc()
}

// Notify delivers ev locally. It lets a single process use the hub directly
// as its notifier.
func (h *Hub) Notify(_ context.Context, ev domain.Event) error {
	h.Forward(ev)
	return nil
}
