// Package realtime delivers chat events to connected clients over
// WebSocket. One hub goroutine fans out every event, which also preserves
// per-thread message order; delivery to connected subscribers is
// best-effort and disconnected clients reconcile via a full refetch.
package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/goatkit/goatchat/internal/models"
)

// Caller roles recognized by the subscription filter.
const (
	RoleContact = "contact"
	RoleAgent   = "agent"
	RoleAdmin   = "admin"
)

// Identity is the resolved caller identity attached to a connection.
type Identity struct {
	UserID   string
	UserName string
	Role     string
}

// SessionRef seeds a client's subscription set at connect time.
type SessionRef struct {
	SessionID string
	ThreadID  string
}

// MembershipResolver returns the sessions a newly connected client may
// observe, derived from role: a contact gets their own session, an agent
// their assigned sessions. The queue channel needs no membership; it is
// implied by the agent role.
type MembershipResolver func(ctx context.Context, id Identity) ([]SessionRef, error)

// Hub multiplexes subscriptions and fans events out to clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.EventEnvelope

	clients map[*Client]bool

	resolver MembershipResolver
	bridge   *RedisBridge
	logger   *log.Logger
}

// HubOption configures the hub.
type HubOption func(*Hub)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithBridge attaches a cross-instance fan-out bridge.
func WithBridge(b *RedisBridge) HubOption {
	return func(h *Hub) { h.bridge = b }
}

// NewHub creates a hub. resolver may be nil, in which case clients start
// with no memberships and acquire them from observed session updates.
func NewHub(resolver MembershipResolver, opts ...HubOption) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.EventEnvelope, 256),
		clients:    make(map[*Client]bool),
		resolver:   resolver,
		logger:     log.New(log.Writer(), "[REALTIME] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drains the hub channels until ctx is cancelled. Must run in exactly
// one goroutine: single-threaded fan-out is what preserves per-thread
// message ordering.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			connectionsGauge(len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				connectionsGauge(len(h.clients))
			}
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// Publish enqueues an event for local fan-out and mirrors it to the bridge
// so other instances deliver it too. Non-blocking: if the hub is saturated
// the event is dropped and clients resync on the next refetch.
func (h *Hub) Publish(env models.EventEnvelope) {
	if h.bridge != nil {
		h.bridge.Publish(env)
	}
	h.inject(env)
}

// inject enqueues for local delivery only (bridge re-entry path).
func (h *Hub) inject(env models.EventEnvelope) {
	select {
	case h.broadcast <- env:
		recordEvent(string(env.Type))
	default:
		h.logger.Printf("broadcast queue full, dropping %s event for session %s", env.Type, env.SessionID)
		recordDropped()
	}
}

func (h *Hub) deliver(env models.EventEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("failed to marshal %s event: %v", env.Type, err)
		return
	}
	for c := range h.clients {
		if !h.shouldDeliver(c, env) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop the connection, the client refetches on
			// reconnect.
			h.logger.Printf("client %s send buffer full, disconnecting", c.identity.UserID)
			delete(h.clients, c)
			c.close()
			connectionsGauge(len(h.clients))
		}
	}
}

// shouldDeliver applies the role + membership subscription filter and keeps
// the client's membership set current from observed transitions. The lock
// orders membership updates against readPump's typing checks.
func (h *Hub) shouldDeliver(c *Client, env models.EventEnvelope) bool {
	if c.identity.Role == RoleAdmin {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case models.EventSessionUpdate:
		update, ok := env.Payload.(models.SessionUpdate)
		if !ok {
			return false
		}
		member := c.sessions[env.SessionID]
		isContactOwner := c.identity.Role == RoleContact && update.SchoolContactID == c.identity.UserID
		isAssignedAgent := c.identity.Role == RoleAgent &&
			update.AssignedAgentID != nil && *update.AssignedAgentID == c.identity.UserID
		// Waiting transitions go to the shared queue channel every agent
		// observes.
		onQueueChannel := c.identity.Role == RoleAgent && update.Status == models.SessionWaiting

		if !member && !isContactOwner && !isAssignedAgent && !onQueueChannel {
			return false
		}

		switch {
		case update.Status == models.SessionEnded:
			delete(c.sessions, env.SessionID)
			delete(c.threads, env.ThreadID)
		case isContactOwner || isAssignedAgent:
			c.sessions[env.SessionID] = true
			if env.ThreadID != "" {
				c.threads[env.ThreadID] = true
			}
		case member && c.identity.Role == RoleAgent && update.Status == models.SessionActive && !isAssignedAgent:
			// Transferred away: the former agent sees this final update,
			// then stops observing the session.
			delete(c.sessions, env.SessionID)
			delete(c.threads, env.ThreadID)
		}
		return true

	case models.EventTypingIndicator:
		sig, ok := env.Payload.(models.TypingSignal)
		if ok && sig.UserID == c.identity.UserID {
			// No echo to the typist.
			return false
		}
		return c.threads[env.ThreadID] || c.sessions[env.SessionID]

	case models.EventChatMessage:
		return c.threads[env.ThreadID] || c.sessions[env.SessionID]
	}
	return false
}
