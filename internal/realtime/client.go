package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goatkit/goatchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is the reverse proxy's job in this deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected websocket subscriber.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity Identity

	// Subscription state, guarded by mu: the hub goroutine updates it
	// during fan-out while readPump consults it for inbound signals.
	mu       sync.RWMutex
	sessions map[string]bool
	threads  map[string]bool

	closeOnce sync.Once
}

// inThread reports whether the client currently observes the thread.
func (c *Client) inThread(threadID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads[threadID]
}

// inboundSignal is the only client-to-server frame the gateway accepts:
// an ephemeral typing indicator.
type inboundSignal struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	IsTyping bool   `json:"is_typing"`
}

// ServeWS upgrades the request and registers the connection with the hub.
// typing may be nil if the deployment disables typing indicators.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, id Identity, typing *TypingTracker) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: id,
		sessions: make(map[string]bool),
		threads:  make(map[string]bool),
	}

	if h.resolver != nil {
		refs, err := h.resolver(r.Context(), id)
		if err != nil {
			h.logger.Printf("membership resolve for %s failed: %v", id.UserID, err)
		}
		for _, ref := range refs {
			if ref.SessionID != "" {
				c.sessions[ref.SessionID] = true
			}
			if ref.ThreadID != "" {
				c.threads[ref.ThreadID] = true
			}
		}
	}

	h.register <- c
	go c.writePump()
	go c.readPump(typing)
	return nil
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump consumes inbound frames. Typing signals are forwarded to the
// tracker; everything else is ignored (the HTTP API is the mutation path).
func (c *Client) readPump(typing *TypingTracker) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Printf("client %s read error: %v", c.identity.UserID, err)
			}
			return
		}

		var sig inboundSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			continue
		}
		if sig.Type != string(models.EventTypingIndicator) || sig.ThreadID == "" {
			continue
		}
		c.forwardTyping(sig, typing)
	}
}

// forwardTyping relays an inbound typing signal to the tracker. Signals for
// threads the client does not observe are dropped: membership gates writes
// the same way it gates delivery.
func (c *Client) forwardTyping(sig inboundSignal, typing *TypingTracker) {
	if typing == nil || !c.inThread(sig.ThreadID) {
		return
	}
	typing.Set(models.TypingSignal{
		ThreadID: sig.ThreadID,
		UserID:   c.identity.UserID,
		UserName: c.identity.UserName,
		IsTyping: sig.IsTyping,
	})
}

// writePump flushes the send buffer and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
