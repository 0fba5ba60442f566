package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/goatkit/goatchat/internal/models"
)

// bridgeChannel is the redis pub/sub channel shared by all instances.
const bridgeChannel = "goatchat:events"

// bridgeFrame wraps an envelope with the publishing instance's ID so the
// origin skips its own frames on re-entry.
type bridgeFrame struct {
	Origin   string                `json:"origin"`
	Envelope models.EventEnvelope  `json:"envelope"`
}

// RedisBridge relays event envelopes between instances through redis
// pub/sub. Delivery stays best-effort: a publish failure is logged, never
// surfaced, because the underlying state change is already committed.
type RedisBridge struct {
	client     *redis.Client
	instanceID string
	logger     *log.Logger
}

// NewRedisBridge creates a bridge over an existing redis client.
func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{
		client:     client,
		instanceID: uuid.NewString(),
		logger:     log.New(log.Writer(), "[REALTIME-BRIDGE] ", log.LstdFlags),
	}
}

// Publish mirrors an envelope to the shared channel.
func (b *RedisBridge) Publish(env models.EventEnvelope) {
	frame := bridgeFrame{Origin: b.instanceID, Envelope: env}
	data, err := json.Marshal(frame)
	if err != nil {
		b.logger.Printf("failed to marshal bridge frame: %v", err)
		return
	}
	if err := b.client.Publish(context.Background(), bridgeChannel, data).Err(); err != nil {
		b.logger.Printf("failed to publish to %s: %v", bridgeChannel, err)
	}
}

// Run subscribes to the shared channel and injects remote envelopes into
// the hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, hub *Hub) {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame struct {
				Origin   string          `json:"origin"`
				Envelope rawEnvelope     `json:"envelope"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Printf("failed to decode bridge frame: %v", err)
				continue
			}
			if frame.Origin == b.instanceID {
				continue
			}
			env, err := frame.Envelope.decode()
			if err != nil {
				b.logger.Printf("failed to decode bridged envelope: %v", err)
				continue
			}
			hub.inject(env)
		}
	}
}

// rawEnvelope defers payload decoding until the event type is known, so the
// hub's subscription filter sees concrete payload types for bridged events
// exactly as it does for local ones.
type rawEnvelope struct {
	Type      models.EventType `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	ThreadID  string           `json:"thread_id,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
}

func (r rawEnvelope) decode() (models.EventEnvelope, error) {
	env := models.EventEnvelope{Type: r.Type, SessionID: r.SessionID, ThreadID: r.ThreadID}
	switch r.Type {
	case models.EventSessionUpdate:
		var u models.SessionUpdate
		if err := json.Unmarshal(r.Payload, &u); err != nil {
			return env, err
		}
		env.Payload = u
	case models.EventTypingIndicator:
		var s models.TypingSignal
		if err := json.Unmarshal(r.Payload, &s); err != nil {
			return env, err
		}
		env.Payload = s
	case models.EventChatMessage:
		var m models.Message
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			return env, err
		}
		env.Payload = &m
	default:
		env.Payload = r.Payload
	}
	return env, nil
}
