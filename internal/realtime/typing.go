package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/goatkit/goatchat/internal/models"
)

// DefaultTypingTTL is how long a typing signal stays live without a refresh.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	threadID string
	userID   string
}

type typingEntry struct {
	signal    models.TypingSignal
	expiresAt time.Time
}

// TypingTracker holds ephemeral typing state with TTL expiry. Last write
// wins per (thread, user); nothing here is ever persisted. Expired entries
// emit an is_typing=false event so clients clear the indicator even when
// the sender vanished mid-keystroke.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]typingEntry
	ttl     time.Duration
	publish func(models.EventEnvelope)
	now     func() time.Time
}

// NewTypingTracker creates a tracker publishing through the given sink.
func NewTypingTracker(ttl time.Duration, publish func(models.EventEnvelope)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		entries: make(map[typingKey]typingEntry),
		ttl:     ttl,
		publish: publish,
		now:     time.Now,
	}
}

// Set records a typing signal and broadcasts it. IsTyping=false clears the
// entry immediately.
func (t *TypingTracker) Set(sig models.TypingSignal) {
	key := typingKey{threadID: sig.ThreadID, userID: sig.UserID}

	t.mu.Lock()
	if sig.IsTyping {
		t.entries[key] = typingEntry{signal: sig, expiresAt: t.now().Add(t.ttl)}
	} else {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	t.publish(models.EventEnvelope{
		Type:     models.EventTypingIndicator,
		ThreadID: sig.ThreadID,
		Payload:  sig,
	})
}

// Active returns the users currently typing in a thread.
func (t *TypingTracker) Active(threadID string) []models.TypingSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []models.TypingSignal
	for key, e := range t.entries {
		if key.threadID != threadID {
			continue
		}
		if e.expiresAt.After(now) {
			out = append(out, e.signal)
		}
	}
	return out
}

// Run expires stale entries until ctx is cancelled.
func (t *TypingTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.expire()
		}
	}
}

func (t *TypingTracker) expire() {
	now := t.now()

	t.mu.Lock()
	var expired []models.TypingSignal
	for key, e := range t.entries {
		if !e.expiresAt.After(now) {
			sig := e.signal
			sig.IsTyping = false
			expired = append(expired, sig)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, sig := range expired {
		t.publish(models.EventEnvelope{
			Type:     models.EventTypingIndicator,
			ThreadID: sig.ThreadID,
			Payload:  sig,
		})
	}
}
