package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatchat/internal/models"
)

type envCapture struct {
	mu   sync.Mutex
	envs []models.EventEnvelope
}

func (c *envCapture) add(env models.EventEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *envCapture) all() []models.EventEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventEnvelope, len(c.envs))
	copy(out, c.envs)
	return out
}

func TestTypingSetPublishes(t *testing.T) {
	sink := &envCapture{}
	tracker := NewTypingTracker(DefaultTypingTTL, sink.add)

	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})

	envs := sink.all()
	require.Len(t, envs, 1)
	assert.Equal(t, models.EventTypingIndicator, envs[0].Type)
	sig := envs[0].Payload.(models.TypingSignal)
	assert.True(t, sig.IsTyping)

	active := tracker.Active("t1")
	require.Len(t, active, 1)
	assert.Equal(t, "u1", active[0].UserID)
}

func TestTypingLastWriteWins(t *testing.T) {
	sink := &envCapture{}
	tracker := NewTypingTracker(DefaultTypingTTL, sink.add)

	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})
	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: false})

	assert.Empty(t, tracker.Active("t1"))
	envs := sink.all()
	require.Len(t, envs, 2)
	assert.False(t, envs[1].Payload.(models.TypingSignal).IsTyping)
}

func TestTypingExpiryEmitsStop(t *testing.T) {
	sink := &envCapture{}
	tracker := NewTypingTracker(2*time.Second, sink.add)

	current := time.Now()
	tracker.now = func() time.Time { return current }

	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})
	require.Len(t, tracker.Active("t1"), 1)

	// Not expired yet.
	current = current.Add(time.Second)
	tracker.expire()
	assert.Len(t, tracker.Active("t1"), 1)

	// Past the TTL the janitor clears the entry and tells subscribers.
	current = current.Add(2 * time.Second)
	tracker.expire()
	assert.Empty(t, tracker.Active("t1"))

	envs := sink.all()
	require.Len(t, envs, 2)
	last := envs[1].Payload.(models.TypingSignal)
	assert.False(t, last.IsTyping)
	assert.Equal(t, "u1", last.UserID)
}

func TestTypingRefreshExtendsTTL(t *testing.T) {
	sink := &envCapture{}
	tracker := NewTypingTracker(2*time.Second, sink.add)

	current := time.Now()
	tracker.now = func() time.Time { return current }

	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})
	current = current.Add(1500 * time.Millisecond)
	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})

	current = current.Add(1500 * time.Millisecond)
	tracker.expire()
	assert.Len(t, tracker.Active("t1"), 1, "refresh must extend the TTL")
}

func TestTypingSeparateThreads(t *testing.T) {
	sink := &envCapture{}
	tracker := NewTypingTracker(DefaultTypingTTL, sink.add)

	tracker.Set(models.TypingSignal{ThreadID: "t1", UserID: "u1", IsTyping: true})
	tracker.Set(models.TypingSignal{ThreadID: "t2", UserID: "u1", IsTyping: true})

	assert.Len(t, tracker.Active("t1"), 1)
	assert.Len(t, tracker.Active("t2"), 1)
	assert.Empty(t, tracker.Active("t3"))
}
