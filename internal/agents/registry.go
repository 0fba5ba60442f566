// Package agents tracks which agents are online, their concurrency limit,
// and their current chat load.
package agents

import (
	"log"
	"sort"
	"sync"

	"github.com/goatkit/goatchat/internal/models"
)

// Registry is the in-memory availability table. Counters are only ever
// mutated under the registry lock; ReserveSlot/ReleaseSlot are the atomic
// primitives the queue manager and chat service build on.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*models.AgentAvailability
	logger *log.Logger
}

// Option configures the registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty agent registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		agents: make(map[string]*models.AgentAvailability),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetAvailability updates an agent's availability and concurrency limit.
// Going offline does not touch existing chats: the agent keeps them until
// they end or transfer, it only stops new assignments.
func (r *Registry) SetAvailability(agentID, agentName string, isAvailable bool, maxConcurrent int) (models.AgentAvailability, error) {
	if maxConcurrent < models.MinConcurrentChats || maxConcurrent > models.MaxConcurrentChats {
		return models.AgentAvailability{}, models.ErrInvalidCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		a = &models.AgentAvailability{AgentID: agentID}
		r.agents[agentID] = a
	}
	a.IsAvailable = isAvailable
	a.MaxConcurrentChats = maxConcurrent
	if agentName != "" {
		a.AgentName = agentName
	}
	return *a, nil
}

// ReserveSlot atomically increments the agent's chat count. Fails with
// ErrAgentAtCapacity when the limit is reached and ErrAgentUnavailable for
// offline or unknown agents; state is unchanged on failure.
func (r *Registry) ReserveSlot(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok || !a.IsAvailable {
		return models.ErrAgentUnavailable
	}
	if a.CurrentChatCount >= a.MaxConcurrentChats {
		return models.ErrAgentAtCapacity
	}
	a.CurrentChatCount++
	return nil
}

// ReleaseSlot decrements the agent's chat count, clamped at zero. Unknown
// agents are ignored: a release after the agent record disappeared must not
// fail the surrounding end/transfer.
func (r *Registry) ReleaseSlot(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		r.logger.Printf("release slot for unknown agent %s ignored", agentID)
		return
	}
	if a.CurrentChatCount > 0 {
		a.CurrentChatCount--
	}
}

// Get returns the agent's availability snapshot.
func (r *Registry) Get(agentID string) (models.AgentAvailability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return models.AgentAvailability{}, false
	}
	return *a, true
}

// Snapshot returns all known agents ordered by ID.
func (r *Registry) Snapshot() []models.AgentAvailability {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AgentAvailability, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
