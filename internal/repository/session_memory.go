package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goatkit/goatchat/internal/models"
)

// SessionMemoryRepository is the in-memory SessionRepository used by tests
// and single-node development mode.
type SessionMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

// NewSessionMemoryRepository creates an empty in-memory store.
func NewSessionMemoryRepository() *SessionMemoryRepository {
	return &SessionMemoryRepository{sessions: make(map[string]*models.ChatSession)}
}

// Create stores a new session.
func (r *SessionMemoryRepository) Create(_ context.Context, s *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

// GetByID retrieves a session by ID.
func (r *SessionMemoryRepository) GetByID(_ context.Context, id string) (*models.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// GetOpenByContact returns the contact's non-ended session.
func (r *SessionMemoryRepository) GetOpenByContact(_ context.Context, contactID string) (*models.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *models.ChatSession
	for _, s := range r.sessions {
		if s.SchoolContactID != contactID || s.Status == models.SessionEnded {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, models.ErrSessionNotFound
	}
	return best.Clone(), nil
}

// GetByThread resolves the session owning a thread.
func (r *SessionMemoryRepository) GetByThread(_ context.Context, threadID string) (*models.ChatSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ThreadID == threadID {
			return s.Clone(), nil
		}
	}
	return nil, models.ErrSessionNotFound
}

// Update persists the session with an optimistic version check.
func (r *SessionMemoryRepository) Update(_ context.Context, s *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.ID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return models.ErrVersionConflict
	}
	s.Version++
	r.sessions[s.ID] = s.Clone()
	return nil
}

// ListActiveByAgent returns sessions currently assigned to the agent.
func (r *SessionMemoryRepository) ListActiveByAgent(_ context.Context, agentID string) ([]*models.ChatSession, error) {
	return r.filter(func(s *models.ChatSession) bool {
		return s.Status == models.SessionActive &&
			s.AssignedAgentID != nil && *s.AssignedAgentID == agentID
	}), nil
}

// ListByStatus returns all sessions in the given state.
func (r *SessionMemoryRepository) ListByStatus(_ context.Context, status models.SessionStatus) ([]*models.ChatSession, error) {
	return r.filter(func(s *models.ChatSession) bool { return s.Status == status }), nil
}

// ListStaleAIActive returns abandoned ai_active sessions for the reaper.
func (r *SessionMemoryRepository) ListStaleAIActive(_ context.Context, cutoff time.Time) ([]*models.ChatSession, error) {
	return r.filter(func(s *models.ChatSession) bool {
		return s.Status == models.SessionAIActive && s.StartedAt.Before(cutoff)
	}), nil
}

func (r *SessionMemoryRepository) filter(keep func(*models.ChatSession) bool) []*models.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ChatSession
	for _, s := range r.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
