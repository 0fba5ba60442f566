package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goatkit/goatchat/internal/models"
)

// MessageMemoryRepository is the in-memory MessageRepository used by tests
// and single-node development mode.
type MessageMemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]*models.Message            // by ID
	threads  map[string][]*models.Message          // by thread, creation order
	markers  map[string]map[string]time.Time       // thread -> user -> last read
}

// NewMessageMemoryRepository creates an empty in-memory store.
func NewMessageMemoryRepository() *MessageMemoryRepository {
	return &MessageMemoryRepository{
		messages: make(map[string]*models.Message),
		threads:  make(map[string][]*models.Message),
		markers:  make(map[string]map[string]time.Time),
	}
}

// Insert persists a message.
func (r *MessageMemoryRepository) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages[m.ID] = &cp
	thread := append(r.threads[m.ThreadID], &cp)
	sort.SliceStable(thread, func(i, j int) bool { return thread[i].CreatedAt.Before(thread[j].CreatedAt) })
	r.threads[m.ThreadID] = thread
	return nil
}

// GetByID retrieves a single message.
func (r *MessageMemoryRepository) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, models.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

// ListThread returns the thread's messages in creation order.
func (r *MessageMemoryRepository) ListThread(_ context.Context, threadID string, limit int) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	thread := r.threads[threadID]
	if limit > 0 && limit < len(thread) {
		thread = thread[:limit]
	}
	out := make([]*models.Message, len(thread))
	for i, m := range thread {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// MarkRead advances the caller's read marker, never backwards.
func (r *MessageMemoryRepository) MarkRead(_ context.Context, threadID, userID, uptoMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[uptoMessageID]
	if !ok || m.ThreadID != threadID {
		return models.ErrMessageNotFound
	}
	byUser, ok := r.markers[threadID]
	if !ok {
		byUser = make(map[string]time.Time)
		r.markers[threadID] = byUser
	}
	if current, ok := byUser[userID]; !ok || m.CreatedAt.After(current) {
		byUser[userID] = m.CreatedAt
	}
	return nil
}

// UnreadCount counts messages from other senders past the caller's marker.
func (r *MessageMemoryRepository) UnreadCount(_ context.Context, threadID, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	marker := r.markers[threadID][userID]
	count := 0
	for _, m := range r.threads[threadID] {
		if m.SenderID != userID && m.CreatedAt.After(marker) {
			count++
		}
	}
	return count, nil
}

// LastMessageAt returns the newest message time in the thread.
func (r *MessageMemoryRepository) LastMessageAt(_ context.Context, threadID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	thread := r.threads[threadID]
	if len(thread) == 0 {
		return time.Time{}, nil
	}
	return thread[len(thread)-1].CreatedAt, nil
}
