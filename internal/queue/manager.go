// Package queue maintains the FIFO order of waiting chat sessions and
// guarantees that at most one agent ever claims a given entry.
package queue

import (
	"sync"
	"time"

	"github.com/goatkit/goatchat/internal/models"
)

// Manager owns the queue entries. Entries are transient: created when a
// session enters waiting, destroyed the instant an agent claims them. The
// single mutex is the atomic-claim primitive; PopHead under the lock means
// two concurrent accepts can never receive the same entry.
//
// Ordering is strict FIFO by EnteredQueueAt. Severity is informational only
// and must never become a scheduling input here.
type Manager struct {
	mu      sync.Mutex
	entries []models.QueueEntry
}

// NewManager creates an empty queue.
func NewManager() *Manager {
	return &Manager{}
}

// Enqueue appends a session. enteredAt is preserved as given so that a
// transferred session keeps its original wait clock. Inserts in timestamp
// order, which for fresh escalations is the tail. Returns the 1-based
// position. No-op (returning the current position) if already queued.
func (m *Manager) Enqueue(sessionID string, enteredAt time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.SessionID == sessionID {
			return i + 1
		}
	}

	entry := models.QueueEntry{SessionID: sessionID, EnteredQueueAt: enteredAt}
	idx := len(m.entries)
	for i, e := range m.entries {
		if enteredAt.Before(e.EnteredQueueAt) {
			idx = i
			break
		}
	}
	m.entries = append(m.entries, models.QueueEntry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = entry

	queueDepth(len(m.entries))
	return idx + 1
}

// PopHead removes and returns the head entry. ErrQueueEmpty when nothing
// waits. The claim is committed here: losers of a concurrent race observe
// the next entry or the empty queue.
func (m *Manager) PopHead() (models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return models.QueueEntry{}, models.ErrQueueEmpty
	}
	head := m.entries[0]
	m.entries = m.entries[1:]
	queueDepth(len(m.entries))
	return head, nil
}

// Requeue puts an entry back after a failed assignment attempt. Timestamp
// ordering restores it to its former position.
func (m *Manager) Requeue(entry models.QueueEntry) {
	m.Enqueue(entry.SessionID, entry.EnteredQueueAt)
}

// Remove drops a session from the queue (session ended while waiting).
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.SessionID == sessionID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			queueDepth(len(m.entries))
			return true
		}
	}
	return false
}

// Position returns the 1-based queue position, or 0 if not queued.
func (m *Manager) Position(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of waiting sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Snapshot returns the queue in order. Waiting times are computed by the
// caller from EnteredQueueAt, never stored.
func (m *Manager) Snapshot() []models.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.QueueEntry, len(m.entries))
	copy(out, m.entries)
	return out
}
