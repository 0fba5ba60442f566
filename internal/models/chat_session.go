// Package models defines the core data structures for the live-chat engine.
package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	// SessionAIActive is the initial state: the AI assistant handles the conversation.
	SessionAIActive SessionStatus = "ai_active"
	// SessionWaiting means the session has been escalated and sits in the agent queue.
	SessionWaiting SessionStatus = "waiting"
	// SessionActive means a human agent owns the session.
	SessionActive SessionStatus = "active"
	// SessionEnded is terminal.
	SessionEnded SessionStatus = "ended"
)

// IsTerminal reports whether the status is the terminal state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionEnded
}

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionAIActive, SessionWaiting, SessionActive, SessionEnded:
		return true
	}
	return false
}

// Severity classifies how urgent an escalated issue is. Informational only:
// the queue is strict FIFO and never reorders by severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ChatSession is one support conversation instance. All field mutation goes
// through the chat service; nothing else writes these rows.
type ChatSession struct {
	ID                string            `json:"id"`
	ThreadID          string            `json:"thread_id"`
	SchoolContactID   string            `json:"school_contact_id"`
	SchoolContactName string            `json:"school_contact_name"`
	SchoolID          string            `json:"school_id"`
	Subject           string            `json:"subject,omitempty"`
	Status            SessionStatus     `json:"status"`
	AssignedAgentID   *string           `json:"assigned_agent_id,omitempty"`
	AssignedAgentName *string           `json:"assigned_agent_name,omitempty"`
	QueuePosition     *int              `json:"queue_position,omitempty"`
	AIHandled         bool              `json:"ai_handled"`
	AIResolved        bool              `json:"ai_resolved"`
	IssueCategory     string            `json:"issue_category,omitempty"`
	Severity          Severity          `json:"severity,omitempty"`
	EscalationReason  string            `json:"escalation_reason,omitempty"`
	CollectedInfo     map[string]string `json:"collected_info,omitempty"`
	AISummary         string            `json:"ai_summary,omitempty"`
	TotalMessages     int               `json:"total_messages"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	// EnteredQueueAt is set on first escalation and deliberately survives
	// transfers: waiting time always reflects the contact's total wait.
	EnteredQueueAt *time.Time `json:"entered_queue_at,omitempty"`
	// Version is bumped on every committed transition; the SQL store uses it
	// for optimistic concurrency.
	Version int64 `json:"-"`
}

// Clone returns a deep copy so callers can hand sessions across goroutines
// without aliasing the service's working copy.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	cp := *s
	if s.AssignedAgentID != nil {
		v := *s.AssignedAgentID
		cp.AssignedAgentID = &v
	}
	if s.AssignedAgentName != nil {
		v := *s.AssignedAgentName
		cp.AssignedAgentName = &v
	}
	if s.QueuePosition != nil {
		v := *s.QueuePosition
		cp.QueuePosition = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		cp.EndedAt = &v
	}
	if s.EnteredQueueAt != nil {
		v := *s.EnteredQueueAt
		cp.EnteredQueueAt = &v
	}
	if s.CollectedInfo != nil {
		cp.CollectedInfo = make(map[string]string, len(s.CollectedInfo))
		for k, v := range s.CollectedInfo {
			cp.CollectedInfo[k] = v
		}
	}
	return &cp
}

// WaitingTime returns how long the session has waited for a human agent.
// Zero for sessions that never entered the queue.
func (s *ChatSession) WaitingTime(now time.Time) time.Duration {
	if s.EnteredQueueAt == nil {
		return 0
	}
	d := now.Sub(*s.EnteredQueueAt)
	if d < 0 {
		return 0
	}
	return d
}

// HandoffContext is the structured briefing the AI assistant attaches to an
// escalation so the receiving agent does not start cold.
type HandoffContext struct {
	Summary          string            `json:"summary"`
	Category         string            `json:"category"`
	Severity         Severity          `json:"severity"`
	EscalationReason string            `json:"escalation_reason"`
	CollectedInfo    map[string]string `json:"collected_info,omitempty"`
}

// QueueEntry is the transient record of one waiting session. Owned by the
// queue manager; destroyed the instant an agent claims it.
type QueueEntry struct {
	SessionID      string    `json:"session_id"`
	EnteredQueueAt time.Time `json:"entered_queue_at"`
}

// WaitingTime computes the elapsed wait, never stored stale.
func (e QueueEntry) WaitingTime(now time.Time) time.Duration {
	d := now.Sub(e.EnteredQueueAt)
	if d < 0 {
		return 0
	}
	return d
}

// AgentAvailability is one agent's presence and concurrency state.
type AgentAvailability struct {
	AgentID            string `json:"agent_id"`
	AgentName          string `json:"agent_name,omitempty"`
	IsAvailable        bool   `json:"is_available"`
	MaxConcurrentChats int    `json:"max_concurrent_chats"`
	CurrentChatCount   int    `json:"current_chat_count"`
}

// Bounds for MaxConcurrentChats.
const (
	MinConcurrentChats = 1
	MaxConcurrentChats = 10
)

// HasCapacity reports whether the agent can take one more chat.
func (a AgentAvailability) HasCapacity() bool {
	return a.IsAvailable && a.CurrentChatCount < a.MaxConcurrentChats
}
