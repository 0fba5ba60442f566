package models

import "time"

// EventType discriminates realtime envelope payloads.
type EventType string

const (
	EventChatMessage     EventType = "chat_message"
	EventTypingIndicator EventType = "typing_indicator"
	EventSessionUpdate   EventType = "chat_session_update"
)

// EventEnvelope is the wire format pushed to connected clients. SessionID
// and ThreadID are routing keys for subscription filtering.
type EventEnvelope struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	ThreadID  string      `json:"thread_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// SessionUpdate is the chat_session_update payload: the authoritative state
// after a transition plus the names of the fields that changed. Clients
// reconcile their pending overlays against this.
type SessionUpdate struct {
	SessionID         string        `json:"session_id"`
	Status            SessionStatus `json:"status"`
	SchoolContactID   string        `json:"school_contact_id"`
	AssignedAgentID   *string       `json:"assigned_agent_id,omitempty"`
	AssignedAgentName *string       `json:"assigned_agent_name,omitempty"`
	QueuePosition     *int          `json:"queue_position,omitempty"`
	Severity          Severity      `json:"severity,omitempty"`
	IssueCategory     string        `json:"issue_category,omitempty"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
	Changed           []string      `json:"changed"`
}

// NewSessionUpdate diffs two session snapshots into an update payload.
// old may be nil for the initial start transition.
func NewSessionUpdate(old, current *ChatSession) SessionUpdate {
	u := SessionUpdate{
		SessionID:         current.ID,
		Status:            current.Status,
		SchoolContactID:   current.SchoolContactID,
		AssignedAgentID:   current.AssignedAgentID,
		AssignedAgentName: current.AssignedAgentName,
		QueuePosition:     current.QueuePosition,
		Severity:          current.Severity,
		IssueCategory:     current.IssueCategory,
		EndedAt:           current.EndedAt,
	}
	if old == nil {
		u.Changed = []string{"status"}
		return u
	}
	if old.Status != current.Status {
		u.Changed = append(u.Changed, "status")
	}
	if !strPtrEq(old.AssignedAgentID, current.AssignedAgentID) {
		u.Changed = append(u.Changed, "assigned_agent_id")
	}
	if !intPtrEq(old.QueuePosition, current.QueuePosition) {
		u.Changed = append(u.Changed, "queue_position")
	}
	if old.Severity != current.Severity {
		u.Changed = append(u.Changed, "severity")
	}
	if old.IssueCategory != current.IssueCategory {
		u.Changed = append(u.Changed, "issue_category")
	}
	if old.EscalationReason != current.EscalationReason {
		u.Changed = append(u.Changed, "escalation_reason")
	}
	if old.AIHandled != current.AIHandled {
		u.Changed = append(u.Changed, "ai_handled")
	}
	if old.AIResolved != current.AIResolved {
		u.Changed = append(u.Changed, "ai_resolved")
	}
	if (old.EndedAt == nil) != (current.EndedAt == nil) {
		u.Changed = append(u.Changed, "ended_at")
	}
	return u
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
