package models

import "time"

// SenderRole identifies who authored a chat message.
type SenderRole string

const (
	RoleContact     SenderRole = "contact"
	RoleAgent       SenderRole = "agent"
	RoleAIAssistant SenderRole = "ai_assistant"
	RoleSystem      SenderRole = "system"
)

// Valid reports whether the role is a known sender role.
func (r SenderRole) Valid() bool {
	switch r {
	case RoleContact, RoleAgent, RoleAIAssistant, RoleSystem:
		return true
	}
	return false
}

// AttachmentRef points at an attachment uploaded out-of-band. The router
// never touches binary payloads.
type AttachmentRef struct {
	Ref      string `json:"ref"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one entry in a session's append-only thread.
type Message struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"thread_id"`
	SenderID    string          `json:"sender_id"`
	SenderRole  SenderRole      `json:"sender_role"`
	Content     string          `json:"content"`
	ContentType string          `json:"content_type"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	EditedAt    *time.Time      `json:"edited_at,omitempty"`
}

// TypingSignal is ephemeral presence state. Never persisted; expires in the
// realtime gateway if not refreshed.
type TypingSignal struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"is_typing"`
}
