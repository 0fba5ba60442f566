// Package messaging routes chat messages: persistence first, then realtime
// delivery. The stored thread is the source of truth; a failed push is never
// surfaced to the sender.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/repository"
)

// DefaultContentType is assumed when the sender does not set one.
const DefaultContentType = "text/plain"

// versionRetries bounds the optimistic-concurrency retry loop for the
// message counter bump.
const versionRetries = 3

// Publisher pushes event envelopes to connected clients.
type Publisher interface {
	Publish(env models.EventEnvelope)
}

// Sender identifies who is posting a message.
type Sender struct {
	ID   string
	Name string
	Role models.SenderRole
}

// PostInput is one message submission.
type PostInput struct {
	Content     string
	ContentType string
	Attachments []models.AttachmentRef
}

// Router orchestrates message flow for session threads.
type Router struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// Option configures the router.
type Option func(*Router)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a message router. publisher may be nil; messages are
// then persisted without realtime delivery.
func NewRouter(sessions repository.SessionRepository, messages repository.MessageRepository, publisher Publisher, opts ...Option) *Router {
	r := &Router{
		sessions:  sessions,
		messages:  messages,
		publisher: publisher,
		logger:    log.New(log.Writer(), "[MESSAGING] ", log.LstdFlags),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PostMessage appends a message to the thread, bumps the session's message
// counter, and pushes the message to subscribers. The append is rejected for
// ended sessions and for callers who are not participants.
func (r *Router) PostMessage(ctx context.Context, threadID string, sender Sender, in PostInput) (*models.Message, error) {
	if !sender.Role.Valid() {
		return nil, fmt.Errorf("unknown sender role %q", sender.Role)
	}
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, errors.New("message content is required")
	}

	session, err := r.sessions.GetByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, models.ErrInvalidTransition
	}
	if err := checkParticipant(session, sender.ID, sender.Role); err != nil {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		SenderID:    sender.ID,
		SenderRole:  sender.Role,
		Content:     in.Content,
		ContentType: contentType,
		Attachments: in.Attachments,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	recordMessage(string(sender.Role))

	if err := r.bumpMessageCount(ctx, session.ID); err != nil {
		// The message itself is committed; the counter is advisory.
		r.logger.Printf("failed to bump message count for session %s: %v", session.ID, err)
	}

	if r.publisher != nil {
		r.publisher.Publish(models.EventEnvelope{
			Type:      models.EventChatMessage,
			SessionID: session.ID,
			ThreadID:  threadID,
			Payload:   msg,
		})
	}
	return msg, nil
}

// ListThread returns the thread's messages in creation order for a
// participant.
func (r *Router) ListThread(ctx context.Context, threadID, callerID string, callerRole models.SenderRole, limit int) ([]*models.Message, error) {
	session, err := r.sessions.GetByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := checkParticipant(session, callerID, callerRole); err != nil {
		return nil, err
	}
	return r.messages.ListThread(ctx, threadID, limit)
}

// MarkRead advances the caller's read marker up to the given message. Only
// the caller's own counter moves; markers never go backwards.
func (r *Router) MarkRead(ctx context.Context, threadID, callerID string, callerRole models.SenderRole, uptoMessageID string) error {
	session, err := r.sessions.GetByThread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := checkParticipant(session, callerID, callerRole); err != nil {
		return err
	}
	return r.messages.MarkRead(ctx, threadID, callerID, uptoMessageID)
}

// UnreadCount returns how many messages from other senders the caller has
// not read yet.
func (r *Router) UnreadCount(ctx context.Context, threadID, callerID string, callerRole models.SenderRole) (int, error) {
	session, err := r.sessions.GetByThread(ctx, threadID)
	if err != nil {
		return 0, err
	}
	if err := checkParticipant(session, callerID, callerRole); err != nil {
		return 0, err
	}
	return r.messages.UnreadCount(ctx, threadID, callerID)
}

// LastMessageAt returns the newest message time in the thread for a
// participant, or the zero time for an empty thread.
func (r *Router) LastMessageAt(ctx context.Context, threadID, callerID string, callerRole models.SenderRole) (time.Time, error) {
	session, err := r.sessions.GetByThread(ctx, threadID)
	if err != nil {
		return time.Time{}, err
	}
	if err := checkParticipant(session, callerID, callerRole); err != nil {
		return time.Time{}, err
	}
	return r.messages.LastMessageAt(ctx, threadID)
}

// bumpMessageCount increments TotalMessages under optimistic concurrency,
// retrying when a transition committed between read and write.
func (r *Router) bumpMessageCount(ctx context.Context, sessionID string) error {
	var err error
	for attempt := 0; attempt < versionRetries; attempt++ {
		var session *models.ChatSession
		session, err = r.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		session.TotalMessages++
		err = r.sessions.Update(ctx, session)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
	}
	return err
}

// checkParticipant enforces thread membership: the owning contact, the
// assigned agent, or an internal sender (assistant, system). Admin access
// goes through the API layer, not here.
func checkParticipant(session *models.ChatSession, callerID string, role models.SenderRole) error {
	switch role {
	case models.RoleAIAssistant, models.RoleSystem:
		return nil
	case models.RoleContact:
		if session.SchoolContactID == callerID {
			return nil
		}
	case models.RoleAgent:
		if session.AssignedAgentID != nil && *session.AssignedAgentID == callerID {
			return nil
		}
	}
	return models.ErrNotParticipant
}
