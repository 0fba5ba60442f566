// Package chat implements the session lifecycle: AI-first handling,
// escalation into the waiting queue, agent assignment, transfer, and end.
// Every committed transition is pushed to subscribers as a
// chat_session_update event.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goatkit/goatchat/internal/agents"
	"github.com/goatkit/goatchat/internal/ai"
	"github.com/goatkit/goatchat/internal/messaging"
	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/queue"
	"github.com/goatkit/goatchat/internal/repository"
)

// Well-known internal sender identities for thread messages.
const (
	AISenderID    = "ai-assistant"
	AISenderName  = "Support Assistant"
	SystemSender  = "system"
	DefaultAITurn = 10 * time.Second
)

// fallbackReply is sent when the assistant backend times out or errors; the
// session state is left untouched and the contact can ask for a human.
const fallbackReply = "I'm having trouble answering right now. Would you like me to connect you with a member of our support team?"

// versionRetries bounds commit retries. Under the session lock the only
// concurrent writer is the message counter bump, so a couple of attempts
// always suffice.
const versionRetries = 3

// Publisher pushes event envelopes to connected clients.
type Publisher interface {
	Publish(env models.EventEnvelope)
}

// Service is the session state machine. All status mutation flows through
// here under a per-session lock; the lock is never held across AI calls or
// event publishing.
type Service struct {
	sessions  repository.SessionRepository
	router    *messaging.Router
	queue     *queue.Manager
	registry  *agents.Registry
	evaluator ai.Evaluator
	publisher Publisher

	locks     *sessionLocks
	logger    *log.Logger
	aiTimeout time.Duration
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAITimeout bounds how long one assistant turn may take.
func WithAITimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.aiTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the state machine. publisher may be nil (no realtime
// delivery, persistence still authoritative).
func NewService(
	sessions repository.SessionRepository,
	router *messaging.Router,
	q *queue.Manager,
	registry *agents.Registry,
	evaluator ai.Evaluator,
	publisher Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		sessions:  sessions,
		router:    router,
		queue:     q,
		registry:  registry,
		evaluator: evaluator,
		publisher: publisher,
		locks:     newSessionLocks(),
		logger:    log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
		aiTimeout: DefaultAITurn,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartInput opens a new session for a school contact.
type StartInput struct {
	ContactID      string
	ContactName    string
	SchoolID       string
	Subject        string
	InitialMessage string
}

// StartResult is the new session plus the opening exchange, when an initial
// message was supplied.
type StartResult struct {
	Session  *models.ChatSession
	Messages []*models.Message
}

// AITurnResult is one contact/assistant exchange.
type AITurnResult struct {
	Session        *models.ChatSession
	ContactMessage *models.Message
	Reply          *models.Message
	Escalated      bool
}

// QueueItem is one waiting session as shown to agents.
type QueueItem struct {
	SessionID      string          `json:"session_id"`
	Position       int             `json:"position"`
	WaitingSeconds int             `json:"waiting_seconds"`
	ContactName    string          `json:"contact_name"`
	Subject        string          `json:"subject,omitempty"`
	IssueCategory  string          `json:"issue_category,omitempty"`
	Severity       models.Severity `json:"severity,omitempty"`
	AISummary      string          `json:"ai_summary,omitempty"`
}

// StartSession opens a session in ai_active. One open session per contact:
// a second start while another is open fails with ErrAlreadyActiveSession.
func (s *Service) StartSession(ctx context.Context, in StartInput) (*StartResult, error) {
	if in.ContactID == "" {
		return nil, errors.New("contact ID is required")
	}

	existing, err := s.sessions.GetOpenByContact(ctx, in.ContactID)
	switch {
	case err == nil && existing != nil:
		return nil, models.ErrAlreadyActiveSession
	case err != nil && !errors.Is(err, models.ErrSessionNotFound):
		return nil, err
	}

	now := s.now().UTC()
	session := &models.ChatSession{
		ID:                uuid.NewString(),
		ThreadID:          uuid.NewString(),
		SchoolContactID:   in.ContactID,
		SchoolContactName: in.ContactName,
		SchoolID:          in.SchoolID,
		Subject:           in.Subject,
		Status:            models.SessionAIActive,
		AIHandled:         true,
		StartedAt:         now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	recordTransition("new", string(models.SessionAIActive))
	s.publishUpdate(nil, session)

	result := &StartResult{Session: session}
	if in.InitialMessage != "" {
		turn, err := s.aiTurn(ctx, session, in.ContactID, in.ContactName, in.InitialMessage)
		if err != nil {
			return nil, err
		}
		result.Session = turn.Session
		result.Messages = append(result.Messages, turn.ContactMessage, turn.Reply)
	}
	return result, nil
}

// SendAIMessage handles one contact message while the assistant owns the
// session. Only legal from ai_active and only for the owning contact.
func (s *Service) SendAIMessage(ctx context.Context, sessionID, contactID, content string) (*AITurnResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.SchoolContactID != contactID {
		return nil, models.ErrNotParticipant
	}
	if session.Status != models.SessionAIActive {
		return nil, models.ErrInvalidTransition
	}
	return s.aiTurn(ctx, session, contactID, session.SchoolContactName, content)
}

// aiTurn posts the contact message, runs the evaluator with a deadline, and
// posts the assistant's reply. An evaluator failure degrades to a fallback
// reply with no state change; an escalation verdict moves the session to
// waiting before the reply is posted.
func (s *Service) aiTurn(ctx context.Context, session *models.ChatSession, contactID, contactName, content string) (*AITurnResult, error) {
	contactMsg, err := s.router.PostMessage(ctx, session.ThreadID, messaging.Sender{
		ID:   contactID,
		Name: contactName,
		Role: models.RoleContact,
	}, messaging.PostInput{Content: content})
	if err != nil {
		return nil, err
	}

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	verdict, err := s.evaluator.EvaluateTurn(aiCtx, session.Clone(), content)
	cancel()

	reply := verdict.Reply
	escalated := false
	switch {
	case err != nil:
		s.logger.Printf("assistant turn failed for session %s: %v", session.ID, err)
		recordAITurn("fallback")
		reply = fallbackReply
	case verdict.ShouldEscalate:
		recordAITurn("escalated")
		escalated = true
		updated, escErr := s.escalate(ctx, session.ID, verdict.Context)
		if escErr != nil {
			return nil, escErr
		}
		session = updated
	default:
		recordAITurn("replied")
	}

	replyMsg, err := s.router.PostMessage(ctx, session.ThreadID, messaging.Sender{
		ID:   AISenderID,
		Name: AISenderName,
		Role: models.RoleAIAssistant,
	}, messaging.PostInput{Content: reply})
	if err != nil {
		return nil, err
	}

	current, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &AITurnResult{
		Session:        current,
		ContactMessage: contactMsg,
		Reply:          replyMsg,
		Escalated:      escalated,
	}, nil
}

// RequestEscalation moves an ai_active session into the waiting queue on the
// contact's explicit request. Already-waiting sessions are returned as-is.
func (s *Service) RequestEscalation(ctx context.Context, sessionID, contactID, reason string) (*models.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.SchoolContactID != contactID {
		return nil, models.ErrNotParticipant
	}
	if reason == "" {
		reason = "contact requested a human agent"
	}
	return s.escalate(ctx, sessionID, &models.HandoffContext{
		Summary:          session.AISummary,
		Category:         session.IssueCategory,
		Severity:         session.Severity,
		EscalationReason: reason,
		CollectedInfo:    session.CollectedInfo,
	})
}

// escalate commits ai_active -> waiting and enqueues the session. Enqueue
// happens under the session lock so a concurrent AcceptNext that claims the
// entry observes the committed waiting status.
func (s *Service) escalate(ctx context.Context, sessionID string, hc *models.HandoffContext) (*models.ChatSession, error) {
	l := s.locks.get(sessionID)
	l.Lock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if session.Status == models.SessionWaiting {
		l.Unlock()
		return session, nil
	}
	if session.Status != models.SessionAIActive {
		l.Unlock()
		return nil, models.ErrInvalidTransition
	}

	old := session.Clone()
	now := s.now().UTC()
	if session.EnteredQueueAt == nil {
		session.EnteredQueueAt = &now
	}
	pos := s.queue.Enqueue(session.ID, *session.EnteredQueueAt)
	session.Status = models.SessionWaiting
	session.QueuePosition = &pos
	applyHandoff(session, hc)

	if err := s.commitSession(ctx, session); err != nil {
		s.queue.Remove(session.ID)
		l.Unlock()
		return nil, err
	}
	l.Unlock()

	recordTransition(string(old.Status), string(session.Status))
	s.publishUpdate(old, session)
	return session, nil
}

// AcceptNext claims the head of the queue for an agent. Slot reservation
// comes first; the pop is the atomic claim, so two concurrent accepts can
// never receive the same session. Any downstream failure rolls back both.
func (s *Service) AcceptNext(ctx context.Context, agentID, agentName string) (*models.ChatSession, error) {
	if err := s.registry.ReserveSlot(agentID); err != nil {
		queue.RecordClaim("rejected")
		return nil, err
	}

	entry, err := s.queue.PopHead()
	if err != nil {
		s.registry.ReleaseSlot(agentID)
		queue.RecordClaim("empty")
		return nil, err
	}

	l := s.locks.get(entry.SessionID)
	l.Lock()

	session, err := s.sessions.GetByID(ctx, entry.SessionID)
	if err != nil {
		l.Unlock()
		s.queue.Requeue(entry)
		s.registry.ReleaseSlot(agentID)
		queue.RecordClaim("failed")
		return nil, err
	}
	if session.Status != models.SessionWaiting {
		// Stale entry; the session moved on without us. Do not requeue.
		l.Unlock()
		s.registry.ReleaseSlot(agentID)
		queue.RecordClaim("failed")
		return nil, models.ErrInvalidTransition
	}

	old := session.Clone()
	session.Status = models.SessionActive
	session.AssignedAgentID = &agentID
	if agentName != "" {
		session.AssignedAgentName = &agentName
	}
	session.QueuePosition = nil

	if err := s.commitSession(ctx, session); err != nil {
		l.Unlock()
		s.queue.Requeue(entry)
		s.registry.ReleaseSlot(agentID)
		queue.RecordClaim("failed")
		return nil, err
	}
	l.Unlock()

	queue.RecordClaim("claimed")
	queue.RecordWait(s.now().Sub(entry.EnteredQueueAt))
	recordTransition(string(old.Status), string(session.Status))
	s.publishUpdate(old, session)
	s.postSystemMessage(ctx, session.ThreadID, fmt.Sprintf("%s joined the conversation.", displayName(agentName, agentID)))
	return session, nil
}

// TransferChat hands an active session to another agent. With a target, the
// session is assigned directly when the target has capacity, bypassing the
// queue; a target without capacity falls back to the queue, as does a
// transfer with no target. Either way EnteredQueueAt is preserved so the
// contact's wait clock never resets.
func (s *Service) TransferChat(ctx context.Context, sessionID, fromAgentID, toAgentID, toAgentName string) (*models.ChatSession, error) {
	l := s.locks.get(sessionID)
	l.Lock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if session.Status != models.SessionActive {
		l.Unlock()
		return nil, models.ErrInvalidTransition
	}
	if session.AssignedAgentID == nil || *session.AssignedAgentID != fromAgentID {
		l.Unlock()
		return nil, models.ErrNotAssigned
	}

	old := session.Clone()

	if toAgentID != "" {
		if err := s.registry.ReserveSlot(toAgentID); err != nil {
			// Target full or offline: the session goes to the general queue
			// instead of staying with an agent who already handed it off.
			s.logger.Printf("agent %s cannot take session %s (%v), queueing", toAgentID, session.ID, err)
			return s.transferToQueue(ctx, l, session, old, fromAgentID)
		}
		session.AssignedAgentID = &toAgentID
		if toAgentName != "" {
			session.AssignedAgentName = &toAgentName
		} else {
			session.AssignedAgentName = nil
		}
		if err := s.commitSession(ctx, session); err != nil {
			l.Unlock()
			s.registry.ReleaseSlot(toAgentID)
			return nil, err
		}
		l.Unlock()

		s.registry.ReleaseSlot(fromAgentID)
		recordTransfer("direct")
		s.publishUpdate(old, session)
		s.postSystemMessage(ctx, session.ThreadID, fmt.Sprintf("Conversation transferred to %s.", displayName(toAgentName, toAgentID)))
		return session, nil
	}

	return s.transferToQueue(ctx, l, session, old, fromAgentID)
}

// transferToQueue finishes a transfer by re-enqueueing the session with its
// original wait clock. Called with the session lock held; releases it.
func (s *Service) transferToQueue(ctx context.Context, l *sync.Mutex, session, old *models.ChatSession, fromAgentID string) (*models.ChatSession, error) {
	now := s.now().UTC()
	if session.EnteredQueueAt == nil {
		session.EnteredQueueAt = &now
	}
	pos := s.queue.Enqueue(session.ID, *session.EnteredQueueAt)
	session.Status = models.SessionWaiting
	session.AssignedAgentID = nil
	session.AssignedAgentName = nil
	session.QueuePosition = &pos

	if err := s.commitSession(ctx, session); err != nil {
		s.queue.Remove(session.ID)
		l.Unlock()
		return nil, err
	}
	l.Unlock()

	s.registry.ReleaseSlot(fromAgentID)
	recordTransfer("queued")
	recordTransition(string(old.Status), string(session.Status))
	s.publishUpdate(old, session)
	s.postSystemMessage(ctx, session.ThreadID, "Conversation returned to the support queue.")
	return session, nil
}

// EndSession closes the session from any state. Idempotent: ending an ended
// session returns it unchanged. A contact ending an ai_active session that
// was never escalated counts as an AI resolution.
func (s *Service) EndSession(ctx context.Context, sessionID, callerID string, callerRole models.SenderRole) (*models.ChatSession, error) {
	l := s.locks.get(sessionID)
	l.Lock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	if session.Status == models.SessionEnded {
		l.Unlock()
		return session, nil
	}
	if err := endAllowed(session, callerID, callerRole); err != nil {
		l.Unlock()
		return nil, err
	}

	old := session.Clone()
	var releaseAgent string
	switch session.Status {
	case models.SessionAIActive:
		if callerRole == models.RoleContact && session.AIHandled && session.EscalationReason == "" {
			session.AIResolved = true
		}
	case models.SessionWaiting:
		s.queue.Remove(session.ID)
	case models.SessionActive:
		releaseAgent = *session.AssignedAgentID
	}

	now := s.now().UTC()
	session.Status = models.SessionEnded
	session.EndedAt = &now
	session.QueuePosition = nil
	session.AssignedAgentID = nil
	session.AssignedAgentName = nil

	if err := s.commitSession(ctx, session); err != nil {
		// The store still says waiting; put the entry back so the session
		// stays claimable.
		if old.Status == models.SessionWaiting && old.EnteredQueueAt != nil {
			s.queue.Enqueue(old.ID, *old.EnteredQueueAt)
		}
		l.Unlock()
		return nil, err
	}
	l.Unlock()

	if releaseAgent != "" {
		s.registry.ReleaseSlot(releaseAgent)
	}
	recordTransition(string(old.Status), string(session.Status))
	s.publishUpdate(old, session)
	if f, ok := s.evaluator.(interface{ Forget(string) }); ok {
		f.Forget(sessionID)
	}
	s.locks.forget(sessionID)
	return session, nil
}

// RestoreQueue rebuilds the in-memory queue from sessions persisted as
// waiting, called once at startup. Enqueue inserts in EnteredQueueAt order,
// so the original FIFO order survives a restart.
func (s *Service) RestoreQueue(ctx context.Context) (int, error) {
	waiting, err := s.sessions.ListByStatus(ctx, models.SessionWaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to load waiting sessions: %w", err)
	}
	for _, session := range waiting {
		enteredAt := session.StartedAt
		if session.EnteredQueueAt != nil {
			enteredAt = *session.EnteredQueueAt
		}
		s.queue.Enqueue(session.ID, enteredAt)
	}
	return len(waiting), nil
}

// ReapStaleAIActive ends ai_active sessions started before the cutoff.
// Returns how many were ended; individual failures are logged and skipped.
func (s *Service) ReapStaleAIActive(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.sessions.ListStaleAIActive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, session := range stale {
		if _, err := s.EndSession(ctx, session.ID, SystemSender, models.RoleSystem); err != nil {
			s.logger.Printf("failed to reap stale session %s: %v", session.ID, err)
			continue
		}
		ended++
	}
	return ended, nil
}

// GetSession returns a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// GetOpenByContact returns the contact's open session, if any.
func (s *Service) GetOpenByContact(ctx context.Context, contactID string) (*models.ChatSession, error) {
	return s.sessions.GetOpenByContact(ctx, contactID)
}

// ListActiveForAgent returns the sessions currently assigned to the agent.
func (s *Service) ListActiveForAgent(ctx context.Context, agentID string) ([]*models.ChatSession, error) {
	return s.sessions.ListActiveByAgent(ctx, agentID)
}

// ListQueue returns the waiting queue in order with live waiting times.
func (s *Service) ListQueue(ctx context.Context) ([]QueueItem, error) {
	entries := s.queue.Snapshot()
	now := s.now()

	items := make([]QueueItem, 0, len(entries))
	for i, e := range entries {
		item := QueueItem{
			SessionID:      e.SessionID,
			Position:       i + 1,
			WaitingSeconds: int(e.WaitingTime(now).Seconds()),
		}
		session, err := s.sessions.GetByID(ctx, e.SessionID)
		if err != nil {
			s.logger.Printf("queue entry %s has no session: %v", e.SessionID, err)
		} else {
			item.ContactName = session.SchoolContactName
			item.Subject = session.Subject
			item.IssueCategory = session.IssueCategory
			item.Severity = session.Severity
			item.AISummary = session.AISummary
		}
		items = append(items, item)
	}
	return items, nil
}

// commitSession persists the session with bounded retries. Under the
// session lock the only competing writer is the message counter bump, so a
// conflict is resolved by re-reading counter and version.
func (s *Service) commitSession(ctx context.Context, session *models.ChatSession) error {
	var err error
	for attempt := 0; attempt < versionRetries; attempt++ {
		err = s.sessions.Update(ctx, session)
		if err == nil || !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		current, loadErr := s.sessions.GetByID(ctx, session.ID)
		if loadErr != nil {
			return loadErr
		}
		session.TotalMessages = current.TotalMessages
		session.Version = current.Version
	}
	return err
}

func (s *Service) publishUpdate(old, current *models.ChatSession) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.EventEnvelope{
		Type:      models.EventSessionUpdate,
		SessionID: current.ID,
		ThreadID:  current.ThreadID,
		Payload:   models.NewSessionUpdate(old, current),
	})
}

func (s *Service) postSystemMessage(ctx context.Context, threadID, text string) {
	_, err := s.router.PostMessage(ctx, threadID, messaging.Sender{
		ID:   SystemSender,
		Role: models.RoleSystem,
	}, messaging.PostInput{Content: text})
	if err != nil {
		s.logger.Printf("failed to post system message to thread %s: %v", threadID, err)
	}
}

// applyHandoff copies the assistant's briefing onto the session so the
// claiming agent starts with full context.
func applyHandoff(session *models.ChatSession, hc *models.HandoffContext) {
	if hc == nil {
		return
	}
	if hc.Summary != "" {
		session.AISummary = hc.Summary
	}
	if hc.Category != "" {
		session.IssueCategory = hc.Category
	}
	if hc.Severity != "" {
		session.Severity = hc.Severity
	}
	if hc.EscalationReason != "" {
		session.EscalationReason = hc.EscalationReason
	}
	if len(hc.CollectedInfo) > 0 {
		if session.CollectedInfo == nil {
			session.CollectedInfo = make(map[string]string, len(hc.CollectedInfo))
		}
		for k, v := range hc.CollectedInfo {
			session.CollectedInfo[k] = v
		}
	}
}

func endAllowed(session *models.ChatSession, callerID string, callerRole models.SenderRole) error {
	switch callerRole {
	case models.RoleSystem:
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

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
