// Package repository provides data access for chat sessions and messages.
// SQL implementations use ? placeholders converted through
// database.ConvertPlaceholders; in-memory implementations back tests and
// single-node development.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goatkit/goatchat/internal/database"
	"github.com/goatkit/goatchat/internal/models"
)

// SessionRepository defines the interface for chat session persistence.
// All mutation goes through the chat service; Update enforces optimistic
// concurrency on the session version.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ChatSession) error
	GetByID(ctx context.Context, id string) (*models.ChatSession, error)
	// GetOpenByContact returns the contact's non-ended session, or
	// ErrSessionNotFound if none exists.
	GetOpenByContact(ctx context.Context, contactID string) (*models.ChatSession, error)
	// Update persists the session iff the stored version matches
	// session.Version, then bumps it. ErrVersionConflict otherwise.
	Update(ctx context.Context, session *models.ChatSession) error
	// ListActiveByAgent returns sessions currently assigned to the agent.
	ListActiveByAgent(ctx context.Context, agentID string) ([]*models.ChatSession, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.ChatSession, error)
	// ListStaleAIActive returns ai_active sessions started before the cutoff,
	// used by the background reaper.
	ListStaleAIActive(ctx context.Context, cutoff time.Time) ([]*models.ChatSession, error)
	// GetByThread resolves the session owning a thread.
	GetByThread(ctx context.Context, threadID string) (*models.ChatSession, error)
}

const sessionColumns = `id, thread_id, school_contact_id, school_contact_name, school_id, subject,
	status, assigned_agent_id, assigned_agent_name, queue_position,
	ai_handled, ai_resolved, issue_category, severity, escalation_reason,
	collected_info, ai_summary, total_messages, started_at, ended_at,
	entered_queue_at, version`

// SessionSQLRepository stores sessions in the chat_session table.
type SessionSQLRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a SQL-backed session repository.
func NewSessionRepository(db *sql.DB) *SessionSQLRepository {
	return &SessionSQLRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionSQLRepository) Create(ctx context.Context, s *models.ChatSession) error {
	if s.ID == "" {
		return errors.New("session ID is required")
	}

	info, err := marshalCollectedInfo(s.CollectedInfo)
	if err != nil {
		return err
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO chat_session (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.ThreadID, s.SchoolContactID, s.SchoolContactName, s.SchoolID, s.Subject,
		string(s.Status), s.AssignedAgentID, s.AssignedAgentName, s.QueuePosition,
		boolToInt(s.AIHandled), boolToInt(s.AIResolved), s.IssueCategory, string(s.Severity), s.EscalationReason,
		info, s.AISummary, s.TotalMessages, s.StartedAt, s.EndedAt,
		s.EnteredQueueAt, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionSQLRepository) GetByID(ctx context.Context, id string) (*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session WHERE id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetOpenByContact returns the contact's non-ended session.
func (r *SessionSQLRepository) GetOpenByContact(ctx context.Context, contactID string) (*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session
		WHERE school_contact_id = ? AND status != ?
		ORDER BY started_at DESC LIMIT 1`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, contactID, string(models.SessionEnded)))
}

// GetByThread resolves the session owning a thread.
func (r *SessionSQLRepository) GetByThread(ctx context.Context, threadID string) (*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session WHERE thread_id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, threadID))
}

// Update persists the session with an optimistic version check.
func (r *SessionSQLRepository) Update(ctx context.Context, s *models.ChatSession) error {
	info, err := marshalCollectedInfo(s.CollectedInfo)
	if err != nil {
		return err
	}

	query := database.ConvertPlaceholders(`
		UPDATE chat_session SET
			status = ?, assigned_agent_id = ?, assigned_agent_name = ?,
			queue_position = ?, ai_handled = ?, ai_resolved = ?,
			issue_category = ?, severity = ?, escalation_reason = ?,
			collected_info = ?, ai_summary = ?, total_messages = ?,
			ended_at = ?, entered_queue_at = ?, version = version + 1
		WHERE id = ? AND version = ?`)

	result, err := r.db.ExecContext(ctx, query,
		string(s.Status), s.AssignedAgentID, s.AssignedAgentName,
		s.QueuePosition, boolToInt(s.AIHandled), boolToInt(s.AIResolved),
		s.IssueCategory, string(s.Severity), s.EscalationReason,
		info, s.AISummary, s.TotalMessages,
		s.EndedAt, s.EnteredQueueAt,
		s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the row is gone or a concurrent writer bumped the version.
		if _, getErr := r.GetByID(ctx, s.ID); errors.Is(getErr, models.ErrSessionNotFound) {
			return models.ErrSessionNotFound
		}
		return models.ErrVersionConflict
	}
	s.Version++
	return nil
}

// ListActiveByAgent returns sessions currently assigned to the agent.
func (r *SessionSQLRepository) ListActiveByAgent(ctx context.Context, agentID string) ([]*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session
		WHERE assigned_agent_id = ? AND status = ?
		ORDER BY started_at`)
	return r.scanMany(ctx, query, agentID, string(models.SessionActive))
}

// ListByStatus returns all sessions in the given state.
func (r *SessionSQLRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session
		WHERE status = ? ORDER BY started_at`)
	return r.scanMany(ctx, query, string(status))
}

// ListStaleAIActive returns abandoned ai_active sessions for the reaper.
func (r *SessionSQLRepository) ListStaleAIActive(ctx context.Context, cutoff time.Time) ([]*models.ChatSession, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + sessionColumns + ` FROM chat_session
		WHERE status = ? AND started_at < ?
		ORDER BY started_at`)
	return r.scanMany(ctx, query, string(models.SessionAIActive), cutoff)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SessionSQLRepository) scanOne(row rowScanner) (*models.ChatSession, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return s, nil
}

func (r *SessionSQLRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*models.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	var (
		s         models.ChatSession
		status    string
		severity  string
		aiHandled int
		aiDone    int
		reason    sql.NullString
		info      sql.NullString
		summary   sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.ThreadID, &s.SchoolContactID, &s.SchoolContactName, &s.SchoolID, &s.Subject,
		&status, &s.AssignedAgentID, &s.AssignedAgentName, &s.QueuePosition,
		&aiHandled, &aiDone, &s.IssueCategory, &severity, &reason,
		&info, &summary, &s.TotalMessages, &s.StartedAt, &s.EndedAt,
		&s.EnteredQueueAt, &s.Version,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.Severity = models.Severity(severity)
	s.AIHandled = aiHandled != 0
	s.AIResolved = aiDone != 0
	s.EscalationReason = reason.String
	s.AISummary = summary.String
	if info.Valid && info.String != "" {
		if err := json.Unmarshal([]byte(info.String), &s.CollectedInfo); err != nil {
			return nil, fmt.Errorf("failed to decode collected_info: %w", err)
		}
	}
	return &s, nil
}

func marshalCollectedInfo(info map[string]string) (interface{}, error) {
	if len(info) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collected_info: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
