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

// MessageRepository defines the interface for chat thread persistence.
// The message router is a thin orchestration layer over this store.
type MessageRepository interface {
	Insert(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListThread returns the thread's messages in creation order, capped at
	// limit (0 means no cap).
	ListThread(ctx context.Context, threadID string, limit int) ([]*models.Message, error)
	// MarkRead advances the caller's read marker to the given message's
	// creation time. Markers only ever move forward.
	MarkRead(ctx context.Context, threadID, userID, uptoMessageID string) error
	// UnreadCount returns how many messages in the thread from other senders
	// are newer than the caller's read marker.
	UnreadCount(ctx context.Context, threadID, userID string) (int, error)
	// LastMessageAt returns the creation time of the newest message, or the
	// zero time for an empty thread.
	LastMessageAt(ctx context.Context, threadID string) (time.Time, error)
}

// MessageSQLRepository stores messages in chat_message and read markers in
// chat_read_marker.
type MessageSQLRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a SQL-backed message repository.
func NewMessageRepository(db *sql.DB) *MessageSQLRepository {
	return &MessageSQLRepository{db: db}
}

// Insert persists a message.
func (r *MessageSQLRepository) Insert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		return errors.New("message ID is required")
	}

	var attachments interface{}
	if len(m.Attachments) > 0 {
		b, err := json.Marshal(m.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		attachments = string(b)
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO chat_message
			(id, thread_id, sender_id, sender_role, content, content_type, attachments, created_at, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ThreadID, m.SenderID, string(m.SenderRole),
		m.Content, m.ContentType, attachments, m.CreatedAt, m.EditedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetByID retrieves a single message.
func (r *MessageSQLRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, thread_id, sender_id, sender_role, content, content_type, attachments, created_at, edited_at
		FROM chat_message WHERE id = ?`)

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return m, nil
}

// ListThread returns the thread's messages in creation order.
func (r *MessageSQLRepository) ListThread(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	q := `
		SELECT id, thread_id, sender_id, sender_role, content, content_type, attachments, created_at, edited_at
		FROM chat_message WHERE thread_id = ? ORDER BY created_at, id`
	args := []interface{}{threadID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, database.ConvertPlaceholders(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// MarkRead advances the caller's read marker, never backwards.
func (r *MessageSQLRepository) MarkRead(ctx context.Context, threadID, userID, uptoMessageID string) error {
	msg, err := r.GetByID(ctx, uptoMessageID)
	if err != nil {
		return err
	}
	if msg.ThreadID != threadID {
		return models.ErrMessageNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var current time.Time
	selectQ := database.ConvertPlaceholders(`
		SELECT last_read_at FROM chat_read_marker WHERE thread_id = ? AND user_id = ?`)
	err = tx.QueryRowContext(ctx, selectQ, threadID, userID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insertQ := database.ConvertPlaceholders(`
			INSERT INTO chat_read_marker (thread_id, user_id, last_read_at) VALUES (?, ?, ?)`)
		if _, err = tx.ExecContext(ctx, insertQ, threadID, userID, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert read marker: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read marker: %w", err)
	case msg.CreatedAt.After(current):
		updateQ := database.ConvertPlaceholders(`
			UPDATE chat_read_marker SET last_read_at = ? WHERE thread_id = ? AND user_id = ?`)
		if _, err = tx.ExecContext(ctx, updateQ, msg.CreatedAt, threadID, userID); err != nil {
			return fmt.Errorf("failed to update read marker: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read marker: %w", err)
	}
	return nil
}

// UnreadCount counts messages from other senders past the caller's marker.
func (r *MessageSQLRepository) UnreadCount(ctx context.Context, threadID, userID string) (int, error) {
	query := database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM chat_message m
		WHERE m.thread_id = ? AND m.sender_id != ?
		AND m.created_at > COALESCE(
			(SELECT last_read_at FROM chat_read_marker WHERE thread_id = ? AND user_id = ?),
			'1970-01-01 00:00:00')`)

	var count int
	if err := r.db.QueryRowContext(ctx, query, threadID, userID, threadID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

// LastMessageAt returns the newest message time in the thread.
func (r *MessageSQLRepository) LastMessageAt(ctx context.Context, threadID string) (time.Time, error) {
	query := database.ConvertPlaceholders(`
		SELECT MAX(created_at) FROM chat_message WHERE thread_id = ?`)

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, threadID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last message time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m           models.Message
		role        string
		attachments sql.NullString
	)
	err := row.Scan(&m.ID, &m.ThreadID, &m.SenderID, &role,
		&m.Content, &m.ContentType, &attachments, &m.CreatedAt, &m.EditedAt)
	if err != nil {
		return nil, err
	}
	m.SenderRole = models.SenderRole(role)
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	return &m, nil
}
