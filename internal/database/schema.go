package database

import (
	"database/sql"
	"fmt"
)

// schemaStatements creates the chat engine tables. TEXT columns keep the
// schema portable across the three supported drivers; collected_info is
// stored as a JSON document.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_session (
		id VARCHAR(64) PRIMARY KEY,
		thread_id VARCHAR(64) NOT NULL,
		school_contact_id VARCHAR(64) NOT NULL,
		school_contact_name VARCHAR(255) NOT NULL DEFAULT '',
		school_id VARCHAR(64) NOT NULL DEFAULT '',
		subject VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		assigned_agent_id VARCHAR(64),
		assigned_agent_name VARCHAR(255),
		queue_position INTEGER,
		ai_handled SMALLINT NOT NULL DEFAULT 0,
		ai_resolved SMALLINT NOT NULL DEFAULT 0,
		issue_category VARCHAR(64) NOT NULL DEFAULT '',
		severity VARCHAR(16) NOT NULL DEFAULT '',
		escalation_reason TEXT,
		collected_info TEXT,
		ai_summary TEXT,
		total_messages INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		entered_queue_at TIMESTAMP,
		version BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_session_contact ON chat_session (school_contact_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_session_agent ON chat_session (assigned_agent_id, status)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		id VARCHAR(64) PRIMARY KEY,
		thread_id VARCHAR(64) NOT NULL,
		sender_id VARCHAR(64) NOT NULL,
		sender_role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		content_type VARCHAR(32) NOT NULL DEFAULT 'text',
		attachments TEXT,
		created_at TIMESTAMP NOT NULL,
		edited_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_message_thread ON chat_message (thread_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_read_marker (
		thread_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		last_read_at TIMESTAMP NOT NULL,
		PRIMARY KEY (thread_id, user_id)
	)`,
}

// EnsureSchema applies the chat tables idempotently at startup.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
