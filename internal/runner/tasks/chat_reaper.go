// Package tasks provides background task implementations for the runner.
package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/goatkit/goatchat/internal/chat"
	"github.com/goatkit/goatchat/internal/config"
	"github.com/goatkit/goatchat/internal/runner"
)

// Defaults when not configured.
const (
	defaultReaperInterval = 5 * time.Minute
	defaultReaperMaxAge   = 24 * time.Hour
)

// ChatReaperTask ends abandoned ai_active sessions. Contacts close the tab
// far more often than they click "end chat"; without the reaper those
// sessions would count as open forever and block new ones.
type ChatReaperTask struct {
	service  *chat.Service
	interval time.Duration
	maxAge   time.Duration
	logger   *log.Logger
}

// NewChatReaperTask creates the reaper over the chat service so that reaped
// sessions go through the normal end transition and still emit events.
func NewChatReaperTask(service *chat.Service) runner.Task {
	interval := defaultReaperInterval
	maxAge := defaultReaperMaxAge
	if cfg := config.Get(); cfg != nil {
		if cfg.Runner.SessionReaper.Interval > 0 {
			interval = cfg.Runner.SessionReaper.Interval
		}
		if cfg.Runner.SessionReaper.MaxAge > 0 {
			maxAge = cfg.Runner.SessionReaper.MaxAge
		}
	}

	return &ChatReaperTask{
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		logger:   log.New(log.Writer(), "[CHAT-REAPER] ", log.LstdFlags),
	}
}

// Name returns the task name.
func (t *ChatReaperTask) Name() string {
	return "chat-session-reaper"
}

// Schedule returns the cron schedule based on the configured interval.
func (t *ChatReaperTask) Schedule() string {
	minutes := int(t.interval.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	if minutes >= 60 {
		hours := minutes / 60
		if hours >= 24 {
			return "0 0 0 * * *"
		}
		return fmt.Sprintf("0 0 */%d * * *", hours)
	}
	return fmt.Sprintf("0 */%d * * * *", minutes)
}

// Timeout returns the task timeout.
func (t *ChatReaperTask) Timeout() time.Duration {
	return 2 * time.Minute
}

// Run ends ai_active sessions older than the configured max age.
func (t *ChatReaperTask) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-t.maxAge)
	ended, err := t.service.ReapStaleAIActive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to reap stale sessions: %w", err)
	}
	if ended > 0 {
		t.logger.Printf("ended %d abandoned sessions older than %v", ended, t.maxAge)
	}
	return nil
}
