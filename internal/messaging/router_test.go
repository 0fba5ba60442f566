package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/repository"
)

type captureSink struct {
	mu   sync.Mutex
	envs []models.EventEnvelope
}

func (s *captureSink) Publish(env models.EventEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envs)
}

func newTestRouter(t *testing.T) (*Router, *repository.SessionMemoryRepository, *captureSink) {
	t.Helper()
	sessions := repository.NewSessionMemoryRepository()
	messages := repository.NewMessageMemoryRepository()
	sink := &captureSink{}
	return NewRouter(sessions, messages, sink), sessions, sink
}

func seedSession(t *testing.T, sessions *repository.SessionMemoryRepository, status models.SessionStatus, agentID string) *models.ChatSession {
	t.Helper()
	s := &models.ChatSession{
		ID:              "sess-1",
		ThreadID:        "thread-1",
		SchoolContactID: "c1",
		Status:          status,
		StartedAt:       time.Now().UTC(),
	}
	if agentID != "" {
		s.AssignedAgentID = &agentID
	}
	require.NoError(t, sessions.Create(context.Background(), s))
	return s
}

func TestPostMessagePersistsAndPublishes(t *testing.T) {
	router, sessions, sink := newTestRouter(t)
	seedSession(t, sessions, models.SessionAIActive, "")

	msg, err := router.PostMessage(context.Background(), "thread-1", Sender{
		ID: "c1", Name: "Contact", Role: models.RoleContact,
	}, PostInput{Content: "hello"})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, DefaultContentType, msg.ContentType)
	assert.Equal(t, 1, sink.count())

	session, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalMessages)
}

func TestPostMessageToEndedSession(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	seedSession(t, sessions, models.SessionEnded, "")

	_, err := router.PostMessage(context.Background(), "thread-1", Sender{
		ID: "c1", Role: models.RoleContact,
	}, PostInput{Content: "anyone there?"})
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestPostMessageUnknownThread(t *testing.T) {
	router, _, _ := newTestRouter(t)

	_, err := router.PostMessage(context.Background(), "missing", Sender{
		ID: "c1", Role: models.RoleContact,
	}, PostInput{Content: "hi"})
	assert.Error(t, err)
}

func TestPostMessageParticipantChecks(t *testing.T) {
	tests := []struct {
		name    string
		sender  Sender
		wantErr bool
	}{
		{"owning contact", Sender{ID: "c1", Role: models.RoleContact}, false},
		{"other contact", Sender{ID: "c2", Role: models.RoleContact}, true},
		{"assigned agent", Sender{ID: "a1", Role: models.RoleAgent}, false},
		{"other agent", Sender{ID: "a2", Role: models.RoleAgent}, true},
		{"assistant", Sender{ID: "ai-assistant", Role: models.RoleAIAssistant}, false},
		{"system", Sender{ID: "system", Role: models.RoleSystem}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, sessions, _ := newTestRouter(t)
			seedSession(t, sessions, models.SessionActive, "a1")

			_, err := router.PostMessage(context.Background(), "thread-1", tt.sender, PostInput{Content: "x"})
			if tt.wantErr {
				assert.True(t, errors.Is(err, models.ErrNotParticipant))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostMessageEmptyContent(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	seedSession(t, sessions, models.SessionAIActive, "")

	_, err := router.PostMessage(context.Background(), "thread-1", Sender{
		ID: "c1", Role: models.RoleContact,
	}, PostInput{})
	assert.Error(t, err)

	// Attachment-only messages are allowed.
	_, err = router.PostMessage(context.Background(), "thread-1", Sender{
		ID: "c1", Role: models.RoleContact,
	}, PostInput{Attachments: []models.AttachmentRef{{Ref: "blob-1", FileName: "invoice.pdf"}}})
	assert.NoError(t, err)
}

func TestUnreadAndMarkRead(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	seedSession(t, sessions, models.SessionActive, "a1")
	ctx := context.Background()

	var lastAgentMsg *models.Message
	for i := 0; i < 3; i++ {
		msg, err := router.PostMessage(ctx, "thread-1", Sender{ID: "a1", Role: models.RoleAgent}, PostInput{Content: "reply"})
		require.NoError(t, err)
		lastAgentMsg = msg
	}
	_, err := router.PostMessage(ctx, "thread-1", Sender{ID: "c1", Role: models.RoleContact}, PostInput{Content: "thanks"})
	require.NoError(t, err)

	// The contact has 3 unread agent messages; their own does not count.
	unread, err := router.UnreadCount(ctx, "thread-1", "c1", models.RoleContact)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	require.NoError(t, router.MarkRead(ctx, "thread-1", "c1", models.RoleContact, lastAgentMsg.ID))
	unread, err = router.UnreadCount(ctx, "thread-1", "c1", models.RoleContact)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	// The agent's counter is untouched by the contact's marker.
	unread, err = router.UnreadCount(ctx, "thread-1", "a1", models.RoleAgent)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkReadNeverMovesBackwards(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	seedSession(t, sessions, models.SessionActive, "a1")
	ctx := context.Background()

	first, err := router.PostMessage(ctx, "thread-1", Sender{ID: "a1", Role: models.RoleAgent}, PostInput{Content: "one"})
	require.NoError(t, err)
	second, err := router.PostMessage(ctx, "thread-1", Sender{ID: "a1", Role: models.RoleAgent}, PostInput{Content: "two"})
	require.NoError(t, err)

	require.NoError(t, router.MarkRead(ctx, "thread-1", "c1", models.RoleContact, second.ID))
	require.NoError(t, router.MarkRead(ctx, "thread-1", "c1", models.RoleContact, first.ID))

	unread, err := router.UnreadCount(ctx, "thread-1", "c1", models.RoleContact)
	require.NoError(t, err)
	assert.Equal(t, 0, unread, "marker must not move backwards")
}

func TestListThreadOrderAndLimit(t *testing.T) {
	router, sessions, _ := newTestRouter(t)
	seedSession(t, sessions, models.SessionActive, "a1")
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		_, err := router.PostMessage(ctx, "thread-1", Sender{ID: "c1", Role: models.RoleContact}, PostInput{Content: content})
		require.NoError(t, err)
	}

	all, err := router.ListThread(ctx, "thread-1", "c1", models.RoleContact, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "three", all[2].Content)

	limited, err := router.ListThread(ctx, "thread-1", "c1", models.RoleContact, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = router.ListThread(ctx, "thread-1", "c9", models.RoleContact, 0)
	assert.True(t, errors.Is(err, models.ErrNotParticipant))
}
