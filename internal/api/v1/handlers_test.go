package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatchat/internal/agents"
	"github.com/goatkit/goatchat/internal/ai"
	"github.com/goatkit/goatchat/internal/chat"
	"github.com/goatkit/goatchat/internal/messaging"
	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/queue"
	"github.com/goatkit/goatchat/internal/realtime"
	"github.com/goatkit/goatchat/internal/repository"
)

// newTestEngine assembles the full engine over in-memory repositories. No
// JWT secret is configured, so the dev identity headers authenticate
// requests.
func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := repository.NewSessionMemoryRepository()
	messages := repository.NewMessageMemoryRepository()
	router := messaging.NewRouter(sessions, messages, nil)
	registry := agents.NewRegistry()
	service := chat.NewService(sessions, router, queue.NewManager(), registry, ai.NewRuleEvaluator(), nil)
	hub := realtime.NewHub(NewMembershipResolver(service))
	typing := realtime.NewTypingTracker(realtime.DefaultTypingTTL, func(models.EventEnvelope) {})

	engine := gin.New()
	NewAPIRouter(service, router, registry, hub, typing).RegisterRoutes(engine)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, identity map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range identity {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success, "body: %s", rec.Body.String())
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

var (
	asContact = map[string]string{"X-User-ID": "c1", "X-User-Name": "Head Teacher", "X-User-Role": "contact"}
	asAgent   = map[string]string{"X-User-ID": "a1", "X-User-Name": "Sam", "X-User-Role": "agent"}
)

func TestUnauthenticatedRequestRejected(t *testing.T) {
	engine := newTestEngine(t)
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/chat/queue", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartSessionRequiresContactRole(t *testing.T) {
	engine := newTestEngine(t)
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asAgent, gin.H{"subject": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartSessionCreated(t *testing.T) {
	engine := newTestEngine(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asContact, gin.H{
		"school_id": "school-1",
		"subject":   "Printer offline",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	session := decodeData(t, rec)["session"].(map[string]interface{})
	assert.Equal(t, "ai_active", session["status"])
	assert.Equal(t, "c1", session["school_contact_id"])

	// A second open session for the same contact conflicts.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asContact, gin.H{"subject": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptNextOnEmptyQueue(t *testing.T) {
	engine := newTestEngine(t)

	rec := doJSON(t, engine, http.MethodPut, "/api/v1/chat/availability", asAgent, gin.H{
		"is_available": true, "max_concurrent_chats": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/queue/accept", asAgent, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetAvailabilityInvalidCapacity(t *testing.T) {
	engine := newTestEngine(t)
	rec := doJSON(t, engine, http.MethodPut, "/api/v1/chat/availability", asAgent, gin.H{
		"is_available": true, "max_concurrent_chats": 11,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactCannotReadStrangerSession(t *testing.T) {
	engine := newTestEngine(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asContact, gin.H{"subject": "help"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeData(t, rec)["session"].(map[string]interface{})["id"].(string)

	stranger := map[string]string{"X-User-ID": "c2", "X-User-Role": "contact"}
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/sessions/"+id, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSupportFlowOverHTTP(t *testing.T) {
	engine := newTestEngine(t)

	// Contact opens a session and asks for a human.
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asContact, gin.H{
		"school_id": "school-1",
		"subject":   "Timetable broken",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeData(t, rec)["session"].(map[string]interface{})
	sessionID := session["id"].(string)
	threadID := session["thread_id"].(string)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions/"+sessionID+"/escalate", asContact, gin.H{
		"reason": "need a person",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session = decodeData(t, rec)["session"].(map[string]interface{})
	assert.Equal(t, "waiting", session["status"])

	// Agent comes online and sees the queue.
	rec = doJSON(t, engine, http.MethodPut, "/api/v1/chat/availability", asAgent, gin.H{
		"is_available": true, "max_concurrent_chats": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/queue", asAgent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeData(t, rec)["total"])

	// Agent claims the chat.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/queue/accept", asAgent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session = decodeData(t, rec)["session"].(map[string]interface{})
	assert.Equal(t, "active", session["status"])
	assert.Equal(t, "a1", session["assigned_agent_id"])

	// Both sides exchange messages on the thread.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/threads/"+threadID+"/messages", asAgent, gin.H{
		"content": "Hi, what does the error say?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/threads/"+threadID+"/messages", asContact, gin.H{
		"content": "It says 500.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The contact has one unread agent message until they mark it read.
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/threads/"+threadID+"/unread", asContact, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unread := decodeData(t, rec)["unread"].(float64)
	assert.GreaterOrEqual(t, unread, float64(1))

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/threads/"+threadID+"/messages", asContact, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decodeData(t, rec)["messages"].([]interface{})
	require.NotEmpty(t, messages)
	lastID := messages[len(messages)-1].(map[string]interface{})["id"].(string)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/threads/"+threadID+"/read", asContact, gin.H{
		"upto_message_id": lastID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/threads/"+threadID+"/unread", asContact, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeData(t, rec)["unread"])

	// Agent ends the chat; a repeat end is a no-op, not an error.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions/"+sessionID+"/end", asAgent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session = decodeData(t, rec)["session"].(map[string]interface{})
	assert.Equal(t, "ended", session["status"])
	assert.Nil(t, session["assigned_agent_id"])

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions/"+sessionID+"/end", asAgent, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A closed thread rejects new messages.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/threads/"+threadID+"/messages", asContact, gin.H{
		"content": "one more thing",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActiveChatsCarryThreadActivity(t *testing.T) {
	engine := newTestEngine(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions", asContact, gin.H{"subject": "Wifi down"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeData(t, rec)["session"].(map[string]interface{})
	sessionID := session["id"].(string)
	threadID := session["thread_id"].(string)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/sessions/"+sessionID+"/escalate", asContact, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodPut, "/api/v1/chat/availability", asAgent, gin.H{
		"is_available": true, "max_concurrent_chats": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/queue/accept", asAgent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/chat/threads/"+threadID+"/messages", asContact, gin.H{
		"content": "It's the whole building.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/chat/active", asAgent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, float64(1), data["total"])

	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	itemSession := item["session"].(map[string]interface{})
	assert.Equal(t, sessionID, itemSession["id"])
	// The claim system message and the contact's message are both unread.
	assert.GreaterOrEqual(t, item["unread_count"].(float64), float64(1))
	assert.NotEmpty(t, item["last_message_at"])
}

func TestHealthEndpoint(t *testing.T) {
	engine := newTestEngine(t)
	rec := doJSON(t, engine, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
