// Package apierrors provides structured API error codes and responses.
// All codes are namespaced (e.g., "core:unauthorized", "chat:queue_empty").
package apierrors

import "net/http"

// Core error codes - registered automatically at init
const (
	// Authentication & Authorization
	CodeUnauthorized = "core:unauthorized"
	CodeForbidden    = "core:forbidden"
	CodeInvalidToken = "core:invalid_token"

	// Request errors
	CodeInvalidRequest   = "core:invalid_request"
	CodeValidationFailed = "core:validation_failed"
	CodeInvalidID        = "core:invalid_id"

	// Resource errors
	CodeNotFound = "core:not_found"
	CodeConflict = "core:conflict"

	// Server errors
	CodeInternalError      = "core:internal_error"
	CodeServiceUnavailable = "core:service_unavailable"
)

// Chat engine error codes. These map the typed errors returned by the chat,
// queue, and agent packages onto the HTTP surface.
const (
	CodeInvalidTransition    = "chat:invalid_transition"
	CodeAlreadyActiveSession = "chat:already_active_session"
	CodeAgentAtCapacity      = "chat:agent_at_capacity"
	CodeAgentUnavailable     = "chat:agent_unavailable"
	CodeQueueEmpty           = "chat:queue_empty"
	CodeInvalidCapacity      = "chat:invalid_capacity"
	CodeSessionNotFound      = "chat:session_not_found"
	CodeThreadNotFound       = "chat:thread_not_found"
	CodeMessageNotFound      = "chat:message_not_found"
	CodeNotParticipant       = "chat:not_participant"
)

// registeredErrors defines all error codes with their default messages and HTTP status
var registeredErrors = []ErrorCode{
	// Authentication & Authorization
	{Code: CodeUnauthorized, Message: "Authentication required", HTTPStatus: http.StatusUnauthorized},
	{Code: CodeForbidden, Message: "Permission denied", HTTPStatus: http.StatusForbidden},
	{Code: CodeInvalidToken, Message: "Invalid or malformed token", HTTPStatus: http.StatusUnauthorized},

	// Request errors
	{Code: CodeInvalidRequest, Message: "Invalid request body", HTTPStatus: http.StatusBadRequest},
	{Code: CodeValidationFailed, Message: "Request validation failed", HTTPStatus: http.StatusBadRequest},
	{Code: CodeInvalidID, Message: "Invalid ID format", HTTPStatus: http.StatusBadRequest},

	// Resource errors
	{Code: CodeNotFound, Message: "Resource not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeConflict, Message: "Resource conflict", HTTPStatus: http.StatusConflict},

	// Server errors
	{Code: CodeInternalError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeServiceUnavailable, Message: "Service temporarily unavailable", HTTPStatus: http.StatusServiceUnavailable},

	// Chat engine. Queue-empty and at-capacity are expected outcomes of
	// acceptNext, not hard failures; the messages stay actionable.
	{Code: CodeInvalidTransition, Message: "Operation not allowed from the current session state", HTTPStatus: http.StatusConflict},
	{Code: CodeAlreadyActiveSession, Message: "You already have an open chat session", HTTPStatus: http.StatusConflict},
	{Code: CodeAgentAtCapacity, Message: "At your concurrent chat limit", HTTPStatus: http.StatusConflict},
	{Code: CodeAgentUnavailable, Message: "Agent is not available for new chats", HTTPStatus: http.StatusConflict},
	{Code: CodeQueueEmpty, Message: "No chats waiting", HTTPStatus: http.StatusNotFound},
	{Code: CodeInvalidCapacity, Message: "max_concurrent_chats must be between 1 and 10", HTTPStatus: http.StatusBadRequest},
	{Code: CodeSessionNotFound, Message: "Chat session not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeThreadNotFound, Message: "Chat thread not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeMessageNotFound, Message: "Message not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeNotParticipant, Message: "Not a participant of this chat", HTTPStatus: http.StatusForbidden},
}

func init() {
	for _, e := range registeredErrors {
		Registry.Register(e)
	}
}
