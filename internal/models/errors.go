package models

import "errors"

// Typed errors shared across the chat engine. The API layer maps these onto
// apierrors codes; domain code compares with errors.Is.
var (
	// ErrInvalidTransition means the requested operation is not legal from
	// the session's current state. Never auto-retried.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrAlreadyActiveSession means the contact already holds a non-ended session.
	ErrAlreadyActiveSession = errors.New("contact already has an active session")

	// ErrSessionNotFound means no session exists for the given ID.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrThreadNotFound means no thread exists for the given ID.
	ErrThreadNotFound = errors.New("chat thread not found")

	// ErrMessageNotFound means no message exists for the given ID.
	ErrMessageNotFound = errors.New("message not found")

	// ErrQueueEmpty is an expected outcome of acceptNext: nothing is waiting.
	ErrQueueEmpty = errors.New("no chats waiting in queue")

	// ErrAgentAtCapacity means the agent's concurrent chat limit is reached.
	ErrAgentAtCapacity = errors.New("agent at concurrent chat capacity")

	// ErrAgentUnavailable means the agent is offline or unknown to the registry.
	ErrAgentUnavailable = errors.New("agent not available")

	// ErrInvalidCapacity means max_concurrent_chats is outside 1..10.
	ErrInvalidCapacity = errors.New("invalid max concurrent chats")

	// ErrNotAssigned means the caller does not hold the session assignment.
	ErrNotAssigned = errors.New("session not assigned to this agent")

	// ErrNotParticipant means the caller is not a participant of the thread.
	ErrNotParticipant = errors.New("caller is not a participant of this thread")

	// ErrVersionConflict means a concurrent writer committed first; the
	// caller reloads and retries under its session lock.
	ErrVersionConflict = errors.New("session version conflict")
)
