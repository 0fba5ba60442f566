// Package ai defines the handoff contract with the AI assistant and a
// deterministic rule-based evaluator. The engine only contracts on the
// shape of the escalation context; the reasoning itself is opaque.
package ai

import (
	"context"

	"github.com/goatkit/goatchat/internal/models"
)

// TurnResult is the structured outcome of one AI turn.
type TurnResult struct {
	// Reply is the assistant's message back to the contact.
	Reply string
	// ShouldEscalate signals the conversation needs a human agent.
	ShouldEscalate bool
	// Context briefs the receiving agent; set only when ShouldEscalate.
	Context *models.HandoffContext
}

// Evaluator runs one AI turn for a session. Implementations may call out to
// a remote reasoning service; callers bound the call with the context
// deadline and degrade to offering escalation on timeout.
type Evaluator interface {
	EvaluateTurn(ctx context.Context, session *models.ChatSession, userMessage string) (TurnResult, error)
}
