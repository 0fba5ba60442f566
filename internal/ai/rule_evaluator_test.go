package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatchat/internal/models"
)

func testSession(id string) *models.ChatSession {
	return &models.ChatSession{ID: id, SchoolContactID: "c1", Status: models.SessionAIActive}
}

func TestEvaluateTurnClassifiesCategory(t *testing.T) {
	tests := []struct {
		message  string
		category string
	}{
		{"our invoice for March seems wrong", "billing"},
		{"I get an error when opening the timetable", "technical"},
		{"the projector in room 4 is dead", "devices"},
		{"the boiler is making noises again", "facilities"},
		{"just wanted to say hello", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			e := NewRuleEvaluator()
			result, err := e.EvaluateTurn(context.Background(), testSession("s1"), tt.message)
			require.NoError(t, err)
			assert.NotEmpty(t, result.Reply)
			assert.False(t, result.ShouldEscalate)
		})
	}
}

func TestEvaluateTurnEscalatesOnHumanRequest(t *testing.T) {
	e := NewRuleEvaluator()

	result, err := e.EvaluateTurn(context.Background(), testSession("s1"), "please let me speak to a human")
	require.NoError(t, err)

	assert.True(t, result.ShouldEscalate)
	require.NotNil(t, result.Context)
	assert.Equal(t, "contact asked for a human agent", result.Context.EscalationReason)
	assert.NotEmpty(t, result.Context.Summary)
}

func TestEvaluateTurnEscalatesOnHighSeverity(t *testing.T) {
	e := NewRuleEvaluator()

	result, err := e.EvaluateTurn(context.Background(), testSession("s1"), "nobody can log in, the whole school is blocked")
	require.NoError(t, err)

	assert.True(t, result.ShouldEscalate)
	require.NotNil(t, result.Context)
	assert.Equal(t, models.SeverityHigh, result.Context.Severity)
}

func TestEvaluateTurnEscalatesOnCritical(t *testing.T) {
	e := NewRuleEvaluator()

	result, err := e.EvaluateTurn(context.Background(), testSession("s1"), "this is a safeguarding emergency")
	require.NoError(t, err)

	assert.True(t, result.ShouldEscalate)
	require.NotNil(t, result.Context)
	assert.Equal(t, models.SeverityCritical, result.Context.Severity)
	assert.Equal(t, "safeguarding", result.Context.Category)
}

func TestEvaluateTurnEscalatesAfterMaxTurns(t *testing.T) {
	e := NewRuleEvaluator()
	e.MaxAITurns = 3
	session := testSession("s1")

	var last TurnResult
	for i := 0; i < 3; i++ {
		var err error
		last, err = e.EvaluateTurn(context.Background(), session, fmt.Sprintf("still looks odd, attempt %d", i))
		require.NoError(t, err)
	}

	assert.True(t, last.ShouldEscalate)
	require.NotNil(t, last.Context)
	assert.Equal(t, "conversation not resolved by assistant", last.Context.EscalationReason)
	assert.Equal(t, "3", last.Context.CollectedInfo["turns"])
}

func TestEvaluateTurnCollectsContactDetails(t *testing.T) {
	e := NewRuleEvaluator()
	session := testSession("s1")

	_, err := e.EvaluateTurn(context.Background(), session, "you can reach me at office@stmarys.example")
	require.NoError(t, err)
	result, err := e.EvaluateTurn(context.Background(), session, "or call 0117 496 0123, I need to speak to a human")
	require.NoError(t, err)

	require.True(t, result.ShouldEscalate)
	assert.Equal(t, "office@stmarys.example", result.Context.CollectedInfo["contact_email"])
	assert.NotEmpty(t, result.Context.CollectedInfo["contact_phone"])
}

func TestEvaluateTurnSessionsAreIsolated(t *testing.T) {
	e := NewRuleEvaluator()
	e.MaxAITurns = 2

	_, err := e.EvaluateTurn(context.Background(), testSession("s1"), "first thing")
	require.NoError(t, err)

	// A different session starts its own turn count.
	result, err := e.EvaluateTurn(context.Background(), testSession("s2"), "other thing")
	require.NoError(t, err)
	assert.False(t, result.ShouldEscalate)
}

func TestForgetResetsTurnHistory(t *testing.T) {
	e := NewRuleEvaluator()
	e.MaxAITurns = 2
	session := testSession("s1")

	_, err := e.EvaluateTurn(context.Background(), session, "first")
	require.NoError(t, err)
	e.Forget("s1")

	result, err := e.EvaluateTurn(context.Background(), session, "second")
	require.NoError(t, err)
	assert.False(t, result.ShouldEscalate)
}

func TestEvaluateTurnHonorsContext(t *testing.T) {
	e := NewRuleEvaluator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EvaluateTurn(ctx, testSession("s1"), "hello")
	assert.Error(t, err)
}
