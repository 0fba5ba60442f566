package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/goatkit/goatchat/internal/models"
)

// RuleEvaluator is a deterministic keyword-driven Evaluator. It stands in
// for the remote reasoning service in development and tests, and doubles as
// the fallback classifier when that service is unreachable.
type RuleEvaluator struct {
	mu sync.Mutex
	// turn history per session, used for the escalate-after-N heuristic and
	// the handoff summary
	turns map[string][]string

	// MaxAITurns escalates conversations the rules cannot resolve after
	// this many contact messages. Zero disables the heuristic.
	MaxAITurns int
}

// NewRuleEvaluator creates a rule evaluator with default settings.
func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{
		turns:      make(map[string][]string),
		MaxAITurns: 6,
	}
}

// categoryKeywords maps issue categories to trigger words, checked in order.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"safeguarding", []string{"safeguarding", "bullying", "abuse", "welfare"}},
	{"billing", []string{"invoice", "billing", "payment", "fee", "refund", "charge"}},
	{"technical", []string{"login", "password", "error", "crash", "bug", "sync", "timetable", "report card"}},
	{"devices", []string{"laptop", "tablet", "projector", "printer", "whiteboard", "device"}},
	{"facilities", []string{"heating", "leak", "broken window", "electrics", "boiler", "roof"}},
}

// severityKeywords maps severities to trigger words, most urgent first.
var severityKeywords = []struct {
	severity models.Severity
	words    []string
}{
	{models.SeverityCritical, []string{"emergency", "urgent", "injured", "danger", "safeguarding", "fire"}},
	{models.SeverityHigh, []string{"cannot", "can't", "down", "broken", "blocked", "nobody can", "whole school"}},
	{models.SeverityMedium, []string{"slow", "intermittent", "sometimes", "confusing"}},
}

// humanRequests are phrasings that mean "get me a person".
var humanRequests = []string{
	"speak to a human", "talk to a human", "real person", "speak to someone",
	"talk to an agent", "speak to an agent", "human agent", "live agent",
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
var phonePattern = regexp.MustCompile(`(\+?\d[\d\s\-]{7,}\d)`)

// EvaluateTurn classifies the message, builds a reply, and decides whether
// to escalate.
func (e *RuleEvaluator) EvaluateTurn(ctx context.Context, session *models.ChatSession, userMessage string) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}

	e.mu.Lock()
	e.turns[session.ID] = append(e.turns[session.ID], userMessage)
	history := e.turns[session.ID]
	e.mu.Unlock()

	lower := strings.ToLower(userMessage)
	category := classifyCategory(lower)
	severity := classifySeverity(lower)

	escalate := false
	reason := ""
	switch {
	case wantsHuman(lower):
		escalate = true
		reason = "contact asked for a human agent"
	case severity == models.SeverityCritical || severity == models.SeverityHigh:
		escalate = true
		reason = fmt.Sprintf("%s severity issue reported", severity)
	case e.MaxAITurns > 0 && len(history) >= e.MaxAITurns:
		escalate = true
		reason = "conversation not resolved by assistant"
	}

	if !escalate {
		return TurnResult{Reply: replyFor(category)}, nil
	}

	collected := collectInfo(history)
	collected["reported_category"] = category
	if severity == "" {
		severity = models.SeverityMedium
	}

	return TurnResult{
		Reply:          "I'm connecting you with a member of our support team. They'll have the full context of our conversation.",
		ShouldEscalate: true,
		Context: &models.HandoffContext{
			Summary:          summarize(history),
			Category:         category,
			Severity:         severity,
			EscalationReason: reason,
			CollectedInfo:    collected,
		},
	}, nil
}

// Forget drops per-session turn history once a session leaves ai_active.
func (e *RuleEvaluator) Forget(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.turns, sessionID)
}

func classifyCategory(lower string) string {
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return "general"
}

func classifySeverity(lower string) models.Severity {
	for _, s := range severityKeywords {
		for _, w := range s.words {
			if strings.Contains(lower, w) {
				return s.severity
			}
		}
	}
	return models.SeverityLow
}

func wantsHuman(lower string) bool {
	for _, p := range humanRequests {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func collectInfo(history []string) map[string]string {
	info := map[string]string{
		"turns": fmt.Sprintf("%d", len(history)),
	}
	for _, msg := range history {
		if m := emailPattern.FindString(msg); m != "" {
			info["contact_email"] = m
		}
		if m := phonePattern.FindString(msg); m != "" {
			info["contact_phone"] = strings.TrimSpace(m)
		}
	}
	return info
}

func summarize(history []string) string {
	first := history[0]
	if len(first) > 200 {
		first = first[:200]
	}
	if len(history) == 1 {
		return "Contact reported: " + first
	}
	last := history[len(history)-1]
	if len(last) > 200 {
		last = last[:200]
	}
	return fmt.Sprintf("Contact reported: %s (latest: %s, %d messages exchanged)", first, last, len(history))
}

func replyFor(category string) string {
	switch category {
	case "billing":
		return "I can help with billing questions. Could you share the invoice number or the approximate date of the charge?"
	case "technical":
		return "Let's troubleshoot that. Could you tell me which page or feature you were using, and the exact message you saw?"
	case "devices":
		return "Sorry the hardware is giving you trouble. Does the device show any lights or error messages when you power it on?"
	case "facilities":
		return "Thanks for reporting that. Could you tell me which building and room is affected?"
	default:
		return "Thanks for the details. Could you tell me a little more about what you're seeing so I can point you in the right direction?"
	}
}
