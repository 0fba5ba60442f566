package chat

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type chatMetrics struct {
	transitions *prometheus.CounterVec
	aiTurns     *prometheus.CounterVec
	transfers   *prometheus.CounterVec
}

var (
	chatMetricsOnce sync.Once
	chatMetricsInst *chatMetrics
)

func globalChatMetrics() *chatMetrics {
	chatMetricsOnce.Do(func() {
		chatMetricsInst = newChatMetrics()
	})
	return chatMetricsInst
}

func newChatMetrics() *chatMetrics {
	return &chatMetrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "sessions",
			Name:      "transitions_total",
			Help:      "Committed session state transitions",
		}, []string{"from", "to"}),
		aiTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "ai",
			Name:      "turns_total",
			Help:      "AI assistant turns, labeled by outcome",
		}, []string{"outcome"}),
		transfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "sessions",
			Name:      "transfers_total",
			Help:      "Session transfers, labeled by mode (direct or queued)",
		}, []string{"mode"}),
	}
}

func recordTransition(from, to string) {
	globalChatMetrics().transitions.WithLabelValues(from, to).Inc()
}

func recordAITurn(outcome string) {
	globalChatMetrics().aiTurns.WithLabelValues(outcome).Inc()
}

func recordTransfer(mode string) {
	globalChatMetrics().transfers.WithLabelValues(mode).Inc()
}
