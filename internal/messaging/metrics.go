package messaging

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type messagingMetrics struct {
	messages *prometheus.CounterVec
}

var (
	messagingMetricsOnce sync.Once
	messagingMetricsInst *messagingMetrics
)

func globalMessagingMetrics() *messagingMetrics {
	messagingMetricsOnce.Do(func() {
		messagingMetricsInst = &messagingMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "goatchat",
				Subsystem: "messaging",
				Name:      "messages_total",
				Help:      "Messages posted, labeled by sender role",
			}, []string{"sender_role"}),
		}
	})
	return messagingMetricsInst
}

func recordMessage(senderRole string) {
	globalMessagingMetrics().messages.WithLabelValues(senderRole).Inc()
}
