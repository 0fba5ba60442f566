package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type realtimeMetrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	dropped     prometheus.Counter
}

var (
	realtimeMetricsOnce sync.Once
	realtimeMetricsInst *realtimeMetrics
)

func globalRealtimeMetrics() *realtimeMetrics {
	realtimeMetricsOnce.Do(func() {
		realtimeMetricsInst = newRealtimeMetrics()
	})
	return realtimeMetricsInst
}

func newRealtimeMetrics() *realtimeMetrics {
	return &realtimeMetrics{
		connections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "goatchat",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently connected websocket clients",
		}),
		events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Events accepted for fan-out, labeled by type",
		}, []string{"type"}),
		dropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the broadcast queue was full",
		}),
	}
}

func connectionsGauge(n int) {
	globalRealtimeMetrics().connections.Set(float64(n))
}

func recordEvent(eventType string) {
	globalRealtimeMetrics().events.WithLabelValues(eventType).Inc()
}

func recordDropped() {
	globalRealtimeMetrics().dropped.Inc()
}
