package queue

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type queueMetrics struct {
	depth    prometheus.Gauge
	claims   *prometheus.CounterVec
	waitTime prometheus.Observer
}

var (
	queueMetricsOnce sync.Once
	queueMetricsInst *queueMetrics
)

func globalQueueMetrics() *queueMetrics {
	queueMetricsOnce.Do(func() {
		queueMetricsInst = newQueueMetrics()
	})
	return queueMetricsInst
}

func newQueueMetrics() *queueMetrics {
	return &queueMetrics{
		depth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "goatchat",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of sessions currently waiting for an agent",
		}),
		claims: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatchat",
			Subsystem: "queue",
			Name:      "claims_total",
			Help:      "Queue claim attempts, labeled by result",
		}, []string{"result"}),
		waitTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "goatchat",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time sessions spent waiting before being claimed",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

func queueDepth(n int) {
	globalQueueMetrics().depth.Set(float64(n))
}

// RecordClaim tracks the outcome of an acceptNext attempt.
func RecordClaim(result string) {
	globalQueueMetrics().claims.WithLabelValues(result).Inc()
}

// RecordWait observes the final waiting time of a claimed session.
func RecordWait(d time.Duration) {
	globalQueueMetrics().waitTime.Observe(d.Seconds())
}
