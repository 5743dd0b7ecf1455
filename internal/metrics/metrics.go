package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "research_assistant"

var (
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Outbound embedding and chat requests by outcome.",
	}, []string{"provider", "outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of outbound provider requests, retries included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})

	documentsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_indexed_total",
		Help:      "Uploaded documents by format and outcome.",
	}, []string{"format", "outcome"})

	segmentsPerDocument = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "segments_per_document",
		Help:      "Number of segments produced per indexed document.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Web sessions currently held in memory.",
	})
)

// ObserveProvider records one logical provider call
func ObserveProvider(provider string, start time.Time, err error) {
	providerRequests.WithLabelValues(provider, outcome(err)).Inc()
	providerLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveDocument records an upload attempt and, on success, its segment count
func ObserveDocument(format string, segments int, err error) {
	documentsIndexed.WithLabelValues(format, outcome(err)).Inc()
	if err == nil {
		segmentsPerDocument.Observe(float64(segments))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
