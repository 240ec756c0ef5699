package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "query", Name: "requests_total", Help: "Questions by final outcome."},
		[]string{"outcome"},
	)
	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "lograg", Subsystem: "query", Name: "duration_seconds", Help: "Wall time of one answered question.", Buckets: prometheus.DefBuckets},
	)
	queryCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "query", Name: "answer_cache_events_total", Help: "Session answer cache lookups by result."},
		[]string{"result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "lograg", Subsystem: "query", Name: "sessions_active", Help: "Sessions currently tracked in the registry."},
	)
)

func init() {
	_ = prometheus.Register(queriesTotal)
	_ = prometheus.Register(queryDuration)
	_ = prometheus.Register(queryCacheEvents)
	_ = prometheus.Register(sessionsActive)
}
