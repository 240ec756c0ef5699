package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "pipeline", Name: "records_total", Help: "Records by final status."},
		[]string{"status"},
	)
	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "pipeline", Name: "embedding_cache_events_total", Help: "Embedding cache lookups by result."},
		[]string{"result"},
	)
	tokensConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "pipeline", Name: "tokens_consumed_total", Help: "Tokens settled against execution budgets."},
	)
	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "lograg", Subsystem: "pipeline", Name: "execution_duration_seconds", Help: "Wall time of one batch execution.", Buckets: prometheus.DefBuckets},
	)
	saturationRejections = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "lograg", Subsystem: "pipeline", Name: "saturation_rejections_total", Help: "Batches rejected because all execution slots were busy."},
	)
)

func init() {
	_ = prometheus.Register(recordsTotal)
	_ = prometheus.Register(cacheEvents)
	_ = prometheus.Register(tokensConsumed)
	_ = prometheus.Register(executionDuration)
	_ = prometheus.Register(saturationRejections)
}
