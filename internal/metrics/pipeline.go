package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics, registered explicitly from the composition root (no init()).
var (
	// StageDuration measures each pipeline stage per request.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// StrategyFailuresTotal counts retriever branches that failed.
	StrategyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "strategy_failures_total",
			Help:      "Total retriever strategy failures",
		},
		[]string{"strategy"},
	)

	// SystematicHitsStreamed counts hits emitted over systematic streams.
	SystematicHitsStreamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "systematic_hits_streamed_total",
			Help:      "Total hits streamed in systematic mode",
		},
	)

	// EmbeddingRequestsTotal counts embedding API calls.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "embedding_requests_total",
			Help:      "Total embedding provider requests",
		},
		[]string{"model", "status"},
	)

	// EmbeddingTokensTotal counts tokens consumed by the embedding provider.
	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model"},
	)

	// EmbeddingCacheTotal counts embedding cache hits and misses.
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	// AuditDroppedTotal counts audit records dropped because the queue was full.
	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "audit_records_dropped_total",
			Help:      "Audit records dropped under queue pressure",
		},
	)
)

// RegisterPipelineMetrics registers all pipeline metric collectors.
func RegisterPipelineMetrics() {
	prometheus.MustRegister(
		StageDuration,
		StrategyFailuresTotal,
		SystematicHitsStreamed,
		EmbeddingRequestsTotal,
		EmbeddingTokensTotal,
		EmbeddingCacheTotal,
		AuditDroppedTotal,
	)
}
