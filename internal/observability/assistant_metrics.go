package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	assistantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashplan_assistant_requests_total",
			Help: "Total number of assistant invocations by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	assistantSQLRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashplan_assistant_sql_rejections_total",
			Help: "Total number of generated queries rejected, by rejecting stage.",
		},
		[]string{"stage"},
	)
	assistantEntitiesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashplan_assistant_entities_created_total",
			Help: "Total number of entities created from natural-language requests.",
		},
		[]string{"entity"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashplan_llm_request_duration_seconds",
			Help:    "Language model call latency by provider and outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "outcome"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cashplan_assistant_query_rows",
			Help:    "Rows returned by assistant-generated queries.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
		},
	)
)

func init() {
	prometheus.MustRegister(
		assistantRequestsTotal,
		assistantSQLRejectionsTotal,
		assistantEntitiesCreatedTotal,
		llmRequestDurationSeconds,
		queryRowsReturned,
	)
}

func ObserveAssistantRequest(intent, outcome string) {
	assistantRequestsTotal.WithLabelValues(intent, outcome).Inc()
}

func IncrementSQLRejection(stage string) {
	assistantSQLRejectionsTotal.WithLabelValues(stage).Inc()
}

func IncrementEntityCreated(entity string) {
	assistantEntitiesCreatedTotal.WithLabelValues(entity).Inc()
}

func ObserveLLMRequest(provider, outcome string, elapsed time.Duration) {
	llmRequestDurationSeconds.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRowsReturned.Observe(float64(rows))
}
