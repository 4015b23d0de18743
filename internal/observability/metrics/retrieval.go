package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

// RetrievalMetrics implements ports.RetrievalObserver.
type RetrievalMetrics struct {
	registry *prometheus.Registry
	service  string

	queriesTotal     *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	topScore         *prometheus.HistogramVec
	queryDuration    *prometheus.HistogramVec
	strategyAttempts *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	chunksTotal      *prometheus.CounterVec
	chunkConfidence  *prometheus.HistogramVec
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total queries by outcome strategy.",
		},
		[]string{"service", "strategy", "fallback_used"},
	)
	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "escalations_total",
			Help:      "Total escalations to a human by priority.",
		},
		[]string{"service", "priority"},
	)
	topScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "top_relevance_score",
			Help:      "Relevance score of the best returned result.",
			Buckets:   scoreBuckets,
		},
		[]string{"service"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	strategyAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "strategy_attempts_total",
			Help:      "Fallback strategy attempts by strategy and status.",
		},
		[]string{"service", "strategy", "status"},
	)
	strategyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "strategy_duration_seconds",
			Help:      "Fallback strategy duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "enriched_chunks_total",
			Help:      "Enriched chunks by source and content type.",
		},
		[]string{"service", "source_type", "content_type"},
	)
	chunkConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunk_confidence",
			Help:      "Heuristic chunk confidence assigned at enrichment.",
			Buckets:   scoreBuckets,
		},
		[]string{"service", "source_type"},
	)

	registry.MustRegister(
		queriesTotal, escalationsTotal, topScore, queryDuration,
		strategyAttempts, strategyDuration, chunksTotal, chunkConfidence,
	)

	return &RetrievalMetrics{
		registry:         registry,
		service:          service,
		queriesTotal:     queriesTotal,
		escalationsTotal: escalationsTotal,
		topScore:         topScore,
		queryDuration:    queryDuration,
		strategyAttempts: strategyAttempts,
		strategyDuration: strategyDuration,
		chunksTotal:      chunksTotal,
		chunkConfidence:  chunkConfidence,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *RetrievalMetrics) ObserveQuery(outcome domain.FallbackOutcome, topScore float64, duration time.Duration) {
	strategy := string(outcome.Strategy)
	fallbackUsed := "false"
	if outcome.FallbackUsed {
		fallbackUsed = "true"
	}
	m.queriesTotal.WithLabelValues(m.service, strategy, fallbackUsed).Inc()
	m.queryDuration.WithLabelValues(m.service, strategy).Observe(duration.Seconds())
	m.topScore.WithLabelValues(m.service).Observe(topScore)
	if outcome.Escalated && outcome.Escalation != nil {
		m.escalationsTotal.WithLabelValues(m.service, string(outcome.Escalation.Priority)).Inc()
	}
}

func (m *RetrievalMetrics) ObserveStrategyAttempt(attempt domain.StrategyAttempt) {
	status := "success"
	switch {
	case attempt.Error != "":
		status = "error"
	case !attempt.Success:
		status = "no_result"
	}
	m.strategyAttempts.WithLabelValues(m.service, string(attempt.Strategy), status).Inc()
	m.strategyDuration.WithLabelValues(m.service, string(attempt.Strategy)).Observe(attempt.Duration.Seconds())
}

func (m *RetrievalMetrics) ObserveEnrichedChunk(meta domain.EnrichedMetadata) {
	m.chunksTotal.WithLabelValues(m.service, string(meta.SourceType), string(meta.ContentType)).Inc()
	m.chunkConfidence.WithLabelValues(m.service, string(meta.SourceType)).Observe(meta.Confidence)
}
