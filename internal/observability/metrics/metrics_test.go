package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

func TestRetrievalMetricsObserveQuery(t *testing.T) {
	m := NewRetrievalMetrics("retrieval")

	m.ObserveQuery(domain.FallbackOutcome{Strategy: domain.StrategyPrimary}, 0.8, 10*time.Millisecond)
	m.ObserveQuery(domain.FallbackOutcome{
		Strategy:     domain.StrategyHumanEscalation,
		FallbackUsed: true,
		Escalated:    true,
		Escalation:   &domain.EscalationData{Priority: domain.PriorityHigh},
	}, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("retrieval", "primary", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalationsTotal.WithLabelValues("retrieval", "high")))
}

func TestRetrievalMetricsStrategyStatus(t *testing.T) {
	m := NewRetrievalMetrics("retrieval")
	m.ObserveStrategyAttempt(domain.StrategyAttempt{Strategy: domain.StrategyExpandSearch, Success: true})
	m.ObserveStrategyAttempt(domain.StrategyAttempt{Strategy: domain.StrategyExpandSearch})
	m.ObserveStrategyAttempt(domain.StrategyAttempt{Strategy: domain.StrategyExpandSearch, Error: "timeout"})

	for _, status := range []string{"success", "no_result", "error"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.strategyAttempts.WithLabelValues("retrieval", "expandSearch", status)), status)
	}
}

func TestRetrievalMetricsHandlerExposesChunks(t *testing.T) {
	m := NewRetrievalMetrics("retrieval")
	m.ObserveEnrichedChunk(domain.EnrichedMetadata{SourceType: domain.SourceAPISync, ContentType: domain.ContentFAQ, Confidence: 0.9})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sar_ingest_enriched_chunks_total{content_type="faq",service="retrieval",source_type="api_sync"} 1`))
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartEscalation()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processInFlight))

	m.FinishEscalation("worker", "low", time.Millisecond, errors.New("db down"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.processInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "low", "error")))

	m.ObserveQueueLag("worker", -time.Second)
	assert.Equal(t, 0, testutil.CollectAndCount(m.queueLag))
}
