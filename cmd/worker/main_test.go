package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/observability/metrics"
)

type recorderFake struct {
	got []domain.EscalationData
	err error
}

func (r *recorderFake) Record(ctx context.Context, escalation domain.EscalationData) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected record deadline")
	}
	r.got = append(r.got, escalation)
	return r.err
}

func scrape(t *testing.T, m *metrics.WorkerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestEscalationHandlerRecordsAndObserves(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	recorder := &recorderFake{}
	m := metrics.NewWorkerMetrics(serviceName)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := escalationHandler(recorder, m, logger, func() time.Time { return now })
	err := handler(context.Background(), domain.EscalationData{
		ID:        "esc-1",
		Priority:  domain.PriorityHigh,
		Timestamp: now.Add(-3 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, recorder.got, 1)
	assert.Equal(t, "esc-1", recorder.got[0].ID)

	body := scrape(t, m)
	assert.Contains(t, body, `sar_worker_escalation_process_total{priority="high",service="worker",status="success"} 1`)
	assert.Contains(t, body, `sar_worker_queue_lag_seconds_count{service="worker"} 1`)
	assert.Contains(t, body, "sar_worker_escalation_process_in_flight")
}

func TestEscalationHandlerReturnsRecordError(t *testing.T) {
	recorder := &recorderFake{err: errors.New("db down")}
	m := metrics.NewWorkerMetrics(serviceName)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := escalationHandler(recorder, m, logger, time.Now)
	err := handler(context.Background(), domain.EscalationData{ID: "esc-2", Priority: domain.PriorityLow})
	require.Error(t, err)

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, `status="error"`))
	assert.False(t, strings.Contains(body, `sar_worker_queue_lag_seconds_count{service="worker"} 1`))
}
