package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/bootstrap"
	"github.com/kirillkom/source-aware-retrieval/internal/config"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
	"github.com/kirillkom/source-aware-retrieval/internal/observability/logging"
	"github.com/kirillkom/source-aware-retrieval/internal/observability/metrics"
)

const (
	serviceName   = "worker"
	recordTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	handler := escalationHandler(app.EscalationUC, workerMetrics, logger, time.Now)
	if err := app.Bus.SubscribeEscalations(ctx, handler); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker_metrics_shutdown_failed", "error", err)
	}
}

func escalationHandler(
	recorder ports.EscalationRecorder,
	workerMetrics *metrics.WorkerMetrics,
	logger *slog.Logger,
	now func() time.Time,
) func(context.Context, domain.EscalationData) error {
	return func(ctx context.Context, escalation domain.EscalationData) error {
		started := now()
		if !escalation.Timestamp.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, started.Sub(escalation.Timestamp))
		}

		workerMetrics.StartEscalation()
		recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		err := recorder.Record(recordCtx, escalation)
		workerMetrics.FinishEscalation(serviceName, string(escalation.Priority), now().Sub(started), err)
		if err != nil {
			return err
		}
		logger.Debug("escalation_processed", "escalation_id", escalation.ID)
		return nil
	}
}
