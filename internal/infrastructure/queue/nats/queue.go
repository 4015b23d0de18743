// Package nats carries escalation events between the query path and the escalation worker.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/resilience"
)

const queueGroup = "escalation-workers"

type Bus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("source-aware-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishEscalation(ctx context.Context, escalation domain.EscalationData) error {
	data, err := encodeEscalation(escalation)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

const (
	handlerTimeout = 30 * time.Second
	drainTimeout   = 30 * time.Second
	drainPoll      = 50 * time.Millisecond
)

// SubscribeEscalations blocks until ctx is cancelled, then drains the subscription and waits
// until every buffered message went through handler.
// Malformed messages and handler errors are logged and the message is dropped.
func (b *Bus) SubscribeEscalations(ctx context.Context, handler func(context.Context, domain.EscalationData) error) error {
	sub, err := b.conn.QueueSubscribe(b.subject, queueGroup, b.messageHandler(context.WithoutCancel(ctx), handler))
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := waitDrained(sub.IsValid, drainTimeout); err != nil {
		return err
	}
	b.logger.Info("escalation_subscription_drained", "subject", b.subject)
	return nil
}

// messageHandler runs handler under base, which outlives the subscribe context so messages
// delivered while draining are still handled.
func (b *Bus) messageHandler(base context.Context, handler func(context.Context, domain.EscalationData) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		escalation, err := decodeEscalation(msg.Data)
		if err != nil {
			b.logger.Warn("escalation_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithTimeout(base, handlerTimeout)
		defer cancel()
		if err := handler(handlerCtx, escalation); err != nil {
			b.logger.Error("escalation_handler_failed", "escalation_id", escalation.ID, "error", err)
		}
	}
}

// waitDrained polls until the drained subscription is gone. Drain returns before pending
// messages are delivered.
func waitDrained(active func() bool, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for active() {
		select {
		case <-deadline.C:
			return fmt.Errorf("nats drain subscription: not finished after %s", timeout)
		case <-ticker.C:
		}
	}
	return nil
}

func encodeEscalation(escalation domain.EscalationData) ([]byte, error) {
	data, err := json.Marshal(escalation)
	if err != nil {
		return nil, fmt.Errorf("encode escalation: %w", err)
	}
	return data, nil
}

func decodeEscalation(data []byte) (domain.EscalationData, error) {
	var escalation domain.EscalationData
	if err := json.Unmarshal(data, &escalation); err != nil {
		return domain.EscalationData{}, domain.WrapError(domain.ErrInvalidInput, "decode escalation", err)
	}
	if escalation.ID == "" {
		return domain.EscalationData{}, domain.WrapError(domain.ErrInvalidInput, "decode escalation", errors.New("missing id"))
	}
	return escalation, nil
}
