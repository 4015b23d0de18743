// Package fallback decides what to do with a low-confidence result set: pass it through,
// retry with broader strategies, or hand the query over to a human.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

// Handler runs one strategy. A returned error or an outcome without Success moves the engine on.
type Handler func(ctx context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error)

// Observer receives one call per strategy attempt.
type Observer func(attempt domain.StrategyAttempt)

// Engine is safe for concurrent use; handlers share no state between evaluations.
type Engine struct {
	cfg       Config
	searcher  ports.Searcher
	knowledge ports.KnowledgeSource
	tree      ports.CategoryTree
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
	newID     func() string
	handlers  map[domain.StrategyName]Handler
}

type Option func(*Engine)

func WithSearcher(s ports.Searcher) Option {
	return func(e *Engine) { e.searcher = s }
}

func WithKnowledgeSource(k ports.KnowledgeSource) Option {
	return func(e *Engine) { e.knowledge = k }
}

func WithCategoryTree(t ports.CategoryTree) Option {
	return func(e *Engine) { e.tree = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithHandler replaces or adds the handler for a strategy name.
func WithHandler(name domain.StrategyName, h Handler) Option {
	return func(e *Engine) {
		if h != nil {
			e.handlers[name] = h
		}
	}
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.normalize(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	e.handlers = map[domain.StrategyName]Handler{
		domain.StrategyExpandSearch:         e.expandSearch,
		domain.StrategySemanticAlternatives: e.semanticAlternatives,
		domain.StrategyCategoryBroadening:   e.categoryBroadening,
		domain.StrategyGeneralKnowledge:     e.generalKnowledge,
		domain.StrategyHumanEscalation:      e.humanEscalation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate runs the fallback state machine. It never fails: the worst case is an escalated outcome.
func (e *Engine) Evaluate(ctx context.Context, fc domain.FallbackContext) domain.FallbackOutcome {
	if fc.Confidence >= e.cfg.ConfidenceThreshold {
		return domain.FallbackOutcome{
			Success:            true,
			Strategy:           domain.StrategyPrimary,
			FallbackUsed:       false,
			Confidence:         fc.Confidence,
			OriginalConfidence: fc.Confidence,
			Results:            fc.Results,
		}
	}

	if fc.Confidence < e.cfg.EscalationThreshold || fc.AttemptCount >= e.cfg.MaxAttempts {
		return e.escalate(fc, nil)
	}

	attempts := make([]domain.StrategyAttempt, 0, len(e.cfg.Strategies))
	for _, name := range e.cfg.Strategies {
		handler, ok := e.handlers[name]
		if !ok {
			e.logger.Warn("fallback_strategy_unknown", "strategy", string(name))
			continue
		}

		started := time.Now()
		outcome, err := e.run(ctx, name, handler, fc)
		attempt := domain.StrategyAttempt{
			Strategy: name,
			Success:  err == nil && outcome.Success,
			Duration: time.Since(started),
		}
		if err != nil {
			attempt.Error = err.Error()
			e.logger.Warn("fallback_strategy_failed", "strategy", string(name), "error", err)
		}
		attempts = append(attempts, attempt)
		if e.observer != nil {
			e.observer(attempt)
		}

		if attempt.Success {
			outcome.FallbackUsed = true
			outcome.Strategy = name
			outcome.OriginalConfidence = fc.Confidence
			outcome.Attempts = attempts
			return outcome
		}
	}

	return e.escalate(fc, attempts)
}

// run bounds a handler by the per-strategy timeout and turns panics into errors.
func (e *Engine) run(ctx context.Context, name domain.StrategyName, h Handler, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StrategyTimeout)
	defer cancel()

	type result struct {
		outcome domain.FallbackOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %s panicked: %v", domain.ErrStrategyFailed, name, r)}
			}
		}()
		outcome, err := h(ctx, fc)
		done <- result{outcome: outcome, err: err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-ctx.Done():
		return domain.FallbackOutcome{}, domain.WrapError(domain.ErrStrategyFailed, string(name), ctx.Err())
	}
}

func (e *Engine) humanEscalation(_ context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	return e.escalate(fc, nil), nil
}

func (e *Engine) escalate(fc domain.FallbackContext, attempts []domain.StrategyAttempt) domain.FallbackOutcome {
	topic := Topic(fc.Query)
	subject := topic
	if subject == "" {
		subject = "your question"
	}

	escalation := &domain.EscalationData{
		ID:           e.newID(),
		Query:        fc.Query,
		Category:     fc.Category,
		Topic:        topic,
		Confidence:   fc.Confidence,
		AttemptCount: fc.AttemptCount,
		Context:      escalationContext(fc),
		Timestamp:    e.now(),
		Priority:     e.escalationPriority(fc),
	}

	return domain.FallbackOutcome{
		Success:            true,
		Response:           render(e.cfg.Templates.Escalation, map[string]string{"topic": subject}),
		Strategy:           domain.StrategyHumanEscalation,
		FallbackUsed:       true,
		Escalated:          true,
		Confidence:         fc.Confidence,
		OriginalConfidence: fc.Confidence,
		Results:            fc.Results,
		Escalation:         escalation,
		Attempts:           attempts,
	}
}

func (e *Engine) escalationPriority(fc domain.FallbackContext) domain.EscalationPriority {
	switch {
	case fc.Confidence < 0.1:
		return domain.PriorityHigh
	case fc.AttemptCount >= e.cfg.MaxAttempts:
		return domain.PriorityHigh
	case fc.Confidence < 0.3:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func escalationContext(fc domain.FallbackContext) map[string]string {
	ctx := map[string]string{
		"result_count": fmt.Sprintf("%d", len(fc.Results)),
	}
	if fc.Category != "" {
		ctx["category"] = fc.Category
	}
	if len(fc.Results) > 0 {
		top := fc.Results[0]
		ctx["top_chunk_id"] = top.Metadata.ChunkID
		ctx["top_score"] = fmt.Sprintf("%.3f", top.RelevanceScore)
	}
	return ctx
}

var errNoSearcher = errors.New("no searcher configured")

func (e *Engine) search(ctx context.Context, query string, base domain.SearchRequest) ([]domain.CandidateHit, error) {
	if e.searcher == nil {
		return nil, domain.WrapError(domain.ErrStrategyFailed, "fallback search", errNoSearcher)
	}
	req := base
	req.Query = query
	if req.Limit <= 0 {
		req.Limit = e.cfg.SearchLimit
	}
	return e.searcher.Search(ctx, req)
}
