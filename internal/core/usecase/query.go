package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/catfilter"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/fallback"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
	"github.com/kirillkom/source-aware-retrieval/internal/core/relevance"
)

type ConfidenceAggregation string

const (
	AggregateTop1 ConfidenceAggregation = "top1"
	AggregateMean ConfidenceAggregation = "mean"
)

type QueryConfig struct {
	DefaultLimit     int
	Mode             domain.RetrievalMode
	RRFK             int
	Aggregation      ConfidenceAggregation
	CategoryTriggers map[string]string
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		DefaultLimit: 5,
		Mode:         domain.RetrievalSemantic,
		RRFK:         defaultRRFK,
		Aggregation:  AggregateTop1,
	}
}

// lexicalSearcher is implemented by IndexSearcher; hybrid mode needs it.
type lexicalSearcher interface {
	SearchLexical(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error)
}

// QueryUseCase runs filter, retrieval, scoring and fallback for one query.
type QueryUseCase struct {
	searcher ports.Searcher
	filter   *catfilter.Filter
	scorer   *relevance.Scorer
	engine   *fallback.Engine
	bus      ports.EscalationBus
	observer ports.RetrievalObserver
	logger   *slog.Logger
	cfg      QueryConfig
	now      func() time.Time
}

type QueryOption func(*QueryUseCase)

func WithEscalationBus(bus ports.EscalationBus) QueryOption {
	return func(uc *QueryUseCase) { uc.bus = bus }
}

func WithQueryObserver(observer ports.RetrievalObserver) QueryOption {
	return func(uc *QueryUseCase) { uc.observer = observer }
}

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(uc *QueryUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithQueryClock(now func() time.Time) QueryOption {
	return func(uc *QueryUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewQueryUseCase(
	searcher ports.Searcher,
	filter *catfilter.Filter,
	scorer *relevance.Scorer,
	engine *fallback.Engine,
	cfg QueryConfig,
	opts ...QueryOption,
) *QueryUseCase {
	def := DefaultQueryConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = def.RRFK
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = def.Aggregation
	}

	uc := &QueryUseCase{
		searcher: searcher,
		filter:   filter,
		scorer:   scorer,
		engine:   engine,
		logger:   slog.Default(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Search only fails on invalid input; retrieval failures degrade into the fallback path.
func (uc *QueryUseCase) Search(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	started := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = uc.cfg.DefaultLimit
	}

	if req.Filter != nil {
		uc.checkFilter(*req.Filter)
	}
	filterCfg := uc.resolveFilter(query, req.Filter)
	searchReq := uc.filter.Apply(domain.SearchRequest{Query: query, Limit: limit}, filterCfg)

	hits, err := uc.retrieve(ctx, searchReq)
	if err != nil {
		uc.logger.Warn("primary_search_failed", "query", query, "error", err)
		hits = nil
	}

	qc := domain.QueryContext{
		Query:           query,
		CategoryContext: req.Category,
		Preferences:     req.Preferences,
		CategoryWeights: searchReq.CategoryWeights,
		DiversityBoost:  req.DiversityBoost,
		Now:             uc.now(),
	}
	scored := trimScored(uc.scorer.ScoreResults(hits, qc), limit)
	confidence := aggregateConfidence(scored, uc.cfg.Aggregation)

	outcome := uc.engine.Evaluate(ctx, domain.FallbackContext{
		Query:        query,
		Results:      scored,
		Confidence:   confidence,
		AttemptCount: req.AttemptCount,
		Category:     req.Category,
		Constraints:  searchReq,
	})

	results := scored
	if outcome.FallbackUsed && !outcome.Escalated {
		if extra := fallbackHits(outcome); len(extra) > 0 {
			results = trimScored(uc.scorer.ScoreResults(extra, qc), limit)
			outcome.Results = results
		}
	}

	if outcome.Escalated && outcome.Escalation != nil && uc.bus != nil {
		if err := uc.bus.PublishEscalation(ctx, *outcome.Escalation); err != nil {
			uc.logger.Warn("escalation_publish_failed", "escalation_id", outcome.Escalation.ID, "error", err)
		}
	}

	if uc.observer != nil {
		top := 0.0
		if len(results) > 0 {
			top = results[0].RelevanceScore
		}
		uc.observer.ObserveQuery(outcome, top, time.Since(started))
	}

	uc.logger.Info("query_completed",
		"strategy", string(outcome.Strategy),
		"confidence", confidence,
		"results", len(results),
		"escalated", outcome.Escalated,
	)

	return &domain.QueryResult{
		Query:      query,
		Filter:     filterCfg,
		Results:    results,
		Confidence: confidence,
		Outcome:    outcome,
		Stats:      catfilter.CategoryStats(hits),
	}, nil
}

// checkFilter only logs: Apply degrades an unsupported configuration instead of failing the query.
func (uc *QueryUseCase) checkFilter(cfg domain.FilterConfiguration) {
	warnings, err := uc.filter.Validate(cfg)
	if err != nil {
		uc.logger.Warn("filter_config_invalid", "strategy", string(cfg.Strategy), "error", err)
	}
	for _, w := range warnings {
		uc.logger.Warn("filter_config_warning", "strategy", string(cfg.Strategy), "warning", w)
	}
}

// resolveFilter merges the trigger-derived filter with the caller's; nil means no filtering.
func (uc *QueryUseCase) resolveFilter(query string, requested *domain.FilterConfiguration) *domain.FilterConfiguration {
	dynamic := catfilter.BuildDynamicFilter(query, uc.cfg.CategoryTriggers)
	switch {
	case dynamic == nil && requested == nil:
		return nil
	case dynamic == nil:
		return requested
	default:
		return catfilter.MergeConfigs(dynamic, requested)
	}
}

func (uc *QueryUseCase) retrieve(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	semantic, err := uc.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if uc.cfg.Mode != domain.RetrievalHybrid {
		return semantic, nil
	}

	lex, ok := uc.searcher.(lexicalSearcher)
	if !ok {
		return semantic, nil
	}
	lexical, err := lex.SearchLexical(ctx, req)
	if err != nil {
		uc.logger.Warn("lexical_search_failed", "error", err)
		return semantic, nil
	}
	return fuseCandidatesRRF(semantic, lexical, uc.cfg.RRFK), nil
}

func aggregateConfidence(scored []domain.ScoredHit, mode ConfidenceAggregation) float64 {
	if len(scored) == 0 {
		return 0
	}
	if mode != AggregateMean {
		return scored[0].RelevanceScore
	}
	sum := 0.0
	for _, hit := range scored {
		sum += hit.RelevanceScore
	}
	return sum / float64(len(scored))
}

// fallbackHits collects the distinct hits a fallback strategy found.
func fallbackHits(outcome domain.FallbackOutcome) []domain.CandidateHit {
	var all []domain.CandidateHit
	all = append(all, outcome.ExpandedResults...)
	for _, alt := range outcome.Alternatives {
		all = append(all, alt.Results...)
	}
	for _, cat := range outcome.CategoryResults {
		all = append(all, cat.Results...)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]domain.CandidateHit, 0, len(all))
	for _, hit := range all {
		key := candidateKey(hit)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, hit)
	}
	return out
}

func trimScored(hits []domain.ScoredHit, limit int) []domain.ScoredHit {
	if limit <= 0 || len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}
