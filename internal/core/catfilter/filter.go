// Package catfilter narrows a search request to a set of categories.
package catfilter

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type strategyFunc func(req domain.SearchRequest, categories []string, cfg domain.FilterConfiguration) domain.SearchRequest

// Filter is safe for concurrent use.
type Filter struct {
	logger     *slog.Logger
	strategies map[domain.FilterStrategy]strategyFunc
}

type Option func(*Filter)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func New(opts ...Option) *Filter {
	f := &Filter{
		logger: slog.Default(),
		strategies: map[domain.FilterStrategy]strategyFunc{
			domain.FilterInclude:      includeStrategy,
			domain.FilterExclude:      excludeStrategy,
			domain.FilterHierarchical: hierarchicalStrategy,
			domain.FilterWeighted:     weightedStrategy,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Supports reports whether strategy has a handler.
func (f *Filter) Supports(strategy domain.FilterStrategy) bool {
	_, ok := f.strategies[strategy]
	return ok
}

// Apply returns a copy of req constrained by cfg. A nil config or one without categories leaves req unchanged.
func (f *Filter) Apply(req domain.SearchRequest, cfg *domain.FilterConfiguration) domain.SearchRequest {
	if cfg == nil || len(cfg.Categories) == 0 {
		return req
	}
	categories := slices.Clone(cfg.Categories)

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = domain.FilterInclude
	}
	handler, ok := f.strategies[strategy]
	if !ok {
		f.logger.Warn("unknown_filter_strategy", "strategy", string(cfg.Strategy), "fallback", string(domain.FilterInclude))
		handler = includeStrategy
	}
	return handler(req, categories, *cfg)
}

func includeStrategy(req domain.SearchRequest, categories []string, cfg domain.FilterConfiguration) domain.SearchRequest {
	op := domain.CategoryInAny
	if cfg.StrictMode {
		op = domain.CategoryIn
	}
	req.Category = &domain.CategoryConstraint{Operator: op, Values: categories}
	return req
}

func excludeStrategy(req domain.SearchRequest, categories []string, _ domain.FilterConfiguration) domain.SearchRequest {
	req.Category = &domain.CategoryConstraint{Operator: domain.CategoryNotIn, Values: categories}
	return req
}

func hierarchicalStrategy(req domain.SearchRequest, categories []string, cfg domain.FilterConfiguration) domain.SearchRequest {
	req.Category = &domain.CategoryConstraint{
		Operator: domain.CategoryInAny,
		Values:   ExpandHierarchicalCategories(categories, cfg.HierarchyDelimiter),
	}
	return req
}

// weightedStrategy attaches one weight per category; missing or non-positive weights become 1.
func weightedStrategy(req domain.SearchRequest, categories []string, cfg domain.FilterConfiguration) domain.SearchRequest {
	weights := make([]domain.CategoryWeight, 0, len(categories))
	for _, category := range categories {
		w := cfg.Weights[category]
		if w <= 0 {
			w = 1.0
		}
		weights = append(weights, domain.CategoryWeight{Category: category, Weight: w})
	}
	req.Category = &domain.CategoryConstraint{Operator: domain.CategoryIn, Values: categories}
	req.CategoryWeights = weights
	return req
}

// ExpandHierarchicalCategories adds every ancestor path of each category, ancestors first, without duplicates.
func ExpandHierarchicalCategories(categories []string, delimiter string) []string {
	if delimiter == "" {
		delimiter = domain.DefaultHierarchyDelimiter
	}
	seen := make(map[string]struct{}, len(categories)*2)
	out := make([]string, 0, len(categories)*2)
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, category := range categories {
		parts := strings.Split(category, delimiter)
		for i := 1; i < len(parts); i++ {
			add(strings.Join(parts[:i], delimiter))
		}
		add(category)
	}
	return out
}

// Ancestors returns the parent paths of category, deepest first.
func Ancestors(category, delimiter string) []string {
	if delimiter == "" {
		delimiter = domain.DefaultHierarchyDelimiter
	}
	parts := strings.Split(category, delimiter)
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i > 0; i-- {
		out = append(out, strings.Join(parts[:i], delimiter))
	}
	return out
}
