package catfilter

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const maxRecommendedCategories = 100

// BuildDynamicFilter returns an include configuration for every trigger phrase found in query,
// or nil when none matches. Nil means "do not filter".
func BuildDynamicFilter(query string, triggers map[string]string) *domain.FilterConfiguration {
	if strings.TrimSpace(query) == "" || len(triggers) == 0 {
		return nil
	}
	lower := strings.ToLower(query)

	phrases := slices.Sorted(maps.Keys(triggers))
	var categories []string
	for _, phrase := range phrases {
		if phrase == "" || !strings.Contains(lower, strings.ToLower(phrase)) {
			continue
		}
		if category := triggers[phrase]; category != "" && !slices.Contains(categories, category) {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return nil
	}
	return &domain.FilterConfiguration{
		Strategy:   domain.FilterInclude,
		Categories: categories,
		StrictMode: false,
	}
}

// MergeConfigs folds configs left to right. Strategy, delimiter and strict mode are last-wins,
// categories are a deduplicated union and weights are shallow-merged. Nil entries are skipped.
func MergeConfigs(configs ...*domain.FilterConfiguration) *domain.FilterConfiguration {
	merged := &domain.FilterConfiguration{
		Strategy:   domain.FilterInclude,
		Categories: []string{},
		Weights:    map[string]float64{},
	}
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		if cfg.Strategy != "" {
			merged.Strategy = cfg.Strategy
		}
		if cfg.HierarchyDelimiter != "" {
			merged.HierarchyDelimiter = cfg.HierarchyDelimiter
		}
		merged.StrictMode = cfg.StrictMode
		for _, category := range cfg.Categories {
			if !slices.Contains(merged.Categories, category) {
				merged.Categories = append(merged.Categories, category)
			}
		}
		maps.Copy(merged.Weights, cfg.Weights)
	}
	return merged
}

// Validate rejects configurations Apply could not honour and returns non-fatal warnings.
func (f *Filter) Validate(cfg domain.FilterConfiguration) ([]string, error) {
	var errs []error
	var warnings []string

	if cfg.Strategy != "" && !f.Supports(cfg.Strategy) {
		errs = append(errs, fmt.Errorf("invalid strategy: %s", cfg.Strategy))
	}
	for category, w := range cfg.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			errs = append(errs, fmt.Errorf("invalid weight for category %q: %v", category, w))
		}
	}
	if slices.Contains(cfg.Categories, "") {
		errs = append(errs, errors.New("categories must not contain empty values"))
	}
	if len(cfg.Categories) > maxRecommendedCategories {
		warnings = append(warnings, "large number of categories may impact performance")
	}

	if len(errs) > 0 {
		return warnings, domain.WrapError(domain.ErrInvalidInput, "validate filter config", errors.Join(errs...))
	}
	return warnings, nil
}
