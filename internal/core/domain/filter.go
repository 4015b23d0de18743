package domain

import "slices"

type FilterStrategy string

const (
	FilterInclude      FilterStrategy = "include"
	FilterExclude      FilterStrategy = "exclude"
	FilterHierarchical FilterStrategy = "hierarchical"
	FilterWeighted     FilterStrategy = "weighted"
)

const DefaultHierarchyDelimiter = "/"

// FilterConfiguration is built per query and never persisted.
type FilterConfiguration struct {
	Strategy           FilterStrategy     `json:"strategy" yaml:"strategy"`
	Categories         []string           `json:"categories" yaml:"categories"`
	HierarchyDelimiter string             `json:"hierarchy_delimiter,omitempty" yaml:"hierarchy_delimiter"`
	Weights            map[string]float64 `json:"weights,omitempty" yaml:"weights"`
	StrictMode         bool               `json:"strict_mode" yaml:"strict_mode"`
}

type CategoryOperator string

const (
	// CategoryIn requires the chunk category to be one of the values.
	CategoryIn CategoryOperator = "in"
	// CategoryInAny accepts a chunk whose category or any tag is one of the values.
	CategoryInAny CategoryOperator = "in_any"
	// CategoryNotIn rejects chunks whose category is one of the values.
	CategoryNotIn CategoryOperator = "not_in"
)

type CategoryConstraint struct {
	Operator CategoryOperator `json:"operator"`
	Values   []string         `json:"values"`
}

// Matches evaluates the constraint against a chunk's metadata.
func (c *CategoryConstraint) Matches(meta EnrichedMetadata) bool {
	if c == nil || len(c.Values) == 0 {
		return true
	}
	switch c.Operator {
	case CategoryNotIn:
		return !slices.Contains(c.Values, meta.Category)
	case CategoryInAny:
		if meta.Category != "" && slices.Contains(c.Values, meta.Category) {
			return true
		}
		for _, tag := range meta.Tags {
			if slices.Contains(c.Values, tag) {
				return true
			}
		}
		return false
	default:
		return meta.Category != "" && slices.Contains(c.Values, meta.Category)
	}
}

type CategoryWeight struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// SearchRequest is what the vector index receives. Category and CategoryWeights are set by the category filter.
type SearchRequest struct {
	Query           string              `json:"query"`
	Limit           int                 `json:"limit"`
	Category        *CategoryConstraint `json:"category,omitempty"`
	SourceTypes     []SourceType        `json:"source_types,omitempty"`
	CategoryWeights []CategoryWeight    `json:"category_weights,omitempty"`
}

// WeightFor returns the weight attached to category, or 1 when none was attached.
func (r SearchRequest) WeightFor(category string) float64 {
	for _, cw := range r.CategoryWeights {
		if cw.Category == category {
			return cw.Weight
		}
	}
	return 1.0
}

type CategoryCount struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type CategoryStats struct {
	Total        int             `json:"total"`
	ByCategory   map[string]int  `json:"by_category"`
	Distribution []CategoryCount `json:"distribution"`
}
