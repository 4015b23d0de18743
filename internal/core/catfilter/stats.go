package catfilter

import (
	"sort"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const uncategorized = "uncategorized"

// CategoryStats summarises the category distribution of a result set, largest bucket first.
func CategoryStats(hits []domain.CandidateHit) domain.CategoryStats {
	stats := domain.CategoryStats{
		Total:        len(hits),
		ByCategory:   map[string]int{},
		Distribution: []domain.CategoryCount{},
	}
	order := make([]string, 0)
	for _, hit := range hits {
		category := hit.Metadata.Category
		if category == "" {
			category = uncategorized
		}
		if stats.ByCategory[category] == 0 {
			order = append(order, category)
		}
		stats.ByCategory[category]++
	}
	for _, category := range order {
		count := stats.ByCategory[category]
		stats.Distribution = append(stats.Distribution, domain.CategoryCount{
			Category:   category,
			Count:      count,
			Percentage: float64(count) / float64(stats.Total) * 100,
		})
	}
	sort.SliceStable(stats.Distribution, func(i, j int) bool {
		return stats.Distribution[i].Count > stats.Distribution[j].Count
	})
	return stats
}
