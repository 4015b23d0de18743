package relevance

import (
	"maps"
	"math"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type Modifier string

// Boost modifiers.
const (
	ModifierExactMatch      Modifier = "exactMatch"
	ModifierRecentlyUpdated Modifier = "recentlyUpdated"
	ModifierHighPriority    Modifier = "highPriority"
)

// Penalty modifiers.
const (
	ModifierStale         Modifier = "stale"
	ModifierLowConfidence Modifier = "lowConfidence"
	ModifierDeprecated    Modifier = "deprecated"
)

// Config tunes the scorer. Weights override the defaults per factor and the merged set is
// normalized to sum to 1. BoostFactors multiply the composite by (1+v) and PenaltyFactors by (1-v)
// when the modifier condition holds.
type Config struct {
	Weights               map[domain.Factor]float64     `yaml:"weights"`
	FreshnessDecayDays    float64                       `yaml:"freshness_decay_days"`
	MinScore              float64                       `yaml:"min_score"`
	MaxScore              float64                       `yaml:"max_score"`
	BoostFactors          map[Modifier]float64          `yaml:"boost_factors"`
	PenaltyFactors        map[Modifier]float64          `yaml:"penalty_factors"`
	HighPriorityThreshold int                           `yaml:"high_priority_threshold"`
	SourceReliability     map[domain.SourceType]float64 `yaml:"source_reliability"`
	HierarchyDelimiter    string                        `yaml:"hierarchy_delimiter"`
	MaxCategoryBoost      float64                       `yaml:"max_category_boost"`
}

func DefaultWeights() map[domain.Factor]float64 {
	return map[domain.Factor]float64{
		domain.FactorVectorSimilarity:  0.40,
		domain.FactorTextMatch:         0.20,
		domain.FactorSourceReliability: 0.15,
		domain.FactorFreshness:         0.10,
		domain.FactorCategoryMatch:     0.10,
		domain.FactorUserPreference:    0.05,
	}
}

func DefaultSourceReliability() map[domain.SourceType]float64 {
	return map[domain.SourceType]float64{
		domain.SourceOfficialDocs:   1.0,
		domain.SourceProductCatalog: 0.9,
		domain.SourceFAQ:            0.8,
		domain.SourceUserUpload:     0.7,
		domain.SourceWebScrape:      0.6,
		domain.SourceUnknown:        0.5,

		domain.SourceManualUpload:   0.7,
		domain.SourceAPISync:        0.8,
		domain.SourceCSVProduct:     0.9,
		domain.SourceJSONCatalog:    0.9,
		domain.SourcePDFLink:        0.6,
		domain.SourceWebsiteScraper: 0.6,
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:               DefaultWeights(),
		FreshnessDecayDays:    90,
		MinScore:              0.1,
		MaxScore:              1.0,
		BoostFactors:          map[Modifier]float64{},
		PenaltyFactors:        map[Modifier]float64{},
		HighPriorityThreshold: 5,
		SourceReliability:     DefaultSourceReliability(),
		HierarchyDelimiter:    domain.DefaultHierarchyDelimiter,
		MaxCategoryBoost:      2.0,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	out.Weights = NormalizeWeights(mergeWeights(def.Weights, c.Weights))

	if out.FreshnessDecayDays <= 0 {
		out.FreshnessDecayDays = def.FreshnessDecayDays
	}
	if out.MinScore <= 0 {
		out.MinScore = def.MinScore
	}
	if out.MaxScore <= 0 {
		out.MaxScore = def.MaxScore
	}
	if out.MinScore > out.MaxScore {
		out.MinScore = out.MaxScore
	}
	out.BoostFactors = maps.Clone(c.BoostFactors)
	if out.BoostFactors == nil {
		out.BoostFactors = map[Modifier]float64{}
	}
	out.PenaltyFactors = maps.Clone(c.PenaltyFactors)
	if out.PenaltyFactors == nil {
		out.PenaltyFactors = map[Modifier]float64{}
	}
	if out.HighPriorityThreshold <= 0 {
		out.HighPriorityThreshold = def.HighPriorityThreshold
	}
	out.SourceReliability = def.SourceReliability
	maps.Copy(out.SourceReliability, c.SourceReliability)
	if out.HierarchyDelimiter == "" {
		out.HierarchyDelimiter = def.HierarchyDelimiter
	}
	if out.MaxCategoryBoost <= 0 {
		out.MaxCategoryBoost = def.MaxCategoryBoost
	}
	return out
}

func mergeWeights(base, overrides map[domain.Factor]float64) map[domain.Factor]float64 {
	out := maps.Clone(base)
	for factor, w := range overrides {
		if _, known := base[factor]; !known {
			continue
		}
		out[factor] = w
	}
	return out
}

// NormalizeWeights divides every weight by the sum. Negative weights count as zero;
// an all-zero set falls back to the defaults.
func NormalizeWeights(weights map[domain.Factor]float64) map[domain.Factor]float64 {
	sum := 0.0
	clean := make(map[domain.Factor]float64, len(weights))
	for factor, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		clean[factor] = w
		sum += w
	}
	if sum == 0 {
		if len(weights) == 0 {
			return map[domain.Factor]float64{}
		}
		return NormalizeWeights(DefaultWeights())
	}
	out := make(map[domain.Factor]float64, len(clean))
	for factor, w := range clean {
		out[factor] = w / sum
	}
	return out
}
