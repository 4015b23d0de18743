// Package relevance re-ranks vector search hits with a weighted multi-factor score.
package relevance

import (
	"maps"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.normalize()}
}

func NewDefault() *Scorer {
	return New(DefaultConfig())
}

// Config returns a copy of the effective configuration.
func (s *Scorer) Config() Config {
	out := s.cfg
	out.Weights = maps.Clone(s.cfg.Weights)
	out.BoostFactors = maps.Clone(s.cfg.BoostFactors)
	out.PenaltyFactors = maps.Clone(s.cfg.PenaltyFactors)
	out.SourceReliability = maps.Clone(s.cfg.SourceReliability)
	return out
}

// Weights returns the normalized factor weights.
func (s *Scorer) Weights() map[domain.Factor]float64 {
	return maps.Clone(s.cfg.Weights)
}

// UpdateWeights returns a new scorer with overrides merged onto the current weights.
func (s *Scorer) UpdateWeights(overrides map[domain.Factor]float64) *Scorer {
	cfg := s.Config()
	cfg.Weights = NormalizeWeights(mergeWeights(s.cfg.Weights, overrides))
	return &Scorer{cfg: cfg}
}

// ScoreResults scores every hit and returns new hits sorted by relevance, highest first.
func (s *Scorer) ScoreResults(hits []domain.CandidateHit, qc domain.QueryContext) []domain.ScoredHit {
	if len(hits) == 0 {
		return []domain.ScoredHit{}
	}
	if qc.Now.IsZero() {
		qc.Now = time.Now().UTC()
	}
	q := compileQuery(qc.Query)

	scored := make([]domain.ScoredHit, 0, len(hits))
	for _, hit := range hits {
		scored = append(scored, s.score(hit, qc, q))
	}
	sortByRelevance(scored)

	if qc.DiversityBoost {
		return s.applyDiversity(scored)
	}
	return scored
}

func (s *Scorer) ScoreResult(hit domain.CandidateHit, qc domain.QueryContext) domain.ScoredHit {
	if qc.Now.IsZero() {
		qc.Now = time.Now().UTC()
	}
	return s.score(hit, qc, compileQuery(qc.Query))
}

func (s *Scorer) score(hit domain.CandidateHit, qc domain.QueryContext, q compiledQuery) domain.ScoredHit {
	breakdown := domain.ScoreBreakdown{
		domain.FactorVectorSimilarity:  vectorSimilarity(hit),
		domain.FactorTextMatch:         q.textMatch(hit.Content),
		domain.FactorSourceReliability: s.sourceReliability(hit.Metadata),
		domain.FactorFreshness:         s.freshness(hit.Metadata, qc.Now),
		domain.FactorCategoryMatch:     s.categoryMatch(hit.Metadata.Category, qc.CategoryContext),
		domain.FactorUserPreference:    userPreference(hit.Metadata, qc.Preferences),
	}

	composite := 0.0
	for _, factor := range domain.Factors {
		composite += breakdown[factor] * s.cfg.Weights[factor]
	}
	composite = s.applyModifiers(composite, hit, qc)

	boost := 0.0
	if len(qc.CategoryWeights) > 0 && hit.Metadata.Category != "" {
		boost = s.categoryBoost(hit.Metadata.Category, qc.CategoryWeights)
		composite *= boost
	}

	final := s.clamp(composite)
	return domain.ScoredHit{
		CandidateHit:   hit,
		RelevanceScore: final,
		ScoreBreakdown: breakdown,
		ScoreFactors:   s.explain(breakdown, final),
		CategoryBoost:  boost,
	}
}

func (s *Scorer) categoryBoost(category string, weights []domain.CategoryWeight) float64 {
	boost := domain.SearchRequest{CategoryWeights: weights}.WeightFor(category)
	if boost <= 0 || math.IsNaN(boost) {
		boost = 1.0
	}
	return math.Min(boost, s.cfg.MaxCategoryBoost)
}

func (s *Scorer) clamp(score float64) float64 {
	if math.IsNaN(score) {
		return s.cfg.MinScore
	}
	return math.Max(s.cfg.MinScore, math.Min(s.cfg.MaxScore, score))
}

// explain ranks factors by weighted contribution; ties keep the canonical factor order.
func (s *Scorer) explain(breakdown domain.ScoreBreakdown, final float64) []domain.ScoreFactor {
	out := make([]domain.ScoreFactor, 0, len(domain.Factors))
	for _, factor := range domain.Factors {
		weight := s.cfg.Weights[factor]
		contribution := breakdown[factor] * weight
		percentage := 0.0
		if final > 0 {
			percentage = contribution / final * 100
		}
		out = append(out, domain.ScoreFactor{
			Factor:       factor,
			Score:        breakdown[factor],
			Weight:       weight,
			Contribution: contribution,
			Percentage:   percentage,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Contribution > out[j].Contribution
	})
	return out
}

func sortByRelevance(hits []domain.ScoredHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RelevanceScore > hits[j].RelevanceScore
	})
}

type diversitySeen struct {
	categories map[string]struct{}
	sources    map[domain.SourceType]struct{}
}

// applyDiversity penalizes hits whose category or source type already appeared higher in the list.
// The seen sets are local to one call.
func (s *Scorer) applyDiversity(ranked []domain.ScoredHit) []domain.ScoredHit {
	seen := diversitySeen{
		categories: map[string]struct{}{},
		sources:    map[domain.SourceType]struct{}{},
	}
	out := slices.Clone(ranked)
	for i := range out {
		category := out[i].Metadata.Category
		source := out[i].Metadata.SourceType

		penalty := 0.0
		if _, ok := seen.categories[category]; ok && category != "" {
			penalty += 0.10
		}
		if _, ok := seen.sources[source]; ok && source != "" {
			penalty += 0.05
		}
		if penalty > 0 {
			out[i].RelevanceScore = s.clamp(out[i].RelevanceScore * (1 - penalty))
			out[i].DiversityPenalty = penalty
		}

		if category != "" {
			seen.categories[category] = struct{}{}
		}
		if source != "" {
			seen.sources[source] = struct{}{}
		}
	}
	sortByRelevance(out)
	return out
}
