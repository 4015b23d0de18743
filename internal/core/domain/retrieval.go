package domain

import "time"

// CandidateHit is a raw nearest-neighbour result from the vector index.
type CandidateHit struct {
	Content string `json:"content"`
	// BaseScore is the raw vector similarity in [0,1].
	BaseScore float64 `json:"base_score"`
	// NoBaseScore marks hits that came without a similarity, e.g. lexical-only matches.
	NoBaseScore bool             `json:"no_base_score,omitempty"`
	Metadata    EnrichedMetadata `json:"metadata"`
}

type Factor string

const (
	FactorVectorSimilarity  Factor = "vectorSimilarity"
	FactorTextMatch         Factor = "textMatch"
	FactorSourceReliability Factor = "sourceReliability"
	FactorFreshness         Factor = "freshness"
	FactorCategoryMatch     Factor = "categoryMatch"
	FactorUserPreference    Factor = "userPreference"
)

// Factors is the canonical factor order.
var Factors = []Factor{
	FactorVectorSimilarity,
	FactorTextMatch,
	FactorSourceReliability,
	FactorFreshness,
	FactorCategoryMatch,
	FactorUserPreference,
}

type ScoreBreakdown map[Factor]float64

type ScoreFactor struct {
	Factor       Factor  `json:"factor"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Percentage   float64 `json:"percentage"`
}

// ScoredHit is a decorated copy of a CandidateHit.
type ScoredHit struct {
	CandidateHit
	RelevanceScore   float64        `json:"relevance_score"`
	ScoreBreakdown   ScoreBreakdown `json:"score_breakdown"`
	ScoreFactors     []ScoreFactor  `json:"score_factors"`
	CategoryBoost    float64        `json:"category_boost,omitempty"`
	DiversityPenalty float64        `json:"diversity_penalty,omitempty"`
}

type UserPreferences struct {
	PreferredSources    []SourceType `json:"preferred_sources,omitempty"`
	PreferredCategories []string     `json:"preferred_categories,omitempty"`
	Language            string       `json:"language,omitempty"`
}

func (p UserPreferences) IsZero() bool {
	return len(p.PreferredSources) == 0 && len(p.PreferredCategories) == 0 && p.Language == ""
}

// QueryContext carries everything the scorer needs besides the hits.
type QueryContext struct {
	Query           string
	CategoryContext string
	Preferences     UserPreferences
	CategoryWeights []CategoryWeight
	DiversityBoost  bool
	Now             time.Time
}

type RetrievalMode string

const (
	RetrievalSemantic RetrievalMode = "semantic"
	RetrievalHybrid   RetrievalMode = "hybrid"
)

// QueryRequest is the inbound query pipeline request.
type QueryRequest struct {
	Query          string               `json:"query"`
	Limit          int                  `json:"limit"`
	Category       string               `json:"category,omitempty"`
	Filter         *FilterConfiguration `json:"filter,omitempty"`
	Preferences    UserPreferences      `json:"preferences,omitempty"`
	DiversityBoost bool                 `json:"diversity_boost,omitempty"`
	AttemptCount   int                  `json:"attempt_count,omitempty"`
}

type QueryResult struct {
	Query      string               `json:"query"`
	Filter     *FilterConfiguration `json:"filter,omitempty"`
	Results    []ScoredHit          `json:"results"`
	Confidence float64              `json:"confidence"`
	Outcome    FallbackOutcome      `json:"outcome"`
	// Stats describes the primary candidates, before fallback.
	Stats CategoryStats `json:"category_stats"`
}
