package domain

import "time"

type StrategyName string

const (
	StrategyPrimary              StrategyName = "primary"
	StrategyExpandSearch         StrategyName = "expandSearch"
	StrategySemanticAlternatives StrategyName = "semanticAlternatives"
	StrategyCategoryBroadening   StrategyName = "categoryBroadening"
	StrategyGeneralKnowledge     StrategyName = "generalKnowledge"
	StrategyHumanEscalation      StrategyName = "humanEscalation"
)

type EscalationPriority string

const (
	PriorityLow    EscalationPriority = "low"
	PriorityMedium EscalationPriority = "medium"
	PriorityHigh   EscalationPriority = "high"
)

// FallbackContext is the input of one fallback evaluation.
type FallbackContext struct {
	Query        string
	Results      []ScoredHit
	Confidence   float64
	AttemptCount int
	// Category is the category the query was scoped to, if any.
	Category string
	// Constraints are re-applied to every search a strategy performs.
	Constraints SearchRequest
}

type EscalationData struct {
	ID           string             `json:"id"`
	Query        string             `json:"query"`
	Category     string             `json:"category,omitempty"`
	Topic        string             `json:"topic,omitempty"`
	Confidence   float64            `json:"confidence"`
	AttemptCount int                `json:"attempt_count"`
	Context      map[string]string  `json:"context,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Priority     EscalationPriority `json:"priority"`
}

type AlternativeResult struct {
	Alternative string         `json:"alternative"`
	Results     []CandidateHit `json:"results"`
}

type CategoryResult struct {
	Category string         `json:"category"`
	Results  []CandidateHit `json:"results"`
}

// StrategyAttempt records one handler invocation.
type StrategyAttempt struct {
	Strategy StrategyName  `json:"strategy"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type FallbackOutcome struct {
	Success            bool                `json:"success"`
	Response           string              `json:"response,omitempty"`
	Strategy           StrategyName        `json:"strategy"`
	FallbackUsed       bool                `json:"fallback_used"`
	Escalated          bool                `json:"escalated"`
	Confidence         float64             `json:"confidence"`
	OriginalConfidence float64             `json:"original_confidence"`
	Results            []ScoredHit         `json:"results,omitempty"`
	ExpandedResults    []CandidateHit      `json:"expanded_results,omitempty"`
	Alternatives       []AlternativeResult `json:"alternatives,omitempty"`
	CategoryResults    []CategoryResult    `json:"category_results,omitempty"`
	Escalation         *EscalationData     `json:"escalation,omitempty"`
	Attempts           []StrategyAttempt   `json:"attempts,omitempty"`
}
