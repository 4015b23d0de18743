package fallback

import (
	"maps"
	"slices"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

// Templates hold the response texts. Placeholders: {context}, {alternative}, {aspect}, {topic},
// {category}, {generalInfo}.
type Templates struct {
	LowConfidence   string `yaml:"low_confidence"`
	NoResults       string `yaml:"no_results"`
	Clarification   string `yaml:"clarification"`
	Escalation      string `yaml:"escalation"`
	GeneralResponse string `yaml:"general_response"`
}

func DefaultTemplates() Templates {
	return Templates{
		LowConfidence:   "I found some information that might help, but I'm not entirely certain it addresses your specific question. {context}",
		NoResults:       "I couldn't find specific information about that in our knowledge base. However, {alternative}",
		Clarification:   "I'd like to help you better. Could you please provide more details about {aspect}?",
		Escalation:      "I'll need to connect you with a specialist who can better assist with your question about {topic}.",
		GeneralResponse: "Based on our general information about {category}, {generalInfo}",
	}
}

// merge keeps every default the override leaves empty.
func (t Templates) merge(override Templates) Templates {
	out := t
	if override.LowConfidence != "" {
		out.LowConfidence = override.LowConfidence
	}
	if override.NoResults != "" {
		out.NoResults = override.NoResults
	}
	if override.Clarification != "" {
		out.Clarification = override.Clarification
	}
	if override.Escalation != "" {
		out.Escalation = override.Escalation
	}
	if override.GeneralResponse != "" {
		out.GeneralResponse = override.GeneralResponse
	}
	return out
}

type Config struct {
	ConfidenceThreshold float64               `yaml:"confidence_threshold"`
	EscalationThreshold float64               `yaml:"escalation_threshold"`
	MaxAttempts         int                   `yaml:"max_attempts"`
	Strategies          []domain.StrategyName `yaml:"strategies"`
	StrategyTimeout     time.Duration         `yaml:"strategy_timeout"`
	SearchLimit         int                   `yaml:"search_limit"`
	HierarchyDelimiter  string                `yaml:"hierarchy_delimiter"`
	Templates           Templates             `yaml:"templates"`
	Synonyms            map[string][]string   `yaml:"synonyms"`
}

func DefaultStrategies() []domain.StrategyName {
	return []domain.StrategyName{
		domain.StrategyExpandSearch,
		domain.StrategySemanticAlternatives,
		domain.StrategyCategoryBroadening,
		domain.StrategyGeneralKnowledge,
		domain.StrategyHumanEscalation,
	}
}

func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"purchase": {"buy", "order", "acquire"},
		"product":  {"item", "merchandise", "goods"},
		"help":     {"assist", "support", "guide"},
		"problem":  {"issue", "trouble", "difficulty"},
	}
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		EscalationThreshold: 0.3,
		MaxAttempts:         3,
		Strategies:          DefaultStrategies(),
		StrategyTimeout:     5 * time.Second,
		SearchLimit:         5,
		HierarchyDelimiter:  domain.DefaultHierarchyDelimiter,
		Templates:           DefaultTemplates(),
		Synonyms:            DefaultSynonyms(),
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.ConfidenceThreshold <= 0 {
		out.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if out.EscalationThreshold <= 0 {
		out.EscalationThreshold = def.EscalationThreshold
	}
	if out.EscalationThreshold > out.ConfidenceThreshold {
		out.EscalationThreshold = out.ConfidenceThreshold
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if len(out.Strategies) == 0 {
		out.Strategies = def.Strategies
	} else {
		out.Strategies = slices.Clone(out.Strategies)
	}
	if out.StrategyTimeout <= 0 {
		out.StrategyTimeout = def.StrategyTimeout
	}
	if out.SearchLimit <= 0 {
		out.SearchLimit = def.SearchLimit
	}
	if out.HierarchyDelimiter == "" {
		out.HierarchyDelimiter = def.HierarchyDelimiter
	}
	out.Templates = def.Templates.merge(c.Templates)
	if len(out.Synonyms) == 0 {
		out.Synonyms = def.Synonyms
	} else {
		out.Synonyms = maps.Clone(out.Synonyms)
	}
	return out
}
