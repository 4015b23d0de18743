// Package knowledge holds the general-knowledge sources consulted by the fallback engine.
package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

const generalCategory = "general"

// Static answers from configuration, keyed by category then topic.
type Static struct {
	answers map[string]map[string]string
}

func NewStatic(answers map[string]map[string]string) *Static {
	normalized := make(map[string]map[string]string, len(answers))
	for category, topics := range answers {
		inner := make(map[string]string, len(topics))
		for topic, answer := range topics {
			inner[normalize(topic)] = strings.TrimSpace(answer)
		}
		normalized[normalize(category)] = inner
	}
	return &Static{answers: normalized}
}

// Lookup tries the exact category first, then the general category.
func (s *Static) Lookup(_ context.Context, topic, category string) (string, error) {
	topic = normalize(topic)
	if answer := s.answers[normalize(category)][topic]; answer != "" {
		return answer, nil
	}
	return s.answers[generalCategory][topic], nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Chain returns the first non-empty answer. A failing source is logged and skipped.
type Chain struct {
	sources []ports.KnowledgeSource
	logger  *slog.Logger
}

func NewChain(logger *slog.Logger, sources ...ports.KnowledgeSource) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]ports.KnowledgeSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{sources: kept, logger: logger}
}

func (c *Chain) Lookup(ctx context.Context, topic, category string) (string, error) {
	var lastErr error
	for i, source := range c.sources {
		answer, err := source.Lookup(ctx, topic, category)
		if err != nil {
			c.logger.Warn("knowledge_source_failed", "source_index", i, "topic", topic, "error", err)
			lastErr = err
			continue
		}
		if answer != "" {
			return answer, nil
		}
	}
	return "", lastErr
}
