package fallback

import (
	"context"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/catfilter"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const (
	maxExpandedConfidence  = 0.7
	perResultConfidence    = 0.1
	alternativesConfidence = 0.6
	broadeningConfidence   = 0.5
	generalConfidence      = 0.4

	contextSnippets = 3
)

func (e *Engine) expandSearch(ctx context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	variants := QueryVariants(fc.Query, e.cfg.Synonyms)
	if len(variants) == 0 {
		return domain.FallbackOutcome{}, nil
	}

	var merged []domain.CandidateHit
	seen := map[string]struct{}{}
	var lastErr error
	for _, variant := range variants {
		hits, err := e.search(ctx, variant, fc.Constraints)
		if err != nil {
			lastErr = err
			continue
		}
		for _, hit := range hits {
			key := hitKey(hit)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, hit)
		}
	}
	if len(merged) == 0 {
		return domain.FallbackOutcome{}, failure(lastErr)
	}

	snippets := make([]string, 0, contextSnippets)
	for _, hit := range merged[:min(contextSnippets, len(merged))] {
		snippets = append(snippets, hit.Content)
	}
	return domain.FallbackOutcome{
		Success:         true,
		Response:        render(e.cfg.Templates.LowConfidence, map[string]string{"context": strings.Join(snippets, " ... ")}),
		Confidence:      min(maxExpandedConfidence, float64(len(merged))*perResultConfidence),
		ExpandedResults: merged,
	}, nil
}

func (e *Engine) semanticAlternatives(ctx context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	alternatives := SemanticAlternatives(fc.Query)
	if len(alternatives) == 0 {
		return domain.FallbackOutcome{}, nil
	}

	var found []domain.AlternativeResult
	var lastErr error
	for _, alt := range alternatives {
		hits, err := e.search(ctx, alt, fc.Constraints)
		if err != nil {
			lastErr = err
			continue
		}
		if len(hits) > 0 {
			found = append(found, domain.AlternativeResult{Alternative: alt, Results: hits})
		}
	}
	if len(found) == 0 {
		return domain.FallbackOutcome{}, failure(lastErr)
	}

	first := found[0]
	return domain.FallbackOutcome{
		Success:      true,
		Response:     render(e.cfg.Templates.NoResults, map[string]string{"alternative": first.Alternative + ": " + first.Results[0].Content}),
		Confidence:   alternativesConfidence,
		Alternatives: found,
	}, nil
}

func (e *Engine) categoryBroadening(ctx context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	category := fc.Category
	if category == "" && len(fc.Results) > 0 {
		category = fc.Results[0].Metadata.Category
	}
	if category == "" {
		return domain.FallbackOutcome{}, nil
	}

	var found []domain.CategoryResult
	var lastErr error
	for _, broader := range e.broadenedCategories(ctx, category) {
		req := fc.Constraints
		req.Category = &domain.CategoryConstraint{Operator: domain.CategoryIn, Values: []string{broader}}
		req.CategoryWeights = nil

		hits, err := e.search(ctx, fc.Query, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(hits) > 0 {
			found = append(found, domain.CategoryResult{Category: broader, Results: hits})
		}
	}
	if len(found) == 0 {
		return domain.FallbackOutcome{}, failure(lastErr)
	}

	first := found[0]
	return domain.FallbackOutcome{
		Success:         true,
		Response:        render(e.cfg.Templates.NoResults, map[string]string{"alternative": "in " + first.Category + ": " + first.Results[0].Content}),
		Confidence:      broadeningConfidence,
		CategoryResults: found,
	}, nil
}

// broadenedCategories lists ancestors deepest first, then the parent's general bucket, then known siblings.
func (e *Engine) broadenedCategories(ctx context.Context, category string) []string {
	d := e.cfg.HierarchyDelimiter
	candidates := catfilter.Ancestors(category, d)
	if len(candidates) > 0 {
		candidates = append(candidates, candidates[0]+d+generalCategory)
	}
	if e.tree != nil {
		siblings, err := e.tree.Siblings(ctx, category)
		if err != nil {
			e.logger.Warn("category_siblings_failed", "category", category, "error", err)
		} else {
			candidates = append(candidates, siblings...)
		}
	}

	seen := map[string]struct{}{category: {}}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (e *Engine) generalKnowledge(ctx context.Context, fc domain.FallbackContext) (domain.FallbackOutcome, error) {
	topic := Topic(fc.Query)
	if topic == "" || e.knowledge == nil {
		return domain.FallbackOutcome{}, nil
	}
	category := DetectCategory(fc.Query)

	info, err := e.knowledge.Lookup(ctx, topic, category)
	if err != nil {
		return domain.FallbackOutcome{}, domain.WrapError(domain.ErrStrategyFailed, "general knowledge lookup", err)
	}
	if strings.TrimSpace(info) == "" {
		return domain.FallbackOutcome{}, nil
	}

	return domain.FallbackOutcome{
		Success: true,
		Response: render(e.cfg.Templates.GeneralResponse, map[string]string{
			"category":    category,
			"topic":       topic,
			"generalInfo": info,
		}),
		Confidence: generalConfidence,
	}, nil
}

func hitKey(hit domain.CandidateHit) string {
	if hit.Metadata.ChunkID != "" {
		return hit.Metadata.ChunkID
	}
	return hit.Content
}

// failure reports a search error when every search of a strategy failed; an empty result set is not an error.
func failure(err error) error {
	if err == nil {
		return nil
	}
	return domain.WrapError(domain.ErrStrategyFailed, "fallback search", err)
}
