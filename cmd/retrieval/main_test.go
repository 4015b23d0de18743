package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

func TestCommandFlagValidation(t *testing.T) {
	t.Run("query requires text", func(t *testing.T) {
		var out bytes.Buffer
		err := newApp(&out).Run([]string{"retrieval", "query", "--category", "Support"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text")
	})

	t.Run("explain requires text", func(t *testing.T) {
		var out bytes.Buffer
		err := newApp(&out).Run([]string{"retrieval", "explain"})
		require.Error(t, err)
	})

	t.Run("query rejects unknown filter strategy", func(t *testing.T) {
		var out bytes.Buffer
		err := newApp(&out).Run([]string{"retrieval", "query", "--text", "refund", "--filter", "Support", "--filter-strategy", "fuzzy"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--filter-strategy")
	})

	t.Run("ingest needs exactly one input", func(t *testing.T) {
		var out bytes.Buffer
		err := newApp(&out).Run([]string{"retrieval", "ingest"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of --file or --document")

		err = newApp(&out).Run([]string{"retrieval", "ingest", "--file", "a.jsonl", "--document", "b.txt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of --file or --document")
	})

	t.Run("ingest reports missing batch file", func(t *testing.T) {
		var out bytes.Buffer
		err := newApp(&out).Run([]string{"retrieval", "ingest", "--file", filepath.Join(t.TempDir(), "missing.jsonl")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open batch file")
	})
}

func TestFilterConfiguration(t *testing.T) {
	t.Run("no categories means no filter", func(t *testing.T) {
		cfg, err := filterConfiguration(nil, "exclude", true, nil)
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("strategy defaults to hierarchical", func(t *testing.T) {
		cfg, err := filterConfiguration([]string{"Support"}, "", false, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.FilterHierarchical, cfg.Strategy)
	})

	t.Run("strict include", func(t *testing.T) {
		cfg, err := filterConfiguration([]string{"Support"}, "Include", true, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.FilterInclude, cfg.Strategy)
		assert.True(t, cfg.StrictMode)
	})

	t.Run("exclude", func(t *testing.T) {
		cfg, err := filterConfiguration([]string{"Internal"}, "exclude", false, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.FilterExclude, cfg.Strategy)
		assert.Equal(t, []string{"Internal"}, cfg.Categories)
	})

	t.Run("weighted parses weights", func(t *testing.T) {
		cfg, err := filterConfiguration(nil, "weighted", false, []string{"Support=2", " Products = 0.5 "})
		require.NoError(t, err)
		assert.Equal(t, domain.FilterWeighted, cfg.Strategy)
		assert.Equal(t, map[string]float64{"Support": 2, "Products": 0.5}, cfg.Weights)
	})

	t.Run("invalid input", func(t *testing.T) {
		for _, tc := range []struct {
			strategy string
			weights  []string
		}{
			{strategy: "fuzzy"},
			{strategy: "include", weights: []string{"Support=2"}},
			{strategy: "weighted", weights: []string{"Support"}},
			{strategy: "weighted", weights: []string{"Support=-1"}},
		} {
			_, err := filterConfiguration([]string{"Support"}, tc.strategy, false, tc.weights)
			assert.Error(t, err, "strategy=%s weights=%v", tc.strategy, tc.weights)
		}
	})
}

func TestReadBatches(t *testing.T) {
	input := strings.Join([]string{
		`{"raw":{"doc_id":"doc-1","title":"Returns"},"attributes":{"source_type":"api_sync","category":"Support/Returns"},"chunks":["Return within 30 days."]}`,
		``,
		`{"raw":{"doc_id":"doc-2"},"attributes":{},"chunks":["a","b"]}`,
	}, "\n")

	batches, err := readBatches(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "doc-1", batches[0].Raw.DocID)
	assert.Equal(t, domain.SourceAPISync, batches[0].Attributes.SourceType)
	assert.Equal(t, "Support/Returns", batches[0].Attributes.Category)
	assert.Len(t, batches[1].Chunks, 2)
}

func TestReadBatchesErrors(t *testing.T) {
	tests := map[string]struct {
		input string
		want  string
	}{
		"missing chunks": {input: "{\"raw\":{}}\n{oops", want: "line 1: batch has no chunks"},
		"bad json":       {input: "\n{oops", want: "line 2: decode batch"},
		"empty file":     {input: "\n\n", want: "no batches"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readBatches(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDocumentAttributesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	raw, attrs := documentAttributes("/data/shipping-policy.txt", documentFlags{
		SourceType: "manual_upload",
		Category:   "Support/Shipping",
		Priority:   7,
	}, now)

	assert.Equal(t, "shipping-policy", raw.DocID)
	assert.Equal(t, "shipping-policy.txt", raw.Filename)
	assert.Equal(t, "shipping-policy.txt", raw.Title)
	assert.Equal(t, now, raw.Published)
	assert.Equal(t, domain.SourceManualUpload, attrs.SourceType)
	assert.Equal(t, "Support/Shipping", attrs.Category)
	assert.Equal(t, 7, attrs.Priority)
	assert.Equal(t, now, attrs.CreatedAt)

	raw, _ = documentAttributes("notes.md", documentFlags{DocID: " doc-9 ", Title: "Notes"}, now)
	assert.Equal(t, "doc-9", raw.DocID)
	assert.Equal(t, "Notes", raw.Title)
}

func TestRenderExplain(t *testing.T) {
	result := &domain.QueryResult{
		Query:      "return policy",
		Confidence: 0.82,
		Outcome: domain.FallbackOutcome{
			Strategy: domain.StrategyPrimary,
			Attempts: []domain.StrategyAttempt{{Strategy: domain.StrategyExpandSearch, Error: "deadline exceeded"}},
		},
		Results: []domain.ScoredHit{{
			CandidateHit: domain.CandidateHit{
				Content:   "Return within 30 days.",
				BaseScore: 0.9,
				Metadata: domain.EnrichedMetadata{
					DocTitle:   "Returns",
					SourceType: domain.SourceAPISync,
					Category:   "Support/Returns",
				},
			},
			RelevanceScore: 0.82,
			ScoreFactors: []domain.ScoreFactor{
				{Factor: domain.FactorVectorSimilarity, Score: 0.9, Weight: 0.4, Contribution: 0.36, Percentage: 43.9},
			},
			CategoryBoost:    1.5,
			DiversityPenalty: 0.1,
		}},
	}

	var out bytes.Buffer
	require.NoError(t, renderExplain(&out, result))
	text := out.String()
	assert.Contains(t, text, "return policy")
	assert.Contains(t, text, "error: deadline exceeded")
	assert.Contains(t, text, "Returns (synced content, Support/Returns)")
	assert.Contains(t, text, "vectorSimilarity")
	assert.Contains(t, text, "contribution=0.360")
	assert.Contains(t, text, "x1.50")
	assert.Contains(t, text, "diversity penalty")
}
