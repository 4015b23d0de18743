package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type fakeSearcher struct {
	mu      sync.Mutex
	byQuery map[string][]domain.CandidateHit
	byCat   map[string][]domain.CandidateHit
	err     error
	calls   []domain.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if req.Category != nil && len(req.Category.Values) == 1 && f.byCat != nil {
		return f.byCat[req.Category.Values[0]], nil
	}
	return f.byQuery[req.Query], nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeKnowledge struct {
	answers map[string]string
	err     error
}

func (f fakeKnowledge) Lookup(_ context.Context, topic, category string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answers[topic+"|"+category], nil
}

type fakeTree struct {
	siblings []string
	err      error
}

func (f fakeTree) Siblings(context.Context, string) ([]string, error) {
	return f.siblings, f.err
}

var evalNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func newEngine(cfg Config, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return evalNow }),
		WithIDGenerator(func() string { return "esc-1" }),
	}
	return New(cfg, append(base, opts...)...)
}

func hit(id, content, category string) domain.CandidateHit {
	return domain.CandidateHit{Content: content, Metadata: domain.EnrichedMetadata{ChunkID: id, Category: category}}
}

func TestEvaluatePrimaryPassThrough(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newEngine(Config{ConfidenceThreshold: 0.5}, WithSearcher(searcher))
	results := []domain.ScoredHit{{RelevanceScore: 0.8}}

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "q", Confidence: 0.8, Results: results})

	assert.True(t, out.Success)
	assert.False(t, out.FallbackUsed)
	assert.False(t, out.Escalated)
	assert.Equal(t, domain.StrategyPrimary, out.Strategy)
	assert.Equal(t, results, out.Results)
	assert.Zero(t, searcher.callCount())
}

func TestEvaluateEscalatesImmediatelyBelowEscalationThreshold(t *testing.T) {
	invoked := false
	spy := func(context.Context, domain.FallbackContext) (domain.FallbackOutcome, error) {
		invoked = true
		return domain.FallbackOutcome{Success: true}, nil
	}
	e := newEngine(Config{EscalationThreshold: 0.3},
		WithHandler(domain.StrategyExpandSearch, spy),
		WithHandler(domain.StrategySemanticAlternatives, spy),
		WithHandler(domain.StrategyCategoryBroadening, spy),
		WithHandler(domain.StrategyGeneralKnowledge, spy),
	)

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "shipping label missing", Confidence: 0.2})

	assert.False(t, invoked)
	assert.True(t, out.Escalated)
	assert.True(t, out.FallbackUsed)
	assert.Equal(t, domain.StrategyHumanEscalation, out.Strategy)
	assert.Empty(t, out.Attempts)
	require.NotNil(t, out.Escalation)
	assert.Equal(t, "esc-1", out.Escalation.ID)
	assert.Equal(t, domain.PriorityMedium, out.Escalation.Priority)
	assert.Equal(t, evalNow, out.Escalation.Timestamp)
	assert.Equal(t, "shipping", out.Escalation.Topic)
	assert.Equal(t,
		"I'll need to connect you with a specialist who can better assist with your question about shipping.",
		out.Response,
	)
}

func TestEvaluateEscalatesWhenAttemptsExhausted(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newEngine(Config{}, WithSearcher(searcher))

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "q", Confidence: 0.4, AttemptCount: 3})

	assert.True(t, out.Escalated)
	assert.Equal(t, domain.PriorityHigh, out.Escalation.Priority)
	assert.Zero(t, searcher.callCount())
}

func TestEscalationPriority(t *testing.T) {
	e := newEngine(Config{})
	assert.Equal(t, domain.PriorityHigh, e.escalationPriority(domain.FallbackContext{Confidence: 0.05}))
	assert.Equal(t, domain.PriorityHigh, e.escalationPriority(domain.FallbackContext{Confidence: 0.4, AttemptCount: 3}))
	assert.Equal(t, domain.PriorityMedium, e.escalationPriority(domain.FallbackContext{Confidence: 0.25}))
	assert.Equal(t, domain.PriorityLow, e.escalationPriority(domain.FallbackContext{Confidence: 0.45}))
}

func TestEvaluateExpandSearch(t *testing.T) {
	searcher := &fakeSearcher{byQuery: map[string][]domain.CandidateHit{
		"buy product help":   {hit("c1", "You can buy online.", ""), hit("c2", "Stores also sell it.", "")},
		"purchase item help": {hit("c2", "Stores also sell it.", "")},
	}}
	e := newEngine(Config{}, WithSearcher(searcher))

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "purchase product help", Confidence: 0.4})

	assert.True(t, out.Success)
	assert.True(t, out.FallbackUsed)
	assert.False(t, out.Escalated)
	assert.Equal(t, domain.StrategyExpandSearch, out.Strategy)
	assert.InDelta(t, 0.2, out.Confidence, 1e-9)
	assert.Equal(t, 0.4, out.OriginalConfidence)
	assert.Len(t, out.ExpandedResults, 2)
	assert.Contains(t, out.Response, "You can buy online. ... Stores also sell it.")
	require.Len(t, out.Attempts, 1)
	assert.True(t, out.Attempts[0].Success)
	assert.Equal(t, 3, searcher.callCount())
}

func TestExpandedConfidenceIsCapped(t *testing.T) {
	hits := make([]domain.CandidateHit, 0, 9)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		hits = append(hits, hit(id, id, ""))
	}
	searcher := &fakeSearcher{byQuery: map[string][]domain.CandidateHit{"battery": hits}}
	e := newEngine(Config{}, WithSearcher(searcher))

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "battery", Confidence: 0.35})

	assert.Equal(t, domain.StrategyExpandSearch, out.Strategy)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
}

func TestEvaluateHandlerFailuresFallThrough(t *testing.T) {
	searcher := &fakeSearcher{byCat: map[string][]domain.CandidateHit{
		"Products": {hit("p1", "General product info", "Products")},
	}}
	e := newEngine(Config{},
		WithSearcher(searcher),
		WithHandler(domain.StrategyExpandSearch, func(context.Context, domain.FallbackContext) (domain.FallbackOutcome, error) {
			return domain.FallbackOutcome{}, errors.New("index unavailable")
		}),
		WithHandler(domain.StrategySemanticAlternatives, func(context.Context, domain.FallbackContext) (domain.FallbackOutcome, error) {
			panic("boom")
		}),
	)

	out := e.Evaluate(context.Background(), domain.FallbackContext{
		Query:      "phone cases",
		Confidence: 0.4,
		Category:   "Products/Phones",
	})

	assert.Equal(t, domain.StrategyCategoryBroadening, out.Strategy)
	assert.True(t, out.FallbackUsed)
	assert.Equal(t, 0.5, out.Confidence)
	assert.Equal(t, "I couldn't find specific information about that in our knowledge base. However, in Products: General product info", out.Response)
	require.Len(t, out.Attempts, 3)
	assert.Equal(t, "index unavailable", out.Attempts[0].Error)
	assert.Contains(t, out.Attempts[1].Error, "panicked")
	assert.True(t, out.Attempts[2].Success)
}

func TestEvaluateTimedOutHandlerCountsAsFailure(t *testing.T) {
	e := newEngine(Config{
		StrategyTimeout: 20 * time.Millisecond,
		Strategies:      []domain.StrategyName{domain.StrategyExpandSearch, domain.StrategyGeneralKnowledge},
	},
		WithHandler(domain.StrategyExpandSearch, func(ctx context.Context, _ domain.FallbackContext) (domain.FallbackOutcome, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return domain.FallbackOutcome{Success: true}, nil
		}),
		WithKnowledgeSource(fakeKnowledge{answers: map[string]string{"shipping|order": "We ship worldwide."}}),
	)

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "shipping times abroad", Confidence: 0.4})

	assert.Equal(t, domain.StrategyGeneralKnowledge, out.Strategy)
	assert.Equal(t, "Based on our general information about order, We ship worldwide.", out.Response)
	assert.Equal(t, 0.4, out.Confidence)
	require.Len(t, out.Attempts, 2)
	assert.False(t, out.Attempts[0].Success)
	assert.Contains(t, out.Attempts[0].Error, context.DeadlineExceeded.Error())
}

func TestEvaluateAllStrategiesFailEscalates(t *testing.T) {
	var observed []domain.StrategyAttempt
	e := newEngine(Config{
		Strategies: []domain.StrategyName{domain.StrategyExpandSearch, "unknownStrategy", domain.StrategyGeneralKnowledge},
	},
		WithSearcher(&fakeSearcher{err: errors.New("down")}),
		WithKnowledgeSource(fakeKnowledge{}),
		WithObserver(func(a domain.StrategyAttempt) { observed = append(observed, a) }),
	)

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "warranty terms", Confidence: 0.45})

	assert.True(t, out.Escalated)
	assert.Equal(t, domain.StrategyHumanEscalation, out.Strategy)
	assert.Equal(t, domain.PriorityLow, out.Escalation.Priority)
	require.Len(t, out.Attempts, 2)
	assert.Contains(t, out.Attempts[0].Error, "down")
	assert.Len(t, observed, 2)
}

func TestCategoryBroadeningOrder(t *testing.T) {
	searcher := &fakeSearcher{byCat: map[string][]domain.CandidateHit{}}
	e := newEngine(Config{}, WithSearcher(searcher), WithCategoryTree(fakeTree{siblings: []string{"A/X", "A/B"}}))

	got := e.broadenedCategories(context.Background(), "A/B/C")

	assert.Equal(t, []string{"A/B", "A", "A/B/general", "A/X"}, got)
}

func TestCategoryBroadeningUsesTopResultCategory(t *testing.T) {
	searcher := &fakeSearcher{byCat: map[string][]domain.CandidateHit{
		"Docs": {hit("d1", "Overview", "Docs")},
	}}
	e := newEngine(Config{Strategies: []domain.StrategyName{domain.StrategyCategoryBroadening}},
		WithSearcher(searcher),
		WithCategoryTree(fakeTree{err: errors.New("graph offline")}),
	)
	results := []domain.ScoredHit{{CandidateHit: hit("x", "weak match", "Docs/Setup")}}

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "setup", Confidence: 0.4, Results: results})

	assert.Equal(t, domain.StrategyCategoryBroadening, out.Strategy)
	require.Len(t, out.CategoryResults, 1)
	assert.Equal(t, "Docs", out.CategoryResults[0].Category)
	for _, call := range searcher.calls {
		require.NotNil(t, call.Category)
		assert.Equal(t, domain.CategoryIn, call.Category.Operator)
	}
}

func TestSemanticAlternativesStrategy(t *testing.T) {
	searcher := &fakeSearcher{byQuery: map[string][]domain.CandidateHit{
		"guide for reset a router": {hit("r1", "Hold the reset button.", "")},
	}}
	e := newEngine(Config{Strategies: []domain.StrategyName{domain.StrategySemanticAlternatives}}, WithSearcher(searcher))

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "how to reset a router", Confidence: 0.4})

	assert.Equal(t, domain.StrategySemanticAlternatives, out.Strategy)
	assert.Equal(t, 0.6, out.Confidence)
	assert.Equal(t,
		"I couldn't find specific information about that in our knowledge base. However, guide for reset a router: Hold the reset button.",
		out.Response,
	)
}

func TestTemplateOverride(t *testing.T) {
	e := newEngine(Config{Templates: Templates{Escalation: "Handing {topic} to a human."}})

	out := e.Evaluate(context.Background(), domain.FallbackContext{Query: "", Confidence: 0})

	assert.Equal(t, "Handing your question to a human.", out.Response)
	assert.Equal(t, DefaultTemplates().NoResults, e.Config().Templates.NoResults)
}
