package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type embedderFake struct {
	mu      sync.Mutex
	queries []string
	err     error
	dims    int
	short   bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, max(f.dims, 2))
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type vectorStoreFake struct {
	mu       sync.Mutex
	indexed  []domain.IndexedChunk
	hits     []domain.CandidateHit
	byQuery  map[string][]domain.CandidateHit
	lexical  []domain.CandidateHit
	err      error
	indexErr error
	requests []domain.SearchRequest
	deleted  []string
}

func (f *vectorStoreFake) IndexChunks(_ context.Context, chunks []domain.IndexedChunk) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, chunks...)
	return nil
}

func (f *vectorStoreFake) Search(_ context.Context, _ []float32, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if hits, ok := f.byQuery[req.Query]; ok {
		return hits, nil
	}
	return f.hits, nil
}

func (f *vectorStoreFake) SearchLexical(context.Context, domain.SearchRequest) ([]domain.CandidateHit, error) {
	return f.lexical, nil
}

func (f *vectorStoreFake) DeleteChunks(_ context.Context, chunkIDs []string) error {
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}

// chunkStoreFake keys stored metadata by chunk id like the postgres table does.
type chunkStoreFake struct {
	rows    map[string]domain.EnrichedMetadata
	saved   []domain.EnrichedMetadata
	deleted []string
	err     error
	listErr error
}

func (f *chunkStoreFake) UpsertChunks(_ context.Context, chunks []domain.EnrichedMetadata) error {
	if f.err != nil {
		return f.err
	}
	if f.rows == nil {
		f.rows = make(map[string]domain.EnrichedMetadata)
	}
	for _, meta := range chunks {
		f.rows[meta.ChunkID] = meta
	}
	f.saved = append(f.saved, chunks...)
	return nil
}

func (f *chunkStoreFake) ListByFingerprint(_ context.Context, fingerprint string) ([]domain.EnrichedMetadata, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.EnrichedMetadata
	for _, meta := range f.rows {
		if meta.SourceFingerprint == fingerprint {
			out = append(out, meta)
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "list chunks by fingerprint", errors.New(fingerprint))
	}
	return out, nil
}

func (f *chunkStoreFake) DeleteChunks(_ context.Context, chunkIDs []string) error {
	for _, id := range chunkIDs {
		delete(f.rows, id)
	}
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}

type busFake struct {
	published []domain.EscalationData
	err       error
}

func (f *busFake) PublishEscalation(_ context.Context, e domain.EscalationData) error {
	f.published = append(f.published, e)
	return f.err
}

func (f *busFake) SubscribeEscalations(context.Context, func(context.Context, domain.EscalationData) error) error {
	return errors.New("not implemented")
}

type escalationStoreFake struct {
	saved []domain.EscalationData
	err   error
}

func (f *escalationStoreFake) SaveEscalation(_ context.Context, e domain.EscalationData) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, e)
	return nil
}

func (f *escalationStoreFake) ListEscalations(_ context.Context, priority domain.EscalationPriority, limit int) ([]domain.EscalationData, error) {
	var out []domain.EscalationData
	for _, e := range f.saved {
		if e.Priority == priority && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type observerFake struct {
	queries  []domain.FallbackOutcome
	attempts []domain.StrategyAttempt
	chunks   []domain.EnrichedMetadata
}

func (f *observerFake) ObserveQuery(outcome domain.FallbackOutcome, _ float64, _ time.Duration) {
	f.queries = append(f.queries, outcome)
}

func (f *observerFake) ObserveStrategyAttempt(a domain.StrategyAttempt) {
	f.attempts = append(f.attempts, a)
}

func (f *observerFake) ObserveEnrichedChunk(meta domain.EnrichedMetadata) {
	f.chunks = append(f.chunks, meta)
}

type registryFake struct {
	categories []string
	err        error
}

func (f *registryFake) RegisterCategories(_ context.Context, categories []string) error {
	f.categories = append(f.categories, categories...)
	return f.err
}
