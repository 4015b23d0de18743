package ports

import (
	"context"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes enriched chunks and performs nearest-neighbour search.
type VectorStore interface {
	IndexChunks(ctx context.Context, chunks []domain.IndexedChunk) error
	Search(ctx context.Context, queryVector []float32, req domain.SearchRequest) ([]domain.CandidateHit, error)
	SearchLexical(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error)
	DeleteChunks(ctx context.Context, chunkIDs []string) error
}

// Searcher is the text-in search capability fallback strategies call.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error)
}

// KnowledgeSource returns a generic answer for a topic/category pair, or "" when none is available.
type KnowledgeSource interface {
	Lookup(ctx context.Context, topic, category string) (string, error)
}

// CategoryTree resolves sibling categories of a category path.
type CategoryTree interface {
	Siblings(ctx context.Context, category string) ([]string, error)
}

// CategoryRegistry records the category paths seen at ingestion so a CategoryTree can answer for them.
type CategoryRegistry interface {
	RegisterCategories(ctx context.Context, categories []string) error
}

// EscalationBus publishes and consumes escalation events.
type EscalationBus interface {
	PublishEscalation(ctx context.Context, escalation domain.EscalationData) error
	SubscribeEscalations(ctx context.Context, handler func(context.Context, domain.EscalationData) error) error
}

// EscalationStore persists escalation records.
type EscalationStore interface {
	SaveEscalation(ctx context.Context, escalation domain.EscalationData) error
	ListEscalations(ctx context.Context, priority domain.EscalationPriority, limit int) ([]domain.EscalationData, error)
}

// Chunker splits a plain-text document into chunks.
type Chunker interface {
	Split(text string) []string
}

// ChunkMetadataStore persists enriched chunk metadata. ListByFingerprint returns ErrNotFound
// when no chunk of the source is stored.
type ChunkMetadataStore interface {
	UpsertChunks(ctx context.Context, chunks []domain.EnrichedMetadata) error
	ListByFingerprint(ctx context.Context, fingerprint string) ([]domain.EnrichedMetadata, error)
	DeleteChunks(ctx context.Context, chunkIDs []string) error
}

// RetrievalObserver receives pipeline events for metrics; implementations must be cheap and non-blocking.
type RetrievalObserver interface {
	ObserveQuery(outcome domain.FallbackOutcome, topScore float64, duration time.Duration)
	ObserveStrategyAttempt(attempt domain.StrategyAttempt)
	ObserveEnrichedChunk(meta domain.EnrichedMetadata)
}
