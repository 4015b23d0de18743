package ports

import (
	"context"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

// ChunkIngestor is the inbound contract of the ingestion pipeline.
type ChunkIngestor interface {
	IngestChunks(ctx context.Context, batch domain.IngestBatch) ([]domain.EnrichedMetadata, error)
}

// RetrievalService is the inbound contract of the query pipeline.
type RetrievalService interface {
	Search(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// EscalationRecorder persists escalation events delivered by the bus.
type EscalationRecorder interface {
	Record(ctx context.Context, escalation domain.EscalationData) error
}
