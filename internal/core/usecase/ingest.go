package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/enrichment"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

// IngestUseCase enriches pre-split chunks, embeds them and hands them to the vector index.
type IngestUseCase struct {
	enricher *enrichment.Enricher
	embedder ports.Embedder
	vectorDB ports.VectorStore
	chunks   ports.ChunkMetadataStore
	observer ports.RetrievalObserver
	chunker  ports.Chunker
	registry ports.CategoryRegistry
	pool     *ants.Pool
	logger   *slog.Logger
}

type IngestOption func(*IngestUseCase) error

// WithEnrichPoolSize sets how many chunks are enriched concurrently.
func WithEnrichPoolSize(size int) IngestOption {
	return func(uc *IngestUseCase) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if uc.pool != nil {
			uc.pool.Release()
		}
		uc.pool = pool
		return nil
	}
}

func WithChunkMetadataStore(store ports.ChunkMetadataStore) IngestOption {
	return func(uc *IngestUseCase) error {
		uc.chunks = store
		return nil
	}
}

func WithChunker(chunker ports.Chunker) IngestOption {
	return func(uc *IngestUseCase) error {
		uc.chunker = chunker
		return nil
	}
}

// WithCategoryRegistry records each batch category; registry failures do not fail ingestion.
func WithCategoryRegistry(registry ports.CategoryRegistry) IngestOption {
	return func(uc *IngestUseCase) error {
		uc.registry = registry
		return nil
	}
}

func WithIngestObserver(observer ports.RetrievalObserver) IngestOption {
	return func(uc *IngestUseCase) error {
		uc.observer = observer
		return nil
	}
}

func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(uc *IngestUseCase) error {
		if logger != nil {
			uc.logger = logger
		}
		return nil
	}
}

func NewIngestUseCase(
	enricher *enrichment.Enricher,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	opts ...IngestOption,
) (*IngestUseCase, error) {
	if enricher == nil {
		enricher = enrichment.New()
	}
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create enrich pool: %w", err)
	}

	uc := &IngestUseCase{
		enricher: enricher,
		embedder: embedder,
		vectorDB: vectorDB,
		pool:     pool,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(uc); err != nil {
			uc.Release()
			return nil, err
		}
	}
	return uc, nil
}

// Release frees the worker pool. The use case must not be used afterwards.
func (uc *IngestUseCase) Release() {
	if uc.pool != nil {
		uc.pool.Release()
	}
}

// IngestChunks enriches every non-blank chunk of the batch, indexes them and records their metadata.
// Chunk indexes keep their position in the batch, blank chunks included.
func (uc *IngestUseCase) IngestChunks(ctx context.Context, batch domain.IngestBatch) ([]domain.EnrichedMetadata, error) {
	type pending struct {
		index int
		text  string
	}
	work := make([]pending, 0, len(batch.Chunks))
	for i, text := range batch.Chunks {
		if strings.TrimSpace(text) == "" {
			continue
		}
		work = append(work, pending{index: i, text: text})
	}
	if len(work) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest chunks", fmt.Errorf("batch has no non-empty chunks"))
	}

	metas := make([]domain.EnrichedMetadata, len(work))
	var wg sync.WaitGroup
	for i, w := range work {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			metas[i] = uc.enricher.Enrich(batch.Raw, batch.Attributes, w.index, w.text)
		}
		if err := uc.pool.Submit(task); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit enrich task: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fingerprint := metas[0].SourceFingerprint
	prior, err := uc.priorChunks(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(work))
	for i, w := range work {
		texts[i] = w.text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	indexed := make([]domain.IndexedChunk, len(work))
	for i := range work {
		indexed[i] = domain.IndexedChunk{Text: texts[i], Vector: vectors[i], Metadata: metas[i]}
	}
	if err := uc.vectorDB.IndexChunks(ctx, indexed); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}

	if uc.chunks != nil {
		if err := uc.chunks.UpsertChunks(ctx, metas); err != nil {
			return nil, fmt.Errorf("persist chunk metadata: %w", err)
		}
		if err := uc.removeStale(ctx, fingerprint, prior, metas); err != nil {
			return nil, err
		}
	}

	if category := strings.TrimSpace(batch.Attributes.Category); category != "" && uc.registry != nil {
		if err := uc.registry.RegisterCategories(ctx, []string{category}); err != nil {
			uc.logger.Warn("category_register_failed", "category", category, "error", err)
		}
	}

	if uc.observer != nil {
		for _, meta := range metas {
			uc.observer.ObserveEnrichedChunk(meta)
		}
	}
	uc.logger.Info("chunks_ingested",
		"doc_id", metas[0].DocID,
		"source_type", string(metas[0].SourceType),
		"source_fingerprint", metas[0].SourceFingerprint,
		"chunks", len(metas),
	)
	return metas, nil
}

// priorChunks lists what an earlier ingestion of the same source stored.
func (uc *IngestUseCase) priorChunks(ctx context.Context, fingerprint string) ([]domain.EnrichedMetadata, error) {
	if uc.chunks == nil {
		return nil, nil
	}
	prior, err := uc.chunks.ListByFingerprint(ctx, fingerprint)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list prior chunks: %w", err)
	}
	return prior, nil
}

// removeStale deletes chunks of a re-ingested source that the new version no longer produces.
// Points are deleted before rows; the rows are how a later run finds leftover points.
func (uc *IngestUseCase) removeStale(
	ctx context.Context,
	fingerprint string,
	prior []domain.EnrichedMetadata,
	current []domain.EnrichedMetadata,
) error {
	if len(prior) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(current))
	for _, meta := range current {
		keep[meta.ChunkID] = struct{}{}
	}
	var stale []string
	for _, meta := range prior {
		if _, ok := keep[meta.ChunkID]; !ok {
			stale = append(stale, meta.ChunkID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := uc.vectorDB.DeleteChunks(ctx, stale); err != nil {
		return fmt.Errorf("delete stale points: %w", err)
	}
	if err := uc.chunks.DeleteChunks(ctx, stale); err != nil {
		return fmt.Errorf("delete stale chunk metadata: %w", err)
	}
	uc.logger.Info("stale_chunks_removed",
		"source_fingerprint", fingerprint,
		"chunks", len(stale),
	)
	return nil
}

// IngestText splits a whole plain-text document with the configured chunker and ingests the chunks.
func (uc *IngestUseCase) IngestText(
	ctx context.Context,
	raw domain.RawMetadata,
	attrs domain.IngestionAttributes,
	text string,
) ([]domain.EnrichedMetadata, error) {
	if uc.chunker == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest text", fmt.Errorf("no chunker configured"))
	}
	if !utf8.ValidString(text) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest text", fmt.Errorf("document is not valid utf-8"))
	}
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest text", fmt.Errorf("chunking produced zero chunks"))
	}
	return uc.IngestChunks(ctx, domain.IngestBatch{Raw: raw, Attributes: attrs, Chunks: chunks})
}
