package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// UpsertChunks writes all chunks in one transaction, keyed by chunk id.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.EnrichedMetadata) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, meta := range chunks {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata %s: %w", meta.ChunkID, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunk_metadata (chunk_id, doc_id, source_type, source_fingerprint, category, confidence, metadata, indexed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (chunk_id) DO UPDATE SET
	doc_id = EXCLUDED.doc_id,
	source_type = EXCLUDED.source_type,
	source_fingerprint = EXCLUDED.source_fingerprint,
	category = EXCLUDED.category,
	confidence = EXCLUDED.confidence,
	metadata = EXCLUDED.metadata,
	indexed_at = EXCLUDED.indexed_at
`,
			meta.ChunkID, meta.DocID, string(meta.SourceType), meta.SourceFingerprint, meta.Category, meta.Confidence, raw, meta.IndexedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk metadata %s: %w", meta.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk upsert tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByFingerprint(ctx context.Context, fingerprint string) ([]domain.EnrichedMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT metadata
FROM chunk_metadata
WHERE source_fingerprint = $1
ORDER BY doc_id, chunk_id
`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query chunk metadata: %w", err)
	}
	defer rows.Close()

	var out []domain.EnrichedMetadata
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan chunk metadata: %w", err)
		}
		var meta domain.EnrichedMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk metadata: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "list chunks by fingerprint", fmt.Errorf("fingerprint %s", fingerprint))
	}
	return out, nil
}

// DeleteChunks removes chunk metadata by chunk id in one transaction.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_metadata WHERE chunk_id = $1`, id); err != nil {
			return fmt.Errorf("delete chunk metadata %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk delete tx: %w", err)
	}
	return nil
}
