package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

// IndexSearcher is the text-in search capability over an embedder and a vector index.
type IndexSearcher struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
}

func NewIndexSearcher(embedder ports.Embedder, vectorDB ports.VectorStore) *IndexSearcher {
	return &IndexSearcher{embedder: embedder, vectorDB: vectorDB}
}

// Search drops any hit the index returned outside the request's category constraint.
func (s *IndexSearcher) Search(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	vector, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.vectorDB.Search(ctx, vector, req)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	return constrain(hits, req.Category), nil
}

func (s *IndexSearcher) SearchLexical(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	hits, err := s.vectorDB.SearchLexical(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return constrain(hits, req.Category), nil
}

func constrain(hits []domain.CandidateHit, c *domain.CategoryConstraint) []domain.CandidateHit {
	if c == nil {
		return hits
	}
	out := hits[:0:0]
	for _, hit := range hits {
		if c.Matches(hit.Metadata) {
			out = append(out, hit)
		}
	}
	return out
}
