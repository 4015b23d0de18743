// Package ratelimit throttles the searches fallback strategies fan out into the vector index.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

// Searcher waits for a token before every search. A non-positive rate disables the limit.
type Searcher struct {
	next    ports.Searcher
	limiter *rate.Limiter
}

func NewSearcher(next ports.Searcher, perSecond float64, burst int) *Searcher {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Searcher{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (s *Searcher) Search(ctx context.Context, req domain.SearchRequest) ([]domain.CandidateHit, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "search rate limit", err)
	}
	hits, err := s.next.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rate limited search: %w", err)
	}
	return hits, nil
}
