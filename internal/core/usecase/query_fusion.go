package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	hit         domain.CandidateHit
	rrf         float64
	hasSemantic bool
}

// fuseCandidatesRRF merges semantic and lexical rankings with reciprocal rank fusion. A hit keeps
// its semantic similarity as base score; hits only found lexically are marked NoBaseScore.
func fuseCandidatesRRF(semantic, lexical []domain.CandidateHit, rrfK int) []domain.CandidateHit {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	addList := func(hits []domain.CandidateHit, isSemantic bool) {
		for rank, hit := range hits {
			key := candidateKey(hit)
			c := acc[key]
			switch {
			case isSemantic:
				c.hit = preferRicherHit(hit, c.hit)
				c.hasSemantic = true
			case !c.hasSemantic:
				c.hit = preferRicherHit(c.hit, hit)
			}
			c.rrf += 1.0 / float64(rrfK+rank+1)
			acc[key] = c
		}
	}

	addList(semantic, true)
	addList(lexical, false)

	type ranked struct {
		hit domain.CandidateHit
		rrf float64
	}
	out := make([]ranked, 0, len(acc))
	for _, c := range acc {
		hit := c.hit
		if !c.hasSemantic {
			hit.BaseScore = 0
			hit.NoBaseScore = true
		}
		out = append(out, ranked{hit: hit, rrf: c.rrf})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		if out[i].hit.Metadata.DocID != out[j].hit.Metadata.DocID {
			return out[i].hit.Metadata.DocID < out[j].hit.Metadata.DocID
		}
		if out[i].hit.Metadata.ChunkIndex != out[j].hit.Metadata.ChunkIndex {
			return out[i].hit.Metadata.ChunkIndex < out[j].hit.Metadata.ChunkIndex
		}
		return out[i].hit.Content < out[j].hit.Content
	})

	hits := make([]domain.CandidateHit, len(out))
	for i, r := range out {
		hits[i] = r.hit
	}
	return hits
}

func candidateKey(hit domain.CandidateHit) string {
	if hit.Metadata.ChunkID != "" {
		return hit.Metadata.ChunkID
	}
	return fmt.Sprintf("%s|%d|%s", hit.Metadata.DocID, hit.Metadata.ChunkIndex, hit.Content)
}

// preferRicherHit keeps current and fills the fields it lacks from candidate.
func preferRicherHit(current, candidate domain.CandidateHit) domain.CandidateHit {
	if current.Content == "" && current.Metadata.ChunkID == "" {
		return candidate
	}
	if current.Content == "" {
		current.Content = candidate.Content
	}
	if current.Metadata.Category == "" {
		current.Metadata.Category = candidate.Metadata.Category
	}
	if current.Metadata.DocID == "" {
		current.Metadata.DocID = candidate.Metadata.DocID
	}
	return current
}
