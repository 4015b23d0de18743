package enrichment

import (
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const citationDateLayout = "2006-01-02"

var sourceLabels = map[domain.SourceType]string{
	domain.SourceManualUpload: "uploaded document",
	domain.SourceAPISync:      "synced content",
	domain.SourceCSVProduct:   "product catalog",
	domain.SourcePDFLink:      "linked PDF",
}

// Attribution builds the citation-ready view of a retrieved hit.
func Attribution(hit domain.CandidateHit) domain.SourceAttribution {
	meta := hit.Metadata
	return domain.SourceAttribution{
		SourceType:        meta.SourceType,
		SourceURL:         meta.SourceURL,
		Filename:          meta.Filename,
		DocTitle:          meta.DocTitle,
		Confidence:        meta.Confidence,
		Score:             hit.BaseScore,
		ChunkSource:       meta.ChunkSource,
		ChunkIndex:        meta.ChunkIndex,
		LastUpdatedAt:     meta.LastUpdatedAt,
		DocumentCreatedAt: meta.DocumentCreatedAt,
		Category:          meta.Category,
		Priority:          meta.Priority,
		CitationText:      Citation(meta),
	}
}

func Citation(meta domain.EnrichedMetadata) string {
	title := firstNonEmpty(meta.DocTitle, meta.Filename, "Unknown Document")
	label, ok := sourceLabels[meta.SourceType]
	if !ok {
		label = "document"
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(" (")
	b.WriteString(label)
	if meta.Category != "" {
		b.WriteString(", ")
		b.WriteString(meta.Category)
	}
	if !meta.DocumentCreatedAt.IsZero() {
		b.WriteString(", ")
		b.WriteString(meta.DocumentCreatedAt.Format(citationDateLayout))
	}
	b.WriteString(")")
	return b.String()
}
