// Package enrichment turns a raw text chunk plus ingestion attributes into self-describing metadata.
package enrichment

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const maxSearchKeywords = 10

// Enricher is stateless apart from its logger and clock; one instance may serve many goroutines.
type Enricher struct {
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Enricher)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		if now != nil {
			e.now = now
		}
	}
}

func New(opts ...Option) *Enricher {
	e := &Enricher{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich never fails: absent inputs take defaults and malformed payloads are dropped with a warning.
func (e *Enricher) Enrich(
	raw domain.RawMetadata,
	attrs domain.IngestionAttributes,
	chunkIndex int,
	text string,
) domain.EnrichedMetadata {
	now := e.now()

	sourceType := attrs.SourceType
	if sourceType == "" {
		sourceType = domain.SourceManualUpload
	}
	docID := firstNonEmpty(attrs.DocID, raw.DocID)
	filename := firstNonEmpty(attrs.Filename, raw.Filename)

	business := e.parseBusinessContext(attrs.BusinessContext, docID)
	syncInfo := e.parseSyncInfo(attrs.SyncMetadata, docID)

	sourceID := ""
	if business != nil {
		sourceID = business.ExternalID
	}

	chunkSource := raw.ChunkSource
	if chunkSource == "" {
		chunkSource = fmt.Sprintf("%s_chunk_%d", firstNonEmpty(filename, "document"), chunkIndex)
	}

	fingerprint := SourceFingerprint(attrs.SourceType, attrs.SourceURL, filename, docID)

	documentCreatedAt := now
	switch {
	case !raw.Published.IsZero():
		documentCreatedAt = raw.Published
	case !attrs.CreatedAt.IsZero():
		documentCreatedAt = attrs.CreatedAt
	}

	return domain.EnrichedMetadata{
		ChunkID:     ChunkID(firstNonEmpty(docID, fingerprint), chunkIndex),
		ChunkIndex:  chunkIndex,
		ChunkLength: len([]rune(text)),
		ChunkSource: chunkSource,

		DocID:     docID,
		Filename:  filename,
		DocTitle:  firstNonEmpty(raw.Title, attrs.Title),
		DocAuthor: firstNonEmpty(raw.Author, "Unknown"),

		SourceType:        sourceType,
		SourceURL:         attrs.SourceURL,
		SourceSystem:      DetectSourceSystem(attrs.SourceURL),
		SourceID:          sourceID,
		SourceFingerprint: fingerprint,

		Category: attrs.Category,
		Tags:     buildTags(text, attrs.Category, sourceType, business),
		Priority: attrs.Priority,

		Confidence:     ChunkConfidence(text, sourceType),
		WordCount:      len(strings.Fields(text)),
		ContentType:    ClassifyContent(text, sourceType),
		SearchKeywords: ExtractKeywords(text, maxSearchKeywords),

		Language:    attrs.Language,
		Verified:    attrs.Verified,
		SyncEnabled: attrs.SyncEnabled,
		Status:      attrs.Status,

		BusinessContext: business,
		SyncInfo:        syncInfo,

		CreatedAt:         now,
		LastUpdatedAt:     now,
		DocumentCreatedAt: documentCreatedAt,
		IndexedAt:         now,
		Version:           domain.MetadataVersion,
	}
}

// ChunkID is stable per (document, chunk index). Enrich passes the source fingerprint as
// document key when the batch carries no document id.
func ChunkID(docKey string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", docKey, chunkIndex)
}

// DetectSourceSystem maps well-known hosts in a source URL to a system name.
func DetectSourceSystem(sourceURL string) string {
	u := strings.ToLower(sourceURL)
	switch {
	case u == "":
		return ""
	case strings.Contains(u, "shopify"):
		return "shopify"
	case strings.Contains(u, "woocommerce"):
		return "woocommerce"
	case strings.Contains(u, "drive.google.com"):
		return "google_drive"
	case strings.Contains(u, "docs.google.com"):
		return "google_docs"
	default:
		return ""
	}
}

func (e *Enricher) parseBusinessContext(payload json.RawMessage, docID string) *domain.BusinessContext {
	if isEmptyPayload(payload) {
		return nil
	}
	var out domain.BusinessContext
	if err := json.Unmarshal(unquoteEmbeddedJSON(payload), &out); err != nil {
		e.logger.Warn("business_context_parse_failed", "doc_id", docID, "error", err)
		return nil
	}
	return &out
}

func (e *Enricher) parseSyncInfo(payload json.RawMessage, docID string) map[string]any {
	if isEmptyPayload(payload) {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(unquoteEmbeddedJSON(payload), &out); err != nil {
		e.logger.Warn("sync_metadata_parse_failed", "doc_id", docID, "error", err)
		return nil
	}
	return out
}

func isEmptyPayload(payload json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(payload))
	return trimmed == "" || trimmed == "null" || trimmed == `""`
}

// unquoteEmbeddedJSON accepts payloads stored as a JSON string holding JSON, as relational columns often do.
func unquoteEmbeddedJSON(payload json.RawMessage) []byte {
	var inner string
	if err := json.Unmarshal(payload, &inner); err == nil {
		return []byte(inner)
	}
	return payload
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
