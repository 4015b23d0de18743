package domain

import (
	"encoding/json"
	"time"
)

type SourceType string

// Ingestion source types.
const (
	SourceManualUpload   SourceType = "manual_upload"
	SourceAPISync        SourceType = "api_sync"
	SourceCSVProduct     SourceType = "csv_product"
	SourceJSONCatalog    SourceType = "json_catalog"
	SourcePDFLink        SourceType = "pdf_link"
	SourceWebsiteScraper SourceType = "website_scraper"
)

// Reliability classes understood by the relevance scorer.
const (
	SourceOfficialDocs   SourceType = "official_docs"
	SourceProductCatalog SourceType = "product_catalog"
	SourceFAQ            SourceType = "faq"
	SourceUserUpload     SourceType = "user_upload"
	SourceWebScrape      SourceType = "web_scrape"
	SourceUnknown        SourceType = "unknown"
)

type ContentType string

const (
	ContentFAQ       ContentType = "faq"
	ContentProduct   ContentType = "product"
	ContentProcedure ContentType = "procedure"
	ContentPolicy    ContentType = "policy"
	ContentGeneral   ContentType = "general"
)

const StatusDeprecated = "deprecated"

// MetadataVersion tags records produced by the current enrichment rules.
const MetadataVersion = "1.2"

// RawMetadata is whatever the document loader attached to a chunk before enrichment.
type RawMetadata struct {
	DocID       string    `json:"doc_id,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Title       string    `json:"title,omitempty"`
	Author      string    `json:"author,omitempty"`
	ChunkSource string    `json:"chunk_source,omitempty"`
	Published   time.Time `json:"published,omitempty"`
}

// IngestionAttributes are the document-level attributes known at ingestion time.
type IngestionAttributes struct {
	SourceType      SourceType      `json:"source_type,omitempty"`
	SourceURL       string          `json:"source_url,omitempty"`
	DocID           string          `json:"doc_id,omitempty"`
	Filename        string          `json:"filename,omitempty"`
	Title           string          `json:"title,omitempty"`
	Category        string          `json:"category,omitempty"`
	Priority        int             `json:"priority,omitempty"`
	Language        string          `json:"language,omitempty"`
	Verified        bool            `json:"verified,omitempty"`
	SyncEnabled     bool            `json:"sync_enabled,omitempty"`
	Status          string          `json:"status,omitempty"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
	BusinessContext json.RawMessage `json:"business_context,omitempty"`
	SyncMetadata    json.RawMessage `json:"sync_metadata,omitempty"`
}

type BusinessContext struct {
	ExternalID string   `json:"external_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// EnrichedMetadata is the self-describing record stored next to every indexed chunk.
type EnrichedMetadata struct {
	ChunkID     string `json:"chunk_id"`
	ChunkIndex  int    `json:"chunk_index"`
	ChunkLength int    `json:"chunk_length"`
	ChunkSource string `json:"chunk_source"`

	DocID     string `json:"doc_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	DocTitle  string `json:"doc_title,omitempty"`
	DocAuthor string `json:"doc_author,omitempty"`

	SourceType        SourceType `json:"source_type"`
	SourceURL         string     `json:"source_url,omitempty"`
	SourceSystem      string     `json:"source_system,omitempty"`
	SourceID          string     `json:"source_id,omitempty"`
	SourceFingerprint string     `json:"source_fingerprint"`

	// Category is a delimiter-separated path; empty means uncategorized.
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags"`
	Priority int      `json:"priority"`

	Confidence     float64     `json:"confidence"`
	WordCount      int         `json:"word_count"`
	ContentType    ContentType `json:"content_type"`
	SearchKeywords []string    `json:"search_keywords"`

	Language    string `json:"language,omitempty"`
	Verified    bool   `json:"verified,omitempty"`
	SyncEnabled bool   `json:"sync_enabled,omitempty"`
	Status      string `json:"status,omitempty"`

	BusinessContext *BusinessContext `json:"business_context,omitempty"`
	SyncInfo        map[string]any   `json:"sync_info,omitempty"`

	CreatedAt         time.Time `json:"created_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
	DocumentCreatedAt time.Time `json:"document_created_at"`
	IndexedAt         time.Time `json:"indexed_at"`
	Version           string    `json:"version"`
}

// FilterableFields lists the payload keys a vector index must index to honour category filters.
var FilterableFields = []string{
	"source_type",
	"category",
	"priority",
	"content_type",
	"tags",
	"confidence",
	"source_system",
	"source_fingerprint",
}

// SourceAttribution is the citation-ready view of a retrieved chunk.
type SourceAttribution struct {
	SourceType        SourceType `json:"source_type"`
	SourceURL         string     `json:"source_url,omitempty"`
	Filename          string     `json:"filename,omitempty"`
	DocTitle          string     `json:"doc_title,omitempty"`
	Confidence        float64    `json:"confidence"`
	Score             float64    `json:"score"`
	ChunkSource       string     `json:"chunk_source,omitempty"`
	ChunkIndex        int        `json:"chunk_index"`
	LastUpdatedAt     time.Time  `json:"last_updated_at"`
	DocumentCreatedAt time.Time  `json:"document_created_at"`
	Category          string     `json:"category,omitempty"`
	Priority          int        `json:"priority"`
	CitationText      string     `json:"citation_text"`
}

// IngestBatch is one document worth of pre-split chunks.
type IngestBatch struct {
	Raw        RawMetadata         `json:"raw"`
	Attributes IngestionAttributes `json:"attributes"`
	Chunks     []string            `json:"chunks"`
}

// IndexedChunk is the unit handed to the vector index.
type IndexedChunk struct {
	Text     string
	Vector   []float32
	Metadata EnrichedMetadata
}
