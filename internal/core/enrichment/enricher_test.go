package enrichment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

var fixedNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestEnricher(buf *bytes.Buffer) *Enricher {
	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	if buf != nil {
		opts = append(opts, WithLogger(slog.New(slog.NewJSONHandler(buf, nil))))
	}
	return New(opts...)
}

func TestEnrichAppliesDefaults(t *testing.T) {
	e := newTestEnricher(nil)

	meta := e.Enrich(domain.RawMetadata{}, domain.IngestionAttributes{}, 0, "short text")

	assert.Equal(t, domain.SourceManualUpload, meta.SourceType)
	assert.True(t, strings.HasPrefix(meta.ChunkID, "src_"))
	assert.True(t, strings.HasSuffix(meta.ChunkID, "_chunk_0"))
	assert.Equal(t, "document_chunk_0", meta.ChunkSource)
	assert.Equal(t, "Unknown", meta.DocAuthor)
	assert.Empty(t, meta.Category)
	assert.Zero(t, meta.Priority)
	assert.Equal(t, domain.MetadataVersion, meta.Version)
	assert.Equal(t, fixedNow, meta.CreatedAt)
	assert.Equal(t, fixedNow, meta.DocumentCreatedAt)
	assert.Equal(t, 2, meta.WordCount)
	assert.Equal(t, 10, meta.ChunkLength)
}

func TestEnrichCopiesAttributes(t *testing.T) {
	e := newTestEnricher(nil)
	published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	meta := e.Enrich(
		domain.RawMetadata{Title: "Catalog", Author: "Ops", Published: published},
		domain.IngestionAttributes{
			SourceType: domain.SourceAPISync,
			SourceURL:  "https://shop.myshopify.com/products.json",
			DocID:      "doc-7",
			Filename:   "catalog.json",
			Category:   "Products/Phones",
			Priority:   8,
			Language:   "en",
			Verified:   true,
			Status:     "active",
		},
		3,
		"Some product text",
	)

	assert.Equal(t, "doc-7_chunk_3", meta.ChunkID)
	assert.Equal(t, "catalog.json_chunk_3", meta.ChunkSource)
	assert.Equal(t, "Catalog", meta.DocTitle)
	assert.Equal(t, "Ops", meta.DocAuthor)
	assert.Equal(t, "shopify", meta.SourceSystem)
	assert.Equal(t, "Products/Phones", meta.Category)
	assert.Equal(t, 8, meta.Priority)
	assert.True(t, meta.Verified)
	assert.Equal(t, published, meta.DocumentCreatedAt)
}

func TestChunkConfidence(t *testing.T) {
	structured := "Setup checklist:\n1. Unpack the device\n2. Connect the charger cable"
	long := strings.Repeat("plain words without any structure ", 70)

	tests := []struct {
		name       string
		text       string
		sourceType domain.SourceType
		want       float64
	}{
		{name: "short manual upload", text: "Hi there", sourceType: domain.SourceManualUpload, want: 0.9},
		{name: "short pdf link", text: "Hi there", sourceType: domain.SourcePDFLink, want: 0.75},
		{name: "long api sync", text: long, sourceType: domain.SourceAPISync, want: 0.95},
		{name: "structured manual upload is capped", text: structured, sourceType: domain.SourceManualUpload, want: 1.0},
		{name: "unknown source has no adjustment", text: "Hi there", sourceType: domain.SourceWebsiteScraper, want: 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ChunkConfidence(tt.text, tt.sourceType), 1e-9)
		})
	}
}

func TestChunkConfidenceAlwaysInRange(t *testing.T) {
	sources := []domain.SourceType{
		domain.SourceManualUpload, domain.SourceAPISync, domain.SourceCSVProduct,
		domain.SourceJSONCatalog, domain.SourcePDFLink, domain.SourceWebsiteScraper, "",
	}
	texts := []string{"", "x", "| a | b |", strings.Repeat("y", 2500), strings.Repeat("- item\n", 400)}

	for _, src := range sources {
		for _, text := range texts {
			got := ChunkConfidence(text, src)
			assert.GreaterOrEqual(t, got, 0.1)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestEnrichIsIdempotent(t *testing.T) {
	e := newTestEnricher(nil)
	raw := domain.RawMetadata{Title: "Guide"}
	attrs := domain.IngestionAttributes{
		SourceType: domain.SourcePDFLink,
		SourceURL:  "https://example.com/guide.pdf",
		Filename:   "guide.pdf",
		DocID:      "doc-1",
	}

	first := e.Enrich(raw, attrs, 4, "chunk body")
	second := e.Enrich(raw, attrs, 4, "chunk body")

	assert.Equal(t, first.ChunkID, second.ChunkID)
	assert.Equal(t, first.SourceFingerprint, second.SourceFingerprint)
	assert.True(t, strings.HasPrefix(first.SourceFingerprint, "src_"))

	attrs.DocID = "doc-2"
	third := e.Enrich(raw, attrs, 4, "chunk body")
	assert.NotEqual(t, first.SourceFingerprint, third.SourceFingerprint)
}

func TestEnrichWithoutDocIDKeysChunksBySource(t *testing.T) {
	e := newTestEnricher(nil)
	returns := domain.IngestionAttributes{SourceType: domain.SourceManualUpload, Filename: "returns.txt"}
	shipping := domain.IngestionAttributes{SourceType: domain.SourceManualUpload, Filename: "shipping.txt"}

	first := e.Enrich(domain.RawMetadata{}, returns, 0, "Returns are accepted within 30 days")
	other := e.Enrich(domain.RawMetadata{}, shipping, 0, "Shipping takes 3 to 5 days")
	again := e.Enrich(domain.RawMetadata{}, returns, 0, "Returns are accepted within 30 days")

	assert.NotEqual(t, first.ChunkID, other.ChunkID)
	assert.Equal(t, first.ChunkID, again.ChunkID)
	assert.Equal(t, first.SourceFingerprint+"_chunk_0", first.ChunkID)

	fromRaw := e.Enrich(domain.RawMetadata{Filename: "faq.txt"}, domain.IngestionAttributes{}, 1, "body")
	assert.NotEqual(t, first.SourceFingerprint, fromRaw.SourceFingerprint)
	assert.Equal(t, fromRaw.SourceFingerprint+"_chunk_1", fromRaw.ChunkID)
}

func TestSourceFingerprintSeparatesFields(t *testing.T) {
	a := SourceFingerprint("", "ab", "", "")
	b := SourceFingerprint("", "a", "b", "")
	assert.NotEqual(t, a, b)
}

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		sourceType domain.SourceType
		want       domain.ContentType
	}{
		{name: "faq", text: "Q: Can I return it? A: Yes, within 30 days.", want: domain.ContentFAQ},
		{name: "faq wins over product", text: "Q: What is the price? A: 10 USD", sourceType: domain.SourceCSVProduct, want: domain.ContentFAQ},
		{name: "product by source", text: "Blue widget, 10 USD", sourceType: domain.SourceJSONCatalog, want: domain.ContentProduct},
		{name: "procedure", text: "First, open the box. Then plug it in.", want: domain.ContentProcedure},
		{name: "policy", text: "Employees must wear a badge at all times.", want: domain.ContentPolicy},
		{name: "question without marker is general", text: "Is the sky blue?", want: domain.ContentGeneral},
		{name: "general", text: "The sky is blue.", want: domain.ContentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContent(tt.text, tt.sourceType))
		})
	}
}

func TestExtractKeywordsRanksByFrequency(t *testing.T) {
	got := ExtractKeywords("Battery, battery; BATTERY! charger charger cable with the a", 10)
	assert.Equal(t, []string{"battery", "charger", "cable"}, got)
}

func TestExtractKeywordsKeepsTopTen(t *testing.T) {
	words := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		words = append(words, fmt.Sprintf("term%02d", i))
	}
	got := ExtractKeywords(strings.Join(words, " "), 10)

	require.Len(t, got, 10)
	assert.Equal(t, "term00", got[0])
	assert.Equal(t, "term09", got[9])
}

func TestEnrichIgnoresMalformedBusinessContext(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEnricher(&buf)

	meta := e.Enrich(domain.RawMetadata{}, domain.IngestionAttributes{
		DocID:           "doc-9",
		BusinessContext: json.RawMessage(`{not json`),
		SyncMetadata:    json.RawMessage(`[1,`),
	}, 0, "text")

	assert.Nil(t, meta.BusinessContext)
	assert.Nil(t, meta.SyncInfo)
	assert.Empty(t, meta.SourceID)
	assert.Contains(t, buf.String(), "business_context_parse_failed")
	assert.Contains(t, buf.String(), "sync_metadata_parse_failed")
}

func TestEnrichParsesEmbeddedBusinessContext(t *testing.T) {
	e := newTestEnricher(nil)

	meta := e.Enrich(domain.RawMetadata{}, domain.IngestionAttributes{
		BusinessContext: json.RawMessage(`"{\"external_id\":\"sku-1\",\"tags\":[\"promo\"]}"`),
		SyncMetadata:    json.RawMessage(`{"last_sync":"2025-01-01"}`),
	}, 0, "text")

	require.NotNil(t, meta.BusinessContext)
	assert.Equal(t, "sku-1", meta.SourceID)
	assert.Contains(t, meta.Tags, "promo")
	assert.Equal(t, "2025-01-01", meta.SyncInfo["last_sync"])
}

func TestEnrichBuildsOrderedTags(t *testing.T) {
	e := newTestEnricher(nil)

	meta := e.Enrich(domain.RawMetadata{}, domain.IngestionAttributes{
		SourceType: domain.SourceCSVProduct,
		Category:   "Products/Phones",
	}, 0, "The price of this product includes shipping")

	assert.Equal(t, []string{"Products/Phones", "csv_product", "product", "shipping"}, meta.Tags)
}

func TestCitation(t *testing.T) {
	meta := domain.EnrichedMetadata{
		DocTitle:          "Returns Guide",
		SourceType:        domain.SourceManualUpload,
		Category:          "Support",
		DocumentCreatedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "Returns Guide (uploaded document, Support, 2024-03-05)", Citation(meta))
	assert.Equal(t, "Unknown Document (document)", Citation(domain.EnrichedMetadata{}))
	assert.Equal(t, "faq.txt (document)", Citation(domain.EnrichedMetadata{Filename: "faq.txt", SourceType: domain.SourceWebsiteScraper}))
}

func TestAttributionCarriesScore(t *testing.T) {
	hit := domain.CandidateHit{
		BaseScore: 0.82,
		Metadata:  domain.EnrichedMetadata{Filename: "a.pdf", SourceType: domain.SourcePDFLink, ChunkIndex: 2},
	}
	attr := Attribution(hit)

	assert.Equal(t, 0.82, attr.Score)
	assert.Equal(t, 2, attr.ChunkIndex)
	assert.Equal(t, "a.pdf (linked PDF)", attr.CitationText)
}

func TestDetectSourceSystem(t *testing.T) {
	cases := []struct{ url, want string }{
		{"", ""},
		{"https://store.myshopify.com/x", "shopify"},
		{"https://shop.example.com/wp-json/woocommerce/v3", "woocommerce"},
		{"https://drive.google.com/file/d/1", "google_drive"},
		{"https://docs.google.com/document/d/1", "google_docs"},
		{"https://example.com", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DetectSourceSystem(c.url), c.url)
	}
}
