package enrichment

import (
	"regexp"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const (
	minConfidence = 0.1
	maxConfidence = 1.0

	shortChunkRunes = 50
	longChunkRunes  = 2000
)

// Numbered lists, bullets, table rows, definition lists and section headers.
var structuredPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\d+\.`),
	regexp.MustCompile(`(?m)^[-*•]`),
	regexp.MustCompile(`\|.*\|`),
	regexp.MustCompile(`(?m):\s*$`),
	regexp.MustCompile(`(?m)^[A-Z][^.!?]*:$`),
}

var (
	procedurePattern = regexp.MustCompile(`(?i)\b(step \d+|first|second|third|then|next|finally)\b`)
	policyPattern    = regexp.MustCompile(`(?i)\b(polic(y|ies)|regulations?|rules?|requirements?|must|shall|prohibited)\b`)
)

var contentTagPatterns = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"product", regexp.MustCompile(`price|cost|\$|product|item|sku`)},
	{"shipping", regexp.MustCompile(`shipping|delivery|order|purchase`)},
	{"returns", regexp.MustCompile(`return|refund|exchange|warranty`)},
	{"support", regexp.MustCompile(`help|support|problem|issue|trouble`)},
	{"howto", regexp.MustCompile(`how to|tutorial|guide|instruction`)},
	{"technical", regexp.MustCompile(`technical|spec|specification|feature`)},
	{"setup", regexp.MustCompile(`install|setup|configure|setting`)},
}

var sourceConfidenceAdjustment = map[domain.SourceType]float64{
	domain.SourceManualUpload: 0.1,
	domain.SourceAPISync:      0.05,
	domain.SourcePDFLink:      -0.05,
}

// ChunkConfidence estimates chunk quality, always within [0.1, 1.0].
func ChunkConfidence(text string, sourceType domain.SourceType) float64 {
	confidence := 1.0
	length := len([]rune(text))
	if length < shortChunkRunes {
		confidence -= 0.2
	}
	if length > longChunkRunes {
		confidence -= 0.1
	}
	if IsStructured(text) {
		confidence += 0.1
	}
	confidence += sourceConfidenceAdjustment[sourceType]

	if confidence < minConfidence {
		return minConfidence
	}
	if confidence > maxConfidence {
		return maxConfidence
	}
	return confidence
}

func IsStructured(text string) bool {
	for _, p := range structuredPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifyContent applies the rules in order; the first match wins.
func ClassifyContent(text string, sourceType domain.SourceType) domain.ContentType {
	switch {
	case strings.Contains(text, "?") && (strings.Contains(text, "Q:") || strings.Contains(text, "A:")):
		return domain.ContentFAQ
	case sourceType == domain.SourceCSVProduct || sourceType == domain.SourceJSONCatalog:
		return domain.ContentProduct
	case procedurePattern.MatchString(text):
		return domain.ContentProcedure
	case policyPattern.MatchString(text):
		return domain.ContentPolicy
	default:
		return domain.ContentGeneral
	}
}

func detectContentTags(text string) []string {
	lower := strings.ToLower(text)
	tags := make([]string, 0, len(contentTagPatterns))
	for _, ct := range contentTagPatterns {
		if ct.pattern.MatchString(lower) {
			tags = append(tags, ct.tag)
		}
	}
	return tags
}

func buildTags(text, category string, sourceType domain.SourceType, business *domain.BusinessContext) []string {
	candidates := make([]string, 0, 12)
	if category != "" {
		candidates = append(candidates, category)
	}
	candidates = append(candidates, string(sourceType))
	if business != nil {
		candidates = append(candidates, business.Tags...)
	}
	candidates = append(candidates, detectContentTags(text)...)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, tag := range candidates {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
