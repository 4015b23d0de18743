package relevance

import (
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const (
	neutralScore = 0.5

	reliabilityVerifiedBoost     = 1.1
	reliabilityHighPriorityBoost = 1.1
	reliabilitySyncBoost         = 1.05

	recentlyUpdatedWindow = 7 * 24 * time.Hour
	staleAfter            = 365 * 24 * time.Hour
	lowConfidenceBelow    = 0.5
)

func vectorSimilarity(hit domain.CandidateHit) float64 {
	if hit.NoBaseScore || math.IsNaN(hit.BaseScore) {
		return neutralScore
	}
	return clamp01(hit.BaseScore)
}

// compiledQuery holds the lowered query so a result list is scored without re-normalising it.
type compiledQuery struct {
	phrase string
	terms  []string
}

func compileQuery(query string) compiledQuery {
	phrase := strings.ToLower(strings.TrimSpace(query))
	return compiledQuery{phrase: phrase, terms: strings.Fields(phrase)}
}

// textMatch counts whole-word occurrences of each term; a term present only inside
// another word counts as half a match.
func (q compiledQuery) textMatch(content string) float64 {
	if len(q.terms) == 0 || content == "" {
		return 0
	}
	text := strings.ToLower(content)

	exact, partial := 0, 0
	for _, term := range q.terms {
		if !strings.Contains(text, term) {
			continue
		}
		if n := countWholeWords(text, term); n > 0 {
			exact += n
		} else {
			partial++
		}
	}

	score := (float64(exact) + 0.5*float64(partial)) / float64(2*len(q.terms))
	if strings.Contains(text, q.phrase) {
		score = math.Min(1, score*1.5)
	}
	return math.Min(1, score)
}

// countWholeWords counts non-overlapping occurrences of term whose neighbouring runes are
// not word characters. Letters and digits of every script count as word characters.
func countWholeWords(text, term string) int {
	if term == "" {
		return 0
	}
	count := 0
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], term)
		if i < 0 {
			break
		}
		pos := start + i
		end := pos + len(term)
		if wordBoundaryBefore(text, pos) && wordBoundaryAfter(text, end) {
			count++
			start = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[pos:])
		start = pos + size
	}
	return count
}

func wordBoundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func wordBoundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func (s *Scorer) sourceReliability(meta domain.EnrichedMetadata) float64 {
	score, ok := s.cfg.SourceReliability[meta.SourceType]
	if !ok {
		score = s.cfg.SourceReliability[domain.SourceUnknown]
		if score == 0 {
			score = neutralScore
		}
	}
	if meta.Verified {
		score *= reliabilityVerifiedBoost
	}
	if s.isHighPriority(meta) {
		score *= reliabilityHighPriorityBoost
	}
	if meta.SyncEnabled {
		score *= reliabilitySyncBoost
	}
	return math.Min(1, score)
}

func (s *Scorer) isHighPriority(meta domain.EnrichedMetadata) bool {
	return meta.Priority >= s.cfg.HighPriorityThreshold
}

func lastTouched(meta domain.EnrichedMetadata) time.Time {
	if !meta.LastUpdatedAt.IsZero() {
		return meta.LastUpdatedAt
	}
	return meta.CreatedAt
}

func (s *Scorer) freshness(meta domain.EnrichedMetadata, now time.Time) float64 {
	ts := lastTouched(meta)
	if ts.IsZero() {
		return neutralScore
	}
	ageDays := now.Sub(ts).Hours() / 24
	return clamp01(math.Exp(-ageDays / s.cfg.FreshnessDecayDays))
}

func (s *Scorer) categoryMatch(category, context string) float64 {
	if context == "" || category == "" {
		return neutralScore
	}
	if category == context {
		return 1.0
	}
	d := s.cfg.HierarchyDelimiter
	if strings.HasPrefix(category, context+d) || strings.HasPrefix(context, category+d) {
		return 0.8
	}
	docParts := strings.Split(category, d)
	ctxParts := strings.Split(context, d)
	if len(docParts) > 1 && len(ctxParts) > 1 && docParts[0] == ctxParts[0] {
		return 0.6
	}
	return 0.3
}

func userPreference(meta domain.EnrichedMetadata, prefs domain.UserPreferences) float64 {
	if prefs.IsZero() {
		return neutralScore
	}
	score := neutralScore
	if slices.Contains(prefs.PreferredSources, meta.SourceType) {
		score += 0.2
	}
	if meta.Category != "" && slices.Contains(prefs.PreferredCategories, meta.Category) {
		score += 0.2
	}
	if prefs.Language != "" && meta.Language == prefs.Language {
		score += 0.1
	}
	return math.Min(1, score)
}

func (s *Scorer) applyModifiers(score float64, hit domain.CandidateHit, qc domain.QueryContext) float64 {
	for _, m := range sortedModifiers(s.cfg.BoostFactors) {
		if s.modifierApplies(m, hit, qc) {
			score *= 1 + s.cfg.BoostFactors[m]
		}
	}
	for _, m := range sortedModifiers(s.cfg.PenaltyFactors) {
		if s.modifierApplies(m, hit, qc) {
			score *= 1 - s.cfg.PenaltyFactors[m]
		}
	}
	return score
}

func (s *Scorer) modifierApplies(m Modifier, hit domain.CandidateHit, qc domain.QueryContext) bool {
	meta := hit.Metadata
	switch m {
	case ModifierExactMatch:
		q := strings.ToLower(strings.TrimSpace(qc.Query))
		return q != "" && strings.Contains(strings.ToLower(hit.Content), q)
	case ModifierRecentlyUpdated:
		ts := lastTouched(meta)
		return !ts.IsZero() && qc.Now.Sub(ts) < recentlyUpdatedWindow
	case ModifierHighPriority:
		return s.isHighPriority(meta)
	case ModifierStale:
		ts := lastTouched(meta)
		return !ts.IsZero() && qc.Now.Sub(ts) > staleAfter
	case ModifierLowConfidence:
		return meta.Confidence > 0 && meta.Confidence < lowConfidenceBelow
	case ModifierDeprecated:
		return meta.Status == domain.StatusDeprecated
	default:
		return false
	}
}

func sortedModifiers(factors map[Modifier]float64) []Modifier {
	out := make([]Modifier, 0, len(factors))
	for m := range factors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
