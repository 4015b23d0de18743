package fallback

import (
	"regexp"
	"strings"
	"unicode"
)

const maxQueryVariants = 3

var queryStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "about": {}, "as": {}, "and": {}, "or": {},
}

type transform struct {
	pattern     *regexp.Regexp
	replacement string
}

var semanticTransforms = []transform{
	{regexp.MustCompile(`(?i)\bhow to\b`), "guide for"},
	{regexp.MustCompile(`(?i)\bwhat is\b`), "definition of"},
	{regexp.MustCompile(`(?i)\bwhy\b`), "reason for"},
	{regexp.MustCompile(`(?i)\bwhen\b`), "timing of"},
}

// categoryKeywords is ordered; the first category with a matching keyword wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"product", []string{"product", "item", "merchandise"}},
	{"order", []string{"order", "purchase", "buy", "shipping"}},
	{"support", []string{"help", "support", "problem", "issue"}},
	{"account", []string{"account", "profile", "settings", "password"}},
}

const generalCategory = "general"

// Keywords lowercases the query, splits on whitespace, trims surrounding punctuation and drops
// stop words and tokens of two characters or fewer.
func Keywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		word := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) <= 2 {
			continue
		}
		if _, stop := queryStopWords[word]; stop {
			continue
		}
		out = append(out, word)
	}
	return out
}

// Topic is the first keyword of the query, or "" when it has none.
func Topic(query string) string {
	if kw := Keywords(query); len(kw) > 0 {
		return kw[0]
	}
	return ""
}

func DetectCategory(query string) string {
	lower := strings.ToLower(query)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return generalCategory
}

// QueryVariants returns at most three broadened queries: the keyword-only form, then the query with
// one keyword swapped for its first synonym.
func QueryVariants(query string, synonyms map[string][]string) []string {
	keywords := Keywords(query)
	candidates := make([]string, 0, len(keywords)+1)
	candidates = append(candidates, strings.Join(keywords, " "))
	for _, kw := range keywords {
		syn := synonyms[kw]
		if len(syn) == 0 {
			continue
		}
		candidates = append(candidates, replaceFirstFold(query, kw, syn[0]))
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, maxQueryVariants)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == maxQueryVariants {
			break
		}
	}
	return out
}

// SemanticAlternatives applies each lexical transform that matches the query, replacing its first occurrence.
func SemanticAlternatives(query string) []string {
	out := make([]string, 0, len(semanticTransforms))
	for _, t := range semanticTransforms {
		loc := t.pattern.FindStringIndex(query)
		if loc == nil {
			continue
		}
		out = append(out, query[:loc[0]]+t.replacement+query[loc[1]:])
	}
	return out
}

func replaceFirstFold(s, old, replacement string) string {
	idx := strings.Index(strings.ToLower(s), old)
	if idx < 0 || len(strings.ToLower(s)) != len(s) {
		return strings.Replace(s, old, replacement, 1)
	}
	return s[:idx] + replacement + s[idx+len(old):]
}
