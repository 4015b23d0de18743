package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"where", "shipping", "label"}, Keywords("Where is my shipping LABEL?"))
	assert.Empty(t, Keywords("is it ok"))
}

func TestQueryVariants(t *testing.T) {
	got := QueryVariants("How do I purchase a product", DefaultSynonyms())
	assert.Equal(t, []string{
		"how purchase product",
		"How do I buy a product",
		"How do I purchase a item",
	}, got)

	assert.Empty(t, QueryVariants("a an the", DefaultSynonyms()))
	assert.Len(t, QueryVariants("purchase product help problem", DefaultSynonyms()), 3)
}

func TestSemanticAlternatives(t *testing.T) {
	assert.Equal(t, []string{"guide for fix it"}, SemanticAlternatives("How to fix it"))
	assert.Equal(t,
		[]string{"definition of RAG, why use it", "what is RAG, reason for use it"},
		SemanticAlternatives("what is RAG, why use it"),
	)
	assert.Empty(t, SemanticAlternatives("somewhat whys"))
}

func TestDetectCategory(t *testing.T) {
	assert.Equal(t, "product", DetectCategory("Tell me about this item"))
	assert.Equal(t, "order", DetectCategory("When will shipping arrive"))
	assert.Equal(t, "account", DetectCategory("reset my password"))
	assert.Equal(t, "general", DetectCategory("hello"))
}
