package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterPacksParagraphs(t *testing.T) {
	s := NewSplitter(25, 0)
	got := s.Split("alpha beta\n\ngamma\r\n\r\ndelta epsilon zeta eta")

	assert.Equal(t, []string{"alpha beta\n\ngamma", "delta epsilon zeta eta"}, got)
}

func TestSplitterWindowsLongParagraph(t *testing.T) {
	s := NewSplitter(10, 2)
	got := s.Split(strings.Repeat("a", 25))
	require.Len(t, got, 3)
	for _, chunk := range got {
		assert.LessOrEqual(t, len([]rune(chunk)), 10, "chunk %q", chunk)
	}
}

func TestSplitterEmpty(t *testing.T) {
	assert.Empty(t, NewSplitter(0, -1).Split(" \n\n \r\n"))
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	assert.Equal(t, 25, NewSplitter(100, 100).Overlap)
}
