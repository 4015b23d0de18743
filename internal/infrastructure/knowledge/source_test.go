package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFunc func(ctx context.Context, topic, category string) (string, error)

func (f sourceFunc) Lookup(ctx context.Context, topic, category string) (string, error) {
	return f(ctx, topic, category)
}

func TestStaticLookup(t *testing.T) {
	s := NewStatic(map[string]map[string]string{
		"Order":   {"Shipping": " We ship worldwide. "},
		"general": {"hours": "Support is available 9-5."},
	})

	got, err := s.Lookup(context.Background(), "shipping", "order")
	require.NoError(t, err)
	assert.Equal(t, "We ship worldwide.", got)

	got, _ = s.Lookup(context.Background(), "hours", "product")
	assert.Equal(t, "Support is available 9-5.", got)

	got, _ = s.Lookup(context.Background(), "unknown", "order")
	assert.Empty(t, got)
}

func TestChainReturnsFirstAnswer(t *testing.T) {
	calls := 0
	second := sourceFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "generated", nil
	})

	chain := NewChain(nil, NewStatic(map[string]map[string]string{"order": {"shipping": "static"}}), nil, second)
	got, err := chain.Lookup(context.Background(), "shipping", "order")
	require.NoError(t, err)
	assert.Equal(t, "static", got)
	assert.Zero(t, calls)

	got, err = chain.Lookup(context.Background(), "returns", "order")
	require.NoError(t, err)
	assert.Equal(t, "generated", got)
}

func TestChainSkipsFailingSource(t *testing.T) {
	failing := sourceFunc(func(context.Context, string, string) (string, error) { return "", errors.New("down") })
	empty := sourceFunc(func(context.Context, string, string) (string, error) { return "", nil })

	_, err := NewChain(nil, failing, empty).Lookup(context.Background(), "t", "c")
	assert.ErrorContains(t, err, "down")

	ok := sourceFunc(func(context.Context, string, string) (string, error) { return "fine", nil })
	got, err := NewChain(nil, failing, ok).Lookup(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Equal(t, "fine", got)
}
