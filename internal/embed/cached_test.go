package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts provider calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls atomic.Int64
	batchCalls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls.Add(1)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	first, err := c.Embed(ctx, "late submission policy")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "late submission policy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	_, err := c.Embed(ctx, "cached passage")
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(ctx, []string{"cached passage", "fresh passage"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// Only the miss went to the provider batch.
	assert.Equal(t, int64(1), inner.batchCalls.Load())

	// Fully cached batch needs no provider calls at all.
	before := inner.batchCalls.Load()
	_, err = c.EmbedBatch(ctx, []string{"cached passage", "fresh passage"})
	require.NoError(t, err)
	assert.Equal(t, before, inner.batchCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := NewStaticEmbedderWithDimensions(128)
	c := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 128, c.Dimensions())
	assert.Equal(t, "static", c.ModelName())
	assert.True(t, c.Available(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, c.Available(context.Background()))
}
