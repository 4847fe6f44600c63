package event

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/chunk"
)

func TestNewEnvelope(t *testing.T) {
	payload := ChunksIndexed{
		DocumentID:     "marp-2024-001",
		ChunkCount:     12,
		EmbeddingModel: "all-MiniLM-L6-v2",
		IndexPath:      "/var/lib/marpsearch",
	}

	env, err := NewEnvelope(TypeChunksIndexed, "corr-1", payload)
	require.NoError(t, err)
	assert.Equal(t, TypeChunksIndexed, env.EventType)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, Source, env.Source)
	assert.Equal(t, SchemaVersion, env.Version)
	assert.False(t, env.Timestamp.IsZero())

	var decoded ChunksIndexed
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestEnvelope_UniqueEventIDs(t *testing.T) {
	a, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{})
	require.NoError(t, err)
	b, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{})
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestDocumentExtracted_JSONContract(t *testing.T) {
	raw := `{
		"document_id": "marp-2024-001",
		"text": "Section 1. Definitions.",
		"page_offsets": [{"page": 1, "start": 0, "end": 23}],
		"content_hash": "abc123"
	}`

	var payload DocumentExtracted
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, "marp-2024-001", payload.DocumentID)
	assert.Equal(t, "Section 1. Definitions.", payload.Text)
	assert.Equal(t, "abc123", payload.ContentHash)
	require.Len(t, payload.PageOffsets, 1)
	assert.Equal(t, chunk.PageSpan{Page: 1, Start: 0, End: 23}, payload.PageOffsets[0])
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var received []*Envelope
	bus.Subscribe(TypeChunksIndexed, func(ctx context.Context, env *Envelope) error {
		received = append(received, env)
		return nil
	})

	env, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))

	require.Len(t, received, 1)
	assert.Equal(t, env.EventID, received[0].EventID)
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var calls int
	bus.Subscribe(TypeRetrievalCompleted, func(ctx context.Context, env *Envelope) error {
		calls++
		return nil
	})

	env, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))
	assert.Zero(t, calls)
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var second bool
	bus.Subscribe(TypeChunksIndexed, func(ctx context.Context, env *Envelope) error {
		return fmt.Errorf("handler failure")
	})
	bus.Subscribe(TypeChunksIndexed, func(ctx context.Context, env *Envelope) error {
		second = true
		return nil
	})

	env, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))
	assert.True(t, second)
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewInMemoryBus()

	var calls int
	bus.Subscribe(TypeChunksIndexed, func(ctx context.Context, env *Envelope) error {
		calls++
		return nil
	})
	require.NoError(t, bus.Close())

	env, err := NewEnvelope(TypeChunksIndexed, "", ChunksIndexed{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))
	assert.Zero(t, calls)
}
