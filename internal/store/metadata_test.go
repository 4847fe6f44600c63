package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/chunk"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := NewSQLiteMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetadataStore_DocumentLifecycle(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	doc := &Document{
		ID:           "marp-2024-001",
		Title:        "Waterfowl Hunting Regulations 2024",
		SourceURL:    "https://example.org/marp-2024-001.pdf",
		PageCount:    12,
		ContentHash:  "abc123",
		Generation:   1,
		Status:       StatusPending,
		DiscoveredAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "marp-2024-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, uint64(1), got.Generation)
	assert.True(t, got.IndexedAt.IsZero())

	// Status transition is a plain overwrite.
	doc.Status = StatusIndexed
	doc.ChunkCount = 7
	doc.IndexedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err = s.GetDocument(ctx, "marp-2024-001")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.False(t, got.IndexedAt.IsZero())
}

func TestMetadataStore_GetDocumentMissing(t *testing.T) {
	s := newTestMetadataStore(t)

	got, err := s.GetDocument(context.Background(), "no-such-doc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataStore_ListDocuments(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
		require.NoError(t, s.SaveDocument(ctx, &Document{ID: id, Status: StatusPending}))
	}

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "doc-b", docs[1].ID)
	assert.Equal(t, "doc-c", docs[2].ID)
}

func TestMetadataStore_DeleteDocumentCascades(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, &Document{ID: "doc-1", Status: StatusIndexed}))
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		{ID: chunk.ChunkID("doc-1", 1, 0), DocumentID: "doc-1", Generation: 1, Page: 1, Text: "alpha"},
		{ID: chunk.ChunkID("doc-1", 1, 1), DocumentID: "doc-1", Generation: 1, Page: 1, Text: "beta"},
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMetadataStore_ChunkRoundTrip(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	in := &chunk.Chunk{
		ID:          chunk.ChunkID("doc-1", 2, 3),
		DocumentID:  "doc-1",
		Ordinal:     3,
		Generation:  2,
		Page:        5,
		Text:        "hunting season opens on the first Saturday of October",
		TokenCount:  9,
		Overlap:     2,
		StartOffset: 100,
		EndOffset:   153,
	}
	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{in}))

	got, err := s.GetChunk(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in, got)
}

func TestMetadataStore_GetChunksPreservesOrder(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	var chunks []*chunk.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, &chunk.Chunk{
			ID:         chunk.ChunkID("doc-1", 1, i),
			DocumentID: "doc-1",
			Ordinal:    i,
			Generation: 1,
			Page:       1,
			Text:       "chunk",
		})
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	// Request in reverse order with one unknown id mixed in.
	ids := []string{chunks[4].ID, "doc-1:g1:99", chunks[0].ID, chunks[2].ID}
	got, err := s.GetChunks(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, chunks[4].ID, got[0].ID)
	assert.Equal(t, chunks[0].ID, got[1].ID)
	assert.Equal(t, chunks[2].ID, got[2].ID)
}

func TestMetadataStore_GenerationGC(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	var chunks []*chunk.Chunk
	for gen := uint64(1); gen <= 3; gen++ {
		for i := 0; i < 2; i++ {
			chunks = append(chunks, &chunk.Chunk{
				ID:         chunk.ChunkID("doc-1", gen, i),
				DocumentID: "doc-1",
				Ordinal:    i,
				Generation: gen,
				Page:       1,
				Text:       "chunk",
			})
		}
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	stale, err := s.GetChunkIDsBelowGeneration(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"doc-1:g1:0", "doc-1:g1:1", "doc-1:g2:0", "doc-1:g2:1",
	}, stale)

	require.NoError(t, s.DeleteChunks(ctx, stale))

	remaining, err := s.GetChunkIDsByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1:g3:0", "doc-1:g3:1"}, remaining)
}

func TestMetadataStore_DeleteChunksByDocument(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*chunk.Chunk{
		{ID: chunk.ChunkID("doc-1", 1, 0), DocumentID: "doc-1", Generation: 1, Page: 1, Text: "a"},
		{ID: chunk.ChunkID("doc-2", 1, 0), DocumentID: "doc-2", Generation: 1, Page: 1, Text: "b"},
	}))

	require.NoError(t, s.DeleteChunksByDocument(ctx, "doc-1"))

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	remaining, err := s.GetChunkIDsByDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMetadataStore_State(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "384"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "all-MiniLM-L6-v2"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "768"))

	v, err = s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Equal(t, "768", v)

	v, err = s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "all-MiniLM-L6-v2", v)
}

func TestMetadataStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, &Document{ID: "doc-1", Status: StatusIndexed, Generation: 2}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, uint64(2), got.Generation)
}

func TestMetadataStore_CloseIdempotent(t *testing.T) {
	s := newTestMetadataStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.SaveDocument(context.Background(), &Document{ID: "doc-1"})
	assert.Error(t, err)
}
