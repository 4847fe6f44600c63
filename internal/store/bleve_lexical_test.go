package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleveLexical(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex(filepath.Join(t.TempDir(), "lexical.bleve"), DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveLexical_UpsertAndSearch(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "harvest reports", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-1", results[0].ChunkID[:5])
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestBleveLexical_MatchedTerms(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "waterfowl limits", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestBleveLexical_NoMatches(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "zymurgy", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexical_DeleteByDocument(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	require.NoError(t, idx.DeleteByDocument(context.Background(), "doc-2"))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1:g1:0", "doc-1:g1:1"}, ids)
}

func TestBleveLexical_Delete(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	require.NoError(t, idx.Delete(context.Background(), []string{"doc-1:g1:0"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotContains(t, ids, "doc-1:g1:0")
}

func TestBleveLexical_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")

	idx, err := NewBleveLexicalIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))
	require.NoError(t, idx.Close())

	idx2, err := NewBleveLexicalIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(context.Background(), "harvest", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestBleveLexical_Stats(t *testing.T) {
	idx := newTestBleveLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	stats := idx.Stats()
	assert.Equal(t, 4, stats.ChunkCount)
}
