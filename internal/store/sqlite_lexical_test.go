package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteLexical(t *testing.T) *SQLiteLexicalIndex {
	t.Helper()
	idx, err := NewSQLiteLexicalIndex(filepath.Join(t.TempDir(), "lexical.db"), DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func regulatoryDocs() []*IndexDoc {
	return []*IndexDoc{
		{ChunkID: "doc-1:g1:0", DocumentID: "doc-1",
			Text: "Hunters must submit harvest reports within 30 days of the season close."},
		{ChunkID: "doc-1:g1:1", DocumentID: "doc-1",
			Text: "Late submission of harvest reports results in license suspension."},
		{ChunkID: "doc-2:g1:0", DocumentID: "doc-2",
			Text: "Waterfowl bag limits are set annually by the commission."},
		{ChunkID: "doc-2:g1:1", DocumentID: "doc-2",
			Text: "Non-compliance with bag limits is a class B misdemeanor."},
	}
}

func TestSQLiteLexical_UpsertAndSearch(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "harvest reports", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
		assert.Contains(t, []string{"doc-1:g1:0", "doc-1:g1:1"}, r.ChunkID)
	}
	// Best match first.
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSQLiteLexical_AnyTermMatches(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	// "waterfowl" appears only in doc-2, "suspension" only in doc-1.
	// Either term alone is enough to match.
	results, err := idx.Search(context.Background(), "waterfowl suspension", 10)
	require.NoError(t, err)
	ids := resultIDs(results)
	assert.Contains(t, ids, "doc-2:g1:0")
	assert.Contains(t, ids, "doc-1:g1:1")
}

func TestSQLiteLexical_NoMatches(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "zymurgy", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteLexical_StopWordsOnlyQuery(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "the of a", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteLexical_UpsertReplacesContent(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	require.NoError(t, idx.Upsert(context.Background(), []*IndexDoc{
		{ChunkID: "doc-1:g1:0", DocumentID: "doc-1", Text: "Completely different fishing content."},
	}))

	results, err := idx.Search(context.Background(), "fishing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1:g1:0", results[0].ChunkID)

	// The old text is no longer findable under that id.
	results, err = idx.Search(context.Background(), "harvest", 10)
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(results), "doc-1:g1:0")
}

func TestSQLiteLexical_Delete(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	require.NoError(t, idx.Delete(context.Background(), []string{"doc-1:g1:0", "doc-1:g1:1"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-2:g1:0", "doc-2:g1:1"}, ids)
}

func TestSQLiteLexical_DeleteByDocument(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	require.NoError(t, idx.DeleteByDocument(context.Background(), "doc-2"))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1:g1:0", "doc-1:g1:1"}, ids)

	results, err := idx.Search(context.Background(), "waterfowl", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteLexical_Limit(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	results, err := idx.Search(context.Background(), "harvest reports limits", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLiteLexical_DeterministicTieBreak(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	// Identical content scores identically; order falls back to chunk id.
	require.NoError(t, idx.Upsert(context.Background(), []*IndexDoc{
		{ChunkID: "doc-1:g1:1", DocumentID: "doc-1", Text: "identical content here"},
		{ChunkID: "doc-1:g1:0", DocumentID: "doc-1", Text: "identical content here"},
	}))

	for i := 0; i < 5; i++ {
		results, err := idx.Search(context.Background(), "identical content", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "doc-1:g1:0", results[0].ChunkID)
		assert.Equal(t, "doc-1:g1:1", results[1].ChunkID)
	}
}

func TestSQLiteLexical_Stats(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))

	stats := idx.Stats()
	assert.Equal(t, 4, stats.ChunkCount)
}

func TestSQLiteLexical_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")

	idx, err := NewSQLiteLexicalIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))
	require.NoError(t, idx.Close())

	idx2, err := NewSQLiteLexicalIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(context.Background(), "harvest", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSQLiteLexical_CorruptFileRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database"), 0644))

	idx, err := NewSQLiteLexicalIndex(path, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Upsert(context.Background(), regulatoryDocs()))
	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestSQLiteLexical_CloseIdempotent(t *testing.T) {
	idx := newTestSQLiteLexical(t)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	err := idx.Upsert(context.Background(), regulatoryDocs())
	assert.Error(t, err)
}

func resultIDs(results []*LexicalResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}
