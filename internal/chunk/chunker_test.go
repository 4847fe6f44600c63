package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/errors"
)

// words builds a single-paragraph text of n distinct tokens.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func singlePage(text string) PageMap {
	return PageMap{{Page: 1, Start: 0, End: len(text)}}
}

func TestChunk_EmptyText(t *testing.T) {
	c := NewChunker()

	chunks, err := c.Chunk("doc-1", 1, "", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.Chunk("doc-1", 1, "   \n\n  ", PageMap{{Page: 1, Start: 0, End: 7}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c := NewChunker()
	text := words(100)

	chunks, err := c.Chunk("doc-1", 1, text, singlePage(text))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	got := chunks[0]
	assert.Equal(t, "doc-1:g1:0", got.ID)
	assert.Equal(t, text, got.Text)
	assert.Equal(t, 100, got.TokenCount)
	assert.Equal(t, 0, got.Overlap)
	assert.Equal(t, 1, got.Page)
}

func TestChunk_ThousandTokensYieldsThreeChunks(t *testing.T) {
	c := NewChunkerWithOptions(Options{MaxTokens: 450, OverlapTokens: 50})
	text := words(1000)

	chunks, err := c.Chunk("doc-1", 1, text, singlePage(text))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 450, "chunk %d over budget", ch.Ordinal)
	}
	assert.Equal(t, 450, chunks[0].TokenCount)
	assert.Equal(t, 450, chunks[1].TokenCount)
	assert.Equal(t, 200, chunks[2].TokenCount)

	// Chunk 2 begins with the final 50 tokens of chunk 1.
	assert.Equal(t, 50, chunks[1].Overlap)
	tail := strings.Join(strings.Fields(chunks[0].Text)[400:], " ")
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail))
}

func TestChunk_RoundTrip(t *testing.T) {
	c := NewChunkerWithOptions(Options{MaxTokens: 40, OverlapTokens: 8})

	paragraphs := []string{
		words(25),
		"short paragraph here",
		words(90),
		"final remarks apply to every filing",
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks, err := c.Chunk("doc-1", 3, text, singlePage(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	got, err := Reassemble(chunks)
	require.NoError(t, err)
	assert.Equal(t, text, got)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, ChunkID("doc-1", 3, i), ch.ID)
		assert.LessOrEqual(t, ch.TokenCount, 40)
		if i > 0 {
			assert.Equal(t, 8, ch.Overlap)
		}
	}
}

func TestChunk_RespectsParagraphBoundaries(t *testing.T) {
	c := NewChunkerWithOptions(Options{MaxTokens: 30, OverlapTokens: 5})

	// Three 12-token paragraphs: two fit in a 30-token chunk, the
	// third must open a new one.
	text := words(12) + "\n\n" + words(12) + "\n\n" + words(12)

	chunks, err := c.Chunk("doc-1", 1, text, singlePage(text))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 24, chunks[0].TokenCount)
	assert.Equal(t, 17, chunks[1].TokenCount) // 5 overlap + 12 new
}

func TestChunk_PageProvenance(t *testing.T) {
	c := NewChunkerWithOptions(Options{MaxTokens: 20, OverlapTokens: 4})

	page1 := words(18)
	page2 := words(14)
	text := page1 + "\n\n" + page2
	pages := PageMap{
		{Page: 1, Start: 0, End: len(page1) + 2},
		{Page: 2, Start: len(page1) + 2, End: len(text)},
	}

	chunks, err := c.Chunk("doc-1", 1, text, pages)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	// Chunk 2 starts inside page 1 because of the overlap prefix.
	assert.Equal(t, 1, chunks[1].Page)
}

func TestChunk_InvalidPageMap(t *testing.T) {
	c := NewChunker()
	text := words(10)

	tests := []struct {
		name  string
		pages PageMap
	}{
		{"empty map for non-empty text", nil},
		{"offset beyond text length", PageMap{{Page: 1, Start: 0, End: len(text) + 5}}},
		{"does not start at zero", PageMap{{Page: 1, Start: 3, End: len(text)}}},
		{"gap between spans", PageMap{
			{Page: 1, Start: 0, End: 5},
			{Page: 2, Start: 9, End: len(text)},
		}},
		{"short coverage", PageMap{{Page: 1, Start: 0, End: len(text) - 4}}},
		{"non-positive page", PageMap{{Page: 0, Start: 0, End: len(text)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chunk("doc-1", 1, text, tt.pages)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidPageMap, errors.GetCode(err))
		})
	}
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c := NewChunker()
	text := words(600)

	first, err := c.Chunk("doc-1", 2, text, singlePage(text))
	require.NoError(t, err)
	second, err := c.Chunk("doc-1", 2, text, singlePage(text))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 0, CountTokens("  \n\t "))
	assert.Equal(t, 3, CountTokens("late submission policy"))
	assert.Equal(t, 4, CountTokens("spread\nacross\n\nseveral lines"))
}

func TestSplitPageMarkers(t *testing.T) {
	raw := "--- page 1 ---\nFiling deadlines apply.\n--- page 2 ---\nLate submissions incur penalties."

	text, pages := SplitPageMarkers(raw)
	assert.Equal(t, "Filing deadlines apply.\n\nLate submissions incur penalties.", text)
	require.Len(t, pages, 2)
	require.NoError(t, pages.Validate(len(text)))
	assert.Equal(t, 1, pages.PageFor(0))
	assert.Equal(t, 2, pages.PageFor(strings.Index(text, "Late")))
}

func TestSplitPageMarkers_NoMarkers(t *testing.T) {
	text, pages := SplitPageMarkers("plain text without delimiters")
	assert.Equal(t, "plain text without delimiters", text)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Page)
}

func TestSplitPageMarkers_SkipsEmptyPages(t *testing.T) {
	raw := "--- page 1 ---\nContent here.\n--- page 2 ---\n\n--- page 3 ---\nMore content."

	text, pages := SplitPageMarkers(raw)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Page)
	assert.Equal(t, 3, pages[1].Page)
	require.NoError(t, pages.Validate(len(text)))
}
