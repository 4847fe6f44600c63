package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/chunk"
	"github.com/marpdocs/marpsearch/internal/embed"
	"github.com/marpdocs/marpsearch/internal/errors"
	"github.com/marpdocs/marpsearch/internal/store"
)

// failingEmbedder always fails, simulating an unavailable provider.
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.EmbeddingUnavailable("provider down", nil)
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.EmbeddingUnavailable("provider down", nil)
}

func (f *failingEmbedder) Dimensions() int                    { return 64 }
func (f *failingEmbedder) ModelName() string                  { return "failing" }
func (f *failingEmbedder) Available(ctx context.Context) bool { return false }
func (f *failingEmbedder) Close() error                       { return nil }

// slowLexical delays every search past any reasonable sub-search
// timeout.
type slowLexical struct {
	store.LexicalIndex
	delay time.Duration
}

func (s *slowLexical) Search(ctx context.Context, query string, limit int) ([]*store.LexicalResult, error) {
	time.Sleep(s.delay)
	return s.LexicalIndex.Search(ctx, query, limit)
}

type plannerFixture struct {
	lexical  store.LexicalIndex
	vector   *store.HNSWStore
	embedder embed.Embedder
	metadata *store.SQLiteMetadataStore
}

// newPlannerFixture builds in-memory components and indexes a small
// regulatory corpus through them.
func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	embedder := embed.NewStaticEmbedderWithDimensions(64)
	t.Cleanup(func() { _ = embedder.Close() })

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	metadata, err := store.NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	f := &plannerFixture{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
	}
	f.index(t, "marp-2024-001", "Harvest Reporting Handbook", []string{
		"Hunters must file harvest reports within thirty days of taking game.",
		"The late submission policy imposes a fine and suspends the license until the report is filed.",
	})
	f.index(t, "marp-2024-002", "Waterfowl Regulations", []string{
		"Daily bag limits for waterfowl are six ducks and two geese.",
		"Shooting hours run from one half hour before sunrise to sunset.",
	})
	return f
}

func (f *plannerFixture) index(t *testing.T, docID, title string, texts []string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.metadata.SaveDocument(ctx, &store.Document{
		ID:     docID,
		Title:  title,
		Status: store.StatusIndexed,
	}))

	var chunks []*chunk.Chunk
	var docs []*store.IndexDoc
	var records []*store.VectorRecord
	for i, text := range texts {
		id := chunk.ChunkID(docID, 1, i)
		chunks = append(chunks, &chunk.Chunk{
			ID: id, DocumentID: docID, Ordinal: i, Generation: 1, Page: i + 1, Text: text,
		})
		docs = append(docs, &store.IndexDoc{ChunkID: id, DocumentID: docID, Text: text})

		vec, err := f.embedder.Embed(ctx, text)
		require.NoError(t, err)
		records = append(records, &store.VectorRecord{ChunkID: id, DocumentID: docID, Vector: vec})
	}

	require.NoError(t, f.metadata.SaveChunks(ctx, chunks))
	require.NoError(t, f.lexical.Upsert(ctx, docs))
	require.NoError(t, f.vector.Upsert(ctx, records))
}

func (f *plannerFixture) planner(t *testing.T, opts ...PlannerOption) *Planner {
	t.Helper()
	p, err := NewPlanner(f.lexical, f.vector, f.embedder, f.metadata, DefaultPlannerConfig(), opts...)
	require.NoError(t, err)
	return p
}

func TestPlanner_HybridSearch(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	resp, err := p.Search(context.Background(), "late submission policy", Options{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)

	top := resp.Results[0]
	assert.Equal(t, "marp-2024-001:g1:1", top.ChunkID)
	assert.Equal(t, "marp-2024-001", top.DocumentID)
	assert.Equal(t, "Harvest Reporting Handbook", top.DocumentTitle)
	assert.Equal(t, 2, top.Page)
	assert.Contains(t, top.Text, "late submission")
	assert.Greater(t, top.CombinedScore, 0.0)
}

func TestPlanner_ResultsOrderedAndBounded(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	resp, err := p.Search(context.Background(), "hunters harvest waterfowl ducks", Options{TopK: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 2)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].CombinedScore, resp.Results[i].CombinedScore)
	}
}

func TestPlanner_EmptyQuery(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	_, err := p.Search(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
}

func TestPlanner_InvalidTopK(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	_, err := p.Search(context.Background(), "harvest", Options{TopK: -1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTopK, errors.GetCode(err))

	_, err = p.Search(context.Background(), "harvest", Options{TopK: 9999})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTopK, errors.GetCode(err))
}

func TestPlanner_InvalidMode(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	_, err := p.Search(context.Background(), "harvest", Options{Mode: "fuzzy"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestPlanner_LexicalMode(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	resp, err := p.Search(context.Background(), "bag limits", Options{TopK: 3, Mode: ModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	for _, r := range resp.Results {
		assert.Zero(t, r.SemanticScore)
	}
}

func TestPlanner_SemanticMode(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	resp, err := p.Search(context.Background(), "shooting hours sunrise", Options{TopK: 3, Mode: ModeSemantic})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Zero(t, r.LexicalScore)
	}
}

func TestPlanner_DocumentFilter(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)

	resp, err := p.Search(context.Background(), "hunters harvest waterfowl",
		Options{TopK: 5, DocumentID: "marp-2024-002"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Equal(t, "marp-2024-002", r.DocumentID)
	}
}

func TestPlanner_EmbeddingFailureDegradesToLexical(t *testing.T) {
	f := newPlannerFixture(t)
	p, err := NewPlanner(f.lexical, f.vector, &failingEmbedder{}, f.metadata, DefaultPlannerConfig())
	require.NoError(t, err)

	resp, err := p.Search(context.Background(), "harvest reports", Options{TopK: 3})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.DegradedReason, "embedding unavailable")
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Zero(t, r.SemanticScore)
	}
}

func TestPlanner_LexicalTimeoutDegrades(t *testing.T) {
	f := newPlannerFixture(t)

	cfg := DefaultPlannerConfig()
	cfg.SubSearchTimeout = 20 * time.Millisecond
	slow := &slowLexical{LexicalIndex: f.lexical, delay: 200 * time.Millisecond}
	p, err := NewPlanner(slow, f.vector, f.embedder, f.metadata, cfg)
	require.NoError(t, err)

	resp, err := p.Search(context.Background(), "harvest reports", Options{TopK: 3})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.DegradedReason, "lexical signal unavailable")
	// Semantic results still come through.
	assert.NotEmpty(t, resp.Results)
}

func TestPlanner_EmptyIndexes(t *testing.T) {
	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	embedder := embed.NewStaticEmbedderWithDimensions(64)

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(64))
	require.NoError(t, err)

	metadata, err := store.NewSQLiteMetadataStore("")
	require.NoError(t, err)
	defer func() { _ = metadata.Close() }()

	p, err := NewPlanner(lexical, vector, embedder, metadata, DefaultPlannerConfig())
	require.NoError(t, err)

	resp, err := p.Search(context.Background(), "anything", Options{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Degraded)
}

func TestPlanner_StaleChunksSkipped(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)
	ctx := context.Background()

	// Remove chunk metadata to simulate a lazily deleted generation
	// still present in a candidate set.
	require.NoError(t, f.metadata.DeleteChunksByDocument(ctx, "marp-2024-001"))

	resp, err := p.Search(ctx, "harvest reports late submission", Options{TopK: 5})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, "marp-2024-001", r.DocumentID)
	}
}

func TestPlanner_NilDependencies(t *testing.T) {
	f := newPlannerFixture(t)

	_, err := NewPlanner(nil, f.vector, f.embedder, f.metadata, DefaultPlannerConfig())
	assert.Error(t, err)
	_, err = NewPlanner(f.lexical, nil, f.embedder, f.metadata, DefaultPlannerConfig())
	assert.Error(t, err)
	_, err = NewPlanner(f.lexical, f.vector, nil, f.metadata, DefaultPlannerConfig())
	assert.Error(t, err)
	_, err = NewPlanner(f.lexical, f.vector, f.embedder, nil, DefaultPlannerConfig())
	assert.Error(t, err)
}

func TestPlanner_Stats(t *testing.T) {
	f := newPlannerFixture(t)
	p := f.planner(t)
	ctx := context.Background()

	require.NoError(t, f.metadata.SetState(ctx, store.StateKeyIndexDimension, "64"))
	require.NoError(t, f.metadata.SetState(ctx, store.StateKeyIndexModel, "static-64"))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.LexicalChunks)
	assert.Equal(t, 4, stats.VectorChunks)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 4, stats.Chunks)
	assert.Equal(t, 64, stats.Dimensions)
	assert.Equal(t, "static-64", stats.EmbeddingModel)
}
