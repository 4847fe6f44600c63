package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marpdocs/marpsearch/internal/embed"
	"github.com/marpdocs/marpsearch/internal/errors"
	"github.com/marpdocs/marpsearch/internal/store"
	"github.com/marpdocs/marpsearch/internal/telemetry"
)

// Planner executes hybrid queries against the lexical and semantic
// indexes. It is safe for concurrent use; queries are read-only and
// never block indexing.
type Planner struct {
	lexical  store.LexicalIndex
	vector   store.VectorStore
	embedder embed.Embedder
	metadata store.MetadataStore
	config   PlannerConfig
	metrics  *telemetry.QueryMetrics
}

// PlannerOption configures optional planner behavior.
type PlannerOption func(*Planner)

// WithMetrics attaches a query telemetry collector. When set, query
// mode, latency, and zero-result queries are tracked.
func WithMetrics(m *telemetry.QueryMetrics) PlannerOption {
	return func(p *Planner) {
		p.metrics = m
	}
}

// NewPlanner creates a query planner. All four dependencies are
// required.
func NewPlanner(
	lexical store.LexicalIndex,
	vector store.VectorStore,
	embedder embed.Embedder,
	metadata store.MetadataStore,
	config PlannerConfig,
	opts ...PlannerOption,
) (*Planner, error) {
	if lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}

	if config.CandidateMultiplier <= 0 {
		config.CandidateMultiplier = 3
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 5
	}
	if config.MaxTopK <= 0 {
		config.MaxTopK = 100
	}
	if config.SubSearchTimeout <= 0 {
		config.SubSearchTimeout = 2 * time.Second
	}
	if config.Weights.Lexical == 0 && config.Weights.Semantic == 0 {
		config.Weights = DefaultWeights()
	}

	p := &Planner{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		config:   config,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Search runs a query and returns ranked, metadata-enriched results.
//
// The lexical and semantic sub-searches run concurrently, each bounded
// by the configured sub-search timeout. A timed-out or failed signal
// contributes an empty candidate set and marks the response degraded;
// an embedding failure degrades to lexical-only instead of failing the
// query. Only a failure of every usable signal is an error.
func (p *Planner) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query text is empty", nil)
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if !mode.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown search mode %q", mode), nil)
	}

	topK := opts.TopK
	if topK == 0 {
		topK = p.config.DefaultTopK
	}
	if topK < 0 || topK > p.config.MaxTopK {
		return nil, errors.New(errors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be between 1 and %d, got %d", p.config.MaxTopK, opts.TopK), nil)
	}

	weights := p.config.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	switch mode {
	case ModeLexical:
		weights = Weights{Lexical: 1.0}
	case ModeSemantic:
		weights = Weights{Semantic: 1.0}
	}

	limit := topK * p.config.CandidateMultiplier

	resp := &Response{Results: []*ResultItem{}}

	// Embed once before fanning out. A provider failure downgrades the
	// query to lexical-only rather than failing it.
	var queryVector []float32
	useSemantic := mode != ModeLexical
	useLexical := mode != ModeSemantic
	if useSemantic {
		embedCtx, cancel := context.WithTimeout(ctx, p.config.SubSearchTimeout)
		vec, err := p.embedder.Embed(embedCtx, query)
		cancel()
		if err != nil {
			slog.Warn("query embedding failed, degrading to lexical-only",
				slog.String("error", err.Error()))
			resp.Degraded = true
			resp.DegradedReason = "embedding unavailable"
			useSemantic = false
			useLexical = true
			weights = Weights{Lexical: 1.0}
		} else {
			queryVector = vec
		}
	}

	var (
		lexResults []*store.LexicalResult
		semResults []*store.VectorResult
		lexErr     error
		semErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	if useLexical {
		g.Go(func() error {
			lexResults, lexErr = p.lexicalSearch(gctx, query, limit)
			return nil
		})
	}
	if useSemantic {
		g.Go(func() error {
			semResults, semErr = p.semanticSearch(gctx, queryVector, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if lexErr != nil {
		slog.Warn("lexical sub-search degraded",
			slog.String("query", query), slog.String("error", lexErr.Error()))
		resp.Degraded = true
		resp.DegradedReason = appendReason(resp.DegradedReason, "lexical signal unavailable")
		lexResults = nil
	}
	if semErr != nil {
		slog.Warn("semantic sub-search degraded",
			slog.String("query", query), slog.String("error", semErr.Error()))
		resp.Degraded = true
		resp.DegradedReason = appendReason(resp.DegradedReason, "semantic signal unavailable")
		semResults = nil
	}

	// All usable signals failing is a real error, not degradation.
	usable := 0
	failed := 0
	if useLexical {
		usable++
		if lexErr != nil {
			failed++
		}
	}
	if useSemantic {
		usable++
		if semErr != nil {
			failed++
		}
	}
	if usable > 0 && usable == failed {
		return nil, errors.New(errors.ErrCodeSearchFailed, "all search signals failed", lexErr)
	}

	fused := fuse(lexResults, semResults, weights)

	results, err := p.enrich(ctx, fused, topK, opts.DocumentID)
	if err != nil {
		return nil, err
	}
	resp.Results = results
	resp.Took = time.Since(start)

	p.recordMetrics(query, mode, len(results), resp.Degraded, resp.Took)

	return resp, nil
}

// lexicalSearch bounds the BM25 search with the sub-search timeout.
// The index API is synchronous, so a timed-out search is abandoned
// rather than cancelled.
func (p *Planner) lexicalSearch(ctx context.Context, query string, limit int) ([]*store.LexicalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.SubSearchTimeout)
	defer cancel()

	type outcome struct {
		results []*store.LexicalResult
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := p.lexical.Search(ctx, query, limit)
		ch <- outcome{results, err}
	}()

	select {
	case o := <-ch:
		return o.results, o.err
	case <-ctx.Done():
		return nil, errors.New(errors.ErrCodeQueryTimeout, "lexical search timed out", ctx.Err())
	}
}

func (p *Planner) semanticSearch(ctx context.Context, vector []float32, limit int) ([]*store.VectorResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.SubSearchTimeout)
	defer cancel()

	type outcome struct {
		results []*store.VectorResult
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := p.vector.Search(ctx, vector, limit)
		ch <- outcome{results, err}
	}()

	select {
	case o := <-ch:
		return o.results, o.err
	case <-ctx.Done():
		return nil, errors.New(errors.ErrCodeQueryTimeout, "semantic search timed out", ctx.Err())
	}
}

// enrich resolves fused candidates against the metadata store, applies
// the optional document filter, truncates to topK, and attaches
// document provenance. Candidates whose chunk records are gone, for
// example lazily deleted stale generations, are skipped.
func (p *Planner) enrich(ctx context.Context, fused []*fusedCandidate, topK int, documentID string) ([]*ResultItem, error) {
	if len(fused) == 0 {
		return []*ResultItem{}, nil
	}

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}
	chunks, err := p.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to enrich results: %w", err)
	}
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}

	results := make([]*ResultItem, 0, topK)
	docTitles := make(map[string]*store.Document)
	for _, c := range fused {
		if len(results) >= topK {
			break
		}
		idx, ok := byID[c.ChunkID]
		if !ok {
			continue
		}
		ch := chunks[idx]
		if documentID != "" && ch.DocumentID != documentID {
			continue
		}

		item := &ResultItem{
			ChunkID:       c.ChunkID,
			DocumentID:    ch.DocumentID,
			Text:          ch.Text,
			Page:          ch.Page,
			Ordinal:       ch.Ordinal,
			CombinedScore: c.Combined,
			LexicalScore:  c.NormLexical,
			SemanticScore: c.NormSemantic,
			RawLexical:    c.RawLexical,
			RawSemantic:   c.RawSemantic,
			MatchedTerms:  c.MatchedTerms,
			InBothSets:    c.InLexical && c.InSemantic,
		}

		doc, ok := docTitles[ch.DocumentID]
		if !ok {
			doc, err = p.metadata.GetDocument(ctx, ch.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up document %s: %w", ch.DocumentID, err)
			}
			docTitles[ch.DocumentID] = doc
		}
		if doc != nil {
			item.DocumentTitle = doc.Title
			item.SourceURL = doc.SourceURL
		}

		results = append(results, item)
	}
	return results, nil
}

// Stats reports index sizes and embedding configuration.
func (p *Planner) Stats(ctx context.Context) (*Stats, error) {
	lexStats := p.lexical.Stats()

	docs, err := p.metadata.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	chunkCount, err := p.metadata.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	stats := &Stats{
		LexicalChunks:  lexStats.ChunkCount,
		VectorChunks:   p.vector.Count(),
		Documents:      len(docs),
		Chunks:         chunkCount,
		EmbeddingModel: p.embedder.ModelName(),
		Dimensions:     p.embedder.Dimensions(),
	}

	// Indexed dimension may differ from the live embedder after a
	// provider change; prefer what the index was built with.
	if dim, err := p.metadata.GetState(ctx, store.StateKeyIndexDimension); err == nil && dim != "" {
		if n, convErr := strconv.Atoi(dim); convErr == nil {
			stats.Dimensions = n
		}
	}
	if model, err := p.metadata.GetState(ctx, store.StateKeyIndexModel); err == nil && model != "" {
		stats.EmbeddingModel = model
	}

	return stats, nil
}

func (p *Planner) recordMetrics(query string, mode Mode, resultCount int, degraded bool, latency time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        telemetry.QueryMode(mode),
		ResultCount: resultCount,
		Degraded:    degraded,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

func appendReason(existing, reason string) string {
	if existing == "" {
		return reason
	}
	return existing + "; " + reason
}
