// Package search provides the hybrid query planner combining lexical
// BM25 and semantic vector search. Scores are min-max normalized within
// each candidate set and fused with a weighted sum.
package search

import (
	"time"
)

// Mode selects which retrieval signals a query uses.
type Mode string

const (
	// ModeHybrid runs lexical and semantic searches concurrently and
	// fuses their scores (default).
	ModeHybrid Mode = "hybrid"

	// ModeLexical runs BM25 only; the semantic index is not touched.
	ModeLexical Mode = "lexical"

	// ModeSemantic runs vector search only; the lexical index is not
	// touched.
	ModeSemantic Mode = "semantic"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	switch m {
	case ModeHybrid, ModeLexical, ModeSemantic:
		return true
	}
	return false
}

// Weights configures the relative importance of the two signals.
// They must each lie in [0, 1] and sum to 1.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights returns equal weighting.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Semantic: 0.5}
}

// Options configures a single query.
type Options struct {
	// TopK is the number of results to return. Zero uses the planner's
	// configured default.
	TopK int

	// Mode selects the retrieval signals. Empty means hybrid.
	Mode Mode

	// Weights overrides the configured fusion weights.
	Weights *Weights

	// DocumentID restricts results to chunks of one document.
	// Empty means no filter.
	DocumentID string
}

// ResultItem is a single ranked search hit with document provenance.
type ResultItem struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Page       int    `json:"page"`
	Ordinal    int    `json:"ordinal"`

	// Document metadata attached after ranking.
	DocumentTitle string `json:"document_title,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`

	// CombinedScore is the fused score used for ranking.
	CombinedScore float64 `json:"combined_score"`

	// LexicalScore and SemanticScore are the min-max normalized
	// per-signal scores; zero when the chunk was absent from that
	// candidate set.
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`

	// RawLexical and RawSemantic preserve the pre-normalization scores.
	RawLexical  float64 `json:"raw_lexical"`
	RawSemantic float64 `json:"raw_semantic"`

	// MatchedTerms contains the lexical query terms that matched.
	MatchedTerms []string `json:"matched_terms,omitempty"`

	// InBothSets indicates the chunk surfaced in both candidate sets.
	InBothSets bool `json:"in_both_sets"`
}

// Response is the outcome of one query.
type Response struct {
	Results []*ResultItem `json:"results"`

	// Degraded is true when a signal was skipped or timed out and the
	// results are best-effort rather than the full hybrid ranking.
	Degraded bool `json:"degraded"`

	// DegradedReason explains the degradation when Degraded is true.
	DegradedReason string `json:"degraded_reason,omitempty"`

	// Took is the total query latency.
	Took time.Duration `json:"took"`
}

// PlannerConfig configures the query planner.
type PlannerConfig struct {
	// Weights are the default fusion weights.
	Weights Weights

	// CandidateMultiplier scales top_k into the per-signal candidate
	// request so fusion does not starve either signal (default: 3).
	CandidateMultiplier int

	// DefaultTopK is used when Options.TopK is zero (default: 5).
	DefaultTopK int

	// MaxTopK bounds Options.TopK (default: 100).
	MaxTopK int

	// SubSearchTimeout bounds each signal's search. A timed-out signal
	// contributes an empty candidate set (default: 2s).
	SubSearchTimeout time.Duration
}

// DefaultPlannerConfig returns production defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Weights:             DefaultWeights(),
		CandidateMultiplier: 3,
		DefaultTopK:         5,
		MaxTopK:             100,
		SubSearchTimeout:    2 * time.Second,
	}
}

// Stats summarizes planner index state.
type Stats struct {
	LexicalChunks  int    `json:"lexical_chunks"`
	VectorChunks   int    `json:"vector_chunks"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
}
