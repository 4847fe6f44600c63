// Package store provides the persistence layer for indexed data:
// lexical postings (SQLite FTS5 or Bleve), the vector store (HNSW),
// and document/chunk metadata (SQLite).
package store

import (
	"context"
	"time"

	"github.com/marpdocs/marpsearch/internal/chunk"
)

// DocumentStatus tracks a document through the indexing state machine.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusChunking   DocumentStatus = "chunking"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusCommitting DocumentStatus = "committing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// State keys for the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension the index
	// was built with, used to reject incompatible embedders.
	StateKeyIndexDimension = "index_embedding_dimension"

	// StateKeyIndexModel stores the embedding model name.
	StateKeyIndexModel = "index_embedding_model"
)

// Document is a reference to an upstream extracted document. The core
// never owns document content, only its indexing state.
type Document struct {
	ID             string
	Title          string
	SourceURL      string
	PageCount      int
	ContentHash    string // SHA256 of extracted text, for idempotency checks
	Generation     uint64 // Increments on each content change
	Status         DocumentStatus
	ChunkCount     int
	FailureReason  string
	EmbeddingModel string
	DiscoveredAt   time.Time
	ExtractedAt    time.Time
	IndexedAt      time.Time
}

// IndexDoc is a chunk prepared for lexical indexing.
type IndexDoc struct {
	ChunkID    string
	DocumentID string
	Text       string
}

// LexicalResult is a single lexical search hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64 // BM25 score, higher is better
	MatchedTerms []string
}

// LexicalStats provides statistics about the lexical index.
type LexicalStats struct {
	ChunkCount int
}

// LexicalIndex provides keyword search using BM25 ranking.
// Implementations must return results ordered by score descending with
// ties broken by chunk id ascending, and an empty slice (not an error)
// when nothing matches.
type LexicalIndex interface {
	// Upsert adds or replaces chunks in the index.
	Upsert(ctx context.Context, docs []*IndexDoc) error

	// Delete removes chunks by id. Missing ids are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	// DeleteByDocument removes every chunk belonging to a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search returns chunks matching the query, scored by BM25.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// AllIDs returns all chunk ids in the index.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	// Flush forces pending writes to durable storage.
	Flush() error

	Close() error
}

// LexicalConfig configures BM25 ranking and text analysis.
type LexicalConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64

	// StopWords are filtered during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultLexicalConfig returns conventional BM25 defaults.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultEnglishStopWords,
		MinTokenLength: 2,
	}
}

// DefaultEnglishStopWords contains function words common to regulatory
// prose. Filtering them keeps postings focused on content terms.
var DefaultEnglishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"to", "was", "will", "with",
}

// VectorRecord is a chunk embedding prepared for the vector store.
type VectorRecord struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ChunkID    string
	Distance   float32 // Cosine distance, 0 (identical) to 2 (opposite)
	Similarity float32 // Cosine similarity, -1 to 1, higher is better
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
// An upsert is visible atomically per chunk: concurrent readers see
// either the old vector or the new one, never a partial write.
type VectorStore interface {
	// Upsert inserts vectors. Existing chunk ids are replaced.
	Upsert(ctx context.Context, records []*VectorRecord) error

	// Delete removes vectors by chunk id. Missing ids are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	// DeleteByDocument removes every vector belonging to a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search finds the k nearest neighbors of the query vector,
	// ordered by similarity descending with ties broken by chunk id
	// ascending.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// AllIDs returns all chunk ids in the store.
	AllIDs() []string

	// Contains reports whether a chunk id exists.
	Contains(chunkID string) bool

	// Count returns the number of vectors.
	Count() int

	// Save persists the store to disk atomically.
	Save(path string) error

	// Load restores the store from disk.
	Load(path string) error

	Close() error
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension (384 for all-MiniLM-L6-v2).
	Dimensions int

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the HNSW query-time search width (default: 64).
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// MetadataStore persists document and chunk metadata.
type MetadataStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error
	GetChunk(ctx context.Context, id string) (*chunk.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)
	GetChunkIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	GetChunkIDsBelowGeneration(ctx context.Context, documentID string, generation uint64) ([]string, error)
	DeleteChunks(ctx context.Context, ids []string) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}
