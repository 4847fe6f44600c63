// Package event defines the JSON event contracts exchanged with
// upstream and downstream collaborators, plus an in-process bus for
// wiring them together.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marpdocs/marpsearch/internal/chunk"
)

// Event type identifiers.
const (
	TypeDocumentExtracted  = "document.extracted"
	TypeChunksIndexed      = "chunks.indexed"
	TypeIndexingFailed     = "indexing.failed"
	TypeRetrievalCompleted = "retrieval.completed"
)

// SchemaVersion is the envelope version emitted by this process.
const SchemaVersion = "1.0"

// Source identifies this service in emitted envelopes.
const Source = "marpsearch"

// Envelope wraps every event with routing and tracing metadata.
type Envelope struct {
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Source        string          `json:"source"`
	Version       string          `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload, assigning a fresh event id and
// timestamp. The correlation id carries the originating event's id
// through a processing chain; pass "" to start a new chain.
func NewEnvelope(eventType string, correlationID string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		EventType:     eventType,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Source:        Source,
		Version:       SchemaVersion,
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// DocumentExtracted is consumed from the extraction collaborator and
// triggers an indexing pass. Exactly one of Text or TextPath is set;
// TextPath points at a file holding the extracted text.
type DocumentExtracted struct {
	DocumentID  string           `json:"document_id"`
	Text        string           `json:"text,omitempty"`
	TextPath    string           `json:"text_path,omitempty"`
	PageOffsets []chunk.PageSpan `json:"page_offsets"`
	ContentHash string           `json:"content_hash"`
	Title       string           `json:"title,omitempty"`
	SourceURL   string           `json:"source_url,omitempty"`
}

// ChunksIndexed confirms a completed indexing pass.
type ChunksIndexed struct {
	DocumentID     string `json:"document_id"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	IndexPath      string `json:"index_path"`
}

// IndexingFailed reports a document whose indexing pass ended in the
// failed state.
type IndexingFailed struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
	Retryable  bool   `json:"retryable"`
}

// RetrievalResult is one ranked hit inside a RetrievalCompleted event.
type RetrievalResult struct {
	DocumentID    string  `json:"document_id"`
	ChunkID       string  `json:"chunk_id"`
	Page          int     `json:"page"`
	Title         string  `json:"title,omitempty"`
	URL           string  `json:"url,omitempty"`
	SemanticScore float64 `json:"semantic_score"`
	LexicalScore  float64 `json:"lexical_score"`
	CombinedScore float64 `json:"combined_score"`
}

// RetrievalCompleted reports a finished query for downstream answer
// assembly.
type RetrievalCompleted struct {
	QueryID         string            `json:"query_id"`
	QueryText       string            `json:"query_text"`
	Mode            string            `json:"mode"`
	TopK            int               `json:"top_k"`
	Results         []RetrievalResult `json:"results"`
	Degraded        bool              `json:"degraded"`
	RetrievalTimeMS int64             `json:"retrieval_time_ms"`
}
