// Package index drives the document indexing pipeline. The
// Coordinator consumes document-extracted notifications, runs each
// document through chunking, embedding, and a generation-based commit,
// and emits indexed confirmations.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/marpdocs/marpsearch/internal/chunk"
	"github.com/marpdocs/marpsearch/internal/embed"
	"github.com/marpdocs/marpsearch/internal/errors"
	"github.com/marpdocs/marpsearch/internal/event"
	"github.com/marpdocs/marpsearch/internal/store"
)

// CoordinatorConfig contains the Coordinator's dependencies and
// settings.
type CoordinatorConfig struct {
	// Lexical is the BM25 index.
	Lexical store.LexicalIndex

	// Vector is the semantic index.
	Vector store.VectorStore

	// Embedder produces chunk embeddings.
	Embedder embed.Embedder

	// Metadata is the durable document and chunk store.
	Metadata store.MetadataStore

	// Bus receives ChunksIndexed and IndexingFailed events. Optional.
	Bus event.Bus

	// Chunker splits extracted text. Defaults to chunk.NewChunker().
	Chunker *chunk.Chunker

	// IndexPath is reported in ChunksIndexed events.
	IndexPath string

	// Retry bounds retryable step failures. Zero value uses
	// errors.DefaultRetryConfig.
	Retry errors.RetryConfig
}

// Coordinator serializes indexing per document id. A notification for
// a document already being indexed is coalesced: the latest pending
// payload runs after the active pass finishes, never concurrently with
// it. Documents are isolated; one document's failure does not affect
// others, and queries proceed against the index throughout.
type Coordinator struct {
	config CoordinatorConfig

	mu      sync.Mutex
	active  map[string]bool
	pending map[string]*pendingJob
	closed  bool
	wg      sync.WaitGroup
}

type pendingJob struct {
	payload       *event.DocumentExtracted
	correlationID string
}

// NewCoordinator creates an indexing coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if config.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if config.Chunker == nil {
		config.Chunker = chunk.NewChunker()
	}
	if config.Retry.MaxRetries == 0 && config.Retry.InitialDelay == 0 {
		config.Retry = errors.DefaultRetryConfig()
	}

	return &Coordinator{
		config:  config,
		active:  make(map[string]bool),
		pending: make(map[string]*pendingJob),
	}, nil
}

// SubscribeTo wires the coordinator to a bus's DocumentExtracted
// stream.
func (c *Coordinator) SubscribeTo(bus event.Bus) {
	bus.Subscribe(event.TypeDocumentExtracted, func(ctx context.Context, env *event.Envelope) error {
		var payload event.DocumentExtracted
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		return c.HandleDocumentExtracted(ctx, &payload, env.EventID)
	})
}

// HandleDocumentExtracted schedules an indexing pass for the document,
// coalescing if one is already running. It returns once the pass is
// scheduled; the work itself runs on a background goroutine.
func (c *Coordinator) HandleDocumentExtracted(ctx context.Context, payload *event.DocumentExtracted, correlationID string) error {
	if payload.DocumentID == "" {
		return errors.InvalidInput("document id is empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("coordinator is closed")
	}

	if c.active[payload.DocumentID] {
		// Keep only the most recent notification; intermediate
		// versions are superseded anyway.
		c.pending[payload.DocumentID] = &pendingJob{payload: payload, correlationID: correlationID}
		slog.Debug("coalesced indexing notification",
			slog.String("document_id", payload.DocumentID))
		return nil
	}

	c.active[payload.DocumentID] = true
	c.wg.Add(1)
	go c.run(ctx, payload, correlationID)
	return nil
}

// IndexDocument runs one indexing pass synchronously. It serializes
// with background passes for the same document id.
func (c *Coordinator) IndexDocument(ctx context.Context, payload *event.DocumentExtracted) error {
	if payload.DocumentID == "" {
		return errors.InvalidInput("document id is empty", nil)
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return fmt.Errorf("coordinator is closed")
		}
		if !c.active[payload.DocumentID] {
			c.active[payload.DocumentID] = true
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	err := c.process(ctx, payload, "")
	c.finish(ctx, payload.DocumentID)
	return err
}

// Wait blocks until all scheduled passes have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops accepting new notifications and waits for in-flight
// passes.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) run(ctx context.Context, payload *event.DocumentExtracted, correlationID string) {
	defer c.wg.Done()

	if err := c.process(ctx, payload, correlationID); err != nil {
		slog.Error("indexing pass failed",
			slog.String("document_id", payload.DocumentID),
			slog.String("error", err.Error()))
	}
	c.finish(ctx, payload.DocumentID)
}

// finish releases the document slot, starting a coalesced pass if one
// arrived while this one ran.
func (c *Coordinator) finish(ctx context.Context, documentID string) {
	c.mu.Lock()
	next, ok := c.pending[documentID]
	if ok {
		delete(c.pending, documentID)
		if !c.closed {
			c.wg.Add(1)
			c.mu.Unlock()
			go c.run(ctx, next.payload, next.correlationID)
			return
		}
	}
	delete(c.active, documentID)
	c.mu.Unlock()
}

// process runs the state machine for one document:
// pending -> chunking -> embedding -> committing -> indexed, or failed
// from any non-terminal state.
func (c *Coordinator) process(ctx context.Context, payload *event.DocumentExtracted, correlationID string) error {
	docID := payload.DocumentID
	start := time.Now()

	doc, err := c.config.Metadata.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", docID, err)
	}

	// Idempotency: an unchanged, already indexed document is a no-op
	// apart from re-confirming the outcome.
	if doc != nil && doc.Status == store.StatusIndexed &&
		payload.ContentHash != "" && doc.ContentHash == payload.ContentHash {
		slog.Info("document unchanged, skipping re-index",
			slog.String("document_id", docID),
			slog.String("content_hash", payload.ContentHash))
		c.emitIndexed(ctx, doc, correlationID)
		return nil
	}

	if doc == nil {
		doc = &store.Document{
			ID:           docID,
			Status:       store.StatusPending,
			DiscoveredAt: time.Now().UTC(),
		}
	}
	if payload.Title != "" {
		doc.Title = payload.Title
	}
	if payload.SourceURL != "" {
		doc.SourceURL = payload.SourceURL
	}
	doc.ContentHash = payload.ContentHash
	doc.ExtractedAt = time.Now().UTC()
	doc.FailureReason = ""

	generation := doc.Generation + 1
	doc.Generation = generation

	text, err := c.resolveText(payload)
	if err != nil {
		return c.fail(ctx, doc, correlationID, err)
	}

	// chunking
	if err := c.transition(ctx, doc, store.StatusChunking); err != nil {
		return err
	}
	pages := chunk.PageMap(payload.PageOffsets)
	if len(pages) == 0 && text != "" {
		// Plain text extraction without page provenance: the whole
		// document counts as page 1.
		pages = chunk.PageMap{{Page: 1, Start: 0, End: len(text)}}
	}
	chunks, err := c.config.Chunker.Chunk(docID, generation, text, pages)
	if err != nil {
		return c.fail(ctx, doc, correlationID, err)
	}
	doc.PageCount = len(pages)

	// embedding
	if err := c.transition(ctx, doc, store.StatusEmbedding); err != nil {
		return err
	}
	vectors, err := c.embedChunks(ctx, chunks)
	if err != nil {
		return c.fail(ctx, doc, correlationID, err)
	}

	// committing
	if err := c.transition(ctx, doc, store.StatusCommitting); err != nil {
		return err
	}
	if err := c.commit(ctx, doc, chunks, vectors); err != nil {
		return c.fail(ctx, doc, correlationID, err)
	}

	// indexed
	doc.Status = store.StatusIndexed
	doc.ChunkCount = len(chunks)
	doc.EmbeddingModel = c.config.Embedder.ModelName()
	doc.IndexedAt = time.Now().UTC()
	if err := c.config.Metadata.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to record indexed state for %s: %w", docID, err)
	}

	slog.Info("document indexed",
		slog.String("document_id", docID),
		slog.Uint64("generation", generation),
		slog.Int("chunks", len(chunks)),
		slog.Duration("took", time.Since(start)))

	c.emitIndexed(ctx, doc, correlationID)
	return nil
}

func (c *Coordinator) resolveText(payload *event.DocumentExtracted) (string, error) {
	if payload.Text != "" {
		return payload.Text, nil
	}
	if payload.TextPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(payload.TextPath)
	if err != nil {
		return "", errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("extracted text file %s is unreadable", payload.TextPath), err)
	}
	return string(data), nil
}

func (c *Coordinator) transition(ctx context.Context, doc *store.Document, status store.DocumentStatus) error {
	doc.Status = status
	if err := c.config.Metadata.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to record %s state for %s: %w", status, doc.ID, err)
	}
	slog.Debug("indexing state transition",
		slog.String("document_id", doc.ID),
		slog.String("status", string(status)))
	return nil
}

// embedChunks batch-embeds all chunk texts in one provider call per
// batch, retrying on provider failures.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []*chunk.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	var vectors [][]float32
	err := errors.Retry(ctx, c.config.Retry, func() error {
		var embedErr error
		vectors, embedErr = c.config.Embedder.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}
	return vectors, nil
}

// commit upserts the new generation into both indexes, then deletes
// superseded generations. New chunks go in before old ones come out,
// so a document never has zero searchable chunks during a re-index. A
// crash between the two phases leaves both generations present, which
// the next successful pass cleans up.
func (c *Coordinator) commit(ctx context.Context, doc *store.Document, chunks []*chunk.Chunk, vectors [][]float32) error {
	docs := make([]*store.IndexDoc, len(chunks))
	records := make([]*store.VectorRecord, len(chunks))
	for i, ch := range chunks {
		docs[i] = &store.IndexDoc{ChunkID: ch.ID, DocumentID: ch.DocumentID, Text: ch.Text}
		records[i] = &store.VectorRecord{ChunkID: ch.ID, DocumentID: ch.DocumentID, Vector: vectors[i]}
	}

	err := errors.Retry(ctx, c.config.Retry, func() error {
		if err := c.config.Metadata.SaveChunks(ctx, chunks); err != nil {
			return errors.New(errors.ErrCodeIndexWrite, "failed to save chunk records", err)
		}
		if len(docs) > 0 {
			if err := c.config.Lexical.Upsert(ctx, docs); err != nil {
				return errors.New(errors.ErrCodeIndexWrite, "failed to upsert lexical index", err)
			}
			if err := c.config.Vector.Upsert(ctx, records); err != nil {
				return errors.New(errors.ErrCodeIndexWrite, "failed to upsert vector store", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Record what the index was built with.
	_ = c.config.Metadata.SetState(ctx, store.StateKeyIndexModel, c.config.Embedder.ModelName())
	_ = c.config.Metadata.SetState(ctx, store.StateKeyIndexDimension,
		fmt.Sprintf("%d", c.config.Embedder.Dimensions()))

	// Delete-after-commit of superseded generations.
	stale, err := c.config.Metadata.GetChunkIDsBelowGeneration(ctx, doc.ID, doc.Generation)
	if err != nil {
		return fmt.Errorf("failed to list stale chunks for %s: %w", doc.ID, err)
	}
	if len(stale) == 0 {
		return nil
	}

	if err := c.config.Lexical.Delete(ctx, stale); err != nil {
		return errors.New(errors.ErrCodeIndexWrite, "failed to delete stale lexical entries", err)
	}
	if err := c.config.Vector.Delete(ctx, stale); err != nil {
		return errors.New(errors.ErrCodeIndexWrite, "failed to delete stale vectors", err)
	}
	if err := c.config.Metadata.DeleteChunks(ctx, stale); err != nil {
		return fmt.Errorf("failed to delete stale chunk records: %w", err)
	}

	slog.Debug("removed superseded generations",
		slog.String("document_id", doc.ID),
		slog.Int("stale_chunks", len(stale)))
	return nil
}

// fail records the failed state and emits an IndexingFailed event.
func (c *Coordinator) fail(ctx context.Context, doc *store.Document, correlationID string, cause error) error {
	doc.Status = store.StatusFailed
	doc.FailureReason = cause.Error()
	if saveErr := c.config.Metadata.SaveDocument(ctx, doc); saveErr != nil {
		slog.Error("failed to record failed state",
			slog.String("document_id", doc.ID),
			slog.String("error", saveErr.Error()))
	}

	retryable := errors.IsRetryable(cause)
	slog.Warn("indexing pass failed",
		slog.String("document_id", doc.ID),
		slog.Bool("retryable", retryable),
		slog.String("error", cause.Error()))

	c.publish(ctx, event.TypeIndexingFailed, correlationID, event.IndexingFailed{
		DocumentID: doc.ID,
		Reason:     cause.Error(),
		Retryable:  retryable,
	})
	return cause
}

func (c *Coordinator) emitIndexed(ctx context.Context, doc *store.Document, correlationID string) {
	c.publish(ctx, event.TypeChunksIndexed, correlationID, event.ChunksIndexed{
		DocumentID:     doc.ID,
		ChunkCount:     doc.ChunkCount,
		EmbeddingModel: doc.EmbeddingModel,
		IndexPath:      c.config.IndexPath,
	})
}

func (c *Coordinator) publish(ctx context.Context, eventType, correlationID string, payload any) {
	if c.config.Bus == nil {
		return
	}
	env, err := event.NewEnvelope(eventType, correlationID, payload)
	if err != nil {
		slog.Error("failed to build event envelope",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	if err := c.config.Bus.Publish(ctx, env); err != nil {
		slog.Error("failed to publish event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}
