package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/marpdocs/marpsearch/internal/store"
)

// InconsistencyType categorizes a cross-store issue.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical is a lexical entry without chunk metadata.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector is a vector entry without chunk metadata.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical is a chunk record absent from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector is a chunk record absent from the vector store.
	InconsistencyMissingVector
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker validates that the metadata store, lexical index,
// and vector store agree on the chunk id set. A crash between the
// commit and delete phases of an indexing pass can leave orphans; the
// checker finds and repairs them.
type ConsistencyChecker struct {
	metadata store.MetadataStore
	lexical  store.LexicalIndex
	vector   store.VectorStore
}

// NewConsistencyChecker creates a checker over the three stores.
func NewConsistencyChecker(metadata store.MetadataStore, lexical store.LexicalIndex, vector store.VectorStore) *ConsistencyChecker {
	return &ConsistencyChecker{
		metadata: metadata,
		lexical:  lexical,
		vector:   vector,
	}
}

// Check scans all stores for disagreements. O(n) in total entries.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	// Metadata is the source of truth.
	docs, err := c.metadata.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	metadataIDs := make(map[string]bool)
	for _, doc := range docs {
		ids, err := c.metadata.GetChunkIDsByDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			metadataIDs[id] = true
		}
	}

	lexicalIDs, err := c.lexical.AllIDs()
	if err != nil {
		return nil, err
	}
	vectorIDs := c.vector.AllIDs()

	lexicalSet := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		lexicalSet[id] = true
		if !metadataIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanLexical, ChunkID: id})
		}
	}
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
		if !metadataIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id})
		}
	}

	for id := range metadataIDs {
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingLexical, ChunkID: id})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, ChunkID: id})
		}
	}

	return &CheckResult{
		Checked:         len(metadataIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphaned index entries. Missing entries are only
// logged; they need a re-index to restore.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphanLexical, orphanVector []string
	var missingCount int

	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanLexical:
			orphanLexical = append(orphanLexical, issue.ChunkID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		case InconsistencyMissingLexical, InconsistencyMissingVector:
			missingCount++
		}
	}

	if len(orphanLexical) > 0 {
		if err := c.lexical.Delete(ctx, orphanLexical); err != nil {
			slog.Warn("failed to delete orphan lexical entries",
				slog.Int("count", len(orphanLexical)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan lexical entries", slog.Int("count", len(orphanLexical)))
		}
	}

	if len(orphanVector) > 0 {
		if err := c.vector.Delete(ctx, orphanVector); err != nil {
			slog.Warn("failed to delete orphan vector entries",
				slog.Int("count", len(orphanVector)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan vector entries", slog.Int("count", len(orphanVector)))
		}
	}

	if missingCount > 0 {
		slog.Warn("index has missing entries, re-index the affected documents",
			slog.Int("missing_count", missingCount))
	}

	return nil
}

// QuickCheck compares only entry counts across the stores.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	metadataCount, err := c.metadata.CountChunks(ctx)
	if err != nil {
		return false, err
	}

	lexStats := c.lexical.Stats()
	vectorCount := c.vector.Count()

	consistent := metadataCount == lexStats.ChunkCount && metadataCount == vectorCount
	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("metadata", metadataCount),
			slog.Int("lexical", lexStats.ChunkCount),
			slog.Int("vector", vectorCount))
	}
	return consistent, nil
}
