package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marpdocs/marpsearch/internal/chunk"
	"github.com/marpdocs/marpsearch/internal/event"
	"github.com/marpdocs/marpsearch/internal/output"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	id      string
	title   string
	url     string
	asJSON  bool
	offline bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Index one extracted document",
		Long: `Index an extracted regulatory document.

The file is either plain extracted text, optionally delimited with
'--- page N ---' markers for page provenance, or (with --json) a
document.extracted event payload.

Examples:
  marpsearch index harvest-handbook.txt --id marp-2024-001 --title "Harvest Reporting Handbook"
  marpsearch index extracted.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Document id (default: file name without extension)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title")
	cmd.Flags().StringVar(&opts.url, "url", "", "Source URL of the original PDF")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Treat the file as a document.extracted JSON payload")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no embedding service required)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	payload, err := loadExtractedDocument(path, opts)
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, engineOptions{lock: true, offline: opts.offline})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	start := time.Now()
	if err := eng.coord.IndexDocument(ctx, payload); err != nil {
		return err
	}
	eng.markDirty()

	doc, err := eng.metadata.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return err
	}
	out.Successf("Indexed %s: %d chunks over %d pages in %s (model: %s)",
		doc.ID, doc.ChunkCount, doc.PageCount,
		time.Since(start).Round(time.Millisecond), doc.EmbeddingModel)
	return nil
}

// loadExtractedDocument builds a document.extracted payload from a
// file: either the payload itself as JSON, or raw extracted text whose
// page map is derived from page markers.
func loadExtractedDocument(path string, opts indexOptions) (*event.DocumentExtracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if opts.asJSON {
		var payload event.DocumentExtracted
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse %s as a document.extracted payload: %w", path, err)
		}
		if payload.DocumentID == "" {
			return nil, fmt.Errorf("%s has no document_id", path)
		}
		return &payload, nil
	}

	text, pages := chunk.SplitPageMarkers(string(data))

	id := opts.id
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	hash := sha256.Sum256([]byte(text))
	return &event.DocumentExtracted{
		DocumentID:  id,
		Text:        text,
		PageOffsets: pages,
		ContentHash: hex.EncodeToString(hash[:]),
		Title:       opts.title,
		SourceURL:   opts.url,
	}, nil
}
