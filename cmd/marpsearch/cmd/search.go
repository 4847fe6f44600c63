package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marpdocs/marpsearch/internal/event"
	"github.com/marpdocs/marpsearch/internal/output"
	"github.com/marpdocs/marpsearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK     int
	mode     string
	document string
	format   string
	offline  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search indexed regulatory documents with hybrid retrieval.

BM25 keyword matching and semantic similarity run in parallel and are
fused with weighted min-max normalized scores.

Examples:
  marpsearch search "harvest report deadline"
  marpsearch search "waterfowl bag limits" --top-k 10 --mode lexical
  marpsearch search "late submission penalty" --document marp-2024-001
  marpsearch search "permit renewal" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, lexical, semantic")
	cmd.Flags().StringVarP(&opts.document, "document", "d", "", "Restrict results to one document id")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no embedding service required)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	eng, err := openEngine(ctx, engineOptions{offline: opts.offline})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	resp, err := eng.planner.Search(ctx, query, search.Options{
		TopK:       opts.topK,
		Mode:       search.Mode(opts.mode),
		DocumentID: opts.document,
	})
	if err != nil {
		return err
	}

	publishRetrievalCompleted(ctx, eng, query, opts, resp)

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(output.New(cmd.OutOrStdout()), query, resp)
	return nil
}

// publishRetrievalCompleted emits the retrieval.completed event with
// the per-result score triple.
func publishRetrievalCompleted(ctx context.Context, eng *engine, query string, opts searchOptions, resp *search.Response) {
	results := make([]event.RetrievalResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = event.RetrievalResult{
			DocumentID:    r.DocumentID,
			ChunkID:       r.ChunkID,
			Page:          r.Page,
			Title:         r.DocumentTitle,
			URL:           r.SourceURL,
			SemanticScore: r.SemanticScore,
			LexicalScore:  r.LexicalScore,
			CombinedScore: r.CombinedScore,
		}
	}

	env, err := event.NewEnvelope(event.TypeRetrievalCompleted, "", event.RetrievalCompleted{
		QueryID:         uuid.NewString(),
		QueryText:       query,
		Mode:            opts.mode,
		TopK:            opts.topK,
		Results:         results,
		Degraded:        resp.Degraded,
		RetrievalTimeMS: resp.Took.Milliseconds(),
	})
	if err != nil {
		slog.Error("failed to build retrieval.completed event", slog.String("error", err.Error()))
		return
	}
	if err := eng.bus.Publish(ctx, env); err != nil {
		slog.Error("failed to publish retrieval.completed event", slog.String("error", err.Error()))
	}
}

func printResults(out *output.Writer, query string, resp *search.Response) {
	if resp.Degraded {
		out.Warningf("Degraded results: %s", resp.DegradedReason)
	}
	if len(resp.Results) == 0 {
		out.Statusf("", "No results for %q", query)
		return
	}

	out.Statusf("", "%d results for %q (%s)", len(resp.Results), query, resp.Took.Round(time.Millisecond))
	out.Newline()
	for i, r := range resp.Results {
		title := r.DocumentTitle
		if title == "" {
			title = r.DocumentID
		}
		out.Statusf("", "%d. %s, page %d (score %.3f)", i+1, title, r.Page, r.CombinedScore)
		if r.SourceURL != "" {
			out.Statusf("", "   %s", r.SourceURL)
		}
		out.Code(snippet(r.Text, 240))
	}
}

// snippet truncates text to at most n bytes on a word boundary.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + " ..."
}
