package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/marpdocs/marpsearch/internal/output"
	"github.com/marpdocs/marpsearch/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Display index statistics: documents, chunks, embedding model,
and vector dimensions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	eng, err := openEngine(ctx, engineOptions{offline: true})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	stats, err := eng.planner.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "Documents:        %d", stats.Documents)
	out.Statusf("", "Chunks:           %d", stats.Chunks)
	out.Statusf("", "Lexical entries:  %d", stats.LexicalChunks)
	out.Statusf("", "Vectors:          %d", stats.VectorChunks)
	out.Statusf("", "Embedding model:  %s", stats.EmbeddingModel)
	out.Statusf("", "Dimensions:       %d", stats.Dimensions)
	return nil
}

func newStatsQueriesCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display query telemetry: mode distribution, top query terms,
zero-result queries, and latency buckets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsQueries(cmd.Context(), cmd, jsonOutput, days)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// queryStatsOutput is the JSON output format for query stats.
type queryStatsOutput struct {
	TotalQueries        int64                 `json:"total_queries"`
	ModeCounts          map[string]int64      `json:"mode_counts"`
	TopTerms            []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries   []string              `json:"zero_result_queries"`
	LatencyDistribution map[string]int64      `json:"latency_distribution"`
}

func runStatsQueries(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	eng, err := openEngine(ctx, engineOptions{offline: true})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	snap, err := loadQueryStats(eng, days)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "Total queries:  %d", snap.TotalQueries)
	out.Statusf("", "Zero results:   %d recent", len(snap.ZeroResultQueries))

	if len(snap.ModeCounts) > 0 {
		out.Newline()
		out.Status("", "By mode:")
		for _, mode := range sortedKeys(snap.ModeCounts) {
			out.Statusf("", "  %-10s %d", mode, snap.ModeCounts[mode])
		}
	}
	if len(snap.TopTerms) > 0 {
		out.Newline()
		out.Status("", "Top terms:")
		for _, tc := range snap.TopTerms {
			out.Statusf("", "  %-20s %d", tc.Term, tc.Count)
		}
	}
	if len(snap.ZeroResultQueries) > 0 {
		out.Newline()
		out.Status("", "Recent zero-result queries:")
		for _, q := range snap.ZeroResultQueries {
			out.Statusf("", "  %q", q)
		}
	}
	if len(snap.LatencyDistribution) > 0 {
		out.Newline()
		out.Status("", "Latency:")
		for _, bucket := range sortedKeys(snap.LatencyDistribution) {
			out.Statusf("", "  %-8s %d", bucket, snap.LatencyDistribution[bucket])
		}
	}
	return nil
}

// loadQueryStats reads persisted telemetry from the metrics tables.
func loadQueryStats(eng *engine, days int) (*queryStatsOutput, error) {
	store, err := telemetry.NewSQLiteMetricsStore(eng.metadata.DB())
	if err != nil {
		return nil, err
	}

	to := time.Now().UTC().Format("2006-01-02")
	from := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	modes, err := store.GetModeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load mode counts: %w", err)
	}
	terms, err := store.GetTopTerms(20)
	if err != nil {
		return nil, fmt.Errorf("failed to load top terms: %w", err)
	}
	zero, err := store.GetZeroResultQueries(20)
	if err != nil {
		return nil, fmt.Errorf("failed to load zero-result queries: %w", err)
	}
	latencies, err := store.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load latency counts: %w", err)
	}

	snap := &queryStatsOutput{
		ModeCounts:          make(map[string]int64, len(modes)),
		TopTerms:            terms,
		ZeroResultQueries:   zero,
		LatencyDistribution: make(map[string]int64, len(latencies)),
	}
	for mode, count := range modes {
		snap.ModeCounts[string(mode)] = count
		snap.TotalQueries += count
	}
	for bucket, count := range latencies {
		snap.LatencyDistribution[string(bucket)] = count
	}
	return snap, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
