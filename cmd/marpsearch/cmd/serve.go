package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marpdocs/marpsearch/internal/event"
	"github.com/marpdocs/marpsearch/internal/preflight"
)

func newServeCmd() *cobra.Command {
	var offline bool
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing coordinator over an event stream",
		Long: `Consume document.extracted event envelopes from stdin, one JSON
envelope per line, and index each document. Confirmation events
(chunks.indexed, indexing.failed) are written to stdout, one JSON
envelope per line.

The process exits when stdin closes or on SIGINT/SIGTERM, after
draining in-flight documents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, offline, skipCheck)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding service required)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, offline, skipCheck bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := openEngine(ctx, engineOptions{lock: true, offline: offline})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if !skipCheck && preflight.NeedsCheck(eng.cfg.Paths.DataDir) {
		checker := preflight.New(
			preflight.WithOutput(cmd.ErrOrStderr()),
			preflight.WithEmbedderProbe(eng.embedder.Available, eng.embedder.ModelName()))
		results := checker.RunAll(ctx, eng.cfg.Paths.DataDir)
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(eng.cfg.Paths.DataDir); err != nil {
			slog.Debug("failed to record preflight marker", slog.String("error", err.Error()))
		}
	}

	// Confirmations go to stdout as an NDJSON stream.
	enc := json.NewEncoder(cmd.OutOrStdout())
	emit := func(_ context.Context, env *event.Envelope) error {
		return enc.Encode(env)
	}
	eng.bus.Subscribe(event.TypeChunksIndexed, emit)
	eng.bus.Subscribe(event.TypeIndexingFailed, emit)

	eng.coord.SubscribeTo(eng.bus)

	slog.Info("serve started",
		slog.String("data_dir", eng.cfg.Paths.DataDir),
		slog.String("model", eng.embedder.ModelName()))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var processed int
loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown requested, draining in-flight documents")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if len(line) == 0 {
				continue
			}
			var env event.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				slog.Warn("skipping malformed event envelope", slog.String("error", err.Error()))
				continue
			}
			if env.EventType != event.TypeDocumentExtracted {
				slog.Debug("ignoring event", slog.String("event_type", env.EventType))
				continue
			}
			if err := eng.bus.Publish(ctx, &env); err != nil {
				slog.Error("failed to dispatch event", slog.String("error", err.Error()))
				continue
			}
			processed++
		}
	}

	eng.coord.Wait()
	eng.markDirty()

	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("failed to read event stream: %w", err)
		}
	default:
	}

	slog.Info("serve stopped", slog.Int("documents_processed", processed))
	fmt.Fprintf(os.Stderr, "Processed %d document(s)\n", processed)
	return nil
}
