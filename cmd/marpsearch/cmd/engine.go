package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/marpdocs/marpsearch/internal/config"
	"github.com/marpdocs/marpsearch/internal/embed"
	"github.com/marpdocs/marpsearch/internal/errors"
	"github.com/marpdocs/marpsearch/internal/event"
	"github.com/marpdocs/marpsearch/internal/index"
	"github.com/marpdocs/marpsearch/internal/search"
	"github.com/marpdocs/marpsearch/internal/store"
	"github.com/marpdocs/marpsearch/internal/telemetry"
)

// engineOptions controls how the retrieval engine is opened.
type engineOptions struct {
	// lock acquires the data directory lock. Required for commands
	// that mutate the index (index, serve).
	lock bool

	// offline forces the static embedder regardless of configuration.
	offline bool
}

// engine wires the stores, embedder, planner, and coordinator around
// one data directory. It is the composition root shared by the CLI
// commands.
type engine struct {
	cfg        *config.Config
	metadata   *store.SQLiteMetadataStore
	lexical    store.LexicalIndex
	vector     *store.HNSWStore
	vectorPath string
	embedder   embed.Embedder
	planner    *search.Planner
	coord      *index.Coordinator
	metrics    *telemetry.QueryMetrics
	bus        *event.InMemoryBus
	lock       *store.IndexLock

	dirty bool
}

// openEngine opens all persistent state under the configured data
// directory and assembles the planner and coordinator on top of it.
func openEngine(ctx context.Context, opts engineOptions) (*engine, error) {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	e := &engine{cfg: cfg}

	if opts.lock {
		e.lock = store.NewIndexLock(dataDir)
		if err := e.lock.Acquire(); err != nil {
			return nil, err
		}
	}

	cleanup := func() { _ = e.Close() }

	e.metadata, err = store.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		cleanup()
		return nil, err
	}

	// An existing index pins the lexical backend; config only decides
	// for a fresh directory.
	backend := string(store.DetectLexicalBackend(filepath.Join(dataDir, "lexical")))
	if backend == "" {
		backend = cfg.Search.LexicalBackend
	}
	e.lexical, err = store.NewLexicalIndex(filepath.Join(dataDir, "lexical"), store.DefaultLexicalConfig(), backend)
	if err != nil {
		cleanup()
		return nil, err
	}

	embedCfg := cfg.Embeddings
	if opts.offline {
		embedCfg.Provider = "static"
	}
	e.embedder, err = embed.NewEmbedder(ctx, embedCfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	// An existing vector store pins the dimension; a mismatched
	// embedder means the index must be rebuilt, not silently mixed.
	dims := e.embedder.Dimensions()
	e.vectorPath = filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(e.vectorPath); statErr == nil {
		stored, dimErr := store.ReadHNSWStoreDimensions(e.vectorPath)
		if dimErr == nil && stored != dims {
			cleanup()
			return nil, errors.New(errors.ErrCodeDimension,
				fmt.Sprintf("index has %d-dim vectors but embedder %s produces %d dims; re-index or switch models",
					stored, e.embedder.ModelName(), dims), nil)
		}
	}
	e.vector, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		cleanup()
		return nil, err
	}
	if _, statErr := os.Stat(e.vectorPath); statErr == nil {
		if err := e.vector.Load(e.vectorPath); err != nil {
			cleanup()
			return nil, err
		}
	}

	if err := telemetry.InitTelemetrySchema(e.metadata.DB()); err != nil {
		cleanup()
		return nil, err
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(e.metadata.DB())
	if err != nil {
		cleanup()
		return nil, err
	}
	e.metrics = telemetry.NewQueryMetrics(metricsStore)

	e.planner, err = search.NewPlanner(e.lexical, e.vector, e.embedder, e.metadata,
		search.PlannerConfig{
			Weights: search.Weights{
				Lexical:  cfg.Search.LexicalWeight,
				Semantic: cfg.Search.SemanticWeight,
			},
			CandidateMultiplier: cfg.Search.CandidateMultiplier,
			DefaultTopK:         cfg.Search.DefaultTopK,
			MaxTopK:             cfg.Search.MaxTopK,
			SubSearchTimeout:    cfg.Search.SubSearchTimeout.Std(),
		},
		search.WithMetrics(e.metrics))
	if err != nil {
		cleanup()
		return nil, err
	}

	e.bus = event.NewInMemoryBus()
	e.coord, err = index.NewCoordinator(index.CoordinatorConfig{
		Lexical:   e.lexical,
		Vector:    e.vector,
		Embedder:  e.embedder,
		Metadata:  e.metadata,
		Bus:       e.bus,
		IndexPath: dataDir,
		Retry: errors.RetryConfig{
			MaxRetries:   cfg.Indexing.MaxRetries,
			InitialDelay: cfg.Indexing.RetryDelay.Std(),
			MaxDelay:     16 * cfg.Indexing.RetryDelay.Std(),
			Multiplier:   2.0,
		},
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	return e, nil
}

// markDirty records that the vector store changed and must be saved on
// close.
func (e *engine) markDirty() {
	e.dirty = true
}

// Close persists the vector store if it changed, then tears everything
// down in reverse dependency order. The first error wins.
func (e *engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.coord != nil {
		record(e.coord.Close())
	}
	if e.bus != nil {
		record(e.bus.Close())
	}
	if e.metrics != nil {
		record(e.metrics.Close())
	}
	if e.vector != nil {
		if e.dirty {
			if err := e.vector.Save(e.vectorPath); err != nil {
				slog.Error("failed to save vector store",
					slog.String("path", e.vectorPath),
					slog.String("error", err.Error()))
				record(err)
			}
		}
		record(e.vector.Close())
	}
	if e.embedder != nil {
		record(e.embedder.Close())
	}
	if e.lexical != nil {
		record(e.lexical.Close())
	}
	if e.metadata != nil {
		record(e.metadata.Close())
	}
	if e.lock != nil {
		record(e.lock.Release())
	}
	return firstErr
}
