package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/marpdocs/marpsearch/internal/config"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderHTTP calls an external embedding service (default).
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings (offline, reduced quality).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder from configuration. The result is
// wrapped with an LRU cache so repeated query embeddings skip the
// provider.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var embedder Embedder
	var err error

	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderStatic:
		embedder = NewStaticEmbedderWithDimensions(cfg.Dimensions)
	case ProviderHTTP, "":
		embedder, err = NewHTTPEmbedder(ctx, HTTPConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.RequestTimeout.Std(),
		})
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(embedder, DefaultCacheSize), nil
}
