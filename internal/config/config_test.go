package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 450, cfg.Chunking.MaxTokens)
	assert.Equal(t, 50, cfg.Chunking.OverlapTokens)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, "sqlite", cfg.Search.LexicalBackend)
	assert.Equal(t, 3, cfg.Search.CandidateMultiplier)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embeddings.Model)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Paths.DataDir)
	assert.Equal(t, 450, cfg.Chunking.MaxTokens)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
chunking:
  max_tokens: 300
  overlap_tokens: 30
search:
  lexical_weight: 0.7
  semantic_weight: 0.3
  lexical_backend: bleve
  sub_search_timeout: 750ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Chunking.MaxTokens)
	assert.Equal(t, 30, cfg.Chunking.OverlapTokens)
	assert.Equal(t, 0.7, cfg.Search.LexicalWeight)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.Equal(t, Duration(750*time.Millisecond), cfg.Search.SubSearchTimeout)
	// Untouched sections keep defaults.
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  lexical_weight: 0.7
  semantic_weight: 0.3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0644))

	t.Setenv("MARPSEARCH_LEXICAL_WEIGHT", "0.4")
	t.Setenv("MARPSEARCH_SEMANTIC_WEIGHT", "0.6")
	t.Setenv("MARPSEARCH_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("MARPSEARCH_SUB_SEARCH_TIMEOUT", "500ms")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.6, cfg.Search.SemanticWeight)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, Duration(500*time.Millisecond), cfg.Search.SubSearchTimeout)
}

func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MARPSEARCH_LEXICAL_WEIGHT", "banana")
	t.Setenv("MARPSEARCH_SEMANTIC_WEIGHT", "2.5")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("search: ["), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "weights must sum to one",
			mutate:  func(c *Config) { c.Search.LexicalWeight = 0.9 },
			wantErr: "must equal 1.0",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Search.SemanticWeight = -0.1 },
			wantErr: "semantic_weight",
		},
		{
			name: "overlap must be smaller than budget",
			mutate: func(c *Config) {
				c.Chunking.MaxTokens = 50
				c.Chunking.OverlapTokens = 50
			},
			wantErr: "overlap_tokens must be less than max_tokens",
		},
		{
			name:    "unknown lexical backend",
			mutate:  func(c *Config) { c.Search.LexicalBackend = "elastic" },
			wantErr: "lexical_backend",
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "openai" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *Config) { c.Embeddings.Dimensions = 0 },
			wantErr: "dimensions",
		},
		{
			name:    "max_top_k below default",
			mutate:  func(c *Config) { c.Search.MaxTopK = 1 },
			wantErr: "max_top_k",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Paths.DataDir = dir
	cfg.Search.LexicalWeight = 0.6
	cfg.Search.SemanticWeight = 0.4

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ConfigFileName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.6, loaded.Search.LexicalWeight)
	assert.Equal(t, 0.4, loaded.Search.SemanticWeight)
}
