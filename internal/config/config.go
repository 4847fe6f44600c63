// Package config loads and validates marpsearch configuration.
//
// Configuration is resolved in three layers, lowest priority first:
//
//  1. Built-in defaults (NewConfig)
//  2. YAML config file (marpsearch.yaml in the data directory)
//  3. MARPSEARCH_* environment variables
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete marpsearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures where indexes and metadata live on disk.
type PathsConfig struct {
	// DataDir is the root directory for all persistent state
	// (lexical index, vector store, metadata database, logs).
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkingConfig configures how extracted documents are split into passages.
type ChunkingConfig struct {
	// MaxTokens is the token budget per chunk, including the overlap
	// prefix carried from the previous chunk.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// OverlapTokens is the number of trailing tokens from the previous
	// chunk repeated at the start of the next one.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// SearchConfig configures hybrid retrieval parameters.
//
// Weights are configurable via the YAML file or env vars
// (MARPSEARCH_LEXICAL_WEIGHT, MARPSEARCH_SEMANTIC_WEIGHT) and must sum to 1.0.
type SearchConfig struct {
	// LexicalWeight is the fusion weight for BM25 keyword matching (0.0-1.0).
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// SemanticWeight is the fusion weight for vector similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// LexicalBackend selects the BM25 index backend.
	// Options: "sqlite" (default, concurrent access) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// CandidateMultiplier controls how many candidates each sub-search
	// fetches relative to the requested result count.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`

	// DefaultTopK is the result count used when a query does not specify one.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// MaxTopK caps the per-query result count.
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// SubSearchTimeout bounds each retrieval signal independently.
	// A signal that exceeds it contributes nothing and the response
	// is marked degraded.
	SubSearchTimeout Duration `yaml:"sub_search_timeout" json:"sub_search_timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http" (default) or "static".
	Provider string `yaml:"provider" json:"provider"`

	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// Host is the embedding service endpoint for the http provider.
	Host string `yaml:"host" json:"host"`

	// RequestTimeout bounds a single embedding API call.
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`
}

// IndexingConfig configures the indexing coordinator.
type IndexingConfig struct {
	// MaxRetries bounds retry attempts for transient indexing failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the initial backoff delay between attempts.
	RetryDelay Duration `yaml:"retry_delay" json:"retry_delay"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// Duration is a time.Duration that YAML and JSON read and write in
// Go's "2s" / "500ms" string form. Bare integers are taken as
// nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if err := json.Unmarshal(data, &ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Chunking: ChunkingConfig{
			MaxTokens:     450,
			OverlapTokens: 50,
		},
		Search: SearchConfig{
			LexicalWeight:       0.5,
			SemanticWeight:      0.5,
			LexicalBackend:      "sqlite",
			CandidateMultiplier: 3,
			DefaultTopK:         5,
			MaxTopK:             100,
			SubSearchTimeout:    Duration(2 * time.Second),
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "http",
			Model:          "all-MiniLM-L6-v2",
			Dimensions:     384,
			BatchSize:      32,
			Host:           "http://localhost:11434",
			RequestTimeout: Duration(30 * time.Second),
		},
		Indexing: IndexingConfig{
			MaxRetries: 3,
			RetryDelay: Duration(time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marpsearch"
	}
	return filepath.Join(home, ".marpsearch")
}

// ConfigFileName is the YAML file looked up inside the data directory.
const ConfigFileName = "marpsearch.yaml"

// Load builds the effective configuration: defaults, then the YAML file
// at dir/marpsearch.yaml if present, then environment overrides.
// A missing config file is not an error.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	if dir != "" {
		cfg.Paths.DataDir = dir
	}

	path := filepath.Join(cfg.Paths.DataDir, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies MARPSEARCH_* environment variables on top of
// file and default values. Invalid values are ignored rather than fatal.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MARPSEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("MARPSEARCH_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("MARPSEARCH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("MARPSEARCH_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("MARPSEARCH_SUB_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Search.SubSearchTimeout = Duration(d)
		}
	}
	if v := os.Getenv("MARPSEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MARPSEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MARPSEARCH_EMBEDDINGS_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("MARPSEARCH_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("MARPSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens must be less than max_tokens, got %d >= %d",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	sum := c.Search.LexicalWeight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("lexical_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("search.lexical_backend must be 'sqlite' or 'bleve', got %s", c.Search.LexicalBackend)
	}

	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be at least 1, got %d", c.Search.CandidateMultiplier)
	}
	if c.Search.DefaultTopK < 1 {
		return fmt.Errorf("search.default_top_k must be positive, got %d", c.Search.DefaultTopK)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search.max_top_k must be >= default_top_k, got %d < %d",
			c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Search.SubSearchTimeout <= 0 {
		return fmt.Errorf("search.sub_search_timeout must be positive, got %s", c.Search.SubSearchTimeout)
	}

	validProviders := map[string]bool{"http": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'http' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Indexing.MaxRetries < 0 {
		return fmt.Errorf("indexing.max_retries must be non-negative, got %d", c.Indexing.MaxRetries)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
