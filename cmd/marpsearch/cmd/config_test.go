package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/config"
)

func TestConfigInit_CreatesFile(t *testing.T) {
	dataDir := t.TempDir()

	out, err := execRoot(t, dataDir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration")

	path := filepath.Join(dataDir, config.ConfigFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lexical_weight")
	assert.Contains(t, string(data), "max_tokens: 450")

	// The generated file must round-trip through the loader.
	out, err = execRoot(t, dataDir, "config", "show", "--json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
}

func TestConfigInit_RefusesOverwriteWithoutForce(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	out, err := execRoot(t, dataDir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))

	_, err = execRoot(t, dataDir, "config", "init", "--force")
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lexical_weight")
}

func TestConfigShow_MergesFileOverDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_top_k: 9\n"), 0o644))

	out, err := execRoot(t, dataDir, "config", "show", "--json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9, cfg.Search.DefaultTopK)
	assert.Equal(t, 450, cfg.Chunking.MaxTokens)
}

func TestConfigPath(t *testing.T) {
	dataDir := t.TempDir()

	out, err := execRoot(t, dataDir, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dataDir, config.ConfigFileName))
}
