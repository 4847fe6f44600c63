package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process access.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2. BoltDB holds an exclusive
	// file lock, so it is single-process only.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a lexical index using the given backend.
// basePath is the path without extension; the backend appends its own
// (.db for SQLite, .bleve for Bleve). An empty basePath creates an
// in-memory index for testing.
func NewLexicalIndex(basePath string, config LexicalConfig, backend string) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteLexicalIndex(path, config)

	case LexicalBackendBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectLexicalBackend reports which backend an existing index uses,
// or an empty string if no index exists yet.
func DetectLexicalBackend(basePath string) LexicalBackend {
	if info, err := os.Stat(basePath + ".db"); err == nil && !info.IsDir() {
		return LexicalBackendSQLite
	}
	if info, err := os.Stat(basePath + ".bleve"); err == nil && info.IsDir() {
		return LexicalBackendBleve
	}
	return ""
}

// LexicalIndexPath returns the on-disk path of the lexical index for a
// data directory and backend.
func LexicalIndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "lexical")
	if LexicalBackend(backend) == LexicalBackendBleve {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}
