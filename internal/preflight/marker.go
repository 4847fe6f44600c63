package preflight

import (
	"os"
	"path/filepath"
	"time"
)

// markerName records a passed check inside the data directory. Its
// content is the pass timestamp in RFC 3339.
const markerName = ".preflight-passed"

func markerPath(dataDir string) string {
	return filepath.Join(dataDir, markerName)
}

// NeedsCheck reports whether the data directory has no record of a
// passed check.
func NeedsCheck(dataDir string) bool {
	_, err := os.Stat(markerPath(dataDir))
	return os.IsNotExist(err)
}

// MarkPassed records a passed check.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	return os.WriteFile(markerPath(dataDir), []byte(stamp), 0o644)
}

// ClearMarker forces a re-check on the next run. Clearing an absent
// marker is a no-op.
func ClearMarker(dataDir string) error {
	err := os.Remove(markerPath(dataDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MarkerAge returns the time since the last passed check, or zero when
// no valid marker exists.
func MarkerAge(dataDir string) time.Duration {
	raw, err := os.ReadFile(markerPath(dataDir))
	if err != nil {
		return 0
	}
	passed, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return 0
	}
	return time.Since(passed)
}
