package preflight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	assert.True(t, NeedsCheck(dir))

	require.NoError(t, MarkPassed(dir))
	assert.False(t, NeedsCheck(dir))
	assert.Greater(t, MarkerAge(dir), time.Duration(0))
	assert.Less(t, MarkerAge(dir), time.Minute)

	require.NoError(t, ClearMarker(dir))
	assert.True(t, NeedsCheck(dir))
}

func TestMarker_ClearMissingIsNoOp(t *testing.T) {
	assert.NoError(t, ClearMarker(t.TempDir()))
}

func TestMarker_AgeWithoutMarkerIsZero(t *testing.T) {
	assert.Zero(t, MarkerAge(t.TempDir()))
}
