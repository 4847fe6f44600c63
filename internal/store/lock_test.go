package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marpdocs/marpsearch/internal/errors"
)

func TestIndexLock_AcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock := NewIndexLock(dir)
	require.NoError(t, lock.Acquire())
	assert.True(t, lock.IsLocked())

	require.NoError(t, lock.Release())
	assert.False(t, lock.IsLocked())
}

func TestIndexLock_ReleaseWithoutAcquire(t *testing.T) {
	lock := NewIndexLock(t.TempDir())
	assert.NoError(t, lock.Release())
}

func TestIndexLock_ReleaseIdempotent(t *testing.T) {
	lock := NewIndexLock(t.TempDir())
	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestIndexLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	lock := NewIndexLock(dir)
	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
}

func TestIndexLock_ErrorCodeRetryable(t *testing.T) {
	err := errors.New(errors.ErrCodeIndexLocked, "locked", nil)
	assert.True(t, errors.IsRetryable(err))
}
