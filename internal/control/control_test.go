package control

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenCancelledByNewerIssue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctrl")
	iss, err := OpenOrCreate(path, 1)
	require.NoError(t, err)
	defer iss.Close()

	a := iss.Next()
	require.False(t, a.Cancelled())

	b := iss.Next()
	require.True(t, a.Cancelled(), "older token must be cancelled once a newer one is minted")
	require.False(t, b.Cancelled())
}

func TestNoopTokenNeverCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctrl")
	iss, err := OpenOrCreate(path, 1)
	require.NoError(t, err)
	defer iss.Close()

	iss.Next()
	iss.Next()
	iss.Next()

	require.False(t, NoopToken().Cancelled())
}

func TestControlFilePersistsGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctrl")
	iss, err := OpenOrCreate(path, 1)
	require.NoError(t, err)
	iss.Next()
	iss.Next()
	require.NoError(t, iss.Close())

	reopened, err := OpenOrCreate(path, 1)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint64(2), reopened.Generation())
}
