package subaru

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstalledSetEmptyBeforeRefresh(t *testing.T) {
	s := NewInstalledSet()
	assert.False(t, s.Contains(spec("bash", "5.2")))
	assert.False(t, s.ContainsName("bash"))
	assert.Zero(t, s.Len())
}

func TestInstalledSetRefresh(t *testing.T) {
	entries := sampleEntries()
	cfg := testSetup(t, entries, []RepoEntry{entries[0], entries[2]})
	mgr := NewIndexManager(cfg)

	s := NewInstalledSet()
	require.NoError(t, s.Refresh(context.Background(), mgr))

	assert.True(t, s.Contains(entries[0].Spec()))
	assert.True(t, s.ContainsName("glibc"))
	assert.False(t, s.ContainsName("zsh"))
	assert.Equal(t, 2, s.Len())

	// A different version of an installed name is not an exact hit.
	other := entries[0].Spec()
	other.Version = "9.9"
	assert.False(t, s.Contains(other))
	assert.True(t, s.ContainsName(other.Name))
}

func TestInstalledSetTracksChanges(t *testing.T) {
	entries := sampleEntries()
	cfg := testSetup(t, entries, []RepoEntry{entries[0]})
	mgr := NewIndexManager(cfg)

	s := NewInstalledSet()
	require.NoError(t, s.Refresh(context.Background(), mgr))
	require.True(t, s.ContainsName("bash"))

	// The package disappears from the DB; the set only notices after the
	// index is rebuilt and the set refreshed.
	require.NoError(t, os.RemoveAll(filepath.Join(Installed, entries[0].Spec().String())))
	require.NoError(t, s.Refresh(context.Background(), mgr))
	assert.True(t, s.ContainsName("bash"), "stale index still lists the package")

	require.NoError(t, mgr.Rebuild(context.Background()))
	require.NoError(t, s.Refresh(context.Background(), mgr))
	assert.False(t, s.ContainsName("bash"))
	assert.Zero(t, s.Len())
}
