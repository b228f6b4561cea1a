package subaru

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReadBuildsOnce(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)

	guard, err := mgr.AcquireRead(context.Background())
	require.NoError(t, err)
	h := guard.Handle
	guard.Release()

	guard, err = mgr.AcquireRead(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, guard.Handle)
	guard.Release()
}

func TestConcurrentReadersSeeSameGeneration(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)

	var wg sync.WaitGroup
	gens := make([]uint64, 16)
	for i := range gens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard, err := mgr.AcquireRead(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			gens[i] = guard.Generation
			guard.Release()
		}()
	}
	wg.Wait()

	for _, g := range gens {
		assert.Equal(t, gens[0], g)
	}
}

func TestRebuildIncrementsGeneration(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)

	before := mgr.Generation()
	require.NoError(t, mgr.Rebuild(context.Background()))
	assert.Equal(t, before+1, mgr.Generation())

	require.NoError(t, mgr.Rebuild(context.Background()))
	assert.Equal(t, before+2, mgr.Generation())
}

func TestFailedRebuildStillIncrementsGeneration(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)

	guard, err := mgr.AcquireRead(context.Background())
	require.NoError(t, err)
	guard.Release()
	before := mgr.Generation()

	// Break the repo index so the rebuild fails.
	indexPath := cfg.Repos[0].Path
	require.NoError(t, os.Remove(indexPath))

	err = mgr.Rebuild(context.Background())
	require.Error(t, err)
	var buildErr *BuildError
	assert.ErrorAs(t, err, &buildErr)
	assert.Equal(t, before+1, mgr.Generation())

	// The manager is left empty; the next acquire retries the build.
	_, err = mgr.AcquireRead(context.Background())
	assert.ErrorAs(t, err, &buildErr)

	require.NoError(t, SaveRepoIndex(indexPath, sampleEntries()))
	guard, err = mgr.AcquireRead(context.Background())
	require.NoError(t, err)
	guard.Release()
}

func TestAcquireWriteExcludesReaders(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)

	guard, err := mgr.AcquireWrite(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		rg, err := mgr.AcquireRead(context.Background())
		if err == nil {
			rg.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the index while the write guard was held")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()
	<-acquired
}

func TestBuildErrorWrapsCause(t *testing.T) {
	dir := t.TempDir()
	Installed = filepath.Join(dir, "installed")
	cfg := &Config{
		Values: map[string]string{},
		Repos:  []Repo{{Name: "core", Path: filepath.Join(dir, "missing.json")}},
	}
	mgr := NewIndexManager(cfg)

	_, err := mgr.AcquireRead(context.Background())
	require.Error(t, err)
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.ErrorIs(t, buildErr.Err, os.ErrNotExist)
}
