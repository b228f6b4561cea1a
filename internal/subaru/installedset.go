package subaru

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// InstalledSet caches which packages are installed so list rows can be
// highlighted without touching the index. It has its own lock and is
// replaced atomically on refresh, so lookups never block on an index
// rebuild.
type InstalledSet struct {
	mu    sync.RWMutex
	specs map[string]bool
	names map[string]bool
}

// NewInstalledSet returns an empty set. Contains reports false for
// everything until the first Refresh completes.
func NewInstalledSet() *InstalledSet {
	return &InstalledSet{
		specs: make(map[string]bool),
		names: make(map[string]bool),
	}
}

// Contains reports whether the exact NEVRA is installed.
func (s *InstalledSet) Contains(spec PackageSpec) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.specs[spec.String()]
}

// ContainsName reports whether any version of the named package is installed.
func (s *InstalledSet) ContainsName(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[name]
}

// Len returns the number of installed packages in the snapshot.
func (s *InstalledSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.specs)
}

// Refresh queries the installed packages under a shared index lock and
// swaps the new snapshot in atomically. Readers see either the old set or
// the new one, never a partial state.
func (s *InstalledSet) Refresh(ctx context.Context, mgr *IndexManager) error {
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	installed := guard.Handle.QueryInstalled()
	guard.Release()

	specs := make(map[string]bool, len(installed))
	names := make(map[string]bool, len(installed))
	for _, spec := range installed {
		specs[spec.String()] = true
		names[spec.Name] = true
	}

	s.mu.Lock()
	s.specs = specs
	s.names = names
	s.mu.Unlock()
	return nil
}

// Watch refreshes the set periodically and whenever the installed database
// directory changes on disk. Filesystem events are rate limited so a burst
// of writes during a transaction triggers one refresh, not hundreds. Blocks
// until the context is cancelled.
func (s *InstalledSet) Watch(ctx context.Context, mgr *IndexManager, interval time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(Installed); err != nil {
		debugf("Cannot watch %s: %v, falling back to interval only\n", Installed, err)
	}

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if err := s.Refresh(ctx, mgr); err != nil {
			debugf("Installed set refresh failed: %v\n", err)
			return
		}
		if onChange != nil {
			onChange()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			refresh()
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if limiter.Allow() {
				refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debugf("Installed db watch error: %v\n", err)
		}
	}
}
