package subaru

import (
	"context"
	"sync"
	"sync/atomic"
)

// IndexManager arbitrates access to the package index. Readers share the
// index concurrently; rebuilds and transaction application take it
// exclusively. Every rebuild bumps a monotonic generation counter so that
// results computed against an older index can be recognized and dropped.
//
// The generation advances even when a rebuild fails: a failed build still
// invalidates everything computed before it, and the manager is left empty
// so the next acquire retries the build.
type IndexManager struct {
	mu         sync.RWMutex
	handle     *Handle
	generation atomic.Uint64

	cfg *Config
}

// NewIndexManager returns a manager with no index loaded. The first acquire
// triggers the initial build.
func NewIndexManager(cfg *Config) *IndexManager {
	return &IndexManager{cfg: cfg}
}

// ReadGuard is a held shared lock on the index. Release must be called
// exactly once, on every path including errors.
type ReadGuard struct {
	Handle     *Handle
	Generation uint64

	mgr  *IndexManager
	once sync.Once
}

// Release drops the shared lock.
func (g *ReadGuard) Release() {
	g.once.Do(func() {
		g.mgr.mu.RUnlock()
	})
}

// WriteGuard is a held exclusive lock on the index.
type WriteGuard struct {
	Handle     *Handle
	Generation uint64

	mgr  *IndexManager
	once sync.Once
}

// Release drops the exclusive lock.
func (g *WriteGuard) Release() {
	g.once.Do(func() {
		g.mgr.mu.Unlock()
	})
}

// Generation returns the current index generation.
func (m *IndexManager) Generation() uint64 {
	return m.generation.Load()
}

// AcquireRead takes a shared lock on the index, building it first if no
// handle is loaded. The returned guard carries the generation the handle
// belongs to; callers snapshot it before dispatching work and compare on
// completion.
func (m *IndexManager) AcquireRead(ctx context.Context) (*ReadGuard, error) {
	for {
		m.mu.RLock()
		if m.handle != nil {
			return &ReadGuard{
				Handle:     m.handle,
				Generation: m.generation.Load(),
				mgr:        m,
			}, nil
		}
		m.mu.RUnlock()

		m.mu.Lock()
		if m.handle == nil {
			handle, err := BuildIndex(ctx, m.cfg)
			if err != nil {
				m.mu.Unlock()
				return nil, &BuildError{Err: err}
			}
			m.handle = handle
		}
		m.mu.Unlock()
		// Retake the shared lock; a rebuild may have slipped in between.
	}
}

// AcquireWrite takes the exclusive lock, building the index first if needed.
// Used by transaction application, which must exclude all readers.
func (m *IndexManager) AcquireWrite(ctx context.Context) (*WriteGuard, error) {
	m.mu.Lock()
	if m.handle == nil {
		handle, err := BuildIndex(ctx, m.cfg)
		if err != nil {
			m.mu.Unlock()
			return nil, &BuildError{Err: err}
		}
		m.handle = handle
	}
	return &WriteGuard{
		Handle:     m.handle,
		Generation: m.generation.Load(),
		mgr:        m,
	}, nil
}

// Rebuild discards the current index and constructs a fresh one under the
// exclusive lock. The generation is bumped before building, so in-flight
// results against the old index go stale immediately, including when the
// build fails. On failure the manager is left empty and the error is
// reported as a BuildError.
func (m *IndexManager) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation.Add(1)
	m.handle = nil

	handle, err := BuildIndex(ctx, m.cfg)
	if err != nil {
		return &BuildError{Err: err}
	}
	m.handle = handle
	return nil
}

// rebuildLocked rebuilds while the caller already holds the exclusive lock
// through a WriteGuard. Used by Apply to refresh the index in the same
// critical section as the transaction.
func (m *IndexManager) rebuildLocked(ctx context.Context, g *WriteGuard) error {
	m.generation.Add(1)
	m.handle = nil

	handle, err := BuildIndex(ctx, m.cfg)
	if err != nil {
		return &BuildError{Err: err}
	}
	m.handle = handle
	g.Handle = handle
	g.Generation = m.generation.Load()
	return nil
}
