package subaru

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Scope ties dispatched tasks to the lifetime of a view. Cancelling a scope
// does not interrupt running work; it marks any still-pending completions as
// unwanted so they are dropped instead of delivered.
type Scope struct {
	cancelled atomic.Bool
}

// Cancel marks the scope dead. Idempotent.
func (s *Scope) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether the scope has been cancelled.
func (s *Scope) Cancelled() bool {
	return s.cancelled.Load()
}

// BusyIndicator is a refcount over in-flight tasks. Show fires on the first
// acquire, Hide on the last release. Both callbacks run on the UI thread
// because the runner only touches the indicator there.
type BusyIndicator struct {
	count int
	Show  func()
	Hide  func()
}

func (b *BusyIndicator) acquire() {
	b.count++
	if b.count == 1 && b.Show != nil {
		b.Show()
	}
}

func (b *BusyIndicator) release() {
	b.count--
	if b.count == 0 && b.Hide != nil {
		b.Hide()
	}
}

// TaskRunner executes index operations on background goroutines and delivers
// their results back on the UI thread. Each task snapshots the index
// generation at dispatch; if the index was rebuilt before the task finishes,
// the result is silently dropped.
type TaskRunner struct {
	mgr     *IndexManager
	runOnUI func(func())
	busy    *BusyIndicator
	wg      sync.WaitGroup
}

// NewTaskRunner wires a runner to the manager and a UI-thread trampoline
// (tview's QueueUpdateDraw in the browser, a synchronous call in tests).
func NewTaskRunner(mgr *IndexManager, runOnUI func(func()), busy *BusyIndicator) *TaskRunner {
	if busy == nil {
		busy = &BusyIndicator{}
	}
	return &TaskRunner{mgr: mgr, runOnUI: runOnUI, busy: busy}
}

// Wait blocks until all dispatched tasks have finished. Used on shutdown and
// in tests; the UI never calls it.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Dispatch runs work against a shared-locked index on a fresh goroutine and
// delivers the outcome to done on the UI thread. Delivery is skipped without
// notice when the scope was cancelled or the index generation moved past the
// dispatch-time snapshot. Dispatch itself must be called on the UI thread:
// the busy indicator is acquired inline and released alongside delivery, so
// its refcount always balances, stale or not.
func Dispatch[T any](r *TaskRunner, ctx context.Context, scope *Scope, work func(*Handle) (T, error), done func(T, error)) {
	gen := r.mgr.Generation()
	r.busy.acquire()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var result T
		var err error
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("task panicked: %v", p)
				}
			}()
			var guard *ReadGuard
			guard, err = r.mgr.AcquireRead(ctx)
			if err != nil {
				return
			}
			defer guard.Release()
			result, err = work(guard.Handle)
		}()

		r.runOnUI(func() {
			r.busy.release()
			if scope != nil && scope.Cancelled() {
				debugf("Dropping result for cancelled scope\n")
				return
			}
			if r.mgr.Generation() != gen {
				debugf("Dropping stale result: generation %d, now %d\n", gen, r.mgr.Generation())
				return
			}
			done(result, err)
		})
	}()
}

// DispatchExclusive runs work under the exclusive lock, for transaction
// application and explicit rebuilds. Staleness does not apply: exclusive
// work is itself what moves the generation, so the outcome is always
// delivered unless the scope died. Must be called on the UI thread.
func DispatchExclusive[T any](r *TaskRunner, ctx context.Context, scope *Scope, work func(*IndexManager) (T, error), done func(T, error)) {
	r.busy.acquire()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var result T
		var err error
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("task panicked: %v", p)
				}
			}()
			result, err = work(r.mgr)
		}()

		r.runOnUI(func() {
			r.busy.release()
			if scope != nil && scope.Cancelled() {
				debugf("Dropping result for cancelled scope\n")
				return
			}
			done(result, err)
		})
	}()
}
