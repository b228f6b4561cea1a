package subaru

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uiQueue stands in for the tview event loop: completions pile up and the
// test decides when they run, which makes staleness checks deterministic.
type uiQueue struct {
	pending chan func()
}

func newUIQueue() *uiQueue {
	return &uiQueue{pending: make(chan func(), 16)}
}

func (q *uiQueue) post(f func()) {
	q.pending <- f
}

func (q *uiQueue) runOne() {
	(<-q.pending)()
}

func newTestRunner(t *testing.T) (*TaskRunner, *IndexManager, *uiQueue, *BusyIndicator) {
	t.Helper()
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)
	queue := newUIQueue()
	shown, hidden := 0, 0
	busy := &BusyIndicator{
		Show: func() { shown++ },
		Hide: func() { hidden++ },
	}
	return NewTaskRunner(mgr, queue.post, busy), mgr, queue, busy
}

func TestDispatchDeliversResult(t *testing.T) {
	runner, _, queue, _ := newTestRunner(t)

	var got []PackageSpec
	var gotErr error
	Dispatch(runner, context.Background(), nil, func(h *Handle) ([]PackageSpec, error) {
		return h.QueryAvailable("bash", SearchMode{}), nil
	}, func(specs []PackageSpec, err error) {
		got, gotErr = specs, err
	})

	runner.Wait()
	queue.runOne()
	require.NoError(t, gotErr)
	assert.Len(t, got, 2)
}

func TestDispatchDropsStaleResult(t *testing.T) {
	runner, mgr, queue, _ := newTestRunner(t)

	delivered := false
	Dispatch(runner, context.Background(), nil, func(h *Handle) (int, error) {
		return len(h.available), nil
	}, func(int, error) {
		delivered = true
	})
	runner.Wait()

	// The index moves on before the completion runs.
	require.NoError(t, mgr.Rebuild(context.Background()))

	queue.runOne()
	assert.False(t, delivered, "result computed against the old index must be dropped")
}

func TestDispatchDropsCancelledScope(t *testing.T) {
	runner, _, queue, _ := newTestRunner(t)

	scope := &Scope{}
	delivered := false
	Dispatch(runner, context.Background(), scope, func(h *Handle) (int, error) {
		return len(h.available), nil
	}, func(int, error) {
		delivered = true
	})
	runner.Wait()

	scope.Cancel()
	queue.runOne()
	assert.False(t, delivered)
}

func TestDispatchBalancesBusyIndicator(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	mgr := NewIndexManager(cfg)
	queue := newUIQueue()
	count := 0
	lowWater := 0
	busy := &BusyIndicator{
		Show: func() { count++ },
		Hide: func() { count--; lowWater = min(lowWater, count) },
	}
	runner := NewTaskRunner(mgr, queue.post, busy)

	scope := &Scope{}
	scope.Cancel()
	for i := 0; i < 3; i++ {
		Dispatch(runner, context.Background(), scope, func(h *Handle) (int, error) {
			return 0, nil
		}, func(int, error) {
			t.Error("cancelled scope must not deliver")
		})
	}
	runner.Wait()
	for i := 0; i < 3; i++ {
		queue.runOne()
	}

	// Dropped results still release the indicator, exactly once each.
	assert.Equal(t, 0, count)
	assert.GreaterOrEqual(t, lowWater, 0)
}

func TestDispatchRecoversPanic(t *testing.T) {
	runner, _, queue, _ := newTestRunner(t)

	var gotErr error
	Dispatch(runner, context.Background(), nil, func(h *Handle) (int, error) {
		panic("boom")
	}, func(_ int, err error) {
		gotErr = err
	})
	runner.Wait()
	queue.runOne()

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "boom")
}

func TestDispatchReportsBuildError(t *testing.T) {
	cfg := testSetup(t, sampleEntries(), nil)
	cfg.Repos[0].Path = cfg.Repos[0].Path + ".missing"
	mgr := NewIndexManager(cfg)
	queue := newUIQueue()
	runner := NewTaskRunner(mgr, queue.post, nil)

	var gotErr error
	Dispatch(runner, context.Background(), nil, func(h *Handle) (int, error) {
		return 0, nil
	}, func(_ int, err error) {
		gotErr = err
	})
	runner.Wait()
	queue.runOne()

	var buildErr *BuildError
	require.ErrorAs(t, gotErr, &buildErr)
}

func TestScopeCancelIdempotent(t *testing.T) {
	scope := &Scope{}
	assert.False(t, scope.Cancelled())
	scope.Cancel()
	scope.Cancel()
	assert.True(t, scope.Cancelled())
}
