package subaru

import (
	"context"
	"sync"
)

// Action is what the user marked a package for.
type Action int

const (
	ActionInstall Action = iota
	ActionRemove
)

func (a Action) String() string {
	if a == ActionRemove {
		return "remove"
	}
	return "install"
}

// PendingAction is one marked package.
type PendingAction struct {
	Spec   PackageSpec
	Action Action
}

// PendingSet collects marked packages until the user applies them as a
// single transaction. Marks are kept in insertion order and deduplicated by
// NEVRA: toggling the same action twice removes the mark, toggling the other
// action replaces it in place.
type PendingSet struct {
	mu      sync.Mutex
	actions []PendingAction
}

func NewPendingSet() *PendingSet {
	return &PendingSet{}
}

// Toggle marks or unmarks a package. Returns true when the spec is pending
// after the call.
func (p *PendingSet) Toggle(spec PackageSpec, action Action) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := spec.String()
	for i, a := range p.actions {
		if a.Spec.String() != key {
			continue
		}
		if a.Action == action {
			p.actions = append(p.actions[:i], p.actions[i+1:]...)
			return false
		}
		p.actions[i].Action = action
		return true
	}
	p.actions = append(p.actions, PendingAction{Spec: spec, Action: action})
	return true
}

// Pending reports whether the spec is marked, and for what.
func (p *PendingSet) Pending(spec PackageSpec) (Action, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := spec.String()
	for _, a := range p.actions {
		if a.Spec.String() == key {
			return a.Action, true
		}
	}
	return 0, false
}

// List returns the marked actions in insertion order.
func (p *PendingSet) List() []PendingAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingAction, len(p.actions))
	copy(out, p.actions)
	return out
}

// Len returns the number of marked packages.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actions)
}

// Clear unmarks everything.
func (p *PendingSet) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = nil
}

// split separates the marked actions into install and remove requests.
func (p *PendingSet) split() (installs, removes []PackageSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.actions {
		if a.Action == ActionRemove {
			removes = append(removes, a.Spec)
		} else {
			installs = append(installs, a.Spec)
		}
	}
	return installs, removes
}

// Apply resolves and executes the marked actions as one transaction under
// the exclusive index lock, then rebuilds the index in the same critical
// section. The set is cleared only on success; every failure leaves the
// marks intact so the user can fix and retry.
//
// Failure order: missing privilege, empty set, index build, resolution
// problems, resolution to nothing, then execution errors.
func (p *PendingSet) Apply(ctx context.Context, mgr *IndexManager) error {
	if err := requireRoot(); err != nil {
		return err
	}

	installs, removes := p.split()
	if len(installs) == 0 && len(removes) == 0 {
		return ErrNoPendingActions
	}

	guard, err := mgr.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()

	res := guard.Handle.ResolveTransaction(installs, removes)
	if len(res.Problems) > 0 {
		return &ResolutionError{Problems: res.Problems}
	}
	if res.Affected() == 0 {
		return &EmptyTransactionError{Installs: installs, Removes: removes}
	}

	if err := guard.Handle.Apply(res); err != nil {
		return err
	}

	p.Clear()

	// The on-disk state changed; the old handle is a lie now.
	if err := mgr.rebuildLocked(ctx, guard); err != nil {
		return err
	}
	return nil
}
