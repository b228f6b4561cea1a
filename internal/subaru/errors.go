package subaru

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the pending-set apply path.
var (
	// ErrNoPendingActions means apply was requested with nothing marked.
	ErrNoPendingActions = errors.New("no pending actions to apply")

	// ErrNotRoot means the caller lacks the privilege required for a write.
	ErrNotRoot = errors.New("root privileges required")
)

// BuildError wraps a failure to construct the package index handle.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("index build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ResolutionError carries the itemized problems found while resolving a
// transaction. The pending set is left untouched so the user can edit it.
type ResolutionError struct {
	Problems []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("transaction cannot be resolved:\n  %s",
		strings.Join(e.Problems, "\n  "))
}

// EmptyTransactionError means the batch resolved to nothing to do. The
// preview echoes at most three specs per side.
type EmptyTransactionError struct {
	Installs []PackageSpec
	Removes  []PackageSpec
}

func (e *EmptyTransactionError) Error() string {
	return fmt.Sprintf("nothing to do (install: %s; remove: %s)",
		previewSpecs(e.Installs), previewSpecs(e.Removes))
}

// RunError carries the itemized messages from a failed apply step.
type RunError struct {
	Messages []string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("transaction failed:\n  %s",
		strings.Join(e.Messages, "\n  "))
}

// previewSpecs renders up to three specs, with an ellipsis when truncated.
func previewSpecs(specs []PackageSpec) string {
	if len(specs) == 0 {
		return "none"
	}
	names := make([]string, 0, 3)
	for i, s := range specs {
		if i == 3 {
			names = append(names, "...")
			break
		}
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}
