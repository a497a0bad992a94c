package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/gridinertia/core/solver"
)

var (
	// ErrInfeasible is wrapped by every InfeasibleError.
	ErrInfeasible = errors.New("model infeasible")
	// ErrUnbounded is wrapped by the SolverError of an unbounded model.
	ErrUnbounded = errors.New("model unbounded")
	// ErrAlreadySolved is returned when Solve is called twice on one Model.
	ErrAlreadySolved = errors.New("model already solved")
	// ErrNotSolved is returned when results are requested from a Model
	// without an optimal solution.
	ErrNotSolved = errors.New("model has no optimal solution")
	// ErrKeyNotFound is wrapped by DecodeError for edges that were never compiled.
	ErrKeyNotFound = errors.New("result key not found")
)

// ConstraintKind names the family of a compiled row.
type ConstraintKind string

const (
	ConstraintBalance            ConstraintKind = "balance"
	ConstraintTransformer        ConstraintKind = "conversion"
	ConstraintStorage            ConstraintKind = "storage_level"
	ConstraintStorageBalanced    ConstraintKind = "storage_balanced"
	ConstraintMinimumStable      ConstraintKind = "minimum_stable_operation"
	ConstraintCommitment         ConstraintKind = "commitment"
	ConstraintSyntheticDispatch  ConstraintKind = "synthetic_dispatch"
	ConstraintSynchronousInertia ConstraintKind = "synchronous_inertia"
	ConstraintTotalInertia       ConstraintKind = "total_inertia"
)

// InfeasibleError reports that no schedule satisfies the model. Step and
// Constraint locate the cause when it could be proven from the bounds alone;
// Step is -1 otherwise.
type InfeasibleError struct {
	Step       int
	Constraint ConstraintKind
	// Label is the bus or node involved, when one is.
	Label  string
	Detail string
}

func (e *InfeasibleError) Error() string {
	msg := ErrInfeasible.Error()
	if e.Step >= 0 {
		msg += fmt.Sprintf(" at step %d", e.Step)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (%s", e.Constraint)
		if e.Label != "" {
			msg += " on " + e.Label
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

// SolverError reports a backend failure, a timeout or an unbounded model.
type SolverError struct {
	Status solver.Status
	Err    error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("solver error (status %s): %v", e.Status, e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }

// DecodeError reports a failed result query.
type DecodeError struct {
	Key Key
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
