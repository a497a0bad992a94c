package solver

import (
	"context"
	"errors"
)

// Status is the terminal state of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout is returned when the context expires before the solve ends.
	ErrTimeout = errors.New("solver timeout")
	// ErrNodeLimit is returned when branch and bound exhausts its node budget
	// before proving optimality.
	ErrNodeLimit = errors.New("branch and bound node limit reached")
	// ErrUnsupported is returned for problems a backend cannot represent.
	ErrUnsupported = errors.New("unsupported problem")
)

// Solution carries the primal values of an optimal solve. Values is nil
// unless Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	// Nodes is the number of relaxations solved.
	Nodes int
}

// Solver is the boundary to an LP/MILP backend. Infeasible and unbounded
// problems are reported through Status with a nil error; errors are reserved
// for backend failures and timeouts.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}
