package solver

import (
	"context"
	"fmt"
	"math"
)

const (
	// DefaultNodeLimit bounds the number of relaxations branch and bound
	// may solve.
	DefaultNodeLimit = 10000
	// DefaultIntegralityTolerance is the distance to the nearest integer
	// under which a value counts as integral.
	DefaultIntegralityTolerance = 1e-6
)

// BranchAndBound solves MILPs by depth-first branch and bound over the
// integer variables, delegating each relaxation to LP.
type BranchAndBound struct {
	LP                   Solver
	IntegralityTolerance float64
	NodeLimit            int
}

// NewBranchAndBound returns a branch and bound solver on top of lp, falling
// back to a default Simplex when lp is nil.
func NewBranchAndBound(lp Solver) *BranchAndBound {
	if lp == nil {
		lp = NewSimplex(0)
	}
	return &BranchAndBound{LP: lp}
}

type bbNode struct {
	lower, upper []float64
}

// Solve implements Solver. Problems without integer variables are handed
// straight to the LP solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	lpSolver := b.LP
	if lpSolver == nil {
		lpSolver = NewSimplex(0)
	}
	if p.NumIntegers() == 0 {
		return lpSolver.Solve(ctx, p)
	}
	intTol := b.IntegralityTolerance
	if intTol <= 0 {
		intTol = DefaultIntegralityTolerance
	}
	limit := b.NodeLimit
	if limit <= 0 {
		limit = DefaultNodeLimit
	}

	root := bbNode{lower: make([]float64, len(p.Variables)), upper: make([]float64, len(p.Variables))}
	for j, v := range p.Variables {
		root.lower[j], root.upper[j] = v.Lower, v.Upper
		if v.Integer {
			root.lower[j] = math.Ceil(v.Lower - intTol)
			root.upper[j] = math.Floor(v.Upper + intTol)
		}
	}

	var (
		best  Solution
		found bool
		nodes int
	)
	stack := []bbNode{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Solution{Status: StatusError, Nodes: nodes}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if nodes >= limit {
			return Solution{Status: StatusError, Nodes: nodes}, fmt.Errorf("%w: %d nodes", ErrNodeLimit, nodes)
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sol, err := lpSolver.Solve(ctx, p.withBounds(node.lower, node.upper))
		nodes++
		if err != nil {
			return Solution{Status: StatusError, Nodes: nodes}, err
		}
		switch sol.Status {
		case StatusInfeasible:
			continue
		case StatusUnbounded:
			return Solution{Status: StatusUnbounded, Nodes: nodes}, nil
		case StatusError:
			return Solution{Status: StatusError, Nodes: nodes}, fmt.Errorf("relaxation failed at node %d", nodes)
		}
		if found && sol.Objective >= best.Objective-pruneGap(best.Objective) {
			continue
		}

		j, frac := mostFractional(p, sol.Values, intTol)
		if j < 0 {
			best, found = sol, true
			continue
		}
		down := bbNode{lower: node.lower, upper: cloneBounds(node.upper)}
		down.upper[j] = math.Floor(frac)
		up := bbNode{lower: cloneBounds(node.lower), upper: node.upper}
		up.lower[j] = math.Ceil(frac)
		stack = append(stack, down, up)
	}

	if !found {
		return Solution{Status: StatusInfeasible, Nodes: nodes}, nil
	}
	for j, v := range p.Variables {
		if v.Integer {
			best.Values[j] = math.Round(best.Values[j])
		}
	}
	best.Objective = p.Evaluate(best.Values)
	best.Nodes = nodes
	return best, nil
}

// mostFractional returns the integer variable whose value is furthest from
// an integer, or -1 when all are integral within tol.
func mostFractional(p *Problem, x []float64, tol float64) (int, float64) {
	idx, dist := -1, tol
	for j, v := range p.Variables {
		if !v.Integer {
			continue
		}
		d := math.Abs(x[j] - math.Round(x[j]))
		if d > dist {
			idx, dist = j, d
		}
	}
	if idx < 0 {
		return -1, 0
	}
	return idx, x[idx]
}

func pruneGap(obj float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(obj))
}

func cloneBounds(b []float64) []float64 {
	out := make([]float64, len(b))
	copy(out, b)
	return out
}
