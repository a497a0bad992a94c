//go:build highs

package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/gridinertia/core/factory"
	"github.com/ohowland/highs"
)

// HiGHS hands a Problem to the HiGHS LP/MIP solver through its C API.
// Building it needs cgo and a libhighs visible to pkg-config, so it is only
// compiled with the highs build tag.
type HiGHS struct {
	// Solver selects the HiGHS algorithm ("choose", "simplex", "ipm").
	Solver string
	// Presolve is passed through as the presolve option ("choose", "on", "off").
	Presolve string
}

// Solve implements Solver. HiGHS cannot be interrupted once started, so a
// context deadline abandons the run and lets it finish in the background.
func (s *HiGHS) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if len(p.Variables) == 0 {
		return Solution{Status: StatusOptimal, Objective: p.Offset, Values: []float64{}}, nil
	}
	costs, bounds, rows, integrality, err := highsModel(p)
	if err != nil {
		return Solution{Status: StatusError}, err
	}

	type result struct {
		status highs.ModelStatus
		x      []float64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("highs panic: %v", r)}
			}
		}()
		h, err := highs.New(costs, bounds, rows, integrality)
		if err != nil {
			done <- result{err: err}
			return
		}
		h.SetObjectiveSense(highs.Minimize)
		if s != nil && s.Solver != "" {
			h.SetStringOptionValue("solver", s.Solver)
		}
		if s != nil && s.Presolve != "" {
			h.SetStringOptionValue("presolve", s.Presolve)
		}
		h.SetBoolOptionValue("output_flag", false)
		// RunSolver reports every non-optimal outcome as an error; the model
		// status tells infeasible and unbounded apart from real failures.
		_, runErr := h.RunSolver()
		status := h.GetModelStatus()
		if status != highs.ModelOptimal {
			done <- result{status: status, err: runErr}
			return
		}
		done <- result{status: status, x: h.PrimalColumnSolution()}
	}()

	var r result
	select {
	case <-ctx.Done():
		return Solution{Status: StatusError}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case r = <-done:
	}

	switch r.status {
	case highs.ModelOptimal:
	case highs.ModelInfeasible:
		return Solution{Status: StatusInfeasible, Nodes: 1}, nil
	case highs.ModelUnbounded, highs.ModelUnboundedOrInfeasible:
		return Solution{Status: StatusUnbounded, Nodes: 1}, nil
	case highs.ModelTimeLimit, highs.ModelIterationLimit:
		return Solution{Status: StatusError}, fmt.Errorf("%w: highs stopped with %s", ErrTimeout, r.status)
	default:
		if r.err == nil {
			r.err = fmt.Errorf("model status %s", r.status)
		}
		return Solution{Status: StatusError}, fmt.Errorf("highs: %w", r.err)
	}
	if len(r.x) != len(p.Variables) {
		return Solution{Status: StatusError}, fmt.Errorf("highs: %d primal values for %d variables", len(r.x), len(p.Variables))
	}

	values := make([]float64, len(r.x))
	for j, v := range p.Variables {
		x := math.Min(math.Max(r.x[j], v.Lower), v.Upper)
		if v.Integer {
			x = math.Round(x)
		}
		values[j] = x
	}
	return Solution{Status: StatusOptimal, Objective: p.Evaluate(values), Values: values, Nodes: 1}, nil
}

// highsModel lays p out the way the binding expects: dense rows of the form
// [lower, coefficients..., upper] and an integrality vector that stays empty
// for a pure LP.
func highsModel(p *Problem) ([]float64, [][2]float64, [][]float64, []int, error) {
	n := len(p.Variables)
	costs := make([]float64, n)
	copy(costs, p.Cost)
	bounds := make([][2]float64, n)
	for j, v := range p.Variables {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return nil, nil, nil, nil, fmt.Errorf("%w: variable %s has a NaN bound", ErrUnsupported, v.Name)
		}
		bounds[j] = [2]float64{v.Lower, v.Upper}
	}

	rows := make([][]float64, 0, len(p.Constraints)+1)
	for _, c := range p.Constraints {
		r := make([]float64, n+2)
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= n {
				return nil, nil, nil, nil, fmt.Errorf("%w: constraint %s references variable %d", ErrUnsupported, c.Name, t.Var)
			}
			r[t.Var+1] += t.Coef
		}
		switch c.Sense {
		case LessEqual:
			r[0], r[n+1] = math.Inf(-1), c.RHS
		case GreaterEqual:
			r[0], r[n+1] = c.RHS, math.Inf(1)
		default:
			r[0], r[n+1] = c.RHS, c.RHS
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		// The binding sizes its matrix from the first row.
		r := make([]float64, n+2)
		r[0], r[n+1] = math.Inf(-1), math.Inf(1)
		rows = append(rows, r)
	}

	var integrality []int
	if p.NumIntegers() > 0 {
		integrality = make([]int, n)
		for j, v := range p.Variables {
			if v.Integer {
				integrality[j] = int(highs.Integer)
			}
		}
	}
	return costs, bounds, rows, integrality, nil
}

func init() {
	_ = Register("highs", func(conf map[string]any) (Solver, error) {
		var c struct {
			Solver   string `json:"solver"`
			Presolve string `json:"presolve"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return &HiGHS{Solver: c.Solver, Presolve: c.Presolve}, nil
	})
}
