package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the reduced-cost tolerance handed to the simplex.
const DefaultTolerance = 1e-9

// Simplex solves the LP relaxation of a Problem with gonum's dense simplex.
// Integer flags are ignored.
type Simplex struct {
	Tolerance float64
}

// NewSimplex returns a Simplex using tol, or DefaultTolerance when tol <= 0.
func NewSimplex(tol float64) *Simplex {
	return &Simplex{Tolerance: tol}
}

// lpSimplex points to the function used to solve the standard-form LP. It
// can be overridden in tests to simulate backend failures.
var lpSimplex = lp.Simplex

func (s *Simplex) tol() float64 {
	if s == nil || s.Tolerance <= 0 {
		return DefaultTolerance
	}
	return s.Tolerance
}

// Solve implements Solver.
func (s *Simplex) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	tol := s.tol()
	sf, status, err := toStandardForm(p, tol)
	if err != nil {
		return Solution{Status: StatusError}, err
	}
	if status != StatusOptimal {
		return Solution{Status: status, Nodes: 1}, nil
	}
	var x []float64
	if len(sf.b) > 0 {
		var (
			res lpResult
			err error
		)
		if r, c := sf.a.Dims(); r == c {
			res = solveSquare(sf, tol)
		} else {
			res, err = runSimplex(ctx, sf, tol)
		}
		if err != nil {
			return Solution{Status: StatusError}, err
		}
		switch {
		case errors.Is(res.err, lp.ErrInfeasible):
			return Solution{Status: StatusInfeasible, Nodes: 1}, nil
		case errors.Is(res.err, lp.ErrUnbounded):
			return Solution{Status: StatusUnbounded, Nodes: 1}, nil
		case res.err != nil:
			return Solution{Status: StatusError, Nodes: 1}, fmt.Errorf("simplex: %w", res.err)
		}
		x = res.x
	}
	values := sf.recover(p, x)
	return Solution{Status: StatusOptimal, Objective: p.Evaluate(values), Values: values, Nodes: 1}, nil
}

type lpResult struct {
	x   []float64
	err error
}

// runSimplex runs the gonum solver in its own goroutine so that a context
// deadline can abandon it. gonum offers no way to interrupt the iteration,
// so an abandoned run finishes in the background and its result is dropped.
func runSimplex(ctx context.Context, sf *standardForm, tol float64) (lpResult, error) {
	done := make(chan lpResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- lpResult{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		_, x, err := lpSimplex(sf.c, sf.a, sf.b, tol, nil)
		done <- lpResult{x: x, err: err}
	}()
	select {
	case <-ctx.Done():
		return lpResult{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case r := <-done:
		return r, nil
	}
}

// solveSquare handles a standard form with as many rows as columns, which
// leaves a single candidate point and nothing for gonum to pivot on.
func solveSquare(sf *standardForm, tol float64) lpResult {
	var z mat.VecDense
	if err := z.SolveVec(sf.a, mat.NewVecDense(len(sf.b), sf.b)); err != nil {
		return lpResult{err: err}
	}
	x := z.RawVector().Data
	for _, v := range x {
		if v < -tol*1e3 {
			return lpResult{err: lp.ErrInfeasible}
		}
	}
	return lpResult{x: x}
}

// standardForm is min cᵀz s.t. A z = b, z >= 0, where z holds the shifted
// non-fixed variables followed by one slack per row.
type standardForm struct {
	c    []float64
	a    *mat.Dense
	b    []float64
	base []float64 // value of each variable at z = 0
	col  []int     // column of each variable in z, -1 when presolved away
}

type row struct {
	coefs map[int]float64
	sense Sense
	rhs   float64
}

// toStandardForm presolves p and converts it to the form gonum expects.
//
// Fixed variables and rows without remaining variables are removed, since
// gonum rejects zero rows and columns. Lower bounds are shifted to zero.
// Inequality rows get a slack, equality rows are kept as they are after
// linearly dependent ones are dropped, and finite upper bounds only become
// rows when no other row already implies them.
func toStandardForm(p *Problem, tol float64) (*standardForm, Status, error) {
	n := len(p.Variables)
	sf := &standardForm{base: make([]float64, n), col: make([]int, n)}
	inLP := make([]bool, n)
	for j, v := range p.Variables {
		if math.IsInf(v.Lower, 0) || math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return nil, StatusError, fmt.Errorf("%w: variable %s needs a finite lower bound", ErrUnsupported, v.Name)
		}
		if v.Upper < v.Lower-tol {
			return sf, StatusInfeasible, nil
		}
		sf.base[j] = v.Lower
		inLP[j] = v.Upper > v.Lower
	}

	rows := make([]row, 0, len(p.Constraints))
	active := make([]int, n)
	for _, c := range p.Constraints {
		r := row{coefs: make(map[int]float64, len(c.Terms)), sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= n {
				return nil, StatusError, fmt.Errorf("%w: constraint %s references variable %d", ErrUnsupported, c.Name, t.Var)
			}
			r.rhs -= t.Coef * sf.base[t.Var]
			if inLP[t.Var] {
				r.coefs[t.Var] += t.Coef
			}
		}
		for j, a := range r.coefs {
			if a == 0 {
				delete(r.coefs, j)
			}
		}
		if len(r.coefs) == 0 {
			if !constantRowHolds(r, tol) {
				return sf, StatusInfeasible, nil
			}
			continue
		}
		for j := range r.coefs {
			active[j]++
		}
		rows = append(rows, r)
	}

	for j := range p.Variables {
		if !inLP[j] || active[j] > 0 {
			continue
		}
		inLP[j] = false
		if p.Cost[j] < 0 {
			if math.IsInf(p.Variables[j].Upper, 1) {
				return sf, StatusUnbounded, nil
			}
			sf.base[j] = p.Variables[j].Upper
		}
	}

	nStruct := 0
	for j := range p.Variables {
		sf.col[j] = -1
		if !inLP[j] {
			continue
		}
		sf.col[j] = nStruct
		nStruct++
	}

	rows, ok := independentRows(rows, sf.col, nStruct, tol)
	if !ok {
		return sf, StatusInfeasible, nil
	}
	implied := impliedUpper(rows)
	var upper []int
	for j, v := range p.Variables {
		if sf.col[j] < 0 || math.IsInf(v.Upper, 1) {
			continue
		}
		if ub, found := implied[j]; found && ub <= v.Upper-v.Lower+tol {
			continue
		}
		upper = append(upper, j)
	}

	m := len(rows) + len(upper)
	if m == 0 {
		return sf, StatusOptimal, nil
	}
	slacks := len(upper)
	for _, r := range rows {
		if r.sense != Equal {
			slacks++
		}
	}

	sf.a = mat.NewDense(m, nStruct+slacks, nil)
	sf.b = make([]float64, m)
	sf.c = make([]float64, nStruct+slacks)
	for j := range p.Variables {
		if sf.col[j] >= 0 {
			sf.c[sf.col[j]] = p.Cost[j]
		}
	}

	i, s := 0, nStruct
	emit := func(coefs map[int]float64, sign, rhs float64, slack bool) {
		scale := 0.0
		for _, a := range coefs {
			scale = math.Max(scale, math.Abs(a))
		}
		for j, a := range coefs {
			sf.a.Set(i, sf.col[j], sign*a/scale)
		}
		if slack {
			sf.a.Set(i, s, 1)
			s++
		}
		sf.b[i] = sign * rhs / scale
		i++
	}
	for _, r := range rows {
		switch r.sense {
		case LessEqual:
			emit(r.coefs, 1, r.rhs, true)
		case GreaterEqual:
			emit(r.coefs, -1, r.rhs, true)
		case Equal:
			emit(r.coefs, 1, r.rhs, false)
		}
	}
	for _, j := range upper {
		v := p.Variables[j]
		emit(map[int]float64{j: 1}, 1, v.Upper-v.Lower, true)
	}
	return sf, StatusOptimal, nil
}

// independentRows drops equality rows that are linear combinations of the
// equality rows before them, so that A keeps full row rank without a slack
// on every row. It reports false when a dropped row contradicts the others.
// Inequality rows own a slack column and are always kept.
func independentRows(rows []row, col []int, width int, tol float64) ([]row, bool) {
	type pivot struct {
		vec []float64
		rhs float64
		at  int
	}
	var basis []pivot
	kept := rows[:0:0]
	for _, r := range rows {
		if r.sense != Equal {
			kept = append(kept, r)
			continue
		}
		vec := make([]float64, width)
		for j, a := range r.coefs {
			vec[col[j]] = a
		}
		scale := floats.Norm(vec, math.Inf(1))
		floats.Scale(1/scale, vec)
		rhs := r.rhs / scale
		for _, b := range basis {
			if f := vec[b.at]; f != 0 {
				floats.AddScaled(vec, -f/b.vec[b.at], b.vec)
				rhs -= f / b.vec[b.at] * b.rhs
				vec[b.at] = 0
			}
		}
		at := floats.MaxIdx(absAll(vec))
		if math.Abs(vec[at]) <= tol*1e3 {
			if math.Abs(rhs) > tol*1e3*math.Max(1, math.Abs(r.rhs/scale)) {
				return nil, false
			}
			continue
		}
		basis = append(basis, pivot{vec: vec, rhs: rhs, at: at})
		kept = append(kept, r)
	}
	return kept, true
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

// impliedUpper returns the tightest upper bound, in shifted coordinates,
// that some row places on a variable. Only rows whose coefficients share a
// sign qualify, since every shifted variable is non-negative.
func impliedUpper(rows []row) map[int]float64 {
	out := make(map[int]float64)
	for _, r := range rows {
		sign := 0.0
		uniform := true
		for _, a := range r.coefs {
			s := math.Copysign(1, a)
			if sign == 0 {
				sign = s
			} else if s != sign {
				uniform = false
				break
			}
		}
		if !uniform {
			continue
		}
		switch {
		case r.sense == LessEqual && sign > 0, r.sense == GreaterEqual && sign < 0, r.sense == Equal:
		default:
			continue
		}
		for j, a := range r.coefs {
			ub := r.rhs / a
			if cur, ok := out[j]; !ok || ub < cur {
				out[j] = ub
			}
		}
	}
	return out
}

func constantRowHolds(r row, tol float64) bool {
	slack := tol * math.Max(1, math.Abs(r.rhs))
	switch r.sense {
	case LessEqual:
		return 0 <= r.rhs+slack
	case GreaterEqual:
		return 0 >= r.rhs-slack
	default:
		return math.Abs(r.rhs) <= slack
	}
}

// recover maps a standard-form point back to the problem's variables,
// snapping values onto bounds they overshoot by rounding noise.
func (sf *standardForm) recover(p *Problem, z []float64) []float64 {
	x := make([]float64, len(p.Variables))
	for j, v := range p.Variables {
		x[j] = sf.base[j]
		if k := sf.col[j]; k >= 0 && z != nil {
			x[j] += z[k]
		}
		x[j] = math.Min(math.Max(x[j], v.Lower), v.Upper)
	}
	return x
}
