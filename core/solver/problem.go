package solver

import (
	"fmt"
	"math"
)

// Sense is the relation of a constraint row to its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

// String returns the usual operator for the sense.
func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Term is a coefficient applied to a variable index.
type Term struct {
	Var  int
	Coef float64
}

// Variable is a decision variable with box bounds. Upper may be +Inf;
// Lower must be finite.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Constraint is a linear row Σ coef·x (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimisation LP/MILP: min Σ cost·x + Offset.
type Problem struct {
	Variables   []Variable
	Constraints []Constraint
	Cost        []float64
	Offset      float64
}

// AddVariable appends a variable and returns its index.
func (p *Problem) AddVariable(name string, lower, upper, cost float64, integer bool) int {
	p.Variables = append(p.Variables, Variable{Name: name, Lower: lower, Upper: upper, Integer: integer})
	p.Cost = append(p.Cost, cost)
	return len(p.Variables) - 1
}

// AddConstraint appends a row.
func (p *Problem) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// NumIntegers returns the number of integer variables.
func (p *Problem) NumIntegers() int {
	n := 0
	for _, v := range p.Variables {
		if v.Integer {
			n++
		}
	}
	return n
}

// Evaluate returns the objective value of x.
func (p *Problem) Evaluate(x []float64) float64 {
	obj := p.Offset
	for j, c := range p.Cost {
		obj += c * x[j]
	}
	return obj
}

// Activity returns Σ coef·x of a row.
func (c Constraint) Activity(x []float64) float64 {
	var s float64
	for _, t := range c.Terms {
		s += t.Coef * x[t.Var]
	}
	return s
}

// Check verifies that x satisfies bounds, integrality and every row within
// tol, scaled by the largest magnitude among the right-hand side and the
// row's terms.
func (p *Problem) Check(x []float64, tol float64) error {
	if len(x) != len(p.Variables) {
		return fmt.Errorf("solution has %d values, problem has %d variables", len(x), len(p.Variables))
	}
	for j, v := range p.Variables {
		scale := tol * math.Max(1, math.Abs(x[j]))
		if x[j] < v.Lower-scale || x[j] > v.Upper+scale {
			return fmt.Errorf("variable %s = %g outside [%g, %g]", v.Name, x[j], v.Lower, v.Upper)
		}
		if v.Integer && math.Abs(x[j]-math.Round(x[j])) > tol {
			return fmt.Errorf("variable %s = %g is not integral", v.Name, x[j])
		}
	}
	for _, c := range p.Constraints {
		act := c.Activity(x)
		mag := math.Max(1, math.Abs(c.RHS))
		for _, t := range c.Terms {
			mag = math.Max(mag, math.Abs(t.Coef*x[t.Var]))
		}
		scale := tol * mag
		var ok bool
		switch c.Sense {
		case LessEqual:
			ok = act <= c.RHS+scale
		case GreaterEqual:
			ok = act >= c.RHS-scale
		case Equal:
			ok = math.Abs(act-c.RHS) <= scale
		}
		if !ok {
			return fmt.Errorf("constraint %s violated: %g %s %g", c.Name, act, c.Sense, c.RHS)
		}
	}
	return nil
}

// withBounds returns a shallow copy of p whose variables use the given bounds.
func (p *Problem) withBounds(lower, upper []float64) *Problem {
	vars := make([]Variable, len(p.Variables))
	copy(vars, p.Variables)
	for j := range vars {
		vars[j].Lower = lower[j]
		vars[j].Upper = upper[j]
	}
	return &Problem{Variables: vars, Constraints: p.Constraints, Cost: p.Cost, Offset: p.Offset}
}
