//go:build highs

package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridinertia/core/factory"
)

func TestHighsModel_Layout(t *testing.T) {
	var p Problem
	x := p.AddVariable("x", 0, 4, 1, false)
	y := p.AddVariable("y", 1, math.Inf(1), 2, true)
	p.AddConstraint("le", LessEqual, 3, Term{x, 1}, Term{y, 2})
	p.AddConstraint("ge", GreaterEqual, 1, Term{x, 1})
	p.AddConstraint("eq", Equal, 2, Term{y, 1})

	costs, bounds, rows, integrality, err := highsModel(&p)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, costs)
	assert.Equal(t, [2]float64{0, 4}, bounds[x])
	assert.Equal(t, [][]float64{
		{math.Inf(-1), 1, 2, 3},
		{1, 1, 0, math.Inf(1)},
		{2, 0, 1, 2},
	}, rows)
	assert.Equal(t, []int{0, 1}, integrality)
}

func TestHighsModel_PureLPHasNoIntegrality(t *testing.T) {
	var p Problem
	p.AddVariable("x", 0, 1, 1, false)
	_, _, rows, integrality, err := highsModel(&p)
	require.NoError(t, err)
	assert.Nil(t, integrality)
	require.Len(t, rows, 1, "a free row keeps the matrix non-empty")
	assert.True(t, math.IsInf(rows[0][0], -1))
}

func TestHiGHS_Optimal(t *testing.T) {
	var p Problem
	x := p.AddVariable("x", 0, 1.5, 1, false)
	y := p.AddVariable("y", 0, math.Inf(1), 2, false)
	p.AddConstraint("demand", GreaterEqual, 2, Term{x, 1}, Term{y, 1})

	sol, err := (&HiGHS{}).Solve(context.Background(), &p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1.5, sol.Values[x], 1e-7)
	assert.InDelta(t, 0.5, sol.Values[y], 1e-7)
	assert.InDelta(t, 2.5, sol.Objective, 1e-7)
}

func TestHiGHS_Commitment(t *testing.T) {
	var p Problem
	f := p.AddVariable("flow", 0, 20, 1, false)
	u := p.AddVariable("u", 0, 1, 0, true)
	p.AddConstraint("msf", GreaterEqual, 0, Term{f, 1}, Term{u, -6})
	p.AddConstraint("floor", GreaterEqual, 40, Term{u, 80})

	sol, err := (&HiGHS{}).Solve(context.Background(), &p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 1.0, sol.Values[u])
	assert.InDelta(t, 6, sol.Values[f], 1e-7)
}

func TestHiGHS_Infeasible(t *testing.T) {
	var p Problem
	x := p.AddVariable("x", 0, 1, 1, false)
	p.AddConstraint("too_much", GreaterEqual, 2, Term{x, 1})

	sol, err := (&HiGHS{}).Solve(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestHiGHS_CancelledContext(t *testing.T) {
	var p Problem
	p.AddVariable("x", 0, 1, 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&HiGHS{}).Solve(ctx, &p)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHiGHS_IsDefault(t *testing.T) {
	assert.Equal(t, "highs", DefaultName())
	s, err := New(factory.ModuleConfig{Conf: map[string]any{"presolve": "off"}})
	require.NoError(t, err)
	require.IsType(t, &HiGHS{}, s)
	assert.Equal(t, "off", s.(*HiGHS).Presolve)
}
