package dispatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/gridinertia/core/metrics"
	"github.com/kilianp07/gridinertia/core/solver"
)

// verifyTolerance is the relative tolerance an optimal solution must meet
// on every compiled row before it is accepted.
const verifyTolerance = 1e-6

// Solve hands the compiled problem to s. A Model is solve-once: a second
// call fails with ErrAlreadySolved whatever the first outcome was.
//
// Infeasible models return an *InfeasibleError. Unbounded models, backend
// failures and context expiry return a *SolverError; the latter wraps
// solver.ErrTimeout. No partial solution is kept in either case.
func (m *Model) Solve(ctx context.Context, s solver.Solver) error {
	if m.solved {
		return ErrAlreadySolved
	}
	m.solved = true
	m.status = solver.StatusError
	if s == nil {
		return &SolverError{Status: solver.StatusError, Err: fmt.Errorf("nil solver")}
	}

	start := time.Now()
	sol, err := s.Solve(ctx, &m.problem)
	elapsed := time.Since(start)
	if err == nil && sol.Status == solver.StatusOptimal {
		if verr := m.problem.Check(sol.Values, verifyTolerance); verr != nil {
			sol.Status = solver.StatusError
			err = fmt.Errorf("solution failed verification: %w", verr)
		}
	}
	m.status = sol.Status
	if err != nil && m.status == solver.StatusOptimal {
		m.status = solver.StatusError
	}
	m.record(s, sol, elapsed)

	switch {
	case err != nil:
		m.log.Errorf("solve failed after %s: %v", elapsed, err)
		return &SolverError{Status: sol.Status, Err: err}
	case sol.Status == solver.StatusOptimal:
		m.sol = sol
		m.log.Infof("solve optimal after %s: objective %.6g, %d nodes", elapsed, sol.Objective, sol.Nodes)
		m.recordInertia()
		return nil
	case sol.Status == solver.StatusInfeasible:
		ierr := m.diagnose()
		m.log.Warnf("solve infeasible after %s: %v", elapsed, ierr)
		return ierr
	case sol.Status == solver.StatusUnbounded:
		m.log.Errorf("solve unbounded after %s", elapsed)
		return &SolverError{Status: sol.Status, Err: ErrUnbounded}
	default:
		return &SolverError{Status: sol.Status, Err: fmt.Errorf("solver returned status %s", sol.Status)}
	}
}

// Status returns the status of the last solve, or false before Solve.
func (m *Model) Status() (solver.Status, bool) {
	return m.status, m.solved
}

// Objective returns the optimal objective value.
func (m *Model) Objective() (float64, error) {
	if !m.optimal() {
		return 0, ErrNotSolved
	}
	return m.sol.Objective, nil
}

func (m *Model) optimal() bool {
	return m.solved && m.status == solver.StatusOptimal && m.sol.Values != nil
}

func (m *Model) record(s solver.Solver, sol solver.Solution, elapsed time.Duration) {
	if m.opts.Metrics == nil {
		return
	}
	name := m.opts.SolverName
	if name == "" {
		name = fmt.Sprintf("%T", s)
	}
	st := m.Stats()
	ev := metrics.SolveEvent{
		RunID:       m.opts.RunID,
		Scenario:    m.opts.Scenario,
		Solver:      name,
		Status:      m.status.String(),
		Objective:   sol.Objective,
		Variables:   st.Variables,
		Constraints: st.Constraints,
		Integers:    st.Integers,
		Nodes:       sol.Nodes,
		Duration:    elapsed,
		Time:        time.Now(),
	}
	if err := m.opts.Metrics.RecordSolve(ev); err != nil {
		m.log.Warnf("solve metrics error: %v", err)
	}
}

func (m *Model) recordInertia() {
	rec, ok := m.opts.Metrics.(metrics.InertiaRecorder)
	if !ok {
		return
	}
	res, err := m.Results()
	if err != nil {
		m.log.Warnf("inertia metrics: %v", err)
		return
	}
	summary := res.Inertia()
	steps := make([]metrics.InertiaStep, len(summary))
	for i, s := range summary {
		steps[i] = metrics.InertiaStep{
			RunID:                m.opts.RunID,
			Scenario:             m.opts.Scenario,
			Time:                 s.Time,
			ApparentPower:        s.ApparentPower,
			SynchronousEnergy:    s.SynchronousEnergy,
			SyntheticEnergy:      s.SyntheticEnergy,
			SynchronousThreshold: s.SynchronousThreshold,
			TotalThreshold:       s.TotalThreshold,
		}
	}
	if err := rec.RecordInertia(steps); err != nil {
		m.log.Warnf("inertia metrics error: %v", err)
	}
}

// diagnose looks for a step where the bounds alone rule out a schedule.
// Fixed balance mismatches are checked first, then the kinetic energy
// floors against the most energy the inertia edges can reach.
func (m *Model) diagnose() *InfeasibleError {
	if e := m.diagnoseBalance(); e != nil {
		return e
	}
	sync, total := m.es.SynchronousThreshold(), m.es.TotalThreshold()
	for t := 0; t < m.steps(); t++ {
		var maxSync, maxAll float64
		for _, edge := range m.inertia {
			if edge.vars == nil {
				continue
			}
			e := edge.energy() * m.maxIndicator(edge, t)
			maxAll += e
			if edge.provision.Synchronous() {
				maxSync += e
			}
		}
		if sync > 0 && maxSync < sync*(1-1e-9) {
			return &InfeasibleError{Step: t, Constraint: ConstraintSynchronousInertia,
				Detail: fmt.Sprintf("at most %.6g of %.6g kinetic energy attainable", maxSync, sync)}
		}
		if total > 0 && maxAll < total*(1-1e-9) {
			return &InfeasibleError{Step: t, Constraint: ConstraintTotalInertia,
				Detail: fmt.Sprintf("at most %.6g of %.6g kinetic energy attainable", maxAll, total)}
		}
	}
	return &InfeasibleError{Step: -1}
}

// maxIndicator bounds source_inertia at step t from the paired flow's upper
// bound and the edge's linking row.
func (m *Model) maxIndicator(edge *inertiaEdge, t int) float64 {
	_, hi := edge.paired.flow.Bounds(t)
	switch {
	case edge.provision.Synthetic():
		return math.Min(1, hi/edge.apparent)
	case edge.msf == 0:
		return 1
	case m.opts.RelaxCommitment:
		return math.Min(1, hi/(edge.msf*edge.apparent))
	case hi >= edge.msf*edge.apparent*(1-1e-9):
		return 1
	default:
		return 0
	}
}

func (m *Model) diagnoseBalance() *InfeasibleError {
	for _, b := range m.es.Buses() {
		if !b.Balanced {
			continue
		}
		in, out := m.busIn[b.Label], m.busOut[b.Label]
		if len(in)+len(out) == 0 || !allFixed(in) || !allFixed(out) {
			continue
		}
		for t := 0; t < m.steps(); t++ {
			var sum float64
			for _, f := range in {
				sum += f.flow.Fix[t]
			}
			for _, f := range out {
				sum -= f.flow.Fix[t]
			}
			if math.Abs(sum) > verifyTolerance {
				return &InfeasibleError{Step: t, Constraint: ConstraintBalance, Label: b.Label,
					Detail: fmt.Sprintf("fixed flows leave %.6g unbalanced", sum)}
			}
		}
	}
	return nil
}

func allFixed(fs []*flowVar) bool {
	for _, f := range fs {
		if !f.flow.Fixed() {
			return false
		}
	}
	return true
}
