// Package dispatch compiles an energy system into a time-indexed LP/MILP,
// solves it through a solver.Solver and decodes the solution.
//
// Every balanced bus gets a balance row per step, transformers relate their
// inputs and outputs through conversion factors and storages carry a level
// from step to step. Inertia edges add a source_inertia indicator per step:
// synchronous units are committed while their paired output runs between
// the minimum stable fraction of their rating and their capacity, and
// dispatch nothing otherwise. Synthetic units count in proportion to their
// dispatch. Two rows per step then require the kinetic energy held by
// synchronous units, and by all units, to reach the system thresholds.
//
// Costs are hourly rates multiplied by the step length in hours.
//
// A Model is compiled once, solved once and decoded any number of times:
//
//	m, err := dispatch.NewModel(es, dispatch.Options{})
//	if err != nil {
//	    return err
//	}
//	if err := m.Solve(ctx, solver.NewBranchAndBound(nil)); err != nil {
//	    return err
//	}
//	res, _ := m.Results()
//	flow, err := res.Flow("coal", "bus_el")
package dispatch
