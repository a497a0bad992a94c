// Package model describes an energy system as a graph of commodity buses and
// nodes (sources, sinks, transformers, storages).
//
// Every node connects to buses through Flow edges. Units that contribute to
// grid inertia additionally carry an Inertia bundle attached to one of their
// outputs and pointing into an unbalanced inertia bus, so the commodity and
// the inertia network share a single per-unit bookkeeping.
//
// A system is assembled with a Builder and frozen with Build:
//
//	idx, _ := model.NewTimeIndex(start, time.Hour, 24)
//	b := model.NewBuilder(idx, model.Params{MinSynchronousInertia: 1963.6})
//	_ = b.Add(model.NewBus("bus_el"), model.NewInertiaBus("bus_inertia"))
//	_ = b.Add(model.NewSource("gas", []model.Port{{Bus: "bus_el"}}))
//	es, err := b.Build()
//
// Invalid definitions fail with a *ConfigurationError wrapping one of the
// sentinel errors of this package.
package model
