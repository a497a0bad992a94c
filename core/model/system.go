package model

import (
	"fmt"
	"math"
	"sort"
)

// DefaultFrequency is the nominal grid frequency in Hz.
const DefaultFrequency = 50.0

// Params holds the system-wide inertia requirements.
type Params struct {
	// MinSynchronousInertia is the minimum moment of inertia J (kg·m²) that
	// synchronous units must keep in service.
	MinSynchronousInertia float64
	// MinTotalInertia is the minimum moment of inertia including synthetic units.
	MinTotalInertia float64
	// EmulatedInertiaConstant is the H (s) used for synthetic providers
	// without an explicit constant.
	EmulatedInertiaConstant float64
	// Frequency is the nominal frequency f₀; zero means DefaultFrequency.
	Frequency float64
}

// KineticEnergy converts a moment of inertia into the rotational energy
// ½·J·(2πf₀)² stored at nominal frequency.
func (p Params) KineticEnergy(j float64) float64 {
	w := 2 * math.Pi * p.frequency()
	return 0.5 * j * w * w
}

func (p Params) frequency() float64 {
	if p.Frequency == 0 {
		return DefaultFrequency
	}
	return p.Frequency
}

func (p Params) validate() error {
	for name, v := range map[string]float64{
		"minimum_synchronous_inertia": p.MinSynchronousInertia,
		"minimum_total_inertia":       p.MinTotalInertia,
		"emulated_inertia_constant":   p.EmulatedInertiaConstant,
		"frequency":                   p.Frequency,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return configErr("", name, ErrInvalidParameter, "%v must be finite and >= 0", v)
		}
	}
	return nil
}

// Entity is anything a Builder registers: a Bus or a Node.
type Entity interface {
	entityLabel() string
}

// Builder accumulates buses and nodes and freezes them into an EnergySystem.
// Buses must be added before the nodes that reference them. A Builder is
// not safe for concurrent use.
type Builder struct {
	index  TimeIndex
	params Params
	buses  []Bus
	nodes  []Node
	busIdx map[string]Bus
	labels map[string]struct{}
	built  bool
}

// NewBuilder starts an energy system over index with the given requirements.
func NewBuilder(index TimeIndex, params Params) *Builder {
	return &Builder{
		index:  index,
		params: params,
		busIdx: make(map[string]Bus),
		labels: make(map[string]struct{}),
	}
}

// Add registers buses and nodes in order. It stops at the first invalid
// entity; entities registered before it stay registered.
func (b *Builder) Add(items ...Entity) error {
	if b.built {
		return configErr("", "", ErrFrozen, "cannot add after Build")
	}
	for _, it := range items {
		label := it.entityLabel()
		if _, dup := b.labels[label]; dup {
			return configErr(label, "label", ErrDuplicateLabel, "label already registered")
		}
		switch e := it.(type) {
		case Bus:
			if e.Label == "" {
				return configErr("", "label", ErrInvalidParameter, "bus label must not be empty")
			}
			b.buses = append(b.buses, e)
			b.busIdx[e.Label] = e
		case Node:
			if err := e.validate(b.busIdx, b.params, b.index.Periods); err != nil {
				return err
			}
			b.nodes = append(b.nodes, e.clone())
		default:
			return configErr(label, "", ErrInvalidParameter, "unsupported entity %T", it)
		}
		b.labels[label] = struct{}{}
	}
	return nil
}

// AddBus registers buses.
func (b *Builder) AddBus(buses ...Bus) error {
	for _, bus := range buses {
		if err := b.Add(bus); err != nil {
			return err
		}
	}
	return nil
}

// AddNode registers nodes. Their buses must already be registered.
func (b *Builder) AddNode(nodes ...Node) error {
	for _, n := range nodes {
		if err := b.Add(n); err != nil {
			return err
		}
	}
	return nil
}

// Build validates the system-wide parameters and returns the frozen system.
func (b *Builder) Build() (*EnergySystem, error) {
	if b.built {
		return nil, configErr("", "", ErrFrozen, "Build called twice")
	}
	if err := b.index.validate(); err != nil {
		return nil, err
	}
	if err := b.params.validate(); err != nil {
		return nil, err
	}
	b.built = true
	es := &EnergySystem{
		index:  b.index,
		params: b.params,
		buses:  b.buses,
		nodes:  b.nodes,
		busPos: make(map[string]int, len(b.buses)),
		nodPos: make(map[string]int, len(b.nodes)),
	}
	if es.params.Frequency == 0 {
		es.params.Frequency = DefaultFrequency
	}
	for i, bus := range es.buses {
		es.busPos[bus.Label] = i
	}
	for i, n := range es.nodes {
		es.nodPos[n.Label] = i
	}
	return es, nil
}

// EnergySystem is an immutable snapshot of buses, nodes, the time index and
// the inertia requirements. Accessors return copies.
type EnergySystem struct {
	index  TimeIndex
	params Params
	buses  []Bus
	nodes  []Node
	busPos map[string]int
	nodPos map[string]int
}

// Index returns the time index.
func (es *EnergySystem) Index() TimeIndex { return es.index }

// Params returns the inertia requirements, with the frequency resolved.
func (es *EnergySystem) Params() Params { return es.params }

// Buses returns the buses in registration order.
func (es *EnergySystem) Buses() []Bus { return append([]Bus(nil), es.buses...) }

// Nodes returns the nodes in registration order.
func (es *EnergySystem) Nodes() []Node {
	out := make([]Node, len(es.nodes))
	for i, n := range es.nodes {
		out[i] = n.clone()
	}
	return out
}

// Bus looks up a bus by label.
func (es *EnergySystem) Bus(label string) (Bus, bool) {
	i, ok := es.busPos[label]
	if !ok {
		return Bus{}, false
	}
	return es.buses[i], true
}

// Node looks up a node by label.
func (es *EnergySystem) Node(label string) (Node, bool) {
	i, ok := es.nodPos[label]
	if !ok {
		return Node{}, false
	}
	return es.nodes[i].clone(), true
}

// SynchronousThreshold is the kinetic energy synchronous units must hold at
// every step.
func (es *EnergySystem) SynchronousThreshold() float64 {
	return es.params.KineticEnergy(es.params.MinSynchronousInertia)
}

// TotalThreshold is the kinetic energy all providers must hold at every step.
func (es *EnergySystem) TotalThreshold() float64 {
	return es.params.KineticEnergy(es.params.MinTotalInertia)
}

// Labels returns every registered label, sorted.
func (es *EnergySystem) Labels() []string {
	out := make([]string, 0, len(es.buses)+len(es.nodes))
	for _, b := range es.buses {
		out = append(out, b.Label)
	}
	for _, n := range es.nodes {
		out = append(out, n.Label)
	}
	sort.Strings(out)
	return out
}

func (es *EnergySystem) String() string {
	return fmt.Sprintf("energy system: %d buses, %d nodes, %d steps of %s",
		len(es.buses), len(es.nodes), es.index.Periods, es.index.Step)
}
