package model

import (
	"fmt"
	"math"
)

// Kind is the closed set of node variants.
type Kind int

const (
	KindSource Kind = iota
	KindSink
	KindTransformer
	KindStorage
)

// String returns a human-readable representation of the node kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	case KindTransformer:
		return "transformer"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Port connects a node to a commodity bus through a Flow.
type Port struct {
	Bus  string
	Flow Flow
}

// InertiaPort attaches an Inertia bundle to the logical edge of one of the
// node's outputs. The inertia edge itself points into Bus.
type InertiaPort struct {
	Bus string
	// Output is the commodity output bus whose flow is the unit's dispatch.
	// Empty means the node's first output.
	Output  string
	Inertia Inertia
}

// StorageParams holds the storage-specific attributes of a storage node.
// Zero efficiencies are read as 1.
type StorageParams struct {
	NominalCapacity float64
	// InitialLevel is a fraction of NominalCapacity. Nil leaves it to the optimiser.
	InitialLevel *float64
	// Balanced forces the final level to equal the initial level.
	Balanced          bool
	InflowEfficiency  float64
	OutflowEfficiency float64
	// LossRate is the fraction of content lost per hour.
	LossRate float64
}

// InflowEff returns the effective inflow efficiency.
func (s StorageParams) InflowEff() float64 {
	if s.InflowEfficiency == 0 {
		return 1
	}
	return s.InflowEfficiency
}

// OutflowEff returns the effective outflow efficiency.
func (s StorageParams) OutflowEff() float64 {
	if s.OutflowEfficiency == 0 {
		return 1
	}
	return s.OutflowEfficiency
}

// Node is a source, sink, transformer or storage. Kind selects which fields
// are meaningful; Validate rejects combinations a kind does not support.
type Node struct {
	Label             string
	Kind              Kind
	Inputs            []Port
	Outputs           []Port
	Inertia           *InertiaPort
	ConversionFactors map[string]float64
	Storage           *StorageParams
}

// NodeOption customises a node created by one of the constructors.
type NodeOption func(*Node)

// WithInertia attaches an inertia edge into bus, paired with the first output.
func WithInertia(bus string, in Inertia) NodeOption {
	return func(n *Node) { n.Inertia = &InertiaPort{Bus: bus, Inertia: in} }
}

// WithPairedInertia attaches an inertia edge paired with a named output bus.
func WithPairedInertia(bus, output string, in Inertia) NodeOption {
	return func(n *Node) { n.Inertia = &InertiaPort{Bus: bus, Output: output, Inertia: in} }
}

// WithConversionFactor sets the conversion factor of a transformer port.
func WithConversionFactor(bus string, f float64) NodeOption {
	return func(n *Node) {
		if n.ConversionFactors == nil {
			n.ConversionFactors = make(map[string]float64)
		}
		n.ConversionFactors[bus] = f
	}
}

func newNode(label string, kind Kind, inputs, outputs []Port, opts []NodeOption) Node {
	n := Node{Label: label, Kind: kind, Inputs: inputs, Outputs: outputs}
	for _, o := range opts {
		o(&n)
	}
	return n
}

// NewSource creates a node with outputs only.
func NewSource(label string, outputs []Port, opts ...NodeOption) Node {
	return newNode(label, KindSource, nil, outputs, opts)
}

// NewSink creates a node consuming from a single input.
func NewSink(label string, input Port, opts ...NodeOption) Node {
	return newNode(label, KindSink, []Port{input}, nil, opts)
}

// NewTransformer creates a conversion node. Ports without a conversion
// factor use 1.
func NewTransformer(label string, inputs, outputs []Port, opts ...NodeOption) Node {
	return newNode(label, KindTransformer, inputs, outputs, opts)
}

// NewStorage creates a storage node charged through input and discharged
// through output.
func NewStorage(label string, input, output Port, params StorageParams, opts ...NodeOption) Node {
	n := newNode(label, KindStorage, []Port{input}, []Port{output}, opts)
	n.Storage = &params
	return n
}

// ConversionFactor returns the factor of the port on bus, 1 when unset.
func (n Node) ConversionFactor(bus string) float64 {
	if f, ok := n.ConversionFactors[bus]; ok {
		return f
	}
	return 1
}

// InertiaOutput returns the output port paired with the inertia edge.
func (n Node) InertiaOutput() (Port, bool) {
	if n.Inertia == nil || len(n.Outputs) == 0 {
		return Port{}, false
	}
	if n.Inertia.Output == "" {
		return n.Outputs[0], true
	}
	for _, p := range n.Outputs {
		if p.Bus == n.Inertia.Output {
			return p, true
		}
	}
	return Port{}, false
}

func (n Node) entityLabel() string { return n.Label }

func (n Node) clone() Node {
	c := n
	c.Inputs = clonePorts(n.Inputs)
	c.Outputs = clonePorts(n.Outputs)
	if n.Inertia != nil {
		ip := *n.Inertia
		ip.Inertia = n.Inertia.Inertia.clone()
		if ip.Output == "" && len(n.Outputs) > 0 {
			ip.Output = n.Outputs[0].Bus
		}
		c.Inertia = &ip
	}
	if n.ConversionFactors != nil {
		c.ConversionFactors = make(map[string]float64, len(n.ConversionFactors))
		for k, v := range n.ConversionFactors {
			c.ConversionFactors[k] = v
		}
	}
	if n.Storage != nil {
		sp := *n.Storage
		if n.Storage.InitialLevel != nil {
			sp.InitialLevel = Float64(*n.Storage.InitialLevel)
		}
		c.Storage = &sp
	}
	return c
}

func clonePorts(ps []Port) []Port {
	if ps == nil {
		return nil
	}
	out := make([]Port, len(ps))
	for i, p := range ps {
		out[i] = Port{Bus: p.Bus, Flow: p.Flow.clone()}
	}
	return out
}

// validate checks the node shape for its kind and every port against the
// buses registered so far.
func (n Node) validate(buses map[string]Bus, params Params, periods int) error {
	if err := n.validateShape(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, p := range n.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		if err := n.validatePort(p, field, buses, periods); err != nil {
			return err
		}
		if seen["in:"+p.Bus] {
			return configErr(n.Label, field, ErrDuplicateLabel, "input bus %q listed twice", p.Bus)
		}
		seen["in:"+p.Bus] = true
	}
	for i, p := range n.Outputs {
		field := fmt.Sprintf("outputs[%d]", i)
		if err := n.validatePort(p, field, buses, periods); err != nil {
			return err
		}
		if seen["out:"+p.Bus] {
			return configErr(n.Label, field, ErrDuplicateLabel, "output bus %q listed twice", p.Bus)
		}
		seen["out:"+p.Bus] = true
	}
	for bus, f := range n.ConversionFactors {
		if n.Kind != KindTransformer {
			return configErr(n.Label, "conversion_factors", ErrInvalidParameter, "only transformers take conversion factors")
		}
		if !seen["in:"+bus] && !seen["out:"+bus] {
			return configErr(n.Label, "conversion_factors", ErrUnresolvedReference, "bus %q is not a port of the node", bus)
		}
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return configErr(n.Label, "conversion_factors", ErrInvalidParameter, "factor %v for %q must be > 0", f, bus)
		}
	}
	if n.Storage != nil {
		if err := n.validateStorage(); err != nil {
			return err
		}
	}
	if n.Inertia != nil {
		return n.validateInertia(buses, params, seen)
	}
	return nil
}

func (n Node) validateShape() error {
	if n.Label == "" {
		return configErr("", "label", ErrInvalidParameter, "node label must not be empty")
	}
	var want string
	switch n.Kind {
	case KindSource:
		if len(n.Inputs) != 0 || len(n.Outputs) == 0 {
			want = "no inputs and at least one output"
		}
	case KindSink:
		if len(n.Inputs) != 1 || len(n.Outputs) != 0 {
			want = "exactly one input and no outputs"
		}
		if n.Inertia != nil {
			return configErr(n.Label, "inertia", ErrInvalidParameter, "sinks do not provide inertia")
		}
	case KindTransformer:
		if len(n.Inputs) == 0 || len(n.Outputs) == 0 {
			want = "at least one input and one output"
		}
	case KindStorage:
		if len(n.Inputs) != 1 || len(n.Outputs) != 1 || n.Storage == nil {
			want = "one input, one output and storage parameters"
		}
	default:
		return configErr(n.Label, "kind", ErrInvalidParameter, "unknown node kind %d", n.Kind)
	}
	if want != "" {
		return configErr(n.Label, "ports", ErrInvalidParameter, "%s needs %s", n.Kind, want)
	}
	if n.Kind != KindStorage && n.Storage != nil {
		return configErr(n.Label, "storage", ErrInvalidParameter, "storage parameters on a %s", n.Kind)
	}
	return nil
}

func (n Node) validatePort(p Port, field string, buses map[string]Bus, periods int) error {
	b, ok := buses[p.Bus]
	if !ok {
		return configErr(n.Label, field, ErrUnresolvedReference, "bus %q is not registered", p.Bus)
	}
	if b.Commodity == CommodityInertia {
		return configErr(n.Label, field, ErrInvalidParameter, "flows cannot connect to inertia bus %q", p.Bus)
	}
	return p.Flow.validate(n.Label, field, periods)
}

func (n Node) validateStorage() error {
	s := n.Storage
	const field = "storage"
	if s.NominalCapacity < 0 || math.IsNaN(s.NominalCapacity) || math.IsInf(s.NominalCapacity, 0) {
		return configErr(n.Label, field, ErrInvalidParameter, "nominal capacity %v must be finite and >= 0", s.NominalCapacity)
	}
	if s.InitialLevel != nil && (*s.InitialLevel < 0 || *s.InitialLevel > 1) {
		return configErr(n.Label, field, ErrInvalidParameter, "initial level %v outside [0,1]", *s.InitialLevel)
	}
	for name, eff := range map[string]float64{"inflow efficiency": s.InflowEff(), "outflow efficiency": s.OutflowEff()} {
		if eff <= 0 || eff > 1 || math.IsNaN(eff) {
			return configErr(n.Label, field, ErrInvalidParameter, "%s %v outside (0,1]", name, eff)
		}
	}
	if s.LossRate < 0 || s.LossRate >= 1 || math.IsNaN(s.LossRate) {
		return configErr(n.Label, field, ErrInvalidParameter, "loss rate %v outside [0,1)", s.LossRate)
	}
	return nil
}

func (n Node) validateInertia(buses map[string]Bus, params Params, ports map[string]bool) error {
	ip := n.Inertia
	b, ok := buses[ip.Bus]
	if !ok {
		return configErr(n.Label, "inertia", ErrUnresolvedReference, "bus %q is not registered", ip.Bus)
	}
	if b.Balanced {
		return configErr(n.Label, "inertia", ErrInvalidParameter, "inertia bus %q must be unbalanced", ip.Bus)
	}
	if ports["out:"+ip.Bus] {
		return configErr(n.Label, "inertia", ErrDuplicateLabel, "bus %q is both a flow output and the inertia bus", ip.Bus)
	}
	if _, ok := n.InertiaOutput(); !ok {
		return configErr(n.Label, "inertia", ErrUnresolvedReference, "paired output %q is not an output of the node", ip.Output)
	}
	return ip.Inertia.validate(n.Label, n.Kind, params.EmulatedInertiaConstant)
}
