package dispatch

import (
	"time"

	"github.com/kilianp07/gridinertia/core/model"
)

// Role tells what kind of edge a Record describes.
type Role string

const (
	RoleOutput  Role = "output"
	RoleInput   Role = "input"
	RoleInertia Role = "inertia"
	RoleStorage Role = "storage"
)

// Names of the decoded series.
const (
	SeriesFlow          = "flow"
	SeriesApparentPower = "apparent_power"
	SeriesSourceInertia = "source_inertia"
	// SeriesInertiaConstant is the effective H of the edge multiplied by its
	// power share, so apparent_power·source_inertia·inertia_constant is the
	// kinetic energy contributed. Only synthetic storage carries a share
	// below 1; the share itself is decoded as ScalarPowerShare.
	SeriesInertiaConstant = "inertia_constant"
	SeriesStorageContent  = "storage_content"

	// ScalarInitialContent is the storage level before the first step.
	ScalarInitialContent = "initial_content"
	// ScalarPowerShare is the configured inertia power share of an edge.
	ScalarPowerShare = "power_share"
)

// Record holds the decoded series of one edge.
type Record struct {
	Role Role
	// Node is the label of the node owning the edge.
	Node string
	// Provision is set for inertia edges.
	Provision model.ProvisionType
	Sequences map[string][]float64
	Scalars   map[string]float64
}

// InertiaSummary is the system-wide inertia position at one step.
// Energies are in the unit of apparent power times seconds.
type InertiaSummary struct {
	Time time.Time
	// ApparentPower is the rating of the inertia providers in service.
	ApparentPower     float64
	SynchronousEnergy float64
	SyntheticEnergy   float64
	// SynchronousConstant and TotalConstant are the system inertia constants
	// H_sys = energy / apparent power in service; zero with nothing in service.
	SynchronousConstant float64
	TotalConstant       float64
	// RequiredSynchronousConstant and RequiredTotalConstant express the
	// thresholds as inertia constants over the apparent power in service.
	RequiredSynchronousConstant float64
	RequiredTotalConstant       float64
	SynchronousThreshold        float64
	TotalThreshold              float64
}

// TotalEnergy is the kinetic energy of all providers in service.
func (s InertiaSummary) TotalEnergy() float64 { return s.SynchronousEnergy + s.SyntheticEnergy }

// Results is a decoded, read-only view of an optimal solution.
type Results struct {
	index      model.TimeIndex
	objective  float64
	keys       []Key
	records    map[Key]Record
	summary    []InertiaSummary
	syncThresh float64
	totThresh  float64
}

// Results decodes the optimal solution. Decoding does not modify the Model
// and every call returns fresh copies.
func (m *Model) Results() (Results, error) {
	if !m.optimal() {
		return Results{}, ErrNotSolved
	}
	x := m.sol.Values
	steps := m.steps()
	res := Results{
		index:      m.es.Index(),
		objective:  m.sol.Objective,
		keys:       append([]Key(nil), m.edges...),
		records:    make(map[Key]Record, len(m.edges)),
		syncThresh: m.es.SynchronousThreshold(),
		totThresh:  m.es.TotalThreshold(),
	}

	for key, f := range m.flows {
		seq := make([]float64, steps)
		for t := range seq {
			seq[t] = f.value(x, t)
		}
		res.records[key] = Record{Role: f.role, Node: f.node, Sequences: map[string][]float64{SeriesFlow: seq}}
	}

	res.summary = make([]InertiaSummary, steps)
	for t := range res.summary {
		res.summary[t] = InertiaSummary{
			Time:                 m.es.Index().At(t),
			SynchronousThreshold: res.syncThresh,
			TotalThreshold:       res.totThresh,
		}
	}
	for _, e := range m.inertia {
		s, u, h := make([]float64, steps), make([]float64, steps), make([]float64, steps)
		for t := 0; t < steps; t++ {
			s[t] = e.apparent
			if e.vars == nil {
				continue
			}
			u[t] = x[e.vars[t]]
			h[t] = e.constant
			sum := &res.summary[t]
			sum.ApparentPower += e.apparent * u[t]
			if e.provision.Synchronous() {
				sum.SynchronousEnergy += e.energy() * u[t]
			} else {
				sum.SyntheticEnergy += e.energy() * u[t]
			}
		}
		rec := Record{
			Role:      RoleInertia,
			Node:      e.node,
			Provision: e.provision,
			Sequences: map[string][]float64{
				SeriesApparentPower:   s,
				SeriesSourceInertia:   u,
				SeriesInertiaConstant: h,
			},
		}
		if e.share > 0 {
			rec.Scalars = map[string]float64{ScalarPowerShare: e.share}
		}
		res.records[e.key] = rec
	}
	for i := range res.summary {
		sum := &res.summary[i]
		if sum.ApparentPower > 0 {
			sum.SynchronousConstant = sum.SynchronousEnergy / sum.ApparentPower
			sum.TotalConstant = sum.TotalEnergy() / sum.ApparentPower
			sum.RequiredSynchronousConstant = sum.SynchronousThreshold / sum.ApparentPower
			sum.RequiredTotalConstant = sum.TotalThreshold / sum.ApparentPower
		}
	}

	for _, sv := range m.storage {
		levels := make([]float64, steps)
		for t, j := range sv.levels {
			levels[t] = x[j]
		}
		initial := sv.initialValue
		if sv.initial >= 0 {
			initial = x[sv.initial]
		}
		res.records[sv.key] = Record{
			Role:      RoleStorage,
			Node:      sv.node,
			Sequences: map[string][]float64{SeriesStorageContent: levels},
			Scalars:   map[string]float64{ScalarInitialContent: initial},
		}
	}
	return res, nil
}

// Get returns the record of the edge from → to.
func (r Results) Get(from, to string) (Record, error) {
	k := Key{From: from, To: to}
	rec, ok := r.records[k]
	if !ok {
		return Record{}, &DecodeError{Key: k, Err: ErrKeyNotFound}
	}
	return copyRecord(rec), nil
}

// Series returns one named series of the edge from → to.
func (r Results) Series(from, to, name string) ([]float64, error) {
	rec, err := r.Get(from, to)
	if err != nil {
		return nil, err
	}
	s, ok := rec.Sequences[name]
	if !ok {
		return nil, &DecodeError{Key: Key{From: from, To: to}, Err: ErrKeyNotFound}
	}
	return s, nil
}

// Flow returns the flow series of the edge from → to.
func (r Results) Flow(from, to string) ([]float64, error) {
	return r.Series(from, to, SeriesFlow)
}

// StorageContent returns the end-of-step levels of a storage node.
func (r Results) StorageContent(label string) ([]float64, error) {
	return r.Series(label, "", SeriesStorageContent)
}

// Keys lists the decoded edges in compilation order.
func (r Results) Keys() []Key { return append([]Key(nil), r.keys...) }

// Objective is the optimal objective value including fixed flow costs.
func (r Results) Objective() float64 { return r.objective }

// Timestamps returns the start of every step.
func (r Results) Timestamps() []time.Time { return r.index.Timestamps() }

// Index returns the time index the results are expressed on.
func (r Results) Index() model.TimeIndex { return r.index }

// Inertia returns the per-step inertia position of the system.
func (r Results) Inertia() []InertiaSummary {
	return append([]InertiaSummary(nil), r.summary...)
}

func copyRecord(rec Record) Record {
	out := rec
	out.Sequences = make(map[string][]float64, len(rec.Sequences))
	for k, v := range rec.Sequences {
		out.Sequences[k] = append([]float64(nil), v...)
	}
	if rec.Scalars != nil {
		out.Scalars = make(map[string]float64, len(rec.Scalars))
		for k, v := range rec.Scalars {
			out.Scalars[k] = v
		}
	}
	return out
}
