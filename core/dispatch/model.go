package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/gridinertia/core/logger"
	"github.com/kilianp07/gridinertia/core/metrics"
	"github.com/kilianp07/gridinertia/core/model"
	"github.com/kilianp07/gridinertia/core/solver"
)

// Key identifies a compiled edge by the labels of its endpoints. Output
// edges run from a node to a bus, input edges from a bus to a node. Storage
// content is keyed by the storage label with an empty To.
type Key struct {
	From string
	To   string
}

func (k Key) String() string {
	if k.To == "" {
		return k.From
	}
	return k.From + "->" + k.To
}

// Options tunes compilation and carries the collaborators used during solve.
//
// The objective weights every cost by the step length Δt in hours: a flow
// costs VariableCost·flow·Δt and a committed inertia provider Cost·u·Δt.
// Costs are therefore rates per hour of operation, and an hourly index
// leaves them unscaled.
type Options struct {
	// RelaxCommitment turns the binary source_inertia indicators of
	// synchronous units into continuous [0,1] variables, making the model an LP.
	RelaxCommitment bool
	RunID           string
	Scenario        string
	// SolverName tags recorded metrics. It defaults to the solver's type.
	SolverName string
	Logger     logger.Logger
	Metrics    metrics.MetricsSink
}

// Stats summarises the size of a compiled model.
type Stats struct {
	Steps       int
	Buses       int
	Nodes       int
	Variables   int
	Integers    int
	Constraints int
	Rows        map[ConstraintKind]int
}

type flowVar struct {
	key  Key
	node string
	role Role
	flow model.Flow
	// vars holds the variable of each step, -1 when the flow is fixed.
	vars []int
}

func (f *flowVar) value(x []float64, t int) float64 {
	if f.vars[t] < 0 {
		return f.flow.Fix[t]
	}
	return x[f.vars[t]]
}

type inertiaEdge struct {
	key       Key
	node      string
	provision model.ProvisionType
	apparent  float64
	// constant is the effective H already scaled by the power share, so
	// that apparent·constant·u is the kinetic energy contributed.
	constant float64
	// share is the configured power share, zero when none was set.
	share  float64
	msf    float64
	paired *flowVar
	// vars is nil for edges that provide nothing.
	vars []int
}

func (e *inertiaEdge) energy() float64 { return e.apparent * e.constant }

type storageVar struct {
	key      Key
	node     string
	capacity float64
	// initial is the variable of the initial level, -1 when it is fixed.
	initial      int
	initialValue float64
	levels       []int
}

// Model is the LP/MILP compiled from one EnergySystem snapshot. It is built
// once by NewModel, solved once and then decoded.
type Model struct {
	es   *model.EnergySystem
	opts Options
	log  logger.Logger

	problem  solver.Problem
	flows    map[Key]*flowVar
	edges    []Key
	inertia  []*inertiaEdge
	storage  []*storageVar
	busIn    map[string][]*flowVar
	busOut   map[string][]*flowVar
	rowKinds map[ConstraintKind]int

	solved bool
	status solver.Status
	sol    solver.Solution
}

type compileFunc func(*Model, model.Node) error

// nodeCompilers resolves each node variant to the rows it contributes.
var nodeCompilers = map[model.Kind]compileFunc{
	model.KindSource:      (*Model).compileEdges,
	model.KindSink:        (*Model).compileEdges,
	model.KindTransformer: (*Model).compileTransformer,
	model.KindStorage:     (*Model).compileStorage,
}

// NewModel compiles es into a Model. The EnergySystem is not retained
// beyond its immutable accessors.
func NewModel(es *model.EnergySystem, opts Options) (*Model, error) {
	if es == nil {
		return nil, errors.New("dispatch: nil energy system")
	}
	m := &Model{
		es:       es,
		opts:     opts,
		log:      logger.OrNop(opts.Logger),
		flows:    make(map[Key]*flowVar),
		busIn:    make(map[string][]*flowVar),
		busOut:   make(map[string][]*flowVar),
		rowKinds: make(map[ConstraintKind]int),
	}
	for _, n := range es.Nodes() {
		compile, ok := nodeCompilers[n.Kind]
		if !ok {
			return nil, fmt.Errorf("dispatch: node %s has unsupported kind %s", n.Label, n.Kind)
		}
		if err := compile(m, n); err != nil {
			return nil, err
		}
		if n.Inertia != nil {
			if err := m.compileInertia(n); err != nil {
				return nil, err
			}
		}
	}
	m.compileBalance()
	m.compileAdequacy()

	st := m.Stats()
	m.log.Infof("compiled %s: %d variables (%d integer), %d constraints",
		es, st.Variables, st.Integers, st.Constraints)
	m.log.Debugw("model rows", map[string]any{
		"run_id":     opts.RunID,
		"balance":    st.Rows[ConstraintBalance],
		"conversion": st.Rows[ConstraintTransformer],
		"storage":    st.Rows[ConstraintStorage] + st.Rows[ConstraintStorageBalanced],
		"inertia":    st.Rows[ConstraintSynchronousInertia] + st.Rows[ConstraintTotalInertia],
	})
	return m, nil
}

func (m *Model) steps() int     { return m.es.Index().Periods }
func (m *Model) hours() float64 { return m.es.Index().Hours() }

// compileEdges creates the flow variables of every port of n.
func (m *Model) compileEdges(n model.Node) error {
	for _, p := range n.Inputs {
		m.addFlow(Key{From: p.Bus, To: n.Label}, n.Label, RoleInput, p.Flow)
	}
	for _, p := range n.Outputs {
		m.addFlow(Key{From: n.Label, To: p.Bus}, n.Label, RoleOutput, p.Flow)
	}
	return nil
}

func (m *Model) addFlow(key Key, node string, role Role, f model.Flow) *flowVar {
	dt := m.hours()
	fv := &flowVar{key: key, node: node, role: role, flow: f, vars: make([]int, m.steps())}
	for t := range fv.vars {
		if f.Fixed() {
			fv.vars[t] = -1
			m.problem.Offset += f.VariableCost * f.Fix[t] * dt
			continue
		}
		lo, hi := f.Bounds(t)
		fv.vars[t] = m.problem.AddVariable(fmt.Sprintf("flow[%s,%d]", key, t), lo, hi, f.VariableCost*dt, false)
	}
	m.flows[key] = fv
	m.edges = append(m.edges, key)
	if role == RoleOutput {
		m.busIn[key.To] = append(m.busIn[key.To], fv)
	} else {
		m.busOut[key.From] = append(m.busOut[key.From], fv)
	}
	return fv
}

// compileTransformer relates every input to every output:
// in_i·f_o = out_o·f_i, where f are the conversion factors.
func (m *Model) compileTransformer(n model.Node) error {
	if err := m.compileEdges(n); err != nil {
		return err
	}
	for _, in := range n.Inputs {
		fin := m.flows[Key{From: in.Bus, To: n.Label}]
		for _, out := range n.Outputs {
			fout := m.flows[Key{From: n.Label, To: out.Bus}]
			for t := 0; t < m.steps(); t++ {
				var e expr
				e.addFlow(fin, t, n.ConversionFactor(out.Bus))
				e.addFlow(fout, t, -n.ConversionFactor(in.Bus))
				m.constrain(ConstraintTransformer, fmt.Sprintf("%s,%s", n.Label, out.Bus), t, e, solver.Equal, 0)
			}
		}
	}
	return nil
}

// compileStorage adds the level variables and the level update rows
// L_t = (1-loss)^Δt·L_{t-1} + Δt·(η_in·in_t − out_t/η_out).
func (m *Model) compileStorage(n model.Node) error {
	if err := m.compileEdges(n); err != nil {
		return err
	}
	sp := n.Storage
	in := m.flows[Key{From: n.Inputs[0].Bus, To: n.Label}]
	out := m.flows[Key{From: n.Label, To: n.Outputs[0].Bus}]
	dt := m.hours()
	decay := math.Pow(1-sp.LossRate, dt)

	sv := &storageVar{key: Key{From: n.Label}, node: n.Label, capacity: sp.NominalCapacity, initial: -1, levels: make([]int, m.steps())}
	if sp.InitialLevel != nil {
		sv.initialValue = *sp.InitialLevel * sp.NominalCapacity
	} else {
		sv.initial = m.problem.AddVariable(fmt.Sprintf("level[%s,0]", n.Label), 0, sp.NominalCapacity, 0, false)
	}
	for t := range sv.levels {
		sv.levels[t] = m.problem.AddVariable(fmt.Sprintf("level[%s,%d]", n.Label, t+1), 0, sp.NominalCapacity, 0, false)
	}
	for t := range sv.levels {
		var e expr
		e.addVar(sv.levels[t], 1)
		if t == 0 {
			m.addInitial(&e, sv, -decay)
		} else {
			e.addVar(sv.levels[t-1], -decay)
		}
		e.addFlow(in, t, -dt*sp.InflowEff())
		e.addFlow(out, t, dt/sp.OutflowEff())
		m.constrain(ConstraintStorage, n.Label, t, e, solver.Equal, 0)
	}
	if sp.Balanced && len(sv.levels) > 0 {
		var e expr
		e.addVar(sv.levels[len(sv.levels)-1], 1)
		m.addInitial(&e, sv, -1)
		m.constrain(ConstraintStorageBalanced, n.Label, len(sv.levels)-1, e, solver.Equal, 0)
	}
	m.storage = append(m.storage, sv)
	m.edges = append(m.edges, sv.key)
	return nil
}

func (m *Model) addInitial(e *expr, sv *storageVar, coef float64) {
	if sv.initial >= 0 {
		e.addVar(sv.initial, coef)
		return
	}
	e.constant += coef * sv.initialValue
}

// compileInertia creates the source_inertia indicators of n's inertia edge
// and ties them to the paired output flow.
//
// A synchronous unit with a minimum stable fraction is semi-continuous: it
// runs at no less than msf·S when committed and at nothing when not, so
// msf·S·u <= flow <= U·u where U is the flow's capacity, or S when the flow
// has none. Units whose flow cannot carry power keep a free indicator.
// A synthetic indicator is the dispatched fraction, D·u = flow, with D the
// larger of S and a finite flow capacity.
func (m *Model) compileInertia(n model.Node) error {
	ip := n.Inertia
	out, ok := n.InertiaOutput()
	if !ok {
		return &model.ConfigurationError{Label: n.Label, Field: "inertia", Err: model.ErrUnresolvedReference, Detail: "no paired output"}
	}
	in := ip.Inertia
	edge := &inertiaEdge{
		key:       Key{From: n.Label, To: ip.Bus},
		node:      n.Label,
		provision: in.Provision,
		apparent:  in.ApparentPower,
		msf:       in.MinimumStableOperation,
		paired:    m.flows[Key{From: n.Label, To: out.Bus}],
	}
	m.inertia = append(m.inertia, edge)
	m.edges = append(m.edges, edge.key)
	if !in.Providing() {
		return nil
	}

	edge.constant = in.EffectiveConstant(m.es.Params().EmulatedInertiaConstant) * in.Share()
	if in.PowerShare != nil {
		edge.share = *in.PowerShare
	}
	integer := in.Provision.Synchronous() && !m.opts.RelaxCommitment
	edge.vars = make([]int, m.steps())
	for t := range edge.vars {
		u := m.problem.AddVariable(fmt.Sprintf("source_inertia[%s,%d]", edge.key, t), 0, 1, in.Cost*m.hours(), integer)
		edge.vars[t] = u
		_, hi := edge.paired.flow.Bounds(t)
		switch {
		case in.Provision.Synchronous() && edge.msf > 0:
			var e expr
			e.addFlow(edge.paired, t, 1)
			e.addVar(u, -edge.msf*edge.apparent)
			m.constrain(ConstraintMinimumStable, n.Label, t, e, solver.GreaterEqual, 0)
			if hi <= 0 {
				continue
			}
			capacity := hi
			if math.IsInf(hi, 1) {
				capacity = edge.apparent
			}
			var c expr
			c.addFlow(edge.paired, t, 1)
			c.addVar(u, -capacity)
			m.constrain(ConstraintCommitment, n.Label, t, c, solver.LessEqual, 0)
		case in.Provision.Synthetic():
			divisor := edge.apparent
			if !math.IsInf(hi, 1) && hi > divisor {
				divisor = hi
			}
			var e expr
			e.addFlow(edge.paired, t, 1)
			e.addVar(u, -divisor)
			m.constrain(ConstraintSyntheticDispatch, n.Label, t, e, solver.Equal, 0)
		}
	}
	return nil
}

// compileBalance emits Σ inflow(t) = Σ outflow(t) for every balanced bus.
func (m *Model) compileBalance() {
	for _, b := range m.es.Buses() {
		if !b.Balanced {
			continue
		}
		in, out := m.busIn[b.Label], m.busOut[b.Label]
		if len(in)+len(out) == 0 {
			continue
		}
		for t := 0; t < m.steps(); t++ {
			var e expr
			for _, f := range in {
				e.addFlow(f, t, 1)
			}
			for _, f := range out {
				e.addFlow(f, t, -1)
			}
			m.constrain(ConstraintBalance, b.Label, t, e, solver.Equal, 0)
		}
	}
}

// compileAdequacy emits the per-step kinetic energy floors. The thresholds
// are energies, so the in-service apparent power cancels out of the
// inertia constant relation and the rows stay linear.
func (m *Model) compileAdequacy() {
	sync, total := m.es.SynchronousThreshold(), m.es.TotalThreshold()
	for t := 0; t < m.steps(); t++ {
		if sync > 0 {
			var e expr
			for _, edge := range m.inertia {
				if edge.vars != nil && edge.provision.Synchronous() {
					e.addVar(edge.vars[t], edge.energy())
				}
			}
			m.constrain(ConstraintSynchronousInertia, "", t, e, solver.GreaterEqual, sync)
		}
		if total > 0 {
			var e expr
			for _, edge := range m.inertia {
				if edge.vars != nil {
					e.addVar(edge.vars[t], edge.energy())
				}
			}
			m.constrain(ConstraintTotalInertia, "", t, e, solver.GreaterEqual, total)
		}
	}
}

// expr is a linear expression with a constant part from fixed flows.
type expr struct {
	terms    []solver.Term
	constant float64
}

func (e *expr) addVar(j int, coef float64) {
	e.terms = append(e.terms, solver.Term{Var: j, Coef: coef})
}

func (e *expr) addFlow(f *flowVar, t int, coef float64) {
	if j := f.vars[t]; j >= 0 {
		e.addVar(j, coef)
		return
	}
	e.constant += coef * f.flow.Fix[t]
}

func (m *Model) constrain(kind ConstraintKind, label string, t int, e expr, sense solver.Sense, rhs float64) {
	name := fmt.Sprintf("%s[%d]", kind, t)
	if label != "" {
		name = fmt.Sprintf("%s[%s,%d]", kind, label, t)
	}
	m.problem.AddConstraint(name, sense, rhs-e.constant, e.terms...)
	m.rowKinds[kind]++
}

// Stats reports the size of the compiled model.
func (m *Model) Stats() Stats {
	rows := make(map[ConstraintKind]int, len(m.rowKinds))
	for k, v := range m.rowKinds {
		rows[k] = v
	}
	return Stats{
		Steps:       m.steps(),
		Buses:       len(m.es.Buses()),
		Nodes:       len(m.es.Nodes()),
		Variables:   len(m.problem.Variables),
		Integers:    m.problem.NumIntegers(),
		Constraints: len(m.problem.Constraints),
		Rows:        rows,
	}
}

// Problem exposes the compiled problem for inspection. It must not be modified.
func (m *Model) Problem() *solver.Problem { return &m.problem }

// System returns the energy system the model was compiled from.
func (m *Model) System() *model.EnergySystem { return m.es }
