package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/gridinertia/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records solve outcomes and the latest inertia position in
// Prometheus metrics.
type PromSink struct {
	solves      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	objective   *prometheus.GaugeVec
	size        *prometheus.GaugeVec
	inertia     *prometheus.GaugeVec
	headroom    *prometheus.GaugeVec
	infeasibles prometheus.Counter
}

// NewPromSink registers solve metrics on the default Prometheus registerer.
// The Prometheus server should be started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridinertia_solves_total",
			Help: "Total number of model solves by solver and status",
		}, []string{"solver", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridinertia_solve_duration_seconds",
			Help:    "Wall time spent in the solver",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"solver"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridinertia_objective",
			Help: "Objective value of the last optimal solve",
		}, []string{"scenario"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridinertia_model_size",
			Help: "Size of the last compiled model",
		}, []string{"scenario", "dimension"}),
		inertia: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridinertia_kinetic_energy_min",
			Help: "Smallest kinetic energy over the horizon of the last run",
		}, []string{"scenario", "group"}),
		headroom: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridinertia_inertia_headroom_min",
			Help: "Smallest margin above the kinetic energy threshold over the horizon",
		}, []string{"scenario", "group"}),
		infeasibles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridinertia_infeasible_total",
			Help: "Number of solves proven infeasible",
		}),
	}

	var err error
	if s.solves, err = register(reg, s.solves); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.size, err = register(reg, s.size); err != nil {
		return nil, err
	}
	if s.inertia, err = register(reg, s.inertia); err != nil {
		return nil, err
	}
	if s.headroom, err = register(reg, s.headroom); err != nil {
		return nil, err
	}
	if s.infeasibles, err = register(reg, s.infeasibles); err != nil {
		return nil, err
	}
	return s, nil
}

// register reuses an already registered collector of the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSolve counts the solve and records its duration and model size.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Solver, ev.Status).Inc()
	s.duration.WithLabelValues(ev.Solver).Observe(ev.Duration.Seconds())
	s.size.WithLabelValues(ev.Scenario, "variables").Set(float64(ev.Variables))
	s.size.WithLabelValues(ev.Scenario, "constraints").Set(float64(ev.Constraints))
	s.size.WithLabelValues(ev.Scenario, "integers").Set(float64(ev.Integers))
	switch ev.Status {
	case "optimal":
		s.objective.WithLabelValues(ev.Scenario).Set(ev.Objective)
	case "infeasible":
		s.infeasibles.Inc()
	}
	return nil
}

// RecordInertia sets the horizon minimum of the kinetic energy and of its
// margin above the threshold, for synchronous units and for all units.
func (s *PromSink) RecordInertia(steps []coremetrics.InertiaStep) error {
	if len(steps) == 0 {
		return nil
	}
	scenario := steps[0].Scenario
	minSync, minTotal := steps[0].SynchronousEnergy, steps[0].SynchronousEnergy+steps[0].SyntheticEnergy
	headSync, headTotal := minSync-steps[0].SynchronousThreshold, minTotal-steps[0].TotalThreshold
	for _, st := range steps[1:] {
		total := st.SynchronousEnergy + st.SyntheticEnergy
		minSync = min(minSync, st.SynchronousEnergy)
		minTotal = min(minTotal, total)
		headSync = min(headSync, st.SynchronousEnergy-st.SynchronousThreshold)
		headTotal = min(headTotal, total-st.TotalThreshold)
	}
	s.inertia.WithLabelValues(scenario, "synchronous").Set(minSync)
	s.inertia.WithLabelValues(scenario, "total").Set(minTotal)
	s.headroom.WithLabelValues(scenario, "synchronous").Set(headSync)
	s.headroom.WithLabelValues(scenario, "total").Set(headTotal)
	return nil
}
