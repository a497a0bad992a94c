package solver

import "github.com/kilianp07/gridinertia/core/factory"

var registry = factory.NewRegistry[Solver]()

// Register adds a solver factory identified by name.
func Register(name string, f factory.Factory[Solver]) error {
	return registry.Register(name, f)
}

// Names lists the registered solver backends.
func Names() []string {
	return registry.Names()
}

// DefaultName is the backend used when none is configured: highs when the
// binary was built with it, branch_and_bound otherwise.
func DefaultName() string {
	for _, n := range registry.Names() {
		if n == "highs" {
			return n
		}
	}
	return "branch_and_bound"
}

// New creates a Solver from cfg. An empty type selects DefaultName.
func New(cfg factory.ModuleConfig) (Solver, error) {
	if cfg.Type == "" {
		cfg.Type = DefaultName()
	}
	return registry.Create(cfg)
}

// init registers the built-in backends.
func init() {
	_ = Register("simplex", func(conf map[string]any) (Solver, error) {
		var c struct {
			Tolerance float64 `json:"tolerance"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSimplex(c.Tolerance), nil
	})

	_ = Register("branch_and_bound", func(conf map[string]any) (Solver, error) {
		var c struct {
			Tolerance            float64 `json:"tolerance"`
			NodeLimit            int     `json:"node_limit"`
			IntegralityTolerance float64 `json:"integrality_tolerance"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return &BranchAndBound{
			LP:                   NewSimplex(c.Tolerance),
			NodeLimit:            c.NodeLimit,
			IntegralityTolerance: c.IntegralityTolerance,
		}, nil
	})
}
