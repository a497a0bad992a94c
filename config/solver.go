package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/kilianp07/gridinertia/core/factory"
	"github.com/kilianp07/gridinertia/core/solver"
)

// SolverConfig selects the solver backend and bounds the solve.
type SolverConfig struct {
	// Type is a registered backend: "highs", "branch_and_bound" or "simplex".
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
	// TimeoutSeconds bounds the solve; 0 means no limit.
	TimeoutSeconds int `json:"timeout_seconds"`
	// RelaxCommitment solves the LP relaxation of the synchronous
	// commitment indicators.
	RelaxCommitment bool `json:"relax_commitment"`
}

// SetDefaults applies sane defaults.
func (c *SolverConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = solver.DefaultName()
	}
}

// Validate checks the backend is known and the timeout is not negative.
func (c SolverConfig) Validate() error {
	if !slices.Contains(solver.Names(), c.Type) {
		return fmt.Errorf("unknown solver %q (known: %v)", c.Type, solver.Names())
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0")
	}
	return nil
}

// Module returns the factory configuration of the backend.
func (c SolverConfig) Module() factory.ModuleConfig {
	return factory.ModuleConfig{Type: c.Type, Conf: c.Conf}
}

// Timeout returns the solve timeout, zero when unbounded.
func (c SolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
