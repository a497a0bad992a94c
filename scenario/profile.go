package scenario

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridinertia/pkg/timeseries"
)

// Profile is a per-step series, written either inline as a sequence
// or as a mapping naming a CSV column:
//
//	fix: [5, 5, 5]
//	fix_relative: {column: wind, scale: 1.0}
type Profile struct {
	Values []float64
	Column string
	// Scale multiplies every value; zero means 1.
	Scale float64
}

// UnmarshalYAML accepts a sequence of numbers or a column mapping.
func (p *Profile) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&p.Values)
	case yaml.MappingNode:
		var ref struct {
			Column string  `yaml:"column"`
			Scale  float64 `yaml:"scale"`
		}
		if err := node.Decode(&ref); err != nil {
			return err
		}
		if ref.Column == "" {
			return fmt.Errorf("line %d: profile mapping needs a column", node.Line)
		}
		p.Column, p.Scale = ref.Column, ref.Scale
		return nil
	default:
		return fmt.Errorf("line %d: profile must be a sequence or a {column} mapping", node.Line)
	}
}

// MarshalYAML writes the profile back in the form it was read.
func (p Profile) MarshalYAML() (any, error) {
	if p.Column == "" {
		return p.Values, nil
	}
	return map[string]any{"column": p.Column, "scale": p.Scale}, nil
}

// Resolve returns the first periods values of the profile, scaled.
// Columns longer than the horizon are truncated; shorter ones are an error.
// Inline values are returned as written so that length mismatches surface
// as configuration errors.
func (p Profile) Resolve(table *timeseries.Table, periods int) ([]float64, error) {
	var vals []float64
	if p.Column != "" {
		if table == nil {
			return nil, errors.New("profile references a column but the scenario has no profiles file")
		}
		col, err := table.Column(p.Column)
		if err != nil {
			return nil, err
		}
		if len(col) < periods {
			return nil, fmt.Errorf("column %q has %d rows, need %d", p.Column, len(col), periods)
		}
		vals = col[:periods]
	} else {
		vals = append([]float64(nil), p.Values...)
	}
	if p.Scale != 0 && p.Scale != 1 {
		for i := range vals {
			vals[i] *= p.Scale
		}
	}
	return vals, nil
}
