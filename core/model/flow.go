package model

import "math"

// Flow is the attribute bundle of a directed node–bus edge.
//
// A nil NominalValue leaves the flow unbounded above. Fix forces the flow to
// the given absolute values; the flow is then a parameter and neither
// capacity nor bounds apply. Min and Max are per-step fractions of the
// nominal value.
type Flow struct {
	NominalValue *float64
	VariableCost float64
	Fix          []float64
	Min          []float64
	Max          []float64
}

// Float64 returns a pointer to v, for optional fields.
func Float64(v float64) *float64 { return &v }

// Fixed reports whether the flow follows a fixed profile.
func (f Flow) Fixed() bool { return f.Fix != nil }

// Bounds returns the lower and upper bound of the flow at step t.
// The upper bound is +Inf for flows without a nominal value.
func (f Flow) Bounds(t int) (lo, hi float64) {
	if f.Fixed() {
		return f.Fix[t], f.Fix[t]
	}
	hi = math.Inf(1)
	if f.NominalValue == nil {
		return 0, hi
	}
	nom := *f.NominalValue
	hi = nom
	if f.Max != nil {
		hi = nom * f.Max[t]
	}
	if f.Min != nil {
		lo = nom * f.Min[t]
	}
	return lo, hi
}

func (f Flow) clone() Flow {
	c := f
	if f.NominalValue != nil {
		c.NominalValue = Float64(*f.NominalValue)
	}
	c.Fix = cloneSeries(f.Fix)
	c.Min = cloneSeries(f.Min)
	c.Max = cloneSeries(f.Max)
	return c
}

func (f Flow) validate(label, field string, periods int) error {
	if f.NominalValue != nil && (*f.NominalValue < 0 || math.IsNaN(*f.NominalValue)) {
		return configErr(label, field, ErrInvalidParameter, "nominal value %v must be >= 0", *f.NominalValue)
	}
	if f.Fix != nil {
		if len(f.Fix) != periods {
			return configErr(label, field, ErrInvalidParameter, "fixed profile has %d values, time index has %d", len(f.Fix), periods)
		}
		for t, v := range f.Fix {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return configErr(label, field, ErrInvalidParameter, "fixed profile value %v at step %d", v, t)
			}
		}
	}
	for _, s := range []struct {
		name   string
		values []float64
	}{{"min", f.Min}, {"max", f.Max}} {
		if s.values == nil {
			continue
		}
		if f.NominalValue == nil {
			return configErr(label, field, ErrInvalidParameter, "%s bounds require a nominal value", s.name)
		}
		if len(s.values) != periods {
			return configErr(label, field, ErrInvalidParameter, "%s bounds have %d values, time index has %d", s.name, len(s.values), periods)
		}
		for t, v := range s.values {
			if v < 0 || math.IsNaN(v) {
				return configErr(label, field, ErrInvalidParameter, "%s bound %v at step %d", s.name, v, t)
			}
		}
	}
	if f.Min != nil && f.Max != nil {
		for t := range f.Min {
			if f.Min[t] > f.Max[t] {
				return configErr(label, field, ErrInvalidParameter, "min bound exceeds max bound at step %d", t)
			}
		}
	}
	return nil
}

func cloneSeries(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
