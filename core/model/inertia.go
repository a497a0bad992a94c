package model

import (
	"fmt"
	"math"
)

// ProvisionType defines how a unit contributes inertia to the system.
type ProvisionType int

const (
	ProvisionNone ProvisionType = iota
	ProvisionSynchronousGenerator
	ProvisionSynchronousStorage
	ProvisionSyntheticWind
	ProvisionSyntheticStorage
)

// String returns the configuration name of the provision type.
func (p ProvisionType) String() string {
	switch p {
	case ProvisionNone:
		return "none"
	case ProvisionSynchronousGenerator:
		return "synchronous_generator"
	case ProvisionSynchronousStorage:
		return "synchronous_storage"
	case ProvisionSyntheticWind:
		return "synthetic_wind"
	case ProvisionSyntheticStorage:
		return "synthetic_storage"
	default:
		return "unknown"
	}
}

// ParseProvisionType maps a configuration name to a ProvisionType.
// The empty string is read as none.
func ParseProvisionType(s string) (ProvisionType, error) {
	switch s {
	case "none", "":
		return ProvisionNone, nil
	case "synchronous_generator":
		return ProvisionSynchronousGenerator, nil
	case "synchronous_storage":
		return ProvisionSynchronousStorage, nil
	case "synthetic_wind":
		return ProvisionSyntheticWind, nil
	case "synthetic_storage":
		return ProvisionSyntheticStorage, nil
	default:
		return ProvisionNone, fmt.Errorf("unknown provision type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ProvisionType) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProvisionType) UnmarshalText(b []byte) error {
	v, err := ParseProvisionType(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Synchronous reports whether the unit provides rotational inertia.
func (p ProvisionType) Synchronous() bool {
	return p == ProvisionSynchronousGenerator || p == ProvisionSynchronousStorage
}

// Synthetic reports whether the unit emulates inertia through power electronics.
func (p ProvisionType) Synthetic() bool {
	return p == ProvisionSyntheticWind || p == ProvisionSyntheticStorage
}

// Storage reports whether the category only applies to storage nodes.
func (p ProvisionType) Storage() bool {
	return p == ProvisionSynchronousStorage || p == ProvisionSyntheticStorage
}

// Inertia is the attribute bundle of the edge from a unit into the inertia bus.
type Inertia struct {
	// Constant is the inertia constant H in seconds. Required for synchronous
	// categories; synthetic providers fall back to the system's emulated constant.
	Constant *float64
	// ApparentPower is the rating S in VA.
	ApparentPower float64
	Provision     ProvisionType
	// MinimumStableOperation is the fraction of ApparentPower the paired
	// output must deliver before a synchronous unit counts as in service.
	MinimumStableOperation float64
	// Cost is charged per step the unit is counted as providing inertia.
	Cost float64
	// PowerShare is the fraction of a synthetic storage's contribution that
	// counts towards system inertia. Unset means 1.
	PowerShare *float64
}

// Providing reports whether the edge can contribute kinetic energy.
func (in Inertia) Providing() bool { return in.Provision != ProvisionNone }

// EffectiveConstant resolves the inertia constant used in the kinetic energy
// balance: the explicit constant, else emulated for synthetic providers.
func (in Inertia) EffectiveConstant(emulated float64) float64 {
	switch {
	case in.Provision == ProvisionNone:
		return 0
	case in.Constant != nil:
		return *in.Constant
	case in.Provision.Synthetic():
		return emulated
	default:
		return 0
	}
}

// Share returns the power share applied to the contribution.
func (in Inertia) Share() float64 {
	if in.PowerShare == nil {
		return 1
	}
	return *in.PowerShare
}

func (in Inertia) clone() Inertia {
	c := in
	if in.Constant != nil {
		c.Constant = Float64(*in.Constant)
	}
	if in.PowerShare != nil {
		c.PowerShare = Float64(*in.PowerShare)
	}
	return c
}

func (in Inertia) validate(label string, kind Kind, emulated float64) error {
	const field = "inertia"
	if in.Provision < ProvisionNone || in.Provision > ProvisionSyntheticStorage {
		return configErr(label, field, ErrInvalidParameter, "unknown provision type %d", in.Provision)
	}
	if in.MinimumStableOperation < 0 || in.MinimumStableOperation > 1 || math.IsNaN(in.MinimumStableOperation) {
		return configErr(label, field, ErrInvalidParameter, "minimum stable operation %v outside [0,1]", in.MinimumStableOperation)
	}
	if in.PowerShare != nil {
		if in.Provision != ProvisionSyntheticStorage {
			return configErr(label, field, ErrInvalidParameter, "power share only applies to %s", ProvisionSyntheticStorage)
		}
		if s := *in.PowerShare; s <= 0 || s > 1 || math.IsNaN(s) {
			return configErr(label, field, ErrInvalidParameter, "power share %v outside (0,1]", s)
		}
	}
	if !in.Providing() {
		return nil
	}
	if in.ApparentPower <= 0 || math.IsNaN(in.ApparentPower) || math.IsInf(in.ApparentPower, 0) {
		return configErr(label, field, ErrInvalidParameter, "apparent power %v must be > 0 for %s", in.ApparentPower, in.Provision)
	}
	if in.Provision.Storage() && kind != KindStorage {
		return configErr(label, field, ErrInvalidParameter, "%s requires a storage node, got %s", in.Provision, kind)
	}
	if in.Constant != nil && (*in.Constant <= 0 || math.IsNaN(*in.Constant)) {
		return configErr(label, field, ErrInvalidParameter, "inertia constant %v must be > 0", *in.Constant)
	}
	if in.Provision.Synchronous() && in.Constant == nil {
		return configErr(label, field, ErrMissingInertiaConstant, "%s needs an explicit inertia constant", in.Provision)
	}
	if in.Provision.Synthetic() && in.Constant == nil && emulated <= 0 {
		return configErr(label, field, ErrMissingInertiaConstant, "%s without a constant needs an emulated inertia constant", in.Provision)
	}
	return nil
}
