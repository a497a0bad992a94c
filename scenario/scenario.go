// Package scenario loads energy system definitions from YAML files.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridinertia/core/model"
	"github.com/kilianp07/gridinertia/pkg/timeseries"
)

// TimeIndexDef describes the horizon.
type TimeIndexDef struct {
	Start   time.Time     `yaml:"start"`
	Step    time.Duration `yaml:"step"`
	Periods int           `yaml:"periods"`
}

// ParamsDef holds the system-wide inertia requirements.
type ParamsDef struct {
	MinSynchronousInertia   float64 `yaml:"minimum_synchronous_inertia"`
	MinTotalInertia         float64 `yaml:"minimum_total_inertia"`
	EmulatedInertiaConstant float64 `yaml:"emulated_inertia_constant"`
	Frequency               float64 `yaml:"frequency,omitempty"`
}

func (p ParamsDef) ToModel() model.Params {
	return model.Params{
		MinSynchronousInertia:   p.MinSynchronousInertia,
		MinTotalInertia:         p.MinTotalInertia,
		EmulatedInertiaConstant: p.EmulatedInertiaConstant,
		Frequency:               p.Frequency,
	}
}

type BusDef struct {
	Label string `yaml:"label"`
	// Commodity is electricity, fuel or inertia. Inertia buses are never balanced.
	Commodity string `yaml:"commodity,omitempty"`
	Balanced  *bool  `yaml:"balanced,omitempty"`
}

func (b BusDef) ToModel() (model.Bus, error) {
	var bus model.Bus
	switch model.Commodity(b.Commodity) {
	case model.CommodityInertia:
		bus = model.NewInertiaBus(b.Label)
	case "", model.CommodityElectricity, model.CommodityFuel:
		bus = model.NewBus(b.Label)
		if b.Commodity != "" {
			bus.Commodity = model.Commodity(b.Commodity)
		}
	default:
		return model.Bus{}, fmt.Errorf("bus %s: unknown commodity %q", b.Label, b.Commodity)
	}
	if b.Balanced != nil {
		bus.Balanced = *b.Balanced
	}
	return bus, nil
}

// FlowDef is a port of a node. Profiles are inline sequences or CSV columns.
type FlowDef struct {
	Bus          string   `yaml:"bus"`
	NominalValue *float64 `yaml:"nominal_value,omitempty"`
	VariableCost float64  `yaml:"variable_cost,omitempty"`
	// Fix is an absolute profile.
	Fix *Profile `yaml:"fix,omitempty"`
	// FixRelative is a normalised profile scaled by NominalValue.
	FixRelative *Profile `yaml:"fix_relative,omitempty"`
	Min         *Profile `yaml:"min,omitempty"`
	Max         *Profile `yaml:"max,omitempty"`
}

type InertiaDef struct {
	Bus string `yaml:"bus"`
	// Output pairs the inertia edge with one output bus; empty means the first.
	Output                 string   `yaml:"output,omitempty"`
	Provision              string   `yaml:"provision"`
	Constant               *float64 `yaml:"constant,omitempty"`
	ApparentPower          float64  `yaml:"apparent_power"`
	MinimumStableOperation float64  `yaml:"minimum_stable_operation,omitempty"`
	Cost                   float64  `yaml:"cost,omitempty"`
	PowerShare             *float64 `yaml:"power_share,omitempty"`
}

func (d InertiaDef) ToModel() (model.InertiaPort, error) {
	p, err := model.ParseProvisionType(d.Provision)
	if err != nil {
		return model.InertiaPort{}, err
	}
	return model.InertiaPort{
		Bus:    d.Bus,
		Output: d.Output,
		Inertia: model.Inertia{
			Constant:               d.Constant,
			ApparentPower:          d.ApparentPower,
			Provision:              p,
			MinimumStableOperation: d.MinimumStableOperation,
			Cost:                   d.Cost,
			PowerShare:             d.PowerShare,
		},
	}, nil
}

type StorageDef struct {
	NominalCapacity   float64  `yaml:"nominal_capacity"`
	InitialLevel      *float64 `yaml:"initial_level,omitempty"`
	Balanced          bool     `yaml:"balanced,omitempty"`
	InflowEfficiency  float64  `yaml:"inflow_efficiency,omitempty"`
	OutflowEfficiency float64  `yaml:"outflow_efficiency,omitempty"`
	LossRate          float64  `yaml:"loss_rate,omitempty"`
}

func (s StorageDef) ToModel() model.StorageParams {
	return model.StorageParams{
		NominalCapacity:   s.NominalCapacity,
		InitialLevel:      s.InitialLevel,
		Balanced:          s.Balanced,
		InflowEfficiency:  s.InflowEfficiency,
		OutflowEfficiency: s.OutflowEfficiency,
		LossRate:          s.LossRate,
	}
}

type NodeDef struct {
	Label             string             `yaml:"label"`
	Kind              string             `yaml:"kind"`
	Inputs            []FlowDef          `yaml:"inputs,omitempty"`
	Outputs           []FlowDef          `yaml:"outputs,omitempty"`
	ConversionFactors map[string]float64 `yaml:"conversion_factors,omitempty"`
	Inertia           *InertiaDef        `yaml:"inertia,omitempty"`
	Storage           *StorageDef        `yaml:"storage,omitempty"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	TimeIndex   TimeIndexDef `yaml:"time_index"`
	Parameters  ParamsDef    `yaml:"parameters"`
	// Profiles is a CSV file, relative to the scenario file, holding the
	// columns referenced by profiles.
	Profiles string    `yaml:"profiles,omitempty"`
	Buses    []BusDef  `yaml:"buses"`
	Nodes    []NodeDef `yaml:"nodes"`

	dir string
}

// Load reads and decodes the scenario at path. Unknown keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	if sc.Name == "" {
		sc.Name = trimExt(filepath.Base(path))
	}
	return sc, nil
}

// Parse decodes a scenario document. Relative profile paths resolve
// against the working directory.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadProfiles reads the CSV file named by Profiles, or returns nil when
// the scenario has none.
func (s *Scenario) LoadProfiles() (*timeseries.Table, error) {
	if s.Profiles == "" {
		return nil, nil
	}
	path := s.Profiles
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	return timeseries.ReadFile(path)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
