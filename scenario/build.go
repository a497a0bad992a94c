package scenario

import (
	"fmt"

	"github.com/kilianp07/gridinertia/core/model"
	"github.com/kilianp07/gridinertia/pkg/timeseries"
)

var kinds = map[string]model.Kind{
	"source":      model.KindSource,
	"sink":        model.KindSink,
	"transformer": model.KindTransformer,
	"storage":     model.KindStorage,
}

// Build resolves the profiles against table and feeds every bus and node
// to a model.Builder. Validation errors are the builder's
// *model.ConfigurationError values.
func (s *Scenario) Build(table *timeseries.Table) (*model.EnergySystem, error) {
	idx, err := model.NewTimeIndex(s.TimeIndex.Start, s.TimeIndex.Step, s.TimeIndex.Periods)
	if err != nil {
		return nil, err
	}
	b := model.NewBuilder(idx, s.Parameters.ToModel())
	for _, bd := range s.Buses {
		bus, err := bd.ToModel()
		if err != nil {
			return nil, err
		}
		if err := b.AddBus(bus); err != nil {
			return nil, err
		}
	}
	for _, nd := range s.Nodes {
		n, err := nd.toModel(table, idx.Periods)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Label, err)
		}
		if err := b.AddNode(n); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (nd NodeDef) toModel(table *timeseries.Table, periods int) (model.Node, error) {
	kind, ok := kinds[nd.Kind]
	if !ok {
		return model.Node{}, fmt.Errorf("unknown kind %q", nd.Kind)
	}
	n := model.Node{Label: nd.Label, Kind: kind, ConversionFactors: nd.ConversionFactors}
	var err error
	if n.Inputs, err = ports(nd.Inputs, table, periods); err != nil {
		return model.Node{}, err
	}
	if n.Outputs, err = ports(nd.Outputs, table, periods); err != nil {
		return model.Node{}, err
	}
	if nd.Inertia != nil {
		ip, err := nd.Inertia.ToModel()
		if err != nil {
			return model.Node{}, err
		}
		n.Inertia = &ip
	}
	if nd.Storage != nil {
		sp := nd.Storage.ToModel()
		n.Storage = &sp
	}
	return n, nil
}

func ports(defs []FlowDef, table *timeseries.Table, periods int) ([]model.Port, error) {
	out := make([]model.Port, 0, len(defs))
	for _, fd := range defs {
		f, err := fd.toModel(table, periods)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", fd.Bus, err)
		}
		out = append(out, model.Port{Bus: fd.Bus, Flow: f})
	}
	return out, nil
}

func (fd FlowDef) toModel(table *timeseries.Table, periods int) (model.Flow, error) {
	f := model.Flow{NominalValue: fd.NominalValue, VariableCost: fd.VariableCost}
	if fd.Fix != nil && fd.FixRelative != nil {
		return f, fmt.Errorf("fix and fix_relative are exclusive")
	}
	var err error
	if fd.Fix != nil {
		if f.Fix, err = fd.Fix.Resolve(table, periods); err != nil {
			return f, fmt.Errorf("fix: %w", err)
		}
	}
	if fd.FixRelative != nil {
		if fd.NominalValue == nil {
			return f, fmt.Errorf("fix_relative needs a nominal_value")
		}
		if f.Fix, err = fd.FixRelative.Resolve(table, periods); err != nil {
			return f, fmt.Errorf("fix_relative: %w", err)
		}
		for i := range f.Fix {
			f.Fix[i] *= *fd.NominalValue
		}
	}
	if fd.Min != nil {
		if f.Min, err = fd.Min.Resolve(table, periods); err != nil {
			return f, fmt.Errorf("min: %w", err)
		}
	}
	if fd.Max != nil {
		if f.Max, err = fd.Max.Resolve(table, periods); err != nil {
			return f, fmt.Errorf("max: %w", err)
		}
	}
	return f, nil
}
