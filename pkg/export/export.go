// Package export writes decoded dispatch results to files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/gridinertia/core/dispatch"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes one row per edge, series and step:
// from,to,role,series,step,time,value. Scalars are written with an empty
// step and time.
func WriteCSV(w io.Writer, res dispatch.Results) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"from", "to", "role", "series", "step", "time", "value"}); err != nil {
		return err
	}
	ts := res.Timestamps()
	for _, k := range res.Keys() {
		rec, err := res.Get(k.From, k.To)
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(rec.Sequences) {
			for t, v := range rec.Sequences[name] {
				row := []string{k.From, k.To, string(rec.Role), name, strconv.Itoa(t), ts[t].Format(time.RFC3339), formatFloat(v)}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
		for _, name := range sortedKeys(rec.Scalars) {
			row := []string{k.From, k.To, string(rec.Role), name, "", "", formatFloat(rec.Scalars[name])}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInertiaCSV writes the per-step inertia summary.
func WriteInertiaCSV(w io.Writer, res dispatch.Results) error {
	cw := csv.NewWriter(w)
	header := []string{
		"time", "apparent_power", "synchronous_energy", "synthetic_energy", "total_energy",
		"synchronous_constant", "total_constant", "synchronous_threshold", "total_threshold",
		"required_synchronous_constant", "required_total_constant",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range res.Inertia() {
		row := []string{
			s.Time.Format(time.RFC3339),
			formatFloat(s.ApparentPower),
			formatFloat(s.SynchronousEnergy),
			formatFloat(s.SyntheticEnergy),
			formatFloat(s.TotalEnergy()),
			formatFloat(s.SynchronousConstant),
			formatFloat(s.TotalConstant),
			formatFloat(s.SynchronousThreshold),
			formatFloat(s.TotalThreshold),
			formatFloat(s.RequiredSynchronousConstant),
			formatFloat(s.RequiredTotalConstant),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON form of a result set.
type Document struct {
	RunID      string         `json:"run_id,omitempty"`
	Scenario   string         `json:"scenario,omitempty"`
	Objective  float64        `json:"objective"`
	Timestamps []time.Time    `json:"timestamps"`
	Records    []RecordDoc    `json:"records"`
	Inertia    []InertiaDoc   `json:"inertia"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type RecordDoc struct {
	From      string               `json:"from"`
	To        string               `json:"to,omitempty"`
	Role      dispatch.Role        `json:"role"`
	Node      string               `json:"node"`
	Provision string               `json:"provision,omitempty"`
	Sequences map[string][]float64 `json:"sequences"`
	Scalars   map[string]float64   `json:"scalars,omitempty"`
}

type InertiaDoc struct {
	Time                 time.Time `json:"time"`
	ApparentPower        float64   `json:"apparent_power"`
	SynchronousEnergy    float64   `json:"synchronous_energy"`
	SyntheticEnergy      float64   `json:"synthetic_energy"`
	SynchronousConstant  float64   `json:"synchronous_constant"`
	TotalConstant        float64   `json:"total_constant"`
	SynchronousThreshold float64   `json:"synchronous_threshold"`
	TotalThreshold       float64   `json:"total_threshold"`
}

// NewDocument converts res into its JSON form.
func NewDocument(runID, scenario string, res dispatch.Results) (Document, error) {
	doc := Document{
		RunID:      runID,
		Scenario:   scenario,
		Objective:  res.Objective(),
		Timestamps: res.Timestamps(),
	}
	for _, k := range res.Keys() {
		rec, err := res.Get(k.From, k.To)
		if err != nil {
			return Document{}, err
		}
		rd := RecordDoc{From: k.From, To: k.To, Role: rec.Role, Node: rec.Node, Sequences: rec.Sequences, Scalars: rec.Scalars}
		if rec.Role == dispatch.RoleInertia {
			rd.Provision = rec.Provision.String()
		}
		doc.Records = append(doc.Records, rd)
	}
	for _, s := range res.Inertia() {
		doc.Inertia = append(doc.Inertia, InertiaDoc{
			Time:                 s.Time,
			ApparentPower:        s.ApparentPower,
			SynchronousEnergy:    s.SynchronousEnergy,
			SyntheticEnergy:      s.SyntheticEnergy,
			SynchronousConstant:  s.SynchronousConstant,
			TotalConstant:        s.TotalConstant,
			SynchronousThreshold: s.SynchronousThreshold,
			TotalThreshold:       s.TotalThreshold,
		})
	}
	return doc, nil
}

// WriteJSON writes res to w in JSON format.
func WriteJSON(w io.Writer, runID, scenario string, res dispatch.Results) error {
	doc, err := NewDocument(runID, scenario, res)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
