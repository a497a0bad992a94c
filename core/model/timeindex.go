package model

import "time"

// TimeIndex is an ordered sequence of equally spaced timestamps.
type TimeIndex struct {
	Start   time.Time
	Step    time.Duration
	Periods int
}

// NewTimeIndex validates and returns a time index.
func NewTimeIndex(start time.Time, step time.Duration, periods int) (TimeIndex, error) {
	ti := TimeIndex{Start: start, Step: step, Periods: periods}
	return ti, ti.validate()
}

// Len returns the number of steps.
func (ti TimeIndex) Len() int { return ti.Periods }

// At returns the timestamp of step t.
func (ti TimeIndex) At(t int) time.Time { return ti.Start.Add(time.Duration(t) * ti.Step) }

// Timestamps returns every timestamp of the index.
func (ti TimeIndex) Timestamps() []time.Time {
	ts := make([]time.Time, ti.Periods)
	for t := range ts {
		ts[t] = ti.At(t)
	}
	return ts
}

// Hours returns the step length in hours, the Δt of energy terms.
func (ti TimeIndex) Hours() float64 { return ti.Step.Hours() }

func (ti TimeIndex) validate() error {
	if ti.Periods <= 0 {
		return configErr("", "time_index", ErrInvalidParameter, "periods %d must be > 0", ti.Periods)
	}
	if ti.Step <= 0 {
		return configErr("", "time_index", ErrInvalidParameter, "step %s must be > 0", ti.Step)
	}
	return nil
}
