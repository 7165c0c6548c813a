package region

import "math"

// State keeps running statistics for one bin: the primary signal (a z-score
// or allele-specific ratio) and the secondary mean-expression signal "mu".
// The zero-count state has infinite sentinels for min and max; callers read
// them through Range and MuRange, which report ok=false until something has
// been added.
type State struct {
	Count int

	Total float64
	min   float64
	max   float64

	MuTotal float64
	muMin   float64
	muMax   float64
}

// NewState returns an empty state.
func NewState() State {
	return State{
		min:   math.Inf(1),
		max:   math.Inf(-1),
		muMin: math.Inf(1),
		muMax: math.Inf(-1),
	}
}

// Add records one measurement.
func (s *State) Add(value, mu float64) {
	s.Count++

	s.Total += value
	s.min = math.Min(s.min, value)
	s.max = math.Max(s.max, value)

	s.MuTotal += mu
	s.muMin = math.Min(s.muMin, mu)
	s.muMax = math.Max(s.muMax, mu)
}

// Empty reports whether no measurement has been added.
func (s *State) Empty() bool {
	return s.Count == 0
}

// Mean returns Total/Count, or ok=false for an empty state.
func (s *State) Mean() (mean float64, ok bool) {
	if s.Count == 0 {
		return 0, false
	}
	return s.Total / float64(s.Count), true
}

// MuMean returns MuTotal/Count, or ok=false for an empty state.
func (s *State) MuMean() (mean float64, ok bool) {
	if s.Count == 0 {
		return 0, false
	}
	return s.MuTotal / float64(s.Count), true
}

// Range returns the smallest and largest primary values seen.
func (s *State) Range() (lo, hi float64, ok bool) {
	if s.Count == 0 {
		return 0, 0, false
	}
	return s.min, s.max, true
}

// MuRange returns the smallest and largest mu values seen.
func (s *State) MuRange() (lo, hi float64, ok bool) {
	if s.Count == 0 {
		return 0, 0, false
	}
	return s.muMin, s.muMax, true
}
