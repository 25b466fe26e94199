// Package rating holds the multi-timescale outcome-probability state kept for
// every batter, pitcher and league average, and the exponential-decay update
// applied to it after each observed play.
//
// Each vector is a distribution over the nine field-agnostic outcomes. An
// update with timescale k multiplies every unobserved probability by
// exp(-1/k) and multiplies the observed outcome's complement by the same
// factor, so the vector stays on the probability simplex.
package rating

import (
	"math"

	"github.com/okian/diamond/internal/domain/model"
	"gonum.org/v1/gonum/floats"
)

// DefaultEpsilon keeps probabilities away from 0 and 1 before taking logs.
const DefaultEpsilon = 1e-9

// Vector is a probability distribution indexed by model.Outcome.
type Vector [model.NumOutcomes]float64

// Uniform returns the flat distribution.
func Uniform() Vector {
	var v Vector
	for i := range v {
		v[i] = 1.0 / model.NumOutcomes
	}
	return v
}

// Sum returns the total probability mass.
func (v *Vector) Sum() float64 { return floats.Sum(v[:]) }

// Sub returns v - o element-wise.
func (v Vector) Sub(o Vector) Vector {
	floats.Sub(v[:], o[:])
	return v
}

// Clamp forces every entry into [eps, 1-eps] and pushes the rounding residue
// into the largest entry so the vector still sums to one. It returns the
// number of entries that hit the lower bound.
func (v *Vector) Clamp(eps float64) (underflows int) {
	lo, hi := eps, 1-eps
	for i, p := range v {
		switch {
		case p < lo || math.IsNaN(p):
			v[i] = lo
			underflows++
		case p > hi:
			v[i] = hi
		}
	}
	if residue := v.Sum() - 1; residue != 0 {
		maxIdx := floats.MaxIdx(v[:])
		v[maxIdx] = math.Min(hi, math.Max(lo, v[maxIdx]-residue))
	}
	return underflows
}

// Decay applies one observation of outcome with timescale k in place and
// clamps the result. It returns how many entries were clamped at eps.
func (v *Vector) Decay(observed model.Outcome, k int, eps float64) (underflows int) {
	w := 1 / float64(k)
	for i, p := range v {
		if model.Outcome(i) == observed {
			// p <- 1 - exp(ln(1-p) - w)
			v[i] = -math.Expm1(math.Log1p(-p) - w)
			continue
		}
		// p <- exp(ln(p) - w)
		v[i] = math.Exp(math.Log(p) - w)
	}
	return v.Clamp(eps)
}

// State is the mutable rating for one key: a vector per timescale plus the
// number of plays that have updated it.
type State struct {
	Vectors     []Vector
	Appearances int64
}

// NewState seeds every timescale with prior.
func NewState(prior Vector, timescales int) *State {
	s := &State{Vectors: make([]Vector, timescales)}
	for i := range s.Vectors {
		s.Vectors[i] = prior
	}
	return s
}

// Apply updates every timescale vector with the observed outcome and counts
// the appearance.
func (s *State) Apply(observed model.Outcome, timescales []int, eps float64) (underflows int) {
	for i := range s.Vectors {
		underflows += s.Vectors[i].Decay(observed, timescales[i], eps)
	}
	s.Appearances++
	return underflows
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{Vectors: make([]Vector, len(s.Vectors)), Appearances: s.Appearances}
	copy(c.Vectors, s.Vectors)
	return c
}

// CorpusAverage returns the observed outcome frequencies of plays with one
// pseudo-count per outcome, so no entry starts at zero. An empty corpus
// yields the uniform distribution.
func CorpusAverage(plays []model.Play) Vector {
	var counts Vector
	for i := range counts {
		counts[i] = 1
	}
	for i := range plays {
		if plays[i].Outcome.Valid() {
			counts[plays[i].Outcome]++
		}
	}
	floats.Scale(1/counts.Sum(), counts[:])
	return counts
}
