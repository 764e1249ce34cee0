package metrics

import (
	"math"

	"github.com/san-kum/griddae/internal/sim"
)

// Stability is the fraction of accepted steps that keep every state inside
// bound. A collapsing voltage or a runaway rotor angle pulls it below one.
type Stability struct {
	bound   float64
	outside int
	steps   int
	first   float64
}

func NewStability(bound float64) *Stability {
	return &Stability{bound: bound, first: math.NaN()}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) OnStep(t float64, x sim.State) {
	s.steps++
	if x.MaxAbs() <= s.bound {
		return
	}
	if s.outside == 0 {
		s.first = t
	}
	s.outside++
}

func (s *Stability) Value() float64 {
	if s.steps == 0 {
		return 1
	}
	return 1 - float64(s.outside)/float64(s.steps)
}

// FirstExcursion is the time of the first step outside the bound, NaN if
// there was none.
func (s *Stability) FirstExcursion() float64 { return s.first }

func (s *Stability) Reset() {
	s.outside, s.steps = 0, 0
	s.first = math.NaN()
}
