package metrics

import (
	"math"

	"github.com/san-kum/griddae/internal/sim"
)

// Drift tracks the largest distance of any state from its value at the
// first observed step. A case started at equilibrium should keep it near
// zero. A change in the state count restarts the reference.
type Drift struct {
	ref   sim.State
	worst float64
	at    float64
	index int
}

func NewDrift() *Drift { return &Drift{index: -1} }

func (d *Drift) Name() string { return "drift" }

// Start sets the reference explicitly, e.g. to the initial state.
func (d *Drift) Start(x sim.State) {
	d.ref = x.Clone()
	d.worst, d.at, d.index = 0, 0, -1
}

func (d *Drift) OnStep(t float64, x sim.State) {
	if len(d.ref) != len(x) {
		d.Start(x)
		return
	}
	for i, v := range x {
		if dev := math.Abs(v - d.ref[i]); dev > d.worst {
			d.worst, d.at, d.index = dev, t, i
		}
	}
}

func (d *Drift) Value() float64 { return d.worst }

// Worst returns the state index and time of the largest deviation, -1 when
// nothing moved.
func (d *Drift) Worst() (int, float64) { return d.index, d.at }

func (d *Drift) Reset() {
	d.ref = nil
	d.worst, d.at, d.index = 0, 0, -1
}
