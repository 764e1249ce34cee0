package models

import (
	"github.com/san-kum/griddae/internal/dae"
)

// snapshot lays c out in mode and returns a global snapshot filled from its
// local buffers.
func snapshot(c dae.Component, mode dae.SolverMode, cjv float64) *dae.StateData {
	total := dae.Layout(c, mode)
	n := total.States()
	sd := &dae.StateData{
		State:  make([]float64, n),
		DState: make([]float64, n),
		SeqID:  1,
		CJ:     cjv,
	}
	dae.PullState(c, sd.State, sd.DState, mode)
	return sd
}

func residual(c dae.Component, inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	out := make([]float64, len(sd.State))
	c.Residual(inputs, sd, out, mode)
	return out
}

func derivative(c dae.Component, inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	out := make([]float64, len(sd.State))
	c.Derivative(inputs, sd, out, mode)
	return out
}

// mask returns a root mask that flags every root owned by c.
func mask(c dae.Component, mode dae.SolverMode) []int {
	m := make([]int, dae.TotalSizes(c, mode).Roots())
	for i := range m {
		m[i] = 1
	}
	return m
}
