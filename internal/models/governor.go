package models

import (
	"math"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

type governorFlags struct {
	atLimit bool
	high    bool
}

// Governor is a droop speed governor with a first-order turbine lag and
// power limits. Its input is the rotor speed at InFrequency.
type Governor struct {
	dae.Base
	K, T       float64
	Pset       float64
	Pmax, Pmin float64

	flags governorFlags
}

func NewGovernor(arena *dae.Arena) *Governor {
	g := &Governor{K: 20, T: 0.5, Pmax: 1.2, Pmin: 0}
	arena.Register(g, "governor")
	dae.EnsureLocal(g)
	return g
}

func (g *Governor) DiscreteMode() string {
	switch {
	case !g.flags.atLimit:
		return "within_limits"
	case g.flags.high:
		return "at_pmax"
	}
	return "at_pmin"
}

func (g *Governor) Capabilities() dae.Capabilities {
	return dae.Capabilities{Limits: true, Roots: true}
}

func (g *Governor) LocalSizes(mode dae.SolverMode) dae.StateSizes {
	if !mode.IsDynamic() {
		return dae.StateSizes{}
	}
	return dae.StateSizes{DiffSize: 1, DiffRoots: 1, JacSize: 2}
}

// Power returns the committed mechanical power.
func (g *Governor) Power() float64 { return diffState(g, 0) }

func (g *Governor) demand(w float64) float64 {
	return g.Pset - g.K*(w-1)
}

func (g *Governor) rate(w, pm float64) float64 {
	if g.flags.atLimit {
		return 0
	}
	return (g.demand(w) - pm) / g.T
}

func (g *Governor) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, g)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = g.rate(input(inputs, InFrequency, 1), loc.DiffState[0])
}

func (g *Governor) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, g)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = g.rate(input(inputs, InFrequency, 1), loc.DiffState[0]) - dstateAt(loc, 0)
}

func (g *Governor) JacobianElements(_ []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	row := g.DiffOffset(mode)
	if row == dae.NullLocation || g.Offsets(mode).Local.DiffSize == 0 {
		return
	}
	if g.flags.atLimit {
		md.Assign(row, row, -cj(sd))
		return
	}
	md.Assign(row, row, -1/g.T-cj(sd))
	md.AssignCheckCol(row, inputLoc(inputLocs, InFrequency), -g.K/g.T)
}

func (g *Governor) Outputs(_ []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	loc := dae.GetLocations(sd, nil, mode, g)
	if len(loc.DiffState) > 0 {
		return []float64{loc.DiffState[0]}
	}
	return []float64{g.Power()}
}

func (g *Governor) Output(i int) float64 {
	if i == 0 {
		return g.Power()
	}
	return 0
}

func (g *Governor) RootTest(inputs []float64, sd *dae.StateData, roots []float64, mode dae.SolverMode) {
	off := g.RootOffset(mode)
	if off == dae.NullLocation {
		return
	}
	loc := dae.GetLocations(sd, nil, mode, g)
	pm := loc.DiffState[0]
	switch {
	case !g.flags.atLimit:
		roots[off] = math.Min(g.Pmax-pm, pm-g.Pmin) + limitRootBand
	case g.flags.high:
		roots[off] = g.demand(input(inputs, InFrequency, 1)) - g.Pmax
	default:
		roots[off] = g.Pmin - g.demand(input(inputs, InFrequency, 1))
	}
}

func (g *Governor) RootTrigger(_ float64, inputs []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	if !g.RootTriggered(rootMask, mode) {
		return dae.NoChange
	}
	return g.transition(input(inputs, InFrequency, 1), g.Power(), 0)
}

func (g *Governor) transition(w, pm, band float64) dae.ChangeCode {
	if !g.flags.atLimit {
		switch {
		case pm >= g.Pmax+band:
			g.flags = governorFlags{atLimit: true, high: true}
			setDiffState(g, 0, g.Pmax)
		case pm <= g.Pmin-band:
			g.flags = governorFlags{atLimit: true}
			setDiffState(g, 0, g.Pmin)
		default:
			return dae.NoChange
		}
		return dae.JacobianChange
	}
	d := g.demand(w)
	if g.flags.high && d < g.Pmax-band || !g.flags.high && d > g.Pmin+band {
		g.flags = governorFlags{}
		return dae.JacobianChange
	}
	return dae.NoChange
}

func (g *Governor) RootCheck(inputs []float64, sd *dae.StateData, mode dae.SolverMode, level dae.CheckLevel) dae.ChangeCode {
	if level == dae.LowVoltageCheck || g.RootOffset(mode) == dae.NullLocation {
		return dae.NoChange
	}
	loc := dae.GetLocations(sd, nil, mode, g)
	return g.transition(input(inputs, InFrequency, 1), loc.DiffState[0], limitCheckBand)
}

// SetOperatingPoint sets the mechanical power at nominal speed.
func (g *Governor) SetOperatingPoint(pm float64) {
	g.Pset = pm
	g.flags = governorFlags{}
	setDiffState(g, 0, pm)
}

func (g *Governor) Params() map[string]float64 {
	return map[string]float64{"k": g.K, "t": g.T, "pset": g.Pset, "pmax": g.Pmax, "pmin": g.Pmin}
}

func (g *Governor) Set(name string, value float64, unit units.Unit) error {
	switch name {
	case "k":
		g.K = value
	case "t":
		t, err := units.Convert(value, unit, units.Sec, 0)
		if err != nil || t <= 0 {
			return g.InvalidValue(name, value)
		}
		g.T = t
	case "pset":
		p, err := units.Convert(value, unit, units.PU, units.SystemBasePower)
		if err != nil {
			return g.InvalidValue(name, value)
		}
		g.Pset = p
	case "pmax":
		g.Pmax = value
	case "pmin":
		g.Pmin = value
	case "pm":
		setDiffState(g, 0, value)
	default:
		return g.Base.Set(name, value, unit)
	}
	return nil
}

func (g *Governor) Get(name string, unit units.Unit) (float64, error) {
	if v, ok := g.Params()[name]; ok {
		return v, nil
	}
	if name == "pm" {
		return g.Power(), nil
	}
	return g.Base.Get(name, unit)
}
