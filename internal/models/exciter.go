package models

import (
	"math"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

const (
	// limitRootBand moves the limit surfaces slightly outside the limits so
	// a state resting on a limit does not chatter.
	limitRootBand = 1e-4
	// limitCheckBand is the overshoot RootCheck tolerates before clamping.
	limitCheckBand = 1e-5
)

type exciterFlags struct {
	outsideVlim bool
	triggerHigh bool
}

// Exciter is a first-order voltage regulator with output limits. While the
// field voltage rests on a limit its state is frozen.
type Exciter struct {
	dae.Base
	Ka, Ta       float64
	Vrmax, Vrmin float64
	Vref, Vbias  float64

	flags exciterFlags
}

func NewExciter(arena *dae.Arena) *Exciter {
	e := &Exciter{
		Ka:    20,
		Ta:    0.2,
		Vrmax: 5,
		Vrmin: -5,
		Vref:  1,
	}
	arena.Register(e, "exciter")
	dae.EnsureLocal(e)
	return e
}

// OutsideLimits reports whether the field voltage is held at a limit.
func (e *Exciter) OutsideLimits() bool { return e.flags.outsideVlim }

func (e *Exciter) DiscreteMode() string {
	switch {
	case !e.flags.outsideVlim:
		return "within_limits"
	case e.flags.triggerHigh:
		return "saturated_high"
	}
	return "saturated_low"
}

func (e *Exciter) Capabilities() dae.Capabilities {
	return dae.Capabilities{Limits: true, Roots: true}
}

func (e *Exciter) LocalSizes(mode dae.SolverMode) dae.StateSizes {
	if !mode.IsDynamic() {
		return dae.StateSizes{}
	}
	return dae.StateSizes{DiffSize: 1, DiffRoots: 1, JacSize: 2}
}

// Field returns the committed field voltage.
func (e *Exciter) Field() float64 { return diffState(e, 0) }

// demand is the regulator output the limits act on.
func (e *Exciter) demand(v float64) float64 {
	return e.Ka * (e.Vref + e.Vbias - v)
}

func (e *Exciter) rate(v, ef float64) float64 {
	if e.flags.outsideVlim {
		return 0
	}
	return (e.demand(v) - ef) / e.Ta
}

func (e *Exciter) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, e)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = e.rate(input(inputs, InVoltage, 1), loc.DiffState[0])
}

func (e *Exciter) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, e)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = e.rate(input(inputs, InVoltage, 1), loc.DiffState[0]) - dstateAt(loc, 0)
}

func (e *Exciter) JacobianElements(_ []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	row := e.DiffOffset(mode)
	if row == dae.NullLocation || e.Offsets(mode).Local.DiffSize == 0 {
		return
	}
	if e.flags.outsideVlim {
		md.Assign(row, row, -cj(sd))
		return
	}
	md.Assign(row, row, -1/e.Ta-cj(sd))
	md.AssignCheckCol(row, inputLoc(inputLocs, InVoltage), -e.Ka/e.Ta)
}

func (e *Exciter) Outputs(_ []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	loc := dae.GetLocations(sd, nil, mode, e)
	if len(loc.DiffState) > 0 {
		return []float64{loc.DiffState[0]}
	}
	return []float64{e.Field()}
}

func (e *Exciter) Output(i int) float64 {
	if i == 0 {
		return e.Field()
	}
	return 0
}

func (e *Exciter) rootValue(v, ef float64) float64 {
	if !e.flags.outsideVlim {
		return math.Min(e.Vrmax-ef, ef-e.Vrmin) + limitRootBand
	}
	if e.flags.triggerHigh {
		return e.demand(v) - e.Vrmax
	}
	return e.Vrmin - e.demand(v)
}

func (e *Exciter) RootTest(inputs []float64, sd *dae.StateData, roots []float64, mode dae.SolverMode) {
	off := e.RootOffset(mode)
	if off == dae.NullLocation {
		return
	}
	loc := dae.GetLocations(sd, nil, mode, e)
	roots[off] = e.rootValue(input(inputs, InVoltage, 1), loc.DiffState[0])
}

func (e *Exciter) RootTrigger(_ float64, inputs []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	if !e.RootTriggered(rootMask, mode) {
		return dae.NoChange
	}
	return e.transition(input(inputs, InVoltage, 1), e.Field(), 0)
}

// transition clamps to a limit the field voltage has passed by more than
// band, or releases a clamp once the demand has come back inside by more
// than band.
func (e *Exciter) transition(v, ef, band float64) dae.ChangeCode {
	if !e.flags.outsideVlim {
		switch {
		case ef >= e.Vrmax+band:
			e.flags = exciterFlags{outsideVlim: true, triggerHigh: true}
			setDiffState(e, 0, e.Vrmax)
		case ef <= e.Vrmin-band:
			e.flags = exciterFlags{outsideVlim: true}
			setDiffState(e, 0, e.Vrmin)
		default:
			return dae.NoChange
		}
		return dae.JacobianChange
	}
	d := e.demand(v)
	if e.flags.triggerHigh && d < e.Vrmax-band || !e.flags.triggerHigh && d > e.Vrmin+band {
		e.flags = exciterFlags{}
		return dae.JacobianChange
	}
	return dae.NoChange
}

func (e *Exciter) RootCheck(inputs []float64, sd *dae.StateData, mode dae.SolverMode, level dae.CheckLevel) dae.ChangeCode {
	if level == dae.LowVoltageCheck || e.RootOffset(mode) == dae.NullLocation {
		return dae.NoChange
	}
	loc := dae.GetLocations(sd, nil, mode, e)
	return e.transition(input(inputs, InVoltage, 1), loc.DiffState[0], limitCheckBand)
}

// SetOperatingPoint sets the field voltage and moves the reference so the
// regulator is in equilibrium at terminal voltage v.
func (e *Exciter) SetOperatingPoint(ef, v float64) {
	setDiffState(e, 0, ef)
	e.Vref = v + ef/e.Ka - e.Vbias
	e.flags = exciterFlags{}
}

func (e *Exciter) Params() map[string]float64 {
	return map[string]float64{
		"ka": e.Ka, "ta": e.Ta, "vrmax": e.Vrmax, "vrmin": e.Vrmin,
		"vref": e.Vref, "vbias": e.Vbias,
	}
}

func (e *Exciter) Set(name string, value float64, unit units.Unit) error {
	switch name {
	case "ka":
		e.Ka = value
	case "ta":
		ta, err := units.Convert(value, unit, units.Sec, 0)
		if err != nil || ta <= 0 {
			return e.InvalidValue(name, value)
		}
		e.Ta = ta
	case "vrmax":
		e.Vrmax = value
	case "vrmin":
		e.Vrmin = value
	case "vref":
		e.Vref = value
	case "vbias":
		e.Vbias = value
	case "ef":
		setDiffState(e, 0, value)
	default:
		return e.Base.Set(name, value, unit)
	}
	return nil
}

func (e *Exciter) Get(name string, unit units.Unit) (float64, error) {
	if name == "ta" {
		return units.Convert(e.Ta, units.Sec, unit, 0)
	}
	if v, ok := e.Params()[name]; ok {
		return v, nil
	}
	if name == "ef" {
		return e.Field(), nil
	}
	return e.Base.Get(name, unit)
}
