package models

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

// SyncSpeed is the synchronous speed in rad/s.
var SyncSpeed = 2 * math.Pi * units.SystemBaseFrequency

// GenModel is the classical machine model: a constant voltage behind the
// transient reactance. Local states are Id, Iq (algebraic) and delta, omega
// (differential); the field voltage and mechanical power are inputs.
type GenModel struct {
	dae.Base
	Ra, Xdp float64
	H, D    float64

	// P0 and Q0 are the initial power output used by InitializeState.
	P0, Q0 float64

	// Ef0 and Pm0 stand in for the field voltage and mechanical power when
	// those inputs are absent.
	Ef0, Pm0 float64

	frame    dae.Derived[rotatingFrame]
	computes int
	outputs  [2]float64
}

type rotatingFrame struct {
	vd, vq float64
}

func NewGenModel(arena *dae.Arena) *GenModel {
	g := &GenModel{Xdp: 0.3, H: 5, D: 2, P0: 0.8, Q0: 0.2, Ef0: 1, Pm0: 0.8}
	arena.Register(g, "genmodel")
	dae.EnsureLocal(g)
	return g
}

func (g *GenModel) LocalSizes(mode dae.SolverMode) dae.StateSizes {
	if !mode.IsDynamic() {
		return dae.StateSizes{AlgSize: 2, JacSize: 12}
	}
	return dae.StateSizes{AlgSize: 2, DiffSize: 2, JacSize: 24}
}

// frameVoltages rotates the terminal voltage into the machine frame. The
// result is cached per snapshot.
func (g *GenModel) frameVoltages(inputs []float64, sd *dae.StateData, delta float64) (vd, vq float64) {
	f := g.frame.Get(seq(sd), func() rotatingFrame {
		g.computes++
		v := input(inputs, InVoltage, 1)
		a := delta - input(inputs, InAngle, 0)
		return rotatingFrame{vd: v * math.Sin(a), vq: v * math.Cos(a)}
	})
	return f.vd, f.vq
}

// genVars collects the values every equation of the model needs.
type genVars struct {
	id, iq, delta, omega float64
	vd, vq               float64
	ef, pm               float64
}

func (g *GenModel) vars(inputs []float64, sd *dae.StateData, loc dae.Locations) genVars {
	var gv genVars
	gv.id, gv.iq = loc.AlgState[0], loc.AlgState[1]
	if len(loc.DiffState) == 2 {
		gv.delta, gv.omega = loc.DiffState[0], loc.DiffState[1]
	} else {
		gv.delta, gv.omega = diffState(g, 0), diffState(g, 1)
	}
	gv.vd, gv.vq = g.frameVoltages(inputs, sd, gv.delta)
	gv.ef = input(inputs, InField, g.Ef0)
	gv.pm = input(inputs, InMechPower, g.Pm0)
	return gv
}

func (g *GenModel) electricalPower(gv genVars) float64 {
	return gv.vd*gv.id + gv.vq*gv.iq + g.Ra*(gv.id*gv.id+gv.iq*gv.iq)
}

func (g *GenModel) rates(gv genVars) (dDelta, dOmega float64) {
	dDelta = SyncSpeed * (gv.omega - 1)
	dOmega = (gv.pm - g.electricalPower(gv) - g.D*(gv.omega-1)) / (2 * g.H)
	return dDelta, dOmega
}

func (g *GenModel) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, g)
	if loc.DestDiff == nil {
		return
	}
	gv := g.vars(inputs, sd, loc)
	loc.DestDiff[0], loc.DestDiff[1] = g.rates(gv)
}

func (g *GenModel) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, g)
	gv := g.vars(inputs, sd, loc)
	if loc.Dest != nil {
		loc.Dest[0] = gv.vd + g.Ra*gv.id - g.Xdp*gv.iq
		loc.Dest[1] = gv.vq + g.Ra*gv.iq + g.Xdp*gv.id - gv.ef
	}
	if loc.DestDiff != nil {
		dDelta, dOmega := g.rates(gv)
		loc.DestDiff[0] = dDelta - dstateAt(loc, 0)
		loc.DestDiff[1] = dOmega - dstateAt(loc, 1)
	}
}

func (g *GenModel) JacobianElements(inputs []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, nil, mode, g)
	gv := g.vars(inputs, sd, loc)
	a := gv.delta - input(inputs, InAngle, 0)
	sinA, cosA := math.Sin(a), math.Cos(a)

	vLoc := inputLoc(inputLocs, InVoltage)
	thLoc := inputLoc(inputLocs, InAngle)
	efLoc := inputLoc(inputLocs, InField)
	pmLoc := inputLoc(inputLocs, InMechPower)

	alg := loc.AlgOffset
	idCol, iqCol := alg, alg+1
	dCol, wCol := dae.NullLocation, dae.NullLocation
	if loc.DiffOffset != dae.NullLocation && g.Offsets(mode).Local.DiffSize == 2 {
		dCol, wCol = loc.DiffOffset, loc.DiffOffset+1
	}

	if alg != dae.NullLocation && g.Offsets(mode).Local.AlgSize == 2 {
		md.Assign(alg, idCol, g.Ra)
		md.Assign(alg, iqCol, -g.Xdp)
		md.AssignCheckCol(alg, dCol, gv.vq)
		md.AssignCheckCol(alg, vLoc, sinA)
		md.AssignCheckCol(alg, thLoc, -gv.vq)

		md.Assign(alg+1, idCol, g.Xdp)
		md.Assign(alg+1, iqCol, g.Ra)
		md.AssignCheckCol(alg+1, dCol, -gv.vd)
		md.AssignCheckCol(alg+1, efLoc, -1)
		md.AssignCheckCol(alg+1, vLoc, cosA)
		md.AssignCheckCol(alg+1, thLoc, gv.vd)
	}

	if dCol == dae.NullLocation {
		return
	}
	c := cj(sd)
	md.Assign(dCol, dCol, -c)
	md.Assign(dCol, wCol, SyncSpeed)

	h2 := 2 * g.H
	dPeDdelta := gv.vq*gv.id - gv.vd*gv.iq
	md.AssignCheckCol(wCol, idCol, -(gv.vd+2*g.Ra*gv.id)/h2)
	md.AssignCheckCol(wCol, iqCol, -(gv.vq+2*g.Ra*gv.iq)/h2)
	md.Assign(wCol, dCol, -dPeDdelta/h2)
	md.Assign(wCol, wCol, -g.D/h2-c)
	md.AssignCheckCol(wCol, pmLoc, 1/h2)
	md.AssignCheckCol(wCol, vLoc, -(sinA*gv.id+cosA*gv.iq)/h2)
	md.AssignCheckCol(wCol, thLoc, dPeDdelta/h2)
}

// Outputs returns the electrical power delivered at the terminal.
func (g *GenModel) Outputs(inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	loc := dae.GetLocations(sd, nil, mode, g)
	gv := g.vars(inputs, sd, loc)
	g.outputs[0] = gv.vd*gv.id + gv.vq*gv.iq
	g.outputs[1] = gv.vq*gv.id - gv.vd*gv.iq
	return g.outputs[:]
}

func (g *GenModel) Output(i int) float64 {
	if i < len(g.outputs) {
		return g.outputs[i]
	}
	return 0
}

// Speed returns the committed rotor speed.
func (g *GenModel) Speed() float64 { return diffState(g, 1) }

// InitializeState solves the operating point that delivers P0+jQ0 at the
// terminal and stores the matching Ef0 and Pm0.
func (g *GenModel) InitializeState(_ float64, inputs []float64) {
	v := input(inputs, InVoltage, 1)
	th := input(inputs, InAngle, 0)
	vt := cmplx.Rect(v, th)
	cur := cmplx.Conj(complex(g.P0, g.Q0) / vt)
	e := vt + complex(g.Ra, g.Xdp)*cur
	delta := cmplx.Phase(e)

	ir, ii := real(cur), imag(cur)
	id := ir*math.Sin(delta) - ii*math.Cos(delta)
	iq := ir*math.Cos(delta) + ii*math.Sin(delta)

	st := g.LocalState()
	st[0], st[1] = id, iq
	setDiffState(g, 0, delta)
	setDiffState(g, 1, 1)

	g.Ef0 = cmplx.Abs(e)
	g.Pm0 = g.P0 + g.Ra*(id*id+iq*iq)
	g.frame.Invalidate()
}

func (g *GenModel) Params() map[string]float64 {
	return map[string]float64{
		"ra": g.Ra, "xdp": g.Xdp, "h": g.H, "d": g.D,
		"p0": g.P0, "q0": g.Q0, "ef0": g.Ef0, "pm0": g.Pm0,
	}
}

func (g *GenModel) Set(name string, value float64, unit units.Unit) error {
	switch name {
	case "ra":
		g.Ra = value
	case "xdp":
		if value <= 0 {
			return g.InvalidValue(name, value)
		}
		g.Xdp = value
	case "h":
		if value <= 0 {
			return g.InvalidValue(name, value)
		}
		g.H = value
	case "d":
		g.D = value
	case "p0", "q0":
		p, err := units.Convert(value, unit, units.PU, units.SystemBasePower)
		if err != nil {
			return g.InvalidValue(name, value)
		}
		if name == "p0" {
			g.P0 = p
		} else {
			g.Q0 = p
		}
	case "ef0":
		g.Ef0 = value
	case "pm0":
		g.Pm0 = value
	default:
		return g.Base.Set(name, value, unit)
	}
	return nil
}

func (g *GenModel) Get(name string, unit units.Unit) (float64, error) {
	if v, ok := g.Params()[name]; ok {
		return v, nil
	}
	switch name {
	case "delta":
		return diffState(g, 0), nil
	case "omega", "speed":
		return g.Speed(), nil
	}
	return g.Base.Get(name, unit)
}
