package models

import (
	"errors"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

// Generator owns a machine model, an exciter and a governor. It has no
// states of its own; the field voltage and mechanical power reach the
// machine through the exciter and governor state locations.
type Generator struct {
	dae.Base
	machine  *GenModel
	exciter  *Exciter
	governor *Governor

	machineIn, exciterIn, governorIn    [5]float64
	machineLoc, exciterLoc, governorLoc [5]int
}

func NewGenerator(arena *dae.Arena) *Generator {
	g := &Generator{
		machine:  NewGenModel(arena),
		exciter:  NewExciter(arena),
		governor: NewGovernor(arena),
	}
	arena.Register(g, "generator")
	g.machine.SetName("machine")
	g.exciter.SetName("exciter")
	g.governor.SetName("governor")
	g.AddChild(g.machine)
	g.AddChild(g.exciter)
	g.AddChild(g.governor)
	return g
}

func (g *Generator) Machine() *GenModel  { return g.machine }
func (g *Generator) Exciter() *Exciter   { return g.exciter }
func (g *Generator) Governor() *Governor { return g.governor }

func (g *Generator) Capabilities() dae.Capabilities {
	return dae.Capabilities{Limits: true, Roots: true}
}

// route builds the inputs and input locations of every child from the
// generator's own inputs and the current snapshot.
func (g *Generator) route(inputs []float64, inputLocs []int, sd *dae.StateData, mode dae.SolverMode) {
	v := input(inputs, InVoltage, 1)
	th := input(inputs, InAngle, 0)
	f := input(inputs, InFrequency, 1)
	vLoc, thLoc, fLoc := inputLoc(inputLocs, InVoltage), inputLoc(inputLocs, InAngle), inputLoc(inputLocs, InFrequency)

	ef, efLoc := g.machine.Ef0, dae.NullLocation
	if g.exciter.Enabled() {
		ef, efLoc = g.childState(g.exciter, sd, mode, 0)
	}
	pm, pmLoc := g.machine.Pm0, dae.NullLocation
	if g.governor.Enabled() {
		pm, pmLoc = g.childState(g.governor, sd, mode, 0)
	}
	w, wLoc := g.childState(g.machine, sd, mode, 1)

	g.machineIn = [5]float64{v, th, f, ef, pm}
	g.machineLoc = [5]int{vLoc, thLoc, fLoc, efLoc, pmLoc}
	g.exciterIn = [5]float64{v, th, f}
	g.exciterLoc = [5]int{vLoc, thLoc, fLoc, dae.NullLocation, dae.NullLocation}
	g.governorIn = [5]float64{v, th, w}
	g.governorLoc = [5]int{vLoc, thLoc, wLoc, dae.NullLocation, dae.NullLocation}
}

// childState reads the i-th differential state of c from the snapshot, or
// from its local buffer when the mode carries no differential states.
func (g *Generator) childState(c dae.Component, sd *dae.StateData, mode dae.SolverMode, i int) (float64, int) {
	loc := dae.GetLocations(sd, nil, mode, c)
	if i < len(loc.DiffState) {
		at := dae.NullLocation
		if !mode.IsLocal() && !sd.Empty() {
			at = loc.DiffOffset + i
		}
		return loc.DiffState[i], at
	}
	return diffState(c, i), dae.NullLocation
}

func (g *Generator) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	g.route(inputs, nil, sd, mode)
	g.machine.Residual(g.machineIn[:], sd, resid, mode)
	if g.exciter.Enabled() {
		g.exciter.Residual(g.exciterIn[:], sd, resid, mode)
	}
	if g.governor.Enabled() {
		g.governor.Residual(g.governorIn[:], sd, resid, mode)
	}
}

func (g *Generator) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	g.route(inputs, nil, sd, mode)
	g.machine.Derivative(g.machineIn[:], sd, deriv, mode)
	if g.exciter.Enabled() {
		g.exciter.Derivative(g.exciterIn[:], sd, deriv, mode)
	}
	if g.governor.Enabled() {
		g.governor.Derivative(g.governorIn[:], sd, deriv, mode)
	}
}

func (g *Generator) JacobianElements(inputs []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	g.route(inputs, inputLocs, sd, mode)
	g.machine.JacobianElements(g.machineIn[:], sd, md, g.machineLoc[:], mode)
	if g.exciter.Enabled() {
		g.exciter.JacobianElements(g.exciterIn[:], sd, md, g.exciterLoc[:], mode)
	}
	if g.governor.Enabled() {
		g.governor.JacobianElements(g.governorIn[:], sd, md, g.governorLoc[:], mode)
	}
}

// Outputs returns the terminal P and Q of the machine.
func (g *Generator) Outputs(inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	g.route(inputs, nil, sd, mode)
	return g.machine.Outputs(g.machineIn[:], sd, mode)
}

func (g *Generator) Output(i int) float64 { return g.machine.Output(i) }

func (g *Generator) RootTest(inputs []float64, sd *dae.StateData, roots []float64, mode dae.SolverMode) {
	g.route(inputs, nil, sd, mode)
	if g.exciter.Enabled() {
		g.exciter.RootTest(g.exciterIn[:], sd, roots, mode)
	}
	if g.governor.Enabled() {
		g.governor.RootTest(g.governorIn[:], sd, roots, mode)
	}
}

// RootTrigger runs on committed local state, so the governor sees the
// machine's local speed.
func (g *Generator) RootTrigger(t float64, inputs []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	ret := dae.NoChange
	if g.exciter.Enabled() {
		ret = dae.MaxChange(ret, g.exciter.RootTrigger(t, inputs, rootMask, mode))
	}
	if g.governor.Enabled() {
		in := []float64{input(inputs, InVoltage, 1), input(inputs, InAngle, 0), g.machine.Speed()}
		ret = dae.MaxChange(ret, g.governor.RootTrigger(t, in, rootMask, mode))
	}
	return ret
}

func (g *Generator) RootCheck(inputs []float64, sd *dae.StateData, mode dae.SolverMode, level dae.CheckLevel) dae.ChangeCode {
	g.route(inputs, nil, sd, mode)
	ret := dae.NoChange
	if g.exciter.Enabled() {
		ret = dae.MaxChange(ret, g.exciter.RootCheck(g.exciterIn[:], sd, mode, level))
	}
	if g.governor.Enabled() {
		ret = dae.MaxChange(ret, g.governor.RootCheck(g.governorIn[:], sd, mode, level))
	}
	return ret
}

// InitializeState solves the machine operating point and sets the exciter
// and governor references that hold it.
func (g *Generator) InitializeState(t float64, inputs []float64) {
	g.machine.InitializeState(t, inputs)
	g.exciter.SetOperatingPoint(g.machine.Ef0, input(inputs, InVoltage, 1))
	g.governor.SetOperatingPoint(g.machine.Pm0)
}

func (g *Generator) Params() map[string]float64 {
	out := g.machine.Params()
	for k, v := range g.exciter.Params() {
		out[k] = v
	}
	for k, v := range g.governor.Params() {
		out[k] = v
	}
	return out
}

// Set offers the parameter to the machine, the exciter and the governor in
// turn.
func (g *Generator) Set(name string, value float64, unit units.Unit) error {
	if isShared(name) {
		return g.Base.Set(name, value, unit)
	}
	for _, c := range g.parts() {
		err := c.Set(name, value, unit)
		if !errors.Is(err, dae.ErrUnrecognizedParameter) {
			return err
		}
	}
	return g.Base.Set(name, value, unit)
}

func (g *Generator) Get(name string, unit units.Unit) (float64, error) {
	if isShared(name) {
		return g.Base.Get(name, unit)
	}
	for _, c := range g.parts() {
		v, err := c.Get(name, unit)
		if !errors.Is(err, dae.ErrUnrecognizedParameter) {
			return v, err
		}
	}
	return g.Base.Get(name, unit)
}

func (g *Generator) parts() []dae.Component {
	return []dae.Component{g.machine, g.exciter, g.governor}
}

// isShared reports whether name is a parameter every component carries; the
// generator keeps those for itself instead of forwarding them.
func isShared(name string) bool {
	return name == "enabled" || name == "id"
}
