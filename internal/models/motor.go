package models

import (
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

const (
	DefaultMotorR1 = 0.02
	DefaultMotorX  = 0.1
	DefaultMotorX1 = 0.1
	DefaultMotorH  = 1.5

	// stallBand is how close to standstill the slip must be for a stall.
	stallBand = 1e-4
)

type motorFlags struct {
	stalled bool
}

// Motor is a single-cage induction motor with a slip state. The load torque
// is alpha + beta(1-s) + gamma(1-s)^2.
type Motor struct {
	dae.Base
	R1, X, X1          float64
	H                  float64
	Alpha, Beta, Gamma float64
	AllowStall         bool

	flags   motorFlags
	outputs [2]float64
}

func NewMotor(arena *dae.Arena) *Motor {
	m := &Motor{
		R1:         DefaultMotorR1,
		X:          DefaultMotorX,
		X1:         DefaultMotorX1,
		H:          DefaultMotorH,
		Alpha:      0.6,
		AllowStall: true,
	}
	arena.Register(m, "motor")
	dae.EnsureLocal(m)
	return m
}

// MechPower is the load torque at slip s.
func (m *Motor) MechPower(s float64) float64 {
	r := 1 - s
	return m.Alpha + m.Beta*r + m.Gamma*r*r
}

// RPower is the electrical power transferred to the rotor at voltage v and
// slip s.
func (m *Motor) RPower(v, s float64) float64 {
	x := m.X + m.X1
	return m.R1 * v * v * s / (m.R1*m.R1 + s*s*x*x)
}

func (m *Motor) rPowerDs(v, s float64) float64 {
	x := m.X + m.X1
	d := m.R1*m.R1 + s*s*x*x
	return m.R1 * v * v * (m.R1*m.R1 - s*s*x*x) / (d * d)
}

func (m *Motor) rPowerDv(v, s float64) float64 {
	x := m.X + m.X1
	return 2 * m.R1 * v * s / (m.R1*m.R1 + s*s*x*x)
}

func (m *Motor) Stalled() bool { return m.flags.stalled }

func (m *Motor) DiscreteMode() string {
	if m.flags.stalled {
		return "stalled"
	}
	return "running"
}

func (m *Motor) Capabilities() dae.Capabilities {
	return dae.Capabilities{Roots: m.AllowStall}
}

func (m *Motor) LocalSizes(mode dae.SolverMode) dae.StateSizes {
	if !mode.IsDynamic() {
		return dae.StateSizes{}
	}
	s := dae.StateSizes{DiffSize: 1, JacSize: 2}
	if m.AllowStall {
		s.DiffRoots = 1
	}
	return s
}

func (m *Motor) slipRate(v, s float64) float64 {
	if m.flags.stalled {
		return 0
	}
	return (m.MechPower(s) - m.RPower(v, s)) / (2 * m.H)
}

func (m *Motor) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, m)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = m.slipRate(input(inputs, InVoltage, 1), loc.DiffState[0])
}

func (m *Motor) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, m)
	if loc.DestDiff == nil {
		return
	}
	loc.DestDiff[0] = m.slipRate(input(inputs, InVoltage, 1), loc.DiffState[0]) - dstateAt(loc, 0)
}

func (m *Motor) JacobianElements(inputs []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	row := m.DiffOffset(mode)
	if row == dae.NullLocation || m.Offsets(mode).Local.DiffSize == 0 {
		return
	}
	if m.flags.stalled {
		md.Assign(row, row, -cj(sd))
		return
	}
	loc := dae.GetLocations(sd, nil, mode, m)
	v := input(inputs, InVoltage, 1)
	s := loc.DiffState[0]
	r := 1 - s
	dMech := -m.Beta - 2*m.Gamma*r
	md.Assign(row, row, (dMech-m.rPowerDs(v, s))/(2*m.H)-cj(sd))
	md.AssignCheckCol(row, inputLoc(inputLocs, InVoltage), -m.rPowerDv(v, s)/(2*m.H))
}

func (m *Motor) Outputs(inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	v := input(inputs, InVoltage, 1)
	s := diffState(m, 0)
	if loc := dae.GetLocations(sd, nil, mode, m); len(loc.DiffState) > 0 {
		s = loc.DiffState[0]
	}
	x := m.X + m.X1
	d := m.R1*m.R1 + s*s*x*x
	m.outputs[0] = m.RPower(v, s)
	m.outputs[1] = v * v * x * s * s / d
	return m.outputs[:]
}

func (m *Motor) Output(i int) float64 {
	if i < len(m.outputs) {
		return m.outputs[i]
	}
	return 0
}

// rootValue is positive while the current mode is consistent.
func (m *Motor) rootValue(v, s float64) float64 {
	if m.flags.stalled {
		return m.RPower(v, 1) - m.MechPower(1)
	}
	return 1 - s
}

func (m *Motor) RootTest(inputs []float64, sd *dae.StateData, roots []float64, mode dae.SolverMode) {
	off := m.RootOffset(mode)
	if off == dae.NullLocation {
		return
	}
	loc := dae.GetLocations(sd, nil, mode, m)
	roots[off] = m.rootValue(input(inputs, InVoltage, 1), loc.DiffState[0])
}

// RootTrigger stalls the motor once the slip has reached standstill, and
// restarts it once the electrical power at standstill exceeds the load.
func (m *Motor) RootTrigger(_ float64, inputs []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	if !m.RootTriggered(rootMask, mode) {
		return dae.NoChange
	}
	return m.transition(input(inputs, InVoltage, 1), diffState(m, 0))
}

func (m *Motor) transition(v, s float64) dae.ChangeCode {
	switch {
	case !m.flags.stalled && m.AllowStall && s >= 1-stallBand:
		m.flags.stalled = true
		setDiffState(m, 0, 1)
		return dae.JacobianChange
	case m.flags.stalled && m.rootValue(v, 1) > 0:
		m.flags.stalled = false
		setDiffState(m, 0, 1-stallBand)
		return dae.JacobianChange
	}
	return dae.NoChange
}

func (m *Motor) RootCheck(inputs []float64, sd *dae.StateData, mode dae.SolverMode, level dae.CheckLevel) dae.ChangeCode {
	if level == dae.LowVoltageCheck || m.RootOffset(mode) == dae.NullLocation {
		return dae.NoChange
	}
	loc := dae.GetLocations(sd, nil, mode, m)
	s := loc.DiffState[0]
	if !m.flags.stalled && s <= 1 {
		return dae.NoChange
	}
	if m.flags.stalled && level < dae.FullCheck {
		return dae.NoChange
	}
	return m.transition(input(inputs, InVoltage, 1), s)
}

// InitializeState finds the low-slip operating point where electrical and
// load power balance. Without one the motor starts stalled.
func (m *Motor) InitializeState(_ float64, inputs []float64) {
	v := input(inputs, InVoltage, 1)
	g := func(s float64) float64 { return m.RPower(v, s) - m.MechPower(s) }

	lo := 1e-6
	for s := 1e-3; s <= 1; s += 1e-3 {
		if g(s) > 0 {
			hi := s
			for i := 0; i < 60; i++ {
				mid := 0.5 * (lo + hi)
				if g(mid) > 0 {
					hi = mid
				} else {
					lo = mid
				}
			}
			m.flags.stalled = false
			setDiffState(m, 0, 0.5*(lo+hi))
			return
		}
		lo = s
	}
	m.flags.stalled = m.AllowStall
	setDiffState(m, 0, 1)
}

func (m *Motor) Params() map[string]float64 {
	return map[string]float64{
		"r1": m.R1, "x": m.X, "x1": m.X1, "h": m.H,
		"alpha": m.Alpha, "beta": m.Beta, "gamma": m.Gamma,
	}
}

func (m *Motor) Set(name string, value float64, unit units.Unit) error {
	switch name {
	case "r1":
		if value <= 0 {
			return m.InvalidValue(name, value)
		}
		m.R1 = value
	case "x":
		m.X = value
	case "x1":
		m.X1 = value
	case "h":
		if value <= 0 {
			return m.InvalidValue(name, value)
		}
		m.H = value
	case "alpha":
		m.Alpha = value
	case "beta":
		m.Beta = value
	case "gamma":
		m.Gamma = value
	case "slip":
		setDiffState(m, 0, value)
	case "stall":
		m.AllowStall = value != 0
		m.Invalidate()
	default:
		return m.Base.Set(name, value, unit)
	}
	return nil
}

func (m *Motor) Get(name string, unit units.Unit) (float64, error) {
	if v, ok := m.Params()[name]; ok {
		return v, nil
	}
	switch name {
	case "slip":
		return diffState(m, 0), nil
	case "stalled":
		if m.flags.stalled {
			return 1, nil
		}
		return 0, nil
	}
	return m.Base.Get(name, unit)
}
