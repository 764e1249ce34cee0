package models

import (
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/units"
)

// zipBand keeps a load that just dropped into constant impedance from
// switching straight back.
const zipBand = 1e-4

type zipFlags struct {
	lowV bool
}

// ZIPLoad draws constant-impedance (Yp, Yq), constant-current (Ip, Iq) and
// constant-power (P, Q) components. Below Vpqmin the constant-power part
// behaves as an impedance. It has no states, only one algebraic root.
type ZIPLoad struct {
	dae.Base
	P, Q   float64
	Ip, Iq float64
	Yp, Yq float64
	Vpqmin float64

	flags   zipFlags
	outputs [2]float64
}

func NewZIPLoad(arena *dae.Arena) *ZIPLoad {
	z := &ZIPLoad{P: 1, Q: 0.3, Vpqmin: 0.7}
	arena.Register(z, "zipload")
	return z
}

func (z *ZIPLoad) LowVoltage() bool { return z.flags.lowV }

func (z *ZIPLoad) DiscreteMode() string {
	if z.flags.lowV {
		return "constant_impedance"
	}
	return "normal"
}

func (z *ZIPLoad) Capabilities() dae.Capabilities {
	return dae.Capabilities{Roots: true}
}

func (z *ZIPLoad) LocalSizes(dae.SolverMode) dae.StateSizes {
	return dae.StateSizes{AlgRoots: 1}
}

// powerScale is the factor applied to the constant-power part at voltage v.
func (z *ZIPLoad) powerScale(v float64) float64 {
	if !z.flags.lowV {
		return 1
	}
	r := v / z.Vpqmin
	return r * r
}

// Demand returns the real and reactive power drawn at voltage v.
func (z *ZIPLoad) Demand(v float64) (p, q float64) {
	k := z.powerScale(v)
	p = z.Yp*v*v + z.Ip*v + z.P*k
	q = z.Yq*v*v + z.Iq*v + z.Q*k
	return p, q
}

func (z *ZIPLoad) Outputs(inputs []float64, _ *dae.StateData, _ dae.SolverMode) []float64 {
	z.outputs[0], z.outputs[1] = z.Demand(input(inputs, InVoltage, 1))
	return z.outputs[:]
}

func (z *ZIPLoad) Output(i int) float64 {
	if i < len(z.outputs) {
		return z.outputs[i]
	}
	return 0
}

func (z *ZIPLoad) RootTest(inputs []float64, _ *dae.StateData, roots []float64, mode dae.SolverMode) {
	off := z.RootOffset(mode)
	if off == dae.NullLocation {
		return
	}
	v := input(inputs, InVoltage, 1)
	if z.flags.lowV {
		roots[off] = z.Vpqmin + zipBand - v
	} else {
		roots[off] = v - z.Vpqmin
	}
}

func (z *ZIPLoad) RootTrigger(_ float64, inputs []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	if !z.RootTriggered(rootMask, mode) {
		return dae.NoChange
	}
	return z.transition(input(inputs, InVoltage, 1))
}

func (z *ZIPLoad) transition(v float64) dae.ChangeCode {
	switch {
	case !z.flags.lowV && v <= z.Vpqmin:
		z.flags.lowV = true
	case z.flags.lowV && v > z.Vpqmin+zipBand:
		z.flags.lowV = false
	default:
		return dae.NoChange
	}
	return dae.NonStateChange
}

// RootCheck acts at every level; the voltage condition is all it watches.
func (z *ZIPLoad) RootCheck(inputs []float64, _ *dae.StateData, mode dae.SolverMode, _ dae.CheckLevel) dae.ChangeCode {
	if z.RootOffset(mode) == dae.NullLocation {
		return dae.NoChange
	}
	return z.transition(input(inputs, InVoltage, 1))
}

func (z *ZIPLoad) Params() map[string]float64 {
	return map[string]float64{
		"p": z.P, "q": z.Q, "ip": z.Ip, "iq": z.Iq,
		"yp": z.Yp, "yq": z.Yq, "vpqmin": z.Vpqmin,
	}
}

func (z *ZIPLoad) field(name string) *float64 {
	switch name {
	case "p":
		return &z.P
	case "q":
		return &z.Q
	case "ip":
		return &z.Ip
	case "iq":
		return &z.Iq
	case "yp":
		return &z.Yp
	case "yq":
		return &z.Yq
	}
	return nil
}

// Set accepts the power components in MW or MVAr as well as per unit.
func (z *ZIPLoad) Set(name string, value float64, unit units.Unit) error {
	if name == "vpqmin" {
		if value <= 0 || value > 1.5 {
			return z.InvalidValue(name, value)
		}
		z.Vpqmin = value
		return nil
	}
	f := z.field(name)
	if f == nil {
		return z.Base.Set(name, value, unit)
	}
	pu, err := units.Convert(value, unit, units.PU, units.SystemBasePower)
	if err != nil {
		return z.InvalidValue(name, value)
	}
	*f = pu
	return nil
}

func (z *ZIPLoad) Get(name string, unit units.Unit) (float64, error) {
	if name == "vpqmin" {
		return z.Vpqmin, nil
	}
	if f := z.field(name); f != nil {
		return units.Convert(*f, units.PU, unit, units.SystemBasePower)
	}
	return z.Base.Get(name, unit)
}
