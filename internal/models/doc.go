// Package models holds component implementations for the dae framework: an
// induction motor load, an exciter and a governor with limits, a classical
// generator model, the generator composite that wires them together, and a
// ZIP load.
//
// Every model reads its inputs by position:
//
//	inputs[InVoltage]    terminal voltage magnitude (pu)
//	inputs[InAngle]      terminal voltage angle (rad)
//	inputs[InFrequency]  frequency or rotor speed (pu)
//	inputs[InField]      field voltage, generator model only
//	inputs[InMechPower]  mechanical power, generator model only
package models

import "github.com/san-kum/griddae/internal/dae"

const (
	InVoltage = iota
	InAngle
	InFrequency
	InField
	InMechPower
)

// BusInputs returns the input vector of a bus with the given voltage, angle
// and frequency.
func BusInputs(v, angle, freq float64) []float64 {
	return []float64{v, angle, freq}
}

func input(inputs []float64, i int, def float64) float64 {
	if i < len(inputs) {
		return inputs[i]
	}
	return def
}

func inputLoc(inputLocs []int, i int) int {
	if i < len(inputLocs) {
		return inputLocs[i]
	}
	return dae.NullLocation
}

func dstateAt(loc dae.Locations, i int) float64 {
	if i < len(loc.DState) {
		return loc.DState[i]
	}
	return 0
}

func cj(sd *dae.StateData) float64 {
	if sd == nil {
		return 0
	}
	return sd.CJ
}

func seq(sd *dae.StateData) uint64 {
	if sd == nil {
		return 0
	}
	return sd.SeqID
}

// diffState returns the i-th differential entry of c's local buffer.
func diffState(c dae.Component, i int) float64 {
	b := c.Node()
	return b.LocalState()[b.LocalAlgSize()+i]
}

func setDiffState(c dae.Component, i int, v float64) {
	b := c.Node()
	b.LocalState()[b.LocalAlgSize()+i] = v
}
