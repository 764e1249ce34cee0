// Package units converts parameter values between the units accepted by
// component Set/Get calls.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Unit tags a parameter value.
type Unit int

const (
	// Default means the value is already in the component's internal unit.
	Default Unit = iota
	PU
	MW
	KW
	W
	MVAr
	Hz
	RadPerSec
	Deg
	Rad
	Sec
	Ms
	Min
	KV
	V
)

// System bases used for per-unit conversions.
const (
	SystemBasePower     = 100.0 // MVA
	SystemBaseFrequency = 60.0  // Hz
)

// ErrIncompatible indicates a conversion between unrelated quantities.
var ErrIncompatible = errors.New("units: incompatible units")

type quantity int

const (
	none quantity = iota
	power
	frequency
	angle
	timeq
	voltage
)

func (u Unit) quantity() quantity {
	switch u {
	case MW, KW, W, MVAr:
		return power
	case Hz, RadPerSec:
		return frequency
	case Deg, Rad:
		return angle
	case Sec, Ms, Min:
		return timeq
	case KV, V:
		return voltage
	}
	return none
}

// Convert changes value from one unit to another. base is the base quantity
// for per-unit conversions: MVA for power, kV for voltage; frequency uses the
// system base frequency when base is zero.
func Convert(value float64, from, to Unit, base float64) (float64, error) {
	if from == to || from == Default || to == Default {
		return value, nil
	}
	if from == PU {
		return fromPU(value, to, base)
	}
	if to == PU {
		return toPU(value, from, base)
	}
	if from.quantity() != to.quantity() {
		return 0, fmt.Errorf("%w: %s to %s", ErrIncompatible, from, to)
	}
	return value * scale(from) / scale(to), nil
}

func toPU(value float64, from Unit, base float64) (float64, error) {
	switch from.quantity() {
	case power, voltage:
		if base == 0 {
			return 0, fmt.Errorf("%w: zero base for %s", ErrIncompatible, from)
		}
		return value * scale(from) / (base * scale(baseUnit(from))), nil
	case frequency:
		if base == 0 {
			base = SystemBaseFrequency
		}
		return value * scale(from) / base, nil
	}
	return 0, fmt.Errorf("%w: %s has no per-unit form", ErrIncompatible, from)
}

func fromPU(value float64, to Unit, base float64) (float64, error) {
	switch to.quantity() {
	case power, voltage:
		if base == 0 {
			return 0, fmt.Errorf("%w: zero base for %s", ErrIncompatible, to)
		}
		return value * base * scale(baseUnit(to)) / scale(to), nil
	case frequency:
		if base == 0 {
			base = SystemBaseFrequency
		}
		return value * base / scale(to), nil
	}
	return 0, fmt.Errorf("%w: %s has no per-unit form", ErrIncompatible, to)
}

// baseUnit is the unit per-unit bases are expressed in.
func baseUnit(u Unit) Unit {
	if u.quantity() == voltage {
		return KV
	}
	return MW
}

// scale maps a unit to the canonical unit of its quantity: MW, Hz, rad, s, kV.
func scale(u Unit) float64 {
	switch u {
	case MW, MVAr:
		return 1
	case KW:
		return 1e-3
	case W:
		return 1e-6
	case Hz:
		return 1
	case RadPerSec:
		return 1 / (2 * math.Pi)
	case Rad:
		return 1
	case Deg:
		return math.Pi / 180
	case Sec:
		return 1
	case Ms:
		return 1e-3
	case Min:
		return 60
	case KV:
		return 1
	case V:
		return 1e-3
	}
	return 1
}

var names = map[Unit]string{
	Default:   "",
	PU:        "pu",
	MW:        "MW",
	KW:        "kW",
	W:         "W",
	MVAr:      "MVAr",
	Hz:        "Hz",
	RadPerSec: "rad/s",
	Deg:       "deg",
	Rad:       "rad",
	Sec:       "s",
	Ms:        "ms",
	Min:       "min",
	KV:        "kV",
	V:         "V",
}

func (u Unit) String() string {
	if s, ok := names[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// Parse resolves a unit name, case-insensitively. An empty name is Default.
func Parse(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	for u, name := range names {
		if strings.EqualFold(name, s) {
			return u, nil
		}
	}
	switch strings.ToLower(s) {
	case "sec", "seconds":
		return Sec, nil
	case "degrees":
		return Deg, nil
	case "radians":
		return Rad, nil
	case "rps":
		return RadPerSec, nil
	}
	return Default, fmt.Errorf("unknown unit: %q", s)
}
