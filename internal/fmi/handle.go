// Package fmi bridges model-exchange units into the component tree. A unit
// is reached through a Handle and follows the model-exchange sub-mode
// machine; Model adapts a Handle to the dae.Component contract.
package fmi

import (
	"errors"
	"fmt"
)

// SubMode is the state of a model-exchange unit.
type SubMode int

const (
	Instantiated SubMode = iota
	Initialization
	ContinuousTime
	Event
	Terminated
)

func (m SubMode) String() string {
	switch m {
	case Instantiated:
		return "instantiated"
	case Initialization:
		return "initialization"
	case ContinuousTime:
		return "continuous_time"
	case Event:
		return "event"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("submode(%d)", int(m))
}

var (
	ErrIllegalCall = errors.New("fmi: call not allowed in current mode")
	ErrSize        = errors.New("fmi: vector size mismatch")
)

// CallError reports a call the sub-mode machine rejected.
type CallError struct {
	Call string
	Mode SubMode
}

func (e *CallError) Error() string {
	return fmt.Sprintf("fmi: %s not allowed in %s mode", e.Call, e.Mode)
}

func (e *CallError) Unwrap() error { return ErrIllegalCall }

// Handle is the set/get/step surface of a model-exchange unit.
type Handle interface {
	SetTime(t float64) error
	SetStates(x []float64) error
	GetStates(x []float64) error
	GetDerivatives(dx []float64) error
	SetInputs(u []float64) error
	GetOutputs(y []float64) error
	CompletedIntegratorStep() error

	EnterMode(m SubMode) error
	Mode() SubMode

	NumStates() int
	NumInputs() int
	NumOutputs() int
}

// DirectionalDerivative is implemented by units that provide the product of
// their state Jacobian with a seed vector: dder = (d der / d x) dx.
type DirectionalDerivative interface {
	DirectionalDerivative(dx, dder []float64) error
}

// CanEnter reports whether the sub-mode machine allows from -> to.
func CanEnter(from, to SubMode) bool {
	switch {
	case to == Terminated:
		return from != Terminated
	case from == Instantiated:
		return to == Initialization
	case from == Initialization:
		return to == ContinuousTime || to == Event
	case from == ContinuousTime:
		return to == Event
	case from == Event:
		return to == ContinuousTime
	}
	return false
}

// allowed lists the modes in which each call is legal.
var allowed = map[string][]SubMode{
	"SetTime":                 {Initialization, ContinuousTime, Event},
	"SetStates":               {Initialization, ContinuousTime, Event},
	"GetStates":               {Initialization, ContinuousTime, Event},
	"GetDerivatives":          {Initialization, ContinuousTime, Event},
	"SetInputs":               {Initialization, ContinuousTime, Event},
	"GetOutputs":              {Initialization, ContinuousTime, Event},
	"DirectionalDerivative":   {ContinuousTime, Event},
	"CompletedIntegratorStep": {ContinuousTime},
}

// check returns a CallError when call is illegal in mode.
func check(call string, mode SubMode) error {
	for _, m := range allowed[call] {
		if m == mode {
			return nil
		}
	}
	return &CallError{Call: call, Mode: mode}
}

// Opaque hides every optional interface of h, leaving only the Handle
// surface.
func Opaque(h Handle) Handle {
	return opaque{h}
}

type opaque struct{ Handle }

// into moves a unit from its current mode to the target, passing through
// Initialization when it has only been instantiated.
func into(h Handle, target SubMode) error {
	if h.Mode() == target {
		return nil
	}
	if h.Mode() == Instantiated && target != Initialization {
		if err := h.EnterMode(Initialization); err != nil {
			return err
		}
	}
	return h.EnterMode(target)
}
