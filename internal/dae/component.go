package dae

import (
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

// Component is the contract every model in the tree implements. Composite
// components forward each call to their enabled children; every
// implementation writes only into the index ranges its own offsets assign.
//
// inputs carries the values a parent hands to the component (terminal
// voltage, angle, frequency, ...). inputLocs carries the global state index
// of each input, or NullLocation when the input is not a state.
type Component interface {
	Node() *Base

	// LocalSizes declares the component's own block for mode. Entries the
	// mode does not include are discarded by LoadSizes.
	LocalSizes(mode SolverMode) StateSizes

	Residual(inputs []float64, sd *StateData, resid []float64, mode SolverMode)
	Derivative(inputs []float64, sd *StateData, deriv []float64, mode SolverMode)
	JacobianElements(inputs []float64, sd *StateData, md matrix.Sink, inputLocs []int, mode SolverMode)

	Outputs(inputs []float64, sd *StateData, mode SolverMode) []float64
	Output(i int) float64

	Set(name string, value float64, unit units.Unit) error
	Get(name string, unit units.Unit) (float64, error)
}

// Initializer computes a consistent local state from the inputs.
type Initializer interface {
	InitializeState(t float64, inputs []float64)
}

// JacobianSource says where the entries JacobianElements emits for a
// component's own block come from.
type JacobianSource int

const (
	// ClosedForm entries are written from analytic derivatives.
	ClosedForm JacobianSource = iota
	// SelfProbed entries are differentiated numerically inside
	// JacobianElements by the component itself.
	SelfProbed
	// NoJacobian components emit nothing; the driver differentiates their
	// residual rows.
	NoJacobian
)

func (j JacobianSource) String() string {
	switch j {
	case ClosedForm:
		return "closed_form"
	case SelfProbed:
		return "self_probed"
	case NoJacobian:
		return "none"
	}
	return "unknown"
}

// Capabilities are the static properties of a component kind.
type Capabilities struct {
	Jacobian JacobianSource
	Limits   bool
	Roots    bool
}

// AnalyticJacobian reports whether every entry is closed form.
func (c Capabilities) AnalyticJacobian() bool { return c.Jacobian == ClosedForm }

// CapabilityReporter exposes Capabilities. Components that do not implement
// it are treated as having a closed-form Jacobian and nothing else.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// CapabilitiesOf returns the capabilities of c.
func CapabilitiesOf(c Component) Capabilities {
	if r, ok := c.(CapabilityReporter); ok {
		return r.Capabilities()
	}
	_, roots := c.(RootFinder)
	return Capabilities{Roots: roots}
}

// StepObserver is notified after the driver accepts a step and has pushed the
// accepted state into local buffers.
type StepObserver interface {
	StepCompleted(t float64)
}

// ModeReporter names the current discrete mode of a component.
type ModeReporter interface {
	DiscreteMode() string
}

// ParamLister lists the numeric parameters of a component.
type ParamLister interface {
	Params() map[string]float64
}
