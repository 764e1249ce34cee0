package dae

import (
	"errors"
	"fmt"
)

// Domain errors for configuration and event resolution.
var (
	// ErrUnrecognizedParameter indicates a parameter name no level of the
	// parameter chain knows.
	ErrUnrecognizedParameter = errors.New("dae: unrecognized parameter")

	// ErrInvalidParameterValue indicates a known parameter with a value
	// outside its valid range.
	ErrInvalidParameterValue = errors.New("dae: invalid parameter value")

	// ErrObjectUpdateFailure indicates an event or path that could not be
	// resolved to a component.
	ErrObjectUpdateFailure = errors.New("dae: object update failure")

	// ErrOffsetsNotLoaded indicates a layout query before sizes were loaded.
	ErrOffsetsNotLoaded = errors.New("dae: offsets not loaded for solver mode")
)

// ParameterError wraps a parameter failure with the object and key involved.
type ParameterError struct {
	Object string
	Param  string
	Value  float64
	Err    error
}

func (e *ParameterError) Error() string {
	if errors.Is(e.Err, ErrInvalidParameterValue) {
		return fmt.Sprintf("%s: %s=%g: %v", e.Object, e.Param, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Object, e.Param, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// ContractViolation is the panic value raised on framework misuse, such as
// reading locations before the layout of a mode was loaded.
type ContractViolation struct {
	Object string
	Mode   SolverMode
	Reason string
	Err    error
}

func (e *ContractViolation) Error() string {
	if e.Object == "" {
		return "dae: contract violation: " + e.Reason
	}
	return fmt.Sprintf("dae: contract violation in %s (%s): %s", e.Object, e.Mode, e.Reason)
}

func (e *ContractViolation) Unwrap() error {
	return e.Err
}
