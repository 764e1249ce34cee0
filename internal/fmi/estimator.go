package fmi

import "math"

// OutputEstimator predicts one unit output linearly from the last known
// value and its sensitivities to states and inputs, so the output can be
// queried between unit evaluations.
type OutputEstimator struct {
	Time   float64
	Value  float64
	States []float64
	Inputs []float64

	StateDiff []float64
	InputDiff []float64
}

// NewOutputEstimator starts an estimator at a known point with the given
// sensitivities.
func NewOutputEstimator(t, value float64, states, inputs, stateDiff, inputDiff []float64) *OutputEstimator {
	return &OutputEstimator{
		Time:      t,
		Value:     value,
		States:    append([]float64(nil), states...),
		Inputs:    append([]float64(nil), inputs...),
		StateDiff: append([]float64(nil), stateDiff...),
		InputDiff: append([]float64(nil), inputDiff...),
	}
}

// Estimate predicts the output at the given states and inputs.
func (e *OutputEstimator) Estimate(states, inputs []float64) float64 {
	v := e.Value
	for i := 0; i < len(states) && i < len(e.States); i++ {
		v += e.StateDiff[i] * (states[i] - e.States[i])
	}
	for i := 0; i < len(inputs) && i < len(e.Inputs); i++ {
		v += e.InputDiff[i] * (inputs[i] - e.Inputs[i])
	}
	return v
}

// Update moves the estimator to a newly measured point and reports whether
// the prediction was within tol of the measurement. A missed prediction
// refines the input sensitivities from the observed error.
func (e *OutputEstimator) Update(t, value float64, states, inputs []float64, tol float64) bool {
	predicted := e.Estimate(states, inputs)
	miss := value - predicted
	ok := math.Abs(miss) <= tol

	if !ok {
		// TODO: each moving input is credited with the whole prediction
		// error; with several inputs changing at once the correction has
		// to be split by their share of the change.
		for i := 0; i < len(inputs) && i < len(e.Inputs); i++ {
			if du := inputs[i] - e.Inputs[i]; math.Abs(du) > 1e-10 {
				e.InputDiff[i] += miss / du
			}
		}
	}

	e.Time = t
	e.Value = value
	copy(e.States, states)
	copy(e.Inputs, inputs)
	return ok
}
