package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/units"
)

// State is a global state vector in offset order.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 { return floats.Norm(s, 2) }

// MaxAbs is the infinity norm.
func (s State) MaxAbs() float64 { return floats.Norm(s, math.Inf(1)) }

// Observer is called after every accepted step.
type Observer interface {
	OnStep(t float64, x State)
}

// Recorder receives solver statistics.
type Recorder interface {
	ResidualEvaluated()
	JacobianEvaluated()
	NewtonSolved(iterations int)
	RootTriggered(code dae.ChangeCode)
	OffsetsRebuilt(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ResidualEvaluated()           {}
func (nopRecorder) JacobianEvaluated()           {}
func (nopRecorder) NewtonSolved(int)             {}
func (nopRecorder) RootTriggered(dae.ChangeCode) {}
func (nopRecorder) OffsetsRebuilt(string)        {}

type Config struct {
	Dt       float64
	Duration float64

	// Tolerance bounds the infinity norm of the residual at convergence.
	Tolerance     float64
	MaxIterations int
	CheckLevel    dae.CheckLevel
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Duration:      1,
		Tolerance:     1e-8,
		MaxIterations: 20,
		CheckLevel:    dae.FullCheck,
	}
}

// Event changes a bus input or a component parameter at a given time.
// Target is "bus.v", "bus.angle", "bus.f" or a "path/to/object:param"
// address below the root.
type Event struct {
	Time   float64
	Target string
	Value  float64
	Unit   units.Unit
}

// Trigger records one root crossing handled by its owner.
type Trigger struct {
	Time float64
	Slot int
	Name string
	Code dae.ChangeCode
	// Mode is the owner's discrete mode after the transition.
	Mode string
}

type Result struct {
	Times    []float64
	States   []State
	Outputs  [][]float64
	Triggers []Trigger

	StepsTaken int
	Iterations int
	Relayouts  int
}
