// Package diff provides the differentiation strategies behind
// JacobianElements and a self-check that compares a component's analytic
// Jacobian against finite differences.
package diff

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/griddae/internal/dae"
)

// Kind tags how a component's Jacobian is produced.
type Kind int

const (
	Analytic Kind = iota
	ForwardDifference
	CentralDifference
)

func (k Kind) String() string {
	switch k {
	case Analytic:
		return "analytic"
	case ForwardDifference:
		return "forward"
	case CentralDifference:
		return "central"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a strategy name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "analytic":
		return Analytic, nil
	case "forward":
		return ForwardDifference, nil
	case "central", "":
		return CentralDifference, nil
	}
	return Analytic, fmt.Errorf("unknown differentiation strategy: %s", s)
}

// DefaultStep is the finite-difference perturbation.
const DefaultStep = 1e-6

// Strategy is chosen once per component and then dispatched by its tag.
type Strategy struct {
	Kind Kind
	Step float64
}

// Probe picks the strategy for c from its own declared capabilities.
func Probe(c dae.Component) Strategy {
	if dae.CapabilitiesOf(c).AnalyticJacobian() {
		return Strategy{Kind: Analytic}
	}
	return Strategy{Kind: CentralDifference, Step: DefaultStep}
}

// Strategist is implemented by components that keep the strategy they were
// probed with, and may have had its step changed since.
type Strategist interface {
	Strategy() Strategy
}

// Formula returns the gonum difference formula of the numeric kinds.
func (s Strategy) Formula() fd.Formula {
	if s.Kind == ForwardDifference {
		return fd.Forward
	}
	return fd.Central
}

// StepSize returns the perturbation, DefaultStep when unset.
func (s Strategy) StepSize() float64 {
	if s.Step > 0 {
		return s.Step
	}
	return DefaultStep
}

// Dense returns the finite-difference Jacobian of c's residual with respect
// to the whole global state vector.
func (s Strategy) Dense(c dae.Component, inputs []float64, sd *dae.StateData, mode dae.SolverMode) *mat.Dense {
	n := len(sd.State)
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return s.columns(c, inputs, sd, mode, cols)
}

// columns differentiates the residual with respect to the listed global
// state indices. Perturbing a differential state moves its derivative by
// cj times the perturbation, which yields the -cj term of its own row.
func (s Strategy) columns(c dae.Component, inputs []float64, sd *dae.StateData, mode dae.SolverMode, cols []int) *mat.Dense {
	n := len(sd.State)
	kinds := dae.VariableKinds(rootOf(c), mode)

	state := make([]float64, n)
	var dstate []float64
	if sd.DState != nil {
		dstate = make([]float64, len(sd.DState))
	}
	probe := *sd
	probe.State = state
	probe.DState = dstate
	probe.SeqID = 0

	x0 := make([]float64, len(cols))
	for j, col := range cols {
		x0[j] = sd.State[col]
	}
	f := func(y, x []float64) {
		copy(state, sd.State)
		copy(dstate, sd.DState)
		for j, col := range cols {
			state[col] = x[j]
			if dstate != nil && col < len(kinds) && kinds[col] == dae.Differential {
				dstate[col] += sd.CJ * (x[j] - x0[j])
			}
		}
		for i := range y {
			y[i] = 0
		}
		c.Residual(inputs, &probe, y, mode)
	}

	jac := mat.NewDense(n, len(cols), nil)
	fd.Jacobian(jac, f, x0, &fd.JacobianSettings{Formula: s.Formula(), Step: s.StepSize()})
	return jac
}

// Columns lists the global state indices c's residual can depend on: the
// states of its own subtree and the inputs that are states.
func Columns(c dae.Component, inputLocs []int, mode dae.SolverMode) []int {
	seen := make(map[int]bool)
	var cols []int
	add := func(i int) {
		if i >= 0 && !seen[i] {
			seen[i] = true
			cols = append(cols, i)
		}
	}
	dae.Walk(c, func(n dae.Component) bool {
		o := n.Node().Offsets(mode)
		for i := 0; i < o.Local.AlgSize; i++ {
			add(o.AlgOffset + i)
		}
		for i := 0; i < o.Local.DiffSize; i++ {
			add(o.DiffOffset + i)
		}
		return true
	})
	for _, l := range inputLocs {
		add(l)
	}
	return cols
}

func rootOf(c dae.Component) dae.Component {
	for {
		p, ok := c.Node().Parent()
		if !ok {
			return c
		}
		c = p
	}
}
