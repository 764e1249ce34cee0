package diff

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
)

// CheckOptions tune CheckJacobian.
type CheckOptions struct {
	Strategy Strategy
	// RelTol is the tolerated relative difference between analytic and
	// numeric entries; AbsTol is a floor for entries near zero.
	RelTol float64
	AbsTol float64
}

// DefaultCheckOptions compares against central differences at a relative
// tolerance of 1e-5.
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Strategy: Strategy{Kind: CentralDifference, Step: DefaultStep},
		RelTol:   1e-5,
		AbsTol:   1e-7,
	}
}

// Mismatch is one Jacobian entry where analytic and numeric values disagree.
type Mismatch struct {
	Row, Col int
	Analytic float64
	Numeric  float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("(%d,%d) analytic=%.6g numeric=%.6g", m.Row, m.Col, m.Analytic, m.Numeric)
}

// ErrNeedsGlobalState indicates a check requested without a global snapshot.
var ErrNeedsGlobalState = errors.New("diff: jacobian check needs a global state snapshot")

// CheckJacobian emits c's analytic Jacobian at sd and compares every entry
// of the global n×n matrix against finite differences of c's residual.
func CheckJacobian(c dae.Component, inputs []float64, sd *dae.StateData, inputLocs []int, mode dae.SolverMode, opts CheckOptions) ([]Mismatch, error) {
	if sd.Empty() || mode.IsLocal() {
		return nil, ErrNeedsGlobalState
	}
	n := len(sd.State)
	if n == 0 {
		return nil, nil
	}

	analytic := matrix.NewSparse(dae.TotalSizes(c, mode).JacSize)
	c.JacobianElements(inputs, sd, analytic, inputLocs, mode)
	a := analytic.Dense(n, n)
	num := opts.Strategy.Dense(c, inputs, sd, mode)

	var out []Mismatch
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			av, nv := a.At(i, j), num.At(i, j)
			if math.Abs(av-nv) > opts.RelTol*math.Max(math.Abs(av), math.Abs(nv))+opts.AbsTol {
				out = append(out, Mismatch{Row: i, Col: j, Analytic: av, Numeric: nv})
			}
		}
	}
	return out, nil
}
