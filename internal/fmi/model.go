package fmi

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

// DefaultTolerance is the output estimator tolerance.
const DefaultTolerance = 1e-6

// Model is a component whose differential states live in a model-exchange
// unit. The unit's inputs are taken from the component inputs through
// InputMap: unit input k reads inputs[InputMap[k]].
type Model struct {
	dae.Base
	InputMap  []int
	Tolerance float64

	handle   Handle
	strategy diff.Strategy

	der, u, y []float64
	seed, col []float64
	eval      dae.SeqCache

	estimators []*OutputEstimator
	misses     int
	err        error
}

// NewModel wraps h. The differentiation strategy is chosen here, once: an
// analytic Jacobian when h provides directional derivatives, central
// differences otherwise.
func NewModel(arena *dae.Arena, h Handle) *Model {
	n := h.NumStates()
	m := &Model{
		Tolerance: DefaultTolerance,
		handle:    h,
		der:       make([]float64, n),
		u:         make([]float64, h.NumInputs()),
		y:         make([]float64, h.NumOutputs()),
		seed:      make([]float64, n),
		col:       make([]float64, n),
	}
	m.InputMap = make([]int, h.NumInputs())
	for k := range m.InputMap {
		m.InputMap[k] = k
	}
	arena.Register(m, "fmu")
	m.strategy = diff.Probe(m)
	dae.EnsureLocal(m)
	return m
}

func (m *Model) Handle() Handle                 { return m.handle }
func (m *Model) Strategy() diff.Strategy        { return m.strategy }
func (m *Model) Estimators() []*OutputEstimator { return m.estimators }

// Err returns the first unit error since the last call and clears it.
func (m *Model) Err() error {
	err := m.err
	m.err = nil
	return err
}

func (m *Model) record(err error) {
	if err != nil && m.err == nil {
		m.err = err
	}
}

// Capabilities reports a closed-form Jacobian when the unit provides
// directional derivatives. Otherwise JacobianElements probes the unit
// itself, in Event mode.
func (m *Model) Capabilities() dae.Capabilities {
	if _, dd := m.handle.(DirectionalDerivative); dd {
		return dae.Capabilities{}
	}
	return dae.Capabilities{Jacobian: dae.SelfProbed}
}

func (m *Model) LocalSizes(mode dae.SolverMode) dae.StateSizes {
	if !mode.IsDynamic() {
		return dae.StateSizes{}
	}
	n := m.handle.NumStates()
	return dae.StateSizes{DiffSize: n, JacSize: n*n + n*len(m.InputMap)}
}

func (m *Model) mapInputs(inputs []float64) {
	for k, src := range m.InputMap {
		if src >= 0 && src < len(inputs) {
			m.u[k] = inputs[src]
		} else {
			m.u[k] = 0
		}
	}
}

// active brings the unit into a mode where it can be evaluated.
func (m *Model) active() {
	switch m.handle.Mode() {
	case ContinuousTime, Event:
		return
	}
	m.record(into(m.handle, ContinuousTime))
}

// states returns the state view of the snapshot, or the local buffer when
// the mode carries no differential states.
func (m *Model) states(loc dae.Locations) []float64 {
	if len(loc.DiffState) == m.handle.NumStates() {
		return loc.DiffState
	}
	return m.LocalState()
}

// evaluate pushes the snapshot into the unit and fetches its derivatives;
// repeated calls for one snapshot reuse the result.
func (m *Model) evaluate(inputs []float64, sd *dae.StateData, loc dae.Locations) {
	var seq uint64
	if sd != nil {
		seq = sd.SeqID
	}
	if !m.eval.Stale(seq) {
		return
	}
	m.active()
	m.mapInputs(inputs)
	m.record(m.handle.SetTime(loc.Time))
	m.record(m.handle.SetStates(m.states(loc)))
	m.record(m.handle.SetInputs(m.u))
	m.record(m.handle.GetDerivatives(m.der))
}

func (m *Model) Residual(inputs []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, m)
	if loc.DestDiff == nil {
		return
	}
	m.evaluate(inputs, sd, loc)
	for i := range loc.DestDiff {
		loc.DestDiff[i] = m.der[i]
		if i < len(loc.DState) {
			loc.DestDiff[i] -= loc.DState[i]
		}
	}
}

func (m *Model) Derivative(inputs []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, m)
	if loc.DestDiff == nil {
		return
	}
	m.evaluate(inputs, sd, loc)
	copy(loc.DestDiff, m.der)
}

// JacobianElements emits the state block of the unit and the columns of the
// inputs that are states. Numeric state columns are probed in Event mode.
func (m *Model) JacobianElements(inputs []float64, sd *dae.StateData, md matrix.Sink, inputLocs []int, mode dae.SolverMode) {
	row := m.DiffOffset(mode)
	n := m.handle.NumStates()
	if row == dae.NullLocation || m.Offsets(mode).Local.DiffSize != n {
		return
	}
	loc := dae.GetLocations(sd, nil, mode, m)
	m.evaluate(inputs, sd, loc)
	x0 := append([]float64(nil), m.states(loc)...)

	if m.strategy.Kind == diff.Analytic {
		dd := m.handle.(DirectionalDerivative)
		for j := 0; j < n; j++ {
			m.seed[j] = 1
			m.record(dd.DirectionalDerivative(m.seed, m.col))
			m.seed[j] = 0
			for i, v := range m.col {
				if v != 0 {
					md.Assign(row+i, row+j, v)
				}
			}
		}
	} else {
		var jac *mat.Dense
		m.inEvent(func() {
			jac = m.probe(x0, n, m.handle.SetStates, m.handle.GetDerivatives)
		})
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if v := jac.At(i, j); v != 0 {
					md.Assign(row+i, row+j, v)
				}
			}
		}
	}
	c := 0.0
	if sd != nil {
		c = sd.CJ
	}
	for i := 0; i < n; i++ {
		md.Assign(row+i, row+i, -c)
	}

	if len(m.u) == 0 || !hasStateInput(m.InputMap, inputLocs) {
		return
	}
	u0 := append([]float64(nil), m.u...)
	du := m.probe(u0, n, m.handle.SetInputs, m.handle.GetDerivatives)
	for k, src := range m.InputMap {
		if src < 0 || src >= len(inputLocs) {
			continue
		}
		for i := 0; i < n; i++ {
			if v := du.At(i, k); v != 0 {
				md.AssignCheckCol(row+i, inputLocs[src], v)
			}
		}
	}
}

func hasStateInput(inputMap, inputLocs []int) bool {
	for _, src := range inputMap {
		if src >= 0 && src < len(inputLocs) && inputLocs[src] >= 0 {
			return true
		}
	}
	return false
}

// inEvent runs fn with the unit in Event mode and returns it to
// ContinuousTime afterwards.
func (m *Model) inEvent(fn func()) {
	back := m.handle.Mode() == ContinuousTime
	if back {
		m.record(m.handle.EnterMode(Event))
	}
	fn()
	if back {
		m.record(m.handle.EnterMode(ContinuousTime))
	}
}

// probe differentiates get with respect to the vector written by set around
// x0, then restores x0.
func (m *Model) probe(x0 []float64, rows int, set, get func([]float64) error) *mat.Dense {
	if rows == 0 || len(x0) == 0 {
		return mat.NewDense(1, 1, nil)
	}
	jac := mat.NewDense(rows, len(x0), nil)
	fd.Jacobian(jac, func(y, x []float64) {
		m.record(set(x))
		m.record(get(y))
	}, x0, &fd.JacobianSettings{Formula: m.strategy.Formula(), Step: m.strategy.StepSize()})
	m.record(set(x0))
	return jac
}

func (m *Model) Outputs(inputs []float64, sd *dae.StateData, mode dae.SolverMode) []float64 {
	loc := dae.GetLocations(sd, nil, mode, m)
	m.evaluate(inputs, sd, loc)
	m.record(m.handle.GetOutputs(m.y))
	return m.y
}

func (m *Model) Output(i int) float64 {
	if i < len(m.y) {
		return m.y[i]
	}
	return 0
}

// InitializeState takes the unit through initialization, reads its initial
// states and starts one output estimator per output.
func (m *Model) InitializeState(t float64, inputs []float64) {
	if m.handle.Mode() == Instantiated {
		m.record(m.handle.EnterMode(Initialization))
	}
	m.mapInputs(inputs)
	m.record(m.handle.SetTime(t))
	m.record(m.handle.SetInputs(m.u))
	m.record(m.handle.GetStates(m.LocalState()))
	m.record(into(m.handle, ContinuousTime))
	m.eval.Invalidate()
	m.startEstimators(t)
}

func (m *Model) startEstimators(t float64) {
	p := m.handle.NumOutputs()
	m.estimators = m.estimators[:0]
	if p == 0 {
		return
	}
	x0 := append([]float64(nil), m.LocalState()...)
	u0 := append([]float64(nil), m.u...)
	m.record(m.handle.GetOutputs(m.y))

	var dx *mat.Dense
	m.inEvent(func() {
		dx = m.probe(x0, p, m.handle.SetStates, m.handle.GetOutputs)
	})
	du := m.probe(u0, p, m.handle.SetInputs, m.handle.GetOutputs)

	for i := 0; i < p; i++ {
		sx := make([]float64, len(x0))
		for j := range sx {
			sx[j] = dx.At(i, j)
		}
		su := make([]float64, len(u0))
		for k := range su {
			su[k] = du.At(i, k)
		}
		m.estimators = append(m.estimators, NewOutputEstimator(t, m.y[i], x0, u0, sx, su))
	}
}

// StepCompleted hands the accepted local state to the unit, signals the
// completed step and moves the output estimators to the new point.
func (m *Model) StepCompleted(t float64) {
	m.active()
	x := m.LocalState()
	m.record(m.handle.SetTime(t))
	m.record(m.handle.SetStates(x))
	m.record(m.handle.CompletedIntegratorStep())
	m.record(m.handle.GetOutputs(m.y))
	for i, est := range m.estimators {
		if !est.Update(t, m.y[i], x, m.u, m.Tolerance) {
			m.misses++
		}
	}
	m.eval.Invalidate()
}

// Estimate predicts output i at the given states and component inputs.
func (m *Model) Estimate(i int, states, inputs []float64) float64 {
	if i >= len(m.estimators) {
		return 0
	}
	u := make([]float64, len(m.InputMap))
	for k, src := range m.InputMap {
		if src >= 0 && src < len(inputs) {
			u[k] = inputs[src]
		}
	}
	return m.estimators[i].Estimate(states, u)
}

func (m *Model) Params() map[string]float64 {
	return map[string]float64{
		"fd_step":   m.strategy.StepSize(),
		"tolerance": m.Tolerance,
	}
}

func (m *Model) Set(name string, value float64, unit units.Unit) error {
	switch name {
	case "fd_step":
		if value <= 0 {
			return m.InvalidValue(name, value)
		}
		m.strategy.Step = value
	case "tolerance":
		if value <= 0 {
			return m.InvalidValue(name, value)
		}
		m.Tolerance = value
	default:
		return m.Base.Set(name, value, unit)
	}
	return nil
}

func (m *Model) Get(name string, unit units.Unit) (float64, error) {
	if v, ok := m.Params()[name]; ok {
		return v, nil
	}
	switch name {
	case "states":
		return float64(m.handle.NumStates()), nil
	case "inputs":
		return float64(m.handle.NumInputs()), nil
	case "outputs":
		return float64(m.handle.NumOutputs()), nil
	case "misses":
		return float64(m.misses), nil
	}
	return m.Base.Get(name, unit)
}
