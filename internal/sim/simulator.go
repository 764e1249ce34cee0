// Package sim is a reference BDF1 driver for a component tree. It assembles
// the residual and Jacobian of the root, solves each step with Newton
// iterations and runs the root protocol between steps.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/models"
	"github.com/san-kum/griddae/internal/units"
)

// Bus targets accepted by events.
const (
	TargetVoltage   = "bus.v"
	TargetAngle     = "bus.angle"
	TargetFrequency = "bus.f"
)

type Simulator struct {
	root     dae.Component
	mode     dae.SolverMode
	inputs []float64
	plan   *diff.Plan

	cfg Config
	log *logrus.Entry
	rec Recorder

	observers []Observer
	events    []Event

	t            float64
	x, dx, xprev State
	resid        []float64
	roots, next  []float64
	kinds        []dae.VarKind
	sink         *matrix.Sparse
	pool         *StatePool
	seq          dae.SeqSource

	triggers    []Trigger
	relayouts   int
	initialized bool
}

// New creates a driver for root fed by a bus at 1 pu voltage, zero angle
// and nominal frequency.
func New(root dae.Component) *Simulator {
	return &Simulator{
		root:      root,
		mode:      dae.DAE,
		inputs:    models.BusInputs(1, 0, 1),
		cfg:       DefaultConfig(),
		log:       logrus.WithField("root", root.Node().Name()),
		rec:       nopRecorder{},
		plan:      diff.NewPlan(),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(l *logrus.Entry) { s.log = l }

func (s *Simulator) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.rec = r
}

// SetInputs replaces the bus inputs handed to the root.
func (s *Simulator) SetInputs(inputs []float64) {
	s.inputs = append(s.inputs[:0], inputs...)
}

// Schedule queues events; they are applied at the step boundary nearest
// their time, in time order.
func (s *Simulator) Schedule(events ...Event) {
	s.events = append(s.events, events...)
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].Time < s.events[j].Time })
}

// SetConfig sets the settings Step uses before Run supplies its own.
func (s *Simulator) SetConfig(cfg Config) { s.cfg = cfg }

func (s *Simulator) Root() dae.Component   { return s.root }
func (s *Simulator) Time() float64         { return s.t }
func (s *Simulator) State() State          { return s.x }
func (s *Simulator) Inputs() []float64     { return s.inputs }
func (s *Simulator) Triggers() []Trigger   { return s.triggers }
func (s *Simulator) Plan() *diff.Plan      { return s.plan }
func (s *Simulator) Sizes() dae.StateSizes { return dae.TotalSizes(s.root, s.mode) }
func (s *Simulator) Roots() []float64      { return s.roots }
func (s *Simulator) Relayouts() int        { return s.relayouts }
func (s *Simulator) Config() Config        { return s.cfg }
func (s *Simulator) Mode() dae.SolverMode  { return s.mode }

// Outputs evaluates the root outputs at the current state.
func (s *Simulator) Outputs() []float64 {
	return s.root.Outputs(s.inputs, s.snapshot(0), s.mode)
}

// Initialize computes the initial local states, lays the tree out and pulls
// the local states into the global vector.
func (s *Simulator) Initialize() error {
	if ini, ok := s.root.(dae.Initializer); ok {
		ini.InitializeState(s.t, s.inputs)
	}
	if err := s.layout(); err != nil {
		return err
	}
	s.initialized = true
	s.log.WithFields(logrus.Fields{
		"states":     len(s.x),
		"roots":      len(s.roots),
		"strategies": s.plan.String(),
	}).Info("initialized")
	return nil
}

// layout assigns offsets and sizes the solver buffers from the local
// buffers of the tree.
func (s *Simulator) layout() error {
	total := dae.Layout(s.root, s.mode)
	if err := dae.ValidateLayout(s.root, s.mode); err != nil {
		return err
	}
	n := total.States()
	s.x = make(State, n)
	s.dx = make(State, n)
	s.resid = make([]float64, n)
	dae.PullState(s.root, s.x, s.dx, s.mode)
	s.xprev = s.x.Clone()
	s.kinds = dae.VariableKinds(s.root, s.mode)
	s.sink = matrix.NewSparse(total.JacSize)
	s.pool = NewStatePool(n)
	s.plan.Probe(s.root, s.mode)
	s.sizeRoots(total)
	return nil
}

func (s *Simulator) sizeRoots(total dae.StateSizes) {
	s.roots = make([]float64, total.Roots())
	s.next = make([]float64, total.Roots())
	s.rootTest(s.snapshot(0), s.roots)
}

// snapshot wraps the current solver vectors. A zero cj leaves the
// derivative vector as the last accepted one.
func (s *Simulator) snapshot(cj float64) *dae.StateData {
	return &dae.StateData{
		Time:   s.t,
		State:  s.x,
		DState: s.dx,
		SeqID:  s.seq.Next(),
		CJ:     cj,
	}
}

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	s.cfg = cfg
	if !s.initialized {
		if err := s.Initialize(); err != nil {
			return nil, err
		}
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		Times:   make([]float64, 0, steps+1),
		States:  make([]State, 0, steps+1),
		Outputs: make([][]float64, 0, steps+1),
	}
	firstTrigger := len(s.triggers)
	firstRelayout := s.relayouts
	s.record(result)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		iters, err := s.Step(cfg.Dt)
		result.Iterations += iters
		if err != nil {
			return result, &SimulationError{Step: i, Time: s.t, State: s.x.Clone(), Wrapped: err}
		}
		result.StepsTaken++
		s.record(result)
		result.Triggers = s.triggers[firstTrigger:]
		result.Relayouts = s.relayouts - firstRelayout
	}
	return result, nil
}

// RunWithCallback steps until the duration is reached or callback returns
// false.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(t float64, x State) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	if !s.initialized {
		if err := s.Initialize(); err != nil {
			return err
		}
	}
	end := s.t + cfg.Duration
	for step := 0; s.t < end-cfg.Dt/2; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := s.Step(cfg.Dt); err != nil {
			return &SimulationError{Step: step, Time: s.t, State: s.x.Clone(), Wrapped: err}
		}
		if !callback(s.t, s.x) {
			return nil
		}
	}
	return nil
}

func (s *Simulator) record(r *Result) {
	r.Times = append(r.Times, s.t)
	r.States = append(r.States, s.x.Clone())
	r.Outputs = append(r.Outputs, append([]float64(nil), s.Outputs()...))
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", cfg.Tolerance)
	}
	if cfg.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	return nil
}

// Step advances the solution by dt and returns the Newton iterations
// spent. On failure the state is left at the start of the step.
func (s *Simulator) Step(dt float64) (int, error) {
	if !s.initialized {
		if err := s.Initialize(); err != nil {
			return 0, err
		}
	}
	if err := s.applyEvents(dt); err != nil {
		return 0, err
	}

	backup := s.pool.GetAndCopy(s.x)
	defer s.pool.Put(backup)
	copy(s.xprev, s.x)

	t0 := s.t
	s.t = t0 + dt
	cj := 1 / dt
	iters, err := s.newton(cj)
	if err != nil {
		s.t = t0
		copy(s.x, backup)
		return iters, err
	}
	if !s.x.IsValid() {
		s.t = t0
		copy(s.x, backup)
		return iters, ErrInvalidState
	}
	s.rec.NewtonSolved(iters)

	if rf, ok := s.root.(dae.RootFinder); ok {
		sd := s.snapshot(cj)
		dae.PushState(s.root, sd, s.mode)
		if code := rf.RootCheck(s.inputs, sd, s.mode, s.cfg.CheckLevel); code > dae.NoChange {
			s.log.WithFields(logrus.Fields{"t": s.t, "code": code}).Debug("root check changed mode")
			if err := s.apply(code, "root_check"); err != nil {
				return iters, err
			}
		}
	}

	sd := s.snapshot(0)
	dae.PushState(s.root, sd, s.mode)
	if err := s.handleRoots(); err != nil {
		return iters, err
	}

	dae.Walk(s.root, func(c dae.Component) bool {
		if so, ok := c.(dae.StepObserver); ok {
			so.StepCompleted(s.t)
		}
		return true
	})
	if err := s.faults(); err != nil {
		return iters, err
	}
	for _, obs := range s.observers {
		obs.OnStep(s.t, s.x)
	}
	return iters, nil
}

// faulter is implemented by components that record failures the contract
// calls cannot return.
type faulter interface {
	Err() error
}

func (s *Simulator) faults() error {
	var err error
	dae.Walk(s.root, func(c dae.Component) bool {
		if f, ok := c.(faulter); ok {
			if e := f.Err(); e != nil {
				err = fmt.Errorf("%s: %w", c.Node().Name(), e)
			}
		}
		return err == nil
	})
	return err
}

// newton solves the BDF1 step equations at s.t. The derivative of every
// differential state is cj times its change over the step.
func (s *Simulator) newton(cj float64) (int, error) {
	n := len(s.x)
	if n == 0 {
		return 0, nil
	}
	rhs := mat.NewVecDense(n, nil)
	var step mat.VecDense
	var lu mat.LU

	for it := 0; it < s.cfg.MaxIterations; it++ {
		s.derivatives(cj)
		sd := s.snapshot(cj)
		s.residual(sd)
		if floats.Norm(s.resid, math.Inf(1)) <= s.cfg.Tolerance {
			return it, nil
		}

		lu.Factorize(s.jacobian(sd))
		for i, r := range s.resid {
			rhs.SetVec(i, -r)
		}
		if err := lu.SolveVecTo(&step, false, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return it, fmt.Errorf("%w at t=%g", ErrSingular, s.t)
			}
			s.log.WithField("condition", float64(cond)).Warn("ill-conditioned jacobian")
		}
		for i := range s.x {
			s.x[i] += step.AtVec(i)
		}
	}

	s.derivatives(cj)
	s.residual(s.snapshot(cj))
	if norm := floats.Norm(s.resid, math.Inf(1)); norm > s.cfg.Tolerance {
		return s.cfg.MaxIterations, fmt.Errorf("%w after %d iterations at t=%g (residual %g)",
			ErrNotConverged, s.cfg.MaxIterations, s.t, norm)
	}
	return s.cfg.MaxIterations, nil
}

func (s *Simulator) derivatives(cj float64) {
	for i, k := range s.kinds {
		if k == dae.Differential {
			s.dx[i] = cj * (s.x[i] - s.xprev[i])
		} else {
			s.dx[i] = 0
		}
	}
}

func (s *Simulator) residual(sd *dae.StateData) {
	for i := range s.resid {
		s.resid[i] = 0
	}
	s.root.Residual(s.inputs, sd, s.resid, s.mode)
	s.rec.ResidualEvaluated()
}

func (s *Simulator) jacobian(sd *dae.StateData) *mat.Dense {
	s.sink.Clear()
	s.plan.Emit(s.root, s.inputs, sd, s.sink, s.mode)
	s.rec.JacobianEvaluated()
	n := len(s.x)
	return s.sink.Dense(n, n)
}

// CheckJacobian compares the root's Jacobian at the current state against
// finite differences, with cj = 1/dt.
func (s *Simulator) CheckJacobian(dt float64, opts diff.CheckOptions) ([]diff.Mismatch, error) {
	if !s.initialized {
		if err := s.Initialize(); err != nil {
			return nil, err
		}
	}
	return diff.CheckJacobian(s.root, s.inputs, s.snapshot(1/dt), nil, s.mode, opts)
}

func (s *Simulator) rootTest(sd *dae.StateData, dst []float64) {
	rf, ok := s.root.(dae.RootFinder)
	if !ok || len(dst) == 0 {
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	rf.RootTest(s.inputs, sd, dst, s.mode)
}

// handleRoots compares the root functions at the accepted state with the
// previous ones and triggers the owners of every slot that changed sign.
// The local buffers must hold the accepted state.
func (s *Simulator) handleRoots() error {
	rf, ok := s.root.(dae.RootFinder)
	if !ok || len(s.roots) == 0 {
		return nil
	}
	s.rootTest(s.snapshot(0), s.next)
	mask, crossed := crossings(s.roots, s.next)
	if !crossed {
		copy(s.roots, s.next)
		return nil
	}

	entries, err := dae.RootMap(s.root, s.mode, s.next)
	if err != nil {
		return err
	}
	code := rf.RootTrigger(s.t, s.inputs, mask, s.mode)
	arena := s.root.Node().Arena()
	for _, e := range entries {
		if mask[e.Slot] == 0 {
			continue
		}
		tr := Trigger{Time: s.t, Slot: e.Slot, Name: e.Name, Code: code}
		if c, ok := lookup(arena, e.Owner); ok {
			if mr, ok := c.(dae.ModeReporter); ok {
				tr.Mode = mr.DiscreteMode()
			}
		}
		s.triggers = append(s.triggers, tr)
		s.log.WithFields(logrus.Fields{
			"t":     s.t,
			"owner": e.Name,
			"slot":  e.Slot,
			"mode":  tr.Mode,
		}).Debug("root triggered")
	}
	s.rec.RootTriggered(code)

	if code > dae.NoChange {
		if err := s.apply(code, "root_trigger"); err != nil {
			return err
		}
	}
	s.sizeRoots(dae.TotalSizes(s.root, s.mode))
	return nil
}

func lookup(a *dae.Arena, id dae.ID) (dae.Component, bool) {
	if a == nil {
		return nil, false
	}
	return a.Lookup(id)
}

// crossings marks the slots whose value changed sign. A value that starts at
// zero has no side yet and is not marked.
func crossings(prev, cur []float64) ([]int, bool) {
	mask := make([]int, len(cur))
	crossed := false
	for i := range cur {
		if i >= len(prev) {
			break
		}
		p, c := prev[i], cur[i]
		if (p > 0 && c <= 0) || (p < 0 && c >= 0) {
			mask[i] = 1
			crossed = true
		}
	}
	return mask, crossed
}

// apply brings the solver vectors back in line with the local buffers
// after a discrete transition described by code.
func (s *Simulator) apply(code dae.ChangeCode, reason string) error {
	switch {
	case code >= dae.StateCountChange || !s.root.Node().IsLoaded(s.mode, false):
		return s.relayout(reason)
	case code >= dae.JacobianChange:
		total := dae.RefreshRootsAndJacobian(s.root, s.mode)
		s.sink = matrix.NewSparse(total.JacSize)
		dae.PullState(s.root, s.x, s.dx, s.mode)
		s.sizeRoots(total)
		s.rec.OffsetsRebuilt("jacobian")
	case code >= dae.NonStateChange:
		dae.PullState(s.root, s.x, s.dx, s.mode)
	}
	copy(s.xprev, s.x)
	return nil
}

// relayout recomputes every offset. The local buffers must already hold the
// current state.
func (s *Simulator) relayout(reason string) error {
	dae.ResetOffsets(s.root)
	if err := s.layout(); err != nil {
		return err
	}
	s.relayouts++
	s.rec.OffsetsRebuilt("states")
	s.log.WithFields(logrus.Fields{
		"t":      s.t,
		"states": len(s.x),
		"roots":  len(s.roots),
		"reason": reason,
	}).Info("offsets rebuilt")
	return nil
}

// applyEvents runs every queued event due before the middle of the next
// step.
func (s *Simulator) applyEvents(dt float64) error {
	if len(s.events) == 0 || s.events[0].Time > s.t+dt/2 {
		return nil
	}
	dae.PushState(s.root, s.snapshot(0), s.mode)
	structural := false
	for len(s.events) > 0 && s.events[0].Time <= s.t+dt/2 {
		ev := s.events[0]
		s.events = s.events[1:]
		bus, err := s.applyEvent(ev)
		if err != nil {
			return err
		}
		structural = structural || !bus
		s.log.WithFields(logrus.Fields{
			"t":      s.t,
			"target": ev.Target,
			"value":  ev.Value,
		}).Info("event applied")
	}
	if structural && !s.root.Node().IsLoaded(s.mode, false) {
		return s.relayout("event")
	}
	if structural {
		total := dae.RefreshRootsAndJacobian(s.root, s.mode)
		s.sink = matrix.NewSparse(total.JacSize)
		dae.PullState(s.root, s.x, s.dx, s.mode)
		copy(s.xprev, s.x)
		s.sizeRoots(total)
	}
	return nil
}

func (s *Simulator) applyEvent(ev Event) (bool, error) {
	var (
		idx int
		to  units.Unit
	)
	switch ev.Target {
	case TargetVoltage:
		idx, to = models.InVoltage, units.Default
	case TargetAngle:
		idx, to = models.InAngle, units.Rad
	case TargetFrequency:
		idx, to = models.InFrequency, units.PU
	default:
		if err := dae.SetParam(s.root, ev.Target, ev.Value, ev.Unit); err != nil {
			return false, fmt.Errorf("event %s at t=%g: %w", ev.Target, ev.Time, err)
		}
		return false, nil
	}
	v, err := units.Convert(ev.Value, ev.Unit, to, 0)
	if err != nil {
		return true, fmt.Errorf("%w: event %s at t=%g: %v", dae.ErrObjectUpdateFailure, ev.Target, ev.Time, err)
	}
	for len(s.inputs) <= idx {
		s.inputs = append(s.inputs, 0)
	}
	s.inputs[idx] = v
	return true, nil
}
