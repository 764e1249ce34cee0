package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/fmi"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/models"
	"github.com/san-kum/griddae/internal/units"
)

func lagGrid(k float64) (*dae.Group, *fmi.StateSpace) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	ss := fmi.Lag(0.5, k)
	grid.AddChild(fmi.NewModel(a, ss))
	return grid, ss
}

func testConfig(duration float64) Config {
	cfg := DefaultConfig()
	cfg.Dt = 0.01
	cfg.Duration = duration
	return cfg
}

func TestSimulatorRun(t *testing.T) {
	grid, ss := lagGrid(2)
	sim := New(grid)

	result, err := sim.Run(context.Background(), testConfig(1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 101 {
		t.Errorf("expected 101 states, got %d", len(result.States))
	}
	if len(result.Times) != 101 {
		t.Errorf("expected 101 times, got %d", len(result.Times))
	}
	if result.StepsTaken != 100 {
		t.Errorf("expected 100 steps, got %d", result.StepsTaken)
	}

	// backward Euler recurrence of der = (2u - x)/0.5
	x := 0.0
	for i := 0; i < 100; i++ {
		x = (x + 0.01*2/0.5) / (1 + 0.01/0.5)
	}
	final := result.States[len(result.States)-1][0]
	if math.Abs(final-x) > 1e-9 {
		t.Errorf("expected final state %.10f, got %.10f", x, final)
	}
	if math.Abs(final-2*(1-math.Exp(-2))) > 0.05 {
		t.Errorf("final state %.4f far from the continuous solution", final)
	}
	if ss.Steps != 100 {
		t.Errorf("expected the unit to see 100 completed steps, got %d", ss.Steps)
	}
	if out := result.Outputs[len(result.Outputs)-1]; len(out) == 0 || math.Abs(out[0]-final) > 1e-9 {
		t.Errorf("expected the output to track the state, got %v", out)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	grid, _ := lagGrid(1)
	sim := New(grid)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0, Tolerance: 1e-8, MaxIterations: 10}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0, Tolerance: 1e-8, MaxIterations: 10}},
		{"zero duration", Config{Dt: 0.1, Duration: 0, Tolerance: 1e-8, MaxIterations: 10}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0, Tolerance: 1e-8, MaxIterations: 10}},
		{"zero tolerance", Config{Dt: 0.1, Duration: 1.0, MaxIterations: 10}},
		{"no iterations", Config{Dt: 0.1, Duration: 1.0, Tolerance: 1e-8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.cfg)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorCanceled(t *testing.T) {
	grid, _ := lagGrid(1)
	sim := New(grid)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sim.Run(ctx, testConfig(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Times) != 1 {
		t.Errorf("expected only the initial point, got %d", len(result.Times))
	}
}

func TestGeneratorStaysAtEquilibrium(t *testing.T) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	grid.AddChild(models.NewGenerator(a))
	sim := New(grid)

	result, err := sim.Run(context.Background(), testConfig(0.5))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n := len(result.States[0]); n != 6 {
		t.Fatalf("expected 6 states, got %d", n)
	}
	first, last := result.States[0], result.States[len(result.States)-1]
	for i := range first {
		if math.Abs(last[i]-first[i]) > 1e-6 {
			t.Errorf("state %d drifted from %.8f to %.8f", i, first[i], last[i])
		}
	}
}

type stepCounter struct {
	steps int
	last  float64
}

func (c *stepCounter) OnStep(t float64, x State) {
	c.steps++
	c.last = t
}

func TestSimulatorObservers(t *testing.T) {
	grid, _ := lagGrid(1)
	sim := New(grid)
	counter := &stepCounter{}
	sim.AddObserver(counter)

	if _, err := sim.Run(context.Background(), testConfig(0.1)); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if counter.steps != 10 {
		t.Errorf("expected 10 observations, got %d", counter.steps)
	}
	if math.Abs(counter.last-0.1) > 1e-12 {
		t.Errorf("expected last observation at 0.1, got %g", counter.last)
	}
}

func TestRunWithCallbackStops(t *testing.T) {
	grid, _ := lagGrid(1)
	sim := New(grid)

	calls := 0
	err := sim.RunWithCallback(context.Background(), testConfig(1), func(t float64, x State) bool {
		calls++
		return calls < 5
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 callbacks, got %d", calls)
	}
	if math.Abs(sim.Time()-0.05) > 1e-12 {
		t.Errorf("expected to stop at 0.05, got %g", sim.Time())
	}
}

func TestBusEventChangesInputs(t *testing.T) {
	grid, _ := lagGrid(1)
	sim := New(grid)
	sim.Schedule(Event{Time: 0.5, Target: TargetVoltage, Value: 0.5})

	result, err := sim.Run(context.Background(), testConfig(1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if v := sim.Inputs()[models.InVoltage]; v != 0.5 {
		t.Errorf("expected bus voltage 0.5, got %g", v)
	}
	peak := result.States[50][0]
	final := result.States[len(result.States)-1][0]
	if final >= peak {
		t.Errorf("expected the lag to fall after the voltage step, %g -> %g", peak, final)
	}
	if len(sim.events) != 0 {
		t.Errorf("expected the event to be consumed, %d left", len(sim.events))
	}
}

func TestEventErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   error
	}{
		{"unknown object", "nothing:ka", dae.ErrObjectUpdateFailure},
		{"unknown parameter", "exciter_1:bogus", dae.ErrUnrecognizedParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := dae.NewArena()
			grid := dae.NewGroup(a, "grid")
			grid.AddChild(models.NewExciter(a))
			sim := New(grid)
			sim.Schedule(Event{Time: 0, Target: tt.target, Value: 1})

			_, err := sim.Run(context.Background(), testConfig(0.1))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var se *SimulationError
			if !errors.As(err, &se) || se.Step != 0 {
				t.Errorf("expected a SimulationError at step 0, got %v", err)
			}
		})
	}
}

func exciterCase(level dae.CheckLevel) (*Simulator, *models.Exciter) {
	a := dae.NewArena()
	exc := models.NewExciter(a)
	sim := New(exc)
	sim.Schedule(Event{Time: 0, Target: TargetVoltage, Value: 0.5})
	cfg := testConfig(0.5)
	cfg.CheckLevel = level
	sim.SetConfig(cfg)
	return sim, exc
}

func TestRootCrossingTriggersOwner(t *testing.T) {
	sim, exc := exciterCase(dae.LowVoltageCheck)

	result, err := sim.Run(context.Background(), sim.Config())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Triggers) != 1 {
		t.Fatalf("expected one trigger, got %+v", result.Triggers)
	}
	tr := result.Triggers[0]
	if tr.Name != "exciter_1" || tr.Mode != "saturated_high" || tr.Code != dae.JacobianChange {
		t.Errorf("unexpected trigger %+v", tr)
	}
	if tr.Time < 0.1 || tr.Time > 0.2 {
		t.Errorf("expected the limit to be reached near t=0.14, got %g", tr.Time)
	}
	if !exc.OutsideLimits() {
		t.Error("expected the exciter to be held at its limit")
	}
	if x := sim.State()[0]; x != exc.Vrmax {
		t.Errorf("expected the field voltage frozen at %g, got %g", exc.Vrmax, x)
	}
}

func TestRootCheckClampsWithoutTrigger(t *testing.T) {
	sim, exc := exciterCase(dae.FullCheck)

	result, err := sim.Run(context.Background(), sim.Config())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Triggers) != 0 {
		t.Errorf("expected the check to act before any crossing, got %+v", result.Triggers)
	}
	if !exc.OutsideLimits() {
		t.Error("expected the exciter to be held at its limit")
	}
	if x := sim.State()[0]; x != exc.Vrmax {
		t.Errorf("expected the field voltage frozen at %g, got %g", exc.Vrmax, x)
	}
}

func TestParameterEventRelayout(t *testing.T) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	motor := models.NewMotor(a)
	grid.AddChild(motor)
	sim := New(grid)
	sim.Schedule(Event{Time: 0.05, Target: "motor_1:stall", Value: 0})

	result, err := sim.Run(context.Background(), testConfig(0.1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Relayouts != 1 {
		t.Errorf("expected one relayout, got %d", result.Relayouts)
	}
	if n := sim.Sizes().Roots(); n != 0 {
		t.Errorf("expected the stall root to be gone, got %d roots", n)
	}
	before := result.States[4][0]
	after := result.States[6][0]
	if math.Abs(after-before) > 1e-3 {
		t.Errorf("expected the slip to survive the relayout, %g -> %g", before, after)
	}
}

func TestSimulatorCheckJacobian(t *testing.T) {
	grid, _ := lagGrid(2)
	sim := New(grid)

	mis, err := sim.CheckJacobian(0.01, diff.DefaultCheckOptions())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if len(mis) != 0 {
		t.Errorf("unexpected mismatches %v", mis)
	}
	if len(sim.State()) != 1 {
		t.Errorf("expected the check to initialize the driver, got %d states", len(sim.State()))
	}
}

// countingHandle counts the state writes a unit sees in each mode.
type countingHandle struct {
	fmi.Handle
	sets map[fmi.SubMode]int
}

func (h *countingHandle) SetStates(x []float64) error {
	h.sets[h.Mode()]++
	return h.Handle.SetStates(x)
}

func TestOpaqueUnitDifferentiatedInEventMode(t *testing.T) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	h := &countingHandle{Handle: fmi.Lag(0.5, 1), sets: make(map[fmi.SubMode]int)}
	grid.AddChild(fmi.NewModel(a, h))
	sim := New(grid)
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !sim.Plan().Numeric() {
		t.Fatalf("expected a numeric block, got %s", sim.Plan())
	}

	sd := sim.snapshot(100)
	sim.residual(sd)
	clear(h.sets)
	jac := sim.jacobian(sd)

	if n := h.sets[fmi.ContinuousTime]; n != 0 {
		t.Errorf("expected no state writes in continuous time, got %d", n)
	}
	if h.sets[fmi.Event] == 0 {
		t.Error("expected the states to be perturbed in event mode")
	}
	if v := jac.At(0, 0); math.Abs(v+102) > 1e-5 {
		t.Errorf("expected -1/T - cj = -102, got %g", v)
	}
	if _, err := sim.Step(0.01); err != nil {
		t.Errorf("step failed: %v", err)
	}
}

func TestSlipEventKeepsValue(t *testing.T) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	motor := models.NewMotor(a)
	grid.AddChild(motor)
	sim := New(grid)
	sim.SetConfig(testConfig(1))
	sim.Schedule(Event{Time: 0, Target: "motor_1:slip", Value: 0.3})

	if _, err := sim.Step(1e-4); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if s := sim.State()[0]; math.Abs(s-0.3) > 1e-2 {
		t.Errorf("expected the slip to stay near 0.3, got %g", s)
	}
	slip, err := motor.Get("slip", units.Default)
	if err != nil {
		t.Fatalf("get slip: %v", err)
	}
	if math.Abs(slip-sim.State()[0]) > 1e-12 {
		t.Errorf("local slip %g disagrees with the solver state %g", slip, sim.State()[0])
	}
}

// splitter integrates dx/dt = 1 and grows a second state once x passes level.
type splitter struct {
	dae.Base
	level float64
	split bool
}

func newSplitter(a *dae.Arena) *splitter {
	s := &splitter{level: 0.045}
	a.Register(s, "splitter")
	dae.EnsureLocal(s)
	return s
}

func (s *splitter) LocalSizes(dae.SolverMode) dae.StateSizes {
	if s.split {
		return dae.StateSizes{DiffSize: 2, JacSize: 2}
	}
	return dae.StateSizes{DiffSize: 1, DiffRoots: 1, JacSize: 1}
}

func (s *splitter) Residual(_ []float64, sd *dae.StateData, resid []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, resid, mode, s)
	for i := range loc.DestDiff {
		d := 0.0
		if i < len(loc.DState) {
			d = loc.DState[i]
		}
		loc.DestDiff[i] = -d
	}
	if len(loc.DestDiff) > 0 {
		loc.DestDiff[0] += 1
	}
}

func (s *splitter) Derivative(_ []float64, sd *dae.StateData, deriv []float64, mode dae.SolverMode) {
	loc := dae.GetLocations(sd, deriv, mode, s)
	for i := range loc.DestDiff {
		loc.DestDiff[i] = 0
	}
	if len(loc.DestDiff) > 0 {
		loc.DestDiff[0] = 1
	}
}

func (s *splitter) JacobianElements(_ []float64, sd *dae.StateData, md matrix.Sink, _ []int, mode dae.SolverMode) {
	row := s.DiffOffset(mode)
	if row == dae.NullLocation || sd == nil {
		return
	}
	for i := 0; i < s.Offsets(mode).Local.DiffSize; i++ {
		md.Assign(row+i, row+i, -sd.CJ)
	}
}

func (s *splitter) RootTest(_ []float64, sd *dae.StateData, roots []float64, mode dae.SolverMode) {
	off := s.RootOffset(mode)
	if off == dae.NullLocation || s.split {
		return
	}
	loc := dae.GetLocations(sd, nil, mode, s)
	roots[off] = s.level - loc.DiffState[0]
}

func (s *splitter) RootTrigger(_ float64, _ []float64, rootMask []int, mode dae.SolverMode) dae.ChangeCode {
	if s.split || !s.RootTriggered(rootMask, mode) {
		return dae.NoChange
	}
	s.split = true
	return dae.StateCountChange
}

func (s *splitter) RootCheck([]float64, *dae.StateData, dae.SolverMode, dae.CheckLevel) dae.ChangeCode {
	return dae.NoChange
}

func TestStateCountChangeRelayout(t *testing.T) {
	a := dae.NewArena()
	grid := dae.NewGroup(a, "grid")
	sp := newSplitter(a)
	motor := models.NewMotor(a)
	grid.AddChild(sp)
	grid.AddChild(motor)
	sim := New(grid)
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	mode := sim.Mode()
	if off := motor.DiffOffset(mode); off != 1 {
		t.Fatalf("expected the motor slip at 1 before the split, got %d", off)
	}
	if off := motor.RootOffset(mode); off != 1 {
		t.Fatalf("expected the motor root at slot 1 before the split, got %d", off)
	}
	slip := sim.State()[1]

	result, err := sim.Run(context.Background(), testConfig(0.1))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Relayouts != 1 {
		t.Errorf("expected one relayout, got %d", result.Relayouts)
	}
	trs := sim.Triggers()
	if len(trs) != 1 || trs[0].Code != dae.StateCountChange {
		t.Fatalf("expected one state count trigger, got %+v", trs)
	}
	if n := len(sim.State()); n != 3 {
		t.Errorf("expected 3 states after the split, got %d", n)
	}
	if n := sp.Offsets(mode).Local.DiffSize; n != 2 {
		t.Errorf("expected the splitter to own 2 states, got %d", n)
	}
	if off := motor.DiffOffset(mode); off != 2 {
		t.Errorf("expected the motor slip to move to 2, got %d", off)
	}
	if off := motor.RootOffset(mode); off != 0 {
		t.Errorf("expected the motor root to move to slot 0, got %d", off)
	}
	if s := sim.State()[2]; math.Abs(s-slip) > 1e-3 {
		t.Errorf("expected the slip to survive the relayout, %g -> %g", slip, s)
	}
	if x := sim.State()[0]; math.Abs(x-0.1) > 1e-9 {
		t.Errorf("expected the integrator to keep running to 0.1, got %g", x)
	}
}
