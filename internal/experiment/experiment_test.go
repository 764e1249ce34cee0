package experiment

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/units"
)

func TestBuildPresets(t *testing.T) {
	reg := NewRegistry()
	for _, name := range config.ListPresets() {
		root, err := reg.Build(config.GetPreset(name))
		if err != nil {
			t.Errorf("preset %s: %v", name, err)
			continue
		}
		if root.Node().Name() != "grid" {
			t.Errorf("preset %s: expected root grid, got %s", name, root.Node().Name())
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config.Case)
		want   string
	}{
		{"unknown type", func(c *config.Case) { c.Root.Children[0].Type = "pendulum" }, "unknown component type"},
		{"children on a leaf", func(c *config.Case) {
			c.Root.Children[0].Children = []config.Node{{Type: "motor"}}
		}, "takes no children"},
		{"unknown param", func(c *config.Case) {
			c.Root.Children[0].Params = map[string]float64{"bogus": 1}
		}, "bogus"},
		{"bad lag constant", func(c *config.Case) {
			c.Root.Children[0] = config.Node{Type: "lag", Params: map[string]float64{"t": 0}}
		}, "time constant"},
	}

	reg := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.GetPreset("generator")
			tt.modify(c)
			_, err := reg.Build(c)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildRejectsBadLagValue(t *testing.T) {
	c := config.GetPreset("fmu_lag")
	c.Root.Children[0].Params["t"] = -1
	if _, err := NewRegistry().Build(c); !errors.Is(err, dae.ErrInvalidParameterValue) {
		t.Errorf("expected ErrInvalidParameterValue, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	names := NewRegistry().ListModels()
	if len(names) != 8 {
		t.Fatalf("expected 8 component types, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("models not sorted: %v", names)
		}
	}
}

func TestParamUnits(t *testing.T) {
	root, err := NewRegistry().Build(config.GetPreset("zip_sag"))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p, err := dae.GetParam(root, "load:p", units.PU)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if math.Abs(p-0.5) > 1e-12 {
		t.Errorf("expected 50 MW to be 0.5 pu, got %g", p)
	}
}

func TestOpaqueLagUsesNumericJacobian(t *testing.T) {
	for _, opaque := range []float64{0, 1} {
		c := config.GetPreset("fmu_lag")
		c.Root.Children[0].Params["opaque"] = opaque
		e := New(c, nil)
		if err := e.Setup(); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		s := e.GetSimulator()
		if err := s.Initialize(); err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
		want := diff.Analytic
		if opaque != 0 {
			want = diff.CentralDifference
		}
		lag, err := dae.Find(s.Root(), "lag")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got := s.Plan().Of(lag).Kind; got != want {
			t.Errorf("opaque=%g: expected %s, got %s", opaque, want, got)
		}
		if got := s.Plan().Of(s.Root()).Kind; opaque != 0 && got != diff.CentralDifference {
			t.Errorf("opaque=%g: expected the group to report central, got %s", opaque, got)
		}
	}
}

func TestDisabledNodeHasNoStates(t *testing.T) {
	states := func(disable bool) int {
		c := config.GetPreset("zip_sag")
		c.Root.Children[1].Disabled = disable
		e := New(c, nil)
		if err := e.Setup(); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if err := e.GetSimulator().Initialize(); err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
		return len(e.GetSimulator().State())
	}

	on, off := states(false), states(true)
	if off >= on {
		t.Errorf("expected fewer states with the motor disabled, got %d and %d", off, on)
	}
}

func TestExperimentRun(t *testing.T) {
	c := config.GetPreset("fmu_lag")
	c.Solver.Duration = 0.5

	e := New(c, nil)
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("expected an error before setup")
	}
	if err := e.Setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.StepsTaken != 50 {
		t.Errorf("expected 50 steps, got %d", res.StepsTaken)
	}
	if e.Root() == nil || e.Root() != e.GetSimulator().Root() {
		t.Error("expected the experiment root to be the simulator root")
	}
	for _, x := range res.States {
		if !x.IsValid() {
			t.Fatalf("invalid state %v", x)
		}
	}
}

func TestSweep(t *testing.T) {
	c := config.GetPreset("motor_stall")
	c.Solver.Duration = 0.2
	c.Events = nil

	e := New(c, nil)
	results, err := e.Sweep(context.Background(), "motor:alpha", []float64{0.4, 0.6, 0.8}, units.Default)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.StepsTaken != 20 {
			t.Errorf("run %d: expected 20 steps, got %d", i, r.StepsTaken)
		}
	}

	if _, err := e.Sweep(context.Background(), "nobody:alpha", []float64{1}, units.Default); !errors.Is(err, dae.ErrObjectUpdateFailure) {
		t.Errorf("expected ErrObjectUpdateFailure, got %v", err)
	}
}
