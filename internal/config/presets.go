package config

import "sort"

func grid(name string, children ...Node) Node {
	return Node{Type: "group", Name: name, Children: children}
}

func solver(dt, duration float64) SolverConfig {
	s := DefaultSolver()
	s.Dt = dt
	s.Duration = duration
	return s
}

// Presets build fresh cases by name.
var Presets = map[string]func() *Case{
	"generator": func() *Case {
		return &Case{
			Name:   "generator",
			Solver: solver(0.01, 3),
			Bus:    DefaultBus(),
			Root:   grid("grid", Node{Type: "generator", Name: "gen"}),
			Events: []EventConfig{{Time: 1, Target: "bus.v", Value: 0.95}},
		}
	},
	"exciter_limit": func() *Case {
		return &Case{
			Name:   "exciter_limit",
			Solver: solver(0.01, 4),
			Bus:    DefaultBus(),
			Root: grid("grid", Node{
				Type:   "generator",
				Name:   "gen",
				Params: map[string]float64{"vrmax": 3, "vrmin": -3},
			}),
			Events: []EventConfig{
				{Time: 0.5, Target: "bus.v", Value: 0.7},
				{Time: 2, Target: "bus.v", Value: 1},
			},
		}
	},
	"motor_stall": func() *Case {
		return &Case{
			Name:   "motor_stall",
			Solver: solver(0.01, 8),
			Bus:    DefaultBus(),
			Root:   grid("grid", Node{Type: "motor", Name: "motor", Params: map[string]float64{"alpha": 0.6}}),
			Events: []EventConfig{{Time: 0.5, Target: "bus.v", Value: 0.4}},
		}
	},
	"zip_sag": func() *Case {
		return &Case{
			Name:   "zip_sag",
			Solver: solver(0.01, 2),
			Bus:    DefaultBus(),
			Root: grid("grid",
				Node{Type: "zipload", Name: "load", Params: map[string]float64{"p": 50, "q": 15}, Units: map[string]string{"p": "MW", "q": "MVAr"}},
				Node{Type: "motor", Name: "motor"},
			),
			Events: []EventConfig{
				{Time: 0.5, Target: "bus.v", Value: 0.6},
				{Time: 1.2, Target: "bus.v", Value: 1},
			},
		}
	},
	"fmu_lag": func() *Case {
		return &Case{
			Name:   "fmu_lag",
			Solver: solver(0.01, 2),
			Bus:    DefaultBus(),
			Root:   grid("grid", Node{Type: "lag", Name: "lag", Params: map[string]float64{"t": 0.5, "k": 2}}),
			Events: []EventConfig{{Time: 1, Target: "bus.v", Value: 0.5}},
		}
	},
}

// GetPreset returns a new copy of a preset, nil when unknown.
func GetPreset(name string) *Case {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
