package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/sim"
	"github.com/san-kum/griddae/internal/units"
)

const (
	DefaultDt            = 0.01
	DefaultDuration      = 5.0
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 20
	DefaultCheckLevel    = "full"
)

var ErrInvalidCase = errors.New("config: invalid case")

// Case is one simulation: solver settings, the bus feeding the root and the
// component tree.
type Case struct {
	Name   string        `yaml:"name"`
	Solver SolverConfig  `yaml:"solver"`
	Bus    BusConfig     `yaml:"bus"`
	Root   Node          `yaml:"root"`
	Events []EventConfig `yaml:"events,omitempty"`
}

type SolverConfig struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	CheckLevel    string  `yaml:"check_level"`
}

// BusConfig holds the voltage (pu), angle (rad) and frequency (pu) handed to
// the root component.
type BusConfig struct {
	Voltage   float64 `yaml:"v"`
	Angle     float64 `yaml:"angle"`
	Frequency float64 `yaml:"f"`
}

// Node is one component of the tree. Params are applied through the
// component's Set in sorted name order; Units names the unit of a param when
// it is not the internal one.
type Node struct {
	Type     string             `yaml:"type"`
	Name     string             `yaml:"name,omitempty"`
	Disabled bool               `yaml:"disabled,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty"`
	Units    map[string]string  `yaml:"units,omitempty"`
	Children []Node             `yaml:"children,omitempty"`
}

type EventConfig struct {
	Time   float64 `yaml:"time"`
	Target string  `yaml:"target"`
	Value  float64 `yaml:"value"`
	Unit   string  `yaml:"unit,omitempty"`
}

func DefaultSolver() SolverConfig {
	return SolverConfig{
		Dt:            DefaultDt,
		Duration:      DefaultDuration,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		CheckLevel:    DefaultCheckLevel,
	}
}

func DefaultBus() BusConfig {
	return BusConfig{Voltage: 1, Frequency: 1}
}

// DefaultCase is a single generator on a stiff bus.
func DefaultCase() *Case {
	return GetPreset("generator")
}

// Parse decodes a case; settings it leaves out keep their defaults.
func Parse(data []byte) (*Case, error) {
	c := &Case{Solver: DefaultSolver(), Bus: DefaultBus()}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Case) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything that can be checked without building the
// tree; component types and parameter names are resolved by the builder.
func (c *Case) Validate() error {
	if c.Solver.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidCase, c.Solver.Dt)
	}
	if c.Solver.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrInvalidCase, c.Solver.Duration)
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidCase, c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidCase, c.Solver.MaxIterations)
	}
	if _, err := dae.ParseCheckLevel(c.Solver.CheckLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	if c.Bus.Voltage <= 0 {
		return fmt.Errorf("%w: bus voltage must be positive, got %g", ErrInvalidCase, c.Bus.Voltage)
	}
	if err := c.Root.validate("root"); err != nil {
		return err
	}
	for i, ev := range c.Events {
		if ev.Target == "" {
			return fmt.Errorf("%w: event %d has no target", ErrInvalidCase, i)
		}
		if ev.Time < 0 {
			return fmt.Errorf("%w: event %d at negative time %g", ErrInvalidCase, i, ev.Time)
		}
		if _, err := units.Parse(ev.Unit); err != nil {
			return fmt.Errorf("%w: event %d: %v", ErrInvalidCase, i, err)
		}
	}
	return nil
}

func (n *Node) validate(path string) error {
	if n.Type == "" {
		return fmt.Errorf("%w: %s has no type", ErrInvalidCase, path)
	}
	for param, u := range n.Units {
		if _, ok := n.Params[param]; !ok {
			return fmt.Errorf("%w: %s: unit for unset param %q", ErrInvalidCase, path, param)
		}
		if _, err := units.Parse(u); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCase, path, err)
		}
	}
	for i := range n.Children {
		if err := n.Children[i].validate(fmt.Sprintf("%s/%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Unit returns the unit of a param, Default when none is given.
func (n *Node) Unit(param string) units.Unit {
	u, err := units.Parse(n.Units[param])
	if err != nil {
		return units.Default
	}
	return u
}

// SimConfig converts the solver settings.
func (c *Case) SimConfig() (sim.Config, error) {
	level, err := dae.ParseCheckLevel(c.Solver.CheckLevel)
	if err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		Dt:            c.Solver.Dt,
		Duration:      c.Solver.Duration,
		Tolerance:     c.Solver.Tolerance,
		MaxIterations: c.Solver.MaxIterations,
		CheckLevel:    level,
	}, nil
}

// SimEvents converts the event list.
func (c *Case) SimEvents() ([]sim.Event, error) {
	out := make([]sim.Event, 0, len(c.Events))
	for _, ev := range c.Events {
		u, err := units.Parse(ev.Unit)
		if err != nil {
			return nil, err
		}
		out = append(out, sim.Event{Time: ev.Time, Target: ev.Target, Value: ev.Value, Unit: u})
	}
	return out, nil
}

// BusInputs returns the bus as a component input vector.
func (c *Case) BusInputs() []float64 {
	return []float64{c.Bus.Voltage, c.Bus.Angle, c.Bus.Frequency}
}
