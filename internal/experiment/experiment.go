// Package experiment turns a config.Case into a component tree and a
// configured driver.
package experiment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/sim"
	"github.com/san-kum/griddae/internal/units"
)

type Experiment struct {
	c         *config.Case
	reg       *Registry
	root      dae.Component
	simulator *sim.Simulator
	log       *logrus.Entry
}

func New(c *config.Case, reg *Registry) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Experiment{
		c:   c,
		reg: reg,
		log: logrus.WithField("case", c.Name),
	}
}

// Setup builds the tree and a driver with the case's bus, solver settings
// and events.
func (e *Experiment) Setup() error {
	s, err := e.newSimulator()
	if err != nil {
		return err
	}
	e.simulator = s
	e.root = s.Root()
	return nil
}

func (e *Experiment) newSimulator() (*sim.Simulator, error) {
	if err := e.c.Validate(); err != nil {
		return nil, err
	}
	root, err := e.reg.Build(e.c)
	if err != nil {
		return nil, err
	}
	cfg, err := e.c.SimConfig()
	if err != nil {
		return nil, err
	}
	events, err := e.c.SimEvents()
	if err != nil {
		return nil, err
	}
	s := sim.New(root)
	s.SetLogger(e.log)
	s.SetInputs(e.c.BusInputs())
	s.SetConfig(cfg)
	s.Schedule(events...)
	e.log.WithField("root", root.Node().Name()).Debug("case built")
	return s, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, e.simulator.Config())
}

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Root() dae.Component { return e.root }

// Sweep runs the case once per value of a "path:param" address, each run
// on its own tree, concurrently.
func (e *Experiment) Sweep(ctx context.Context, param string, values []float64, unit units.Unit) ([]*sim.Result, error) {
	ens := sim.NewEnsemble(len(values), func(run int) (*sim.Simulator, error) {
		s, err := e.newSimulator()
		if err != nil {
			return nil, err
		}
		if err := dae.SetParam(s.Root(), param, values[run], unit); err != nil {
			return nil, err
		}
		s.SetLogger(e.log.WithField("run", run))
		return s, nil
	})
	cfg, err := e.c.SimConfig()
	if err != nil {
		return nil, err
	}
	return ens.Run(ctx, cfg)
}
