package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/fmi"
	"github.com/san-kum/griddae/internal/models"
)

// Factory builds one component type. Construction params are consumed by
// New; every other param of a node goes through the component's Set.
type Factory struct {
	Description string
	CtorParams  []string
	Container   bool
	New         func(a *dae.Arena, params map[string]float64) (dae.Component, error)
}

func (f Factory) isCtorParam(name string) bool {
	for _, p := range f.CtorParams {
		if p == name {
			return true
		}
	}
	return false
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register("group", Factory{
		Description: "container forwarding every call to its children",
		Container:   true,
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return dae.NewGroup(a, ""), nil
		},
	})
	r.Register("motor", Factory{
		Description: "induction motor load with a slip state and stall root",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewMotor(a), nil
		},
	})
	r.Register("exciter", Factory{
		Description: "first-order voltage regulator with output limits",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewExciter(a), nil
		},
	})
	r.Register("governor", Factory{
		Description: "speed governor with power limits",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewGovernor(a), nil
		},
	})
	r.Register("genmodel", Factory{
		Description: "classical machine model: Id, Iq algebraic, delta, omega differential",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewGenModel(a), nil
		},
	})
	r.Register("generator", Factory{
		Description: "machine with exciter and governor wired through state locations",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewGenerator(a), nil
		},
	})
	r.Register("zipload", Factory{
		Description: "ZIP load with a low-voltage constant-impedance mode",
		New: func(a *dae.Arena, _ map[string]float64) (dae.Component, error) {
			return models.NewZIPLoad(a), nil
		},
	})
	r.Register("lag", Factory{
		Description: "model-exchange unit: first-order lag of the bus voltage (t, k; opaque=1 hides its derivatives)",
		CtorParams:  []string{"t", "k", "opaque"},
		New: func(a *dae.Arena, p map[string]float64) (dae.Component, error) {
			t, k := 1.0, 1.0
			if v, ok := p["t"]; ok {
				t = v
			}
			if v, ok := p["k"]; ok {
				k = v
			}
			if t <= 0 {
				return nil, fmt.Errorf("%w: lag time constant %g", dae.ErrInvalidParameterValue, t)
			}
			var h fmi.Handle = fmi.Lag(t, k)
			if p["opaque"] != 0 {
				h = fmi.Opaque(h)
			}
			return fmi.NewModel(a, h), nil
		},
	})

	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Get(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return Factory{}, fmt.Errorf("unknown component type: %s", name)
	}
	return f, nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the component tree of a case in a fresh arena.
func (r *Registry) Build(c *config.Case) (dae.Component, error) {
	return r.build(dae.NewArena(), &c.Root, "root")
}

func (r *Registry) build(a *dae.Arena, n *config.Node, path string) (dae.Component, error) {
	f, err := r.Get(n.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	comp, err := f.New(a, n.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if n.Name != "" {
		comp.Node().SetName(n.Name)
	}
	path = comp.Node().Name()

	names := make([]string, 0, len(n.Params))
	for name := range n.Params {
		if !f.isCtorParam(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := comp.Set(name, n.Params[name], n.Unit(name)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if len(n.Children) > 0 && !f.Container {
		return nil, fmt.Errorf("%s: type %s takes no children", path, n.Type)
	}
	for i := range n.Children {
		child, err := r.build(a, &n.Children[i], path+"/"+n.Children[i].Type)
		if err != nil {
			return nil, err
		}
		comp.Node().AddChild(child)
	}
	if n.Disabled {
		comp.Node().SetEnabled(false)
	}
	return comp, nil
}
