package dae

import "github.com/san-kum/griddae/internal/matrix"

// Group is a container with no states of its own. Every call is forwarded
// to the enabled children with the group's inputs; outputs are summed
// element-wise, which makes a group of loads behave as one aggregate load.
type Group struct {
	Base
	outputs []float64
}

func NewGroup(arena *Arena, name string) *Group {
	g := &Group{}
	arena.Register(g, "group")
	if name != "" {
		g.SetName(name)
	}
	return g
}

func (g *Group) Residual(inputs []float64, sd *StateData, resid []float64, mode SolverMode) {
	for _, c := range g.children {
		if c.Node().enabled {
			c.Residual(inputs, sd, resid, mode)
		}
	}
}

func (g *Group) Derivative(inputs []float64, sd *StateData, deriv []float64, mode SolverMode) {
	for _, c := range g.children {
		if c.Node().enabled {
			c.Derivative(inputs, sd, deriv, mode)
		}
	}
}

func (g *Group) JacobianElements(inputs []float64, sd *StateData, md matrix.Sink, inputLocs []int, mode SolverMode) {
	for _, c := range g.children {
		if c.Node().enabled {
			c.JacobianElements(inputs, sd, md, inputLocs, mode)
		}
	}
}

func (g *Group) Outputs(inputs []float64, sd *StateData, mode SolverMode) []float64 {
	g.outputs = g.outputs[:0]
	for _, c := range g.children {
		if !c.Node().enabled {
			continue
		}
		for i, v := range c.Outputs(inputs, sd, mode) {
			if i < len(g.outputs) {
				g.outputs[i] += v
			} else {
				g.outputs = append(g.outputs, v)
			}
		}
	}
	return g.outputs
}

func (g *Group) Output(i int) float64 {
	v := 0.0
	for _, c := range g.children {
		if c.Node().enabled {
			v += c.Output(i)
		}
	}
	return v
}

func (g *Group) RootTest(inputs []float64, sd *StateData, roots []float64, mode SolverMode) {
	for _, c := range g.children {
		if rf, ok := c.(RootFinder); ok && c.Node().enabled {
			rf.RootTest(inputs, sd, roots, mode)
		}
	}
}

func (g *Group) RootTrigger(t float64, inputs []float64, rootMask []int, mode SolverMode) ChangeCode {
	ret := NoChange
	for _, c := range g.children {
		if rf, ok := c.(RootFinder); ok && c.Node().enabled {
			ret = MaxChange(ret, rf.RootTrigger(t, inputs, rootMask, mode))
		}
	}
	return ret
}

func (g *Group) RootCheck(inputs []float64, sd *StateData, mode SolverMode, level CheckLevel) ChangeCode {
	ret := NoChange
	for _, c := range g.children {
		if rf, ok := c.(RootFinder); ok && c.Node().enabled {
			ret = MaxChange(ret, rf.RootCheck(inputs, sd, mode, level))
		}
	}
	return ret
}

func (g *Group) InitializeState(t float64, inputs []float64) {
	for _, c := range g.children {
		if in, ok := c.(Initializer); ok && c.Node().enabled {
			in.InitializeState(t, inputs)
		}
	}
}

// Capabilities reports the union over the enabled children. The Jacobian
// source is the least analytic one among them.
func (g *Group) Capabilities() Capabilities {
	var caps Capabilities
	for _, c := range g.children {
		if !c.Node().enabled {
			continue
		}
		cc := CapabilitiesOf(c)
		caps.Jacobian = max(caps.Jacobian, cc.Jacobian)
		caps.Limits = caps.Limits || cc.Limits
		caps.Roots = caps.Roots || cc.Roots
	}
	return caps
}
