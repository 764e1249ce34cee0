package diff

import (
	"fmt"
	"strings"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
)

// Plan holds the strategy probed once for every component of a tree. The
// tree's Jacobian is always emitted through JacobianElements, so each
// component applies its own strategy to its own block. Only the rows of
// components without Jacobian code are differentiated here, through the
// root residual.
type Plan struct {
	byID map[dae.ID]Strategy

	blocks   []dae.Component
	fallback []dae.Component
	probed   []dae.Component
	numeric  Strategy
}

func NewPlan() *Plan {
	return &Plan{
		byID:    make(map[dae.ID]Strategy),
		numeric: Strategy{Kind: CentralDifference, Step: DefaultStep},
	}
}

// Probe records a strategy for every enabled component of root that has not
// been probed yet, and sorts the components with a block in mode by where
// their Jacobian comes from. Offsets must be loaded for mode.
func (p *Plan) Probe(root dae.Component, mode dae.SolverMode) {
	p.blocks, p.fallback, p.probed = p.blocks[:0], p.fallback[:0], p.probed[:0]
	dae.Walk(root, func(c dae.Component) bool {
		id := c.Node().ID()
		if _, ok := p.byID[id]; !ok {
			p.byID[id] = Probe(c)
		}
		if len(ownIndices(c, mode)) == 0 {
			return true
		}
		p.blocks = append(p.blocks, c)
		switch dae.CapabilitiesOf(c).Jacobian {
		case dae.NoJacobian:
			p.fallback = append(p.fallback, c)
		case dae.SelfProbed:
			p.probed = append(p.probed, c)
		}
		return true
	})
}

// Of returns the strategy of c. Components that keep their own strategy are
// asked for it, so a changed step is seen.
func (p *Plan) Of(c dae.Component) Strategy {
	if s, ok := c.(Strategist); ok {
		return s.Strategy()
	}
	if s, ok := p.byID[c.Node().ID()]; ok {
		return s
	}
	return Probe(c)
}

// Numeric reports whether any component's block is differentiated
// numerically.
func (p *Plan) Numeric() bool { return len(p.fallback)+len(p.probed) > 0 }

// String counts the strategies of the components with a block, e.g.
// "analytic=3 central=1".
func (p *Plan) String() string {
	if len(p.blocks) == 0 {
		return "empty"
	}
	counts := make(map[Kind]int)
	for _, c := range p.blocks {
		counts[p.Of(c).Kind]++
	}
	var parts []string
	for _, k := range []Kind{Analytic, ForwardDifference, CentralDifference} {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return strings.Join(parts, " ")
}

// Emit writes the Jacobian of root at sd into md. The columns of
// self-probed components are never perturbed here; their units only move
// inside their own JacobianElements.
func (p *Plan) Emit(root dae.Component, inputs []float64, sd *dae.StateData, md matrix.Sink, mode dae.SolverMode) {
	root.JacobianElements(inputs, sd, md, nil, mode)
	if len(p.fallback) == 0 || sd.Empty() || mode.IsLocal() {
		return
	}

	skip := make(map[int]bool)
	for _, c := range p.probed {
		for _, i := range ownIndices(c, mode) {
			skip[i] = true
		}
	}
	var cols []int
	for i := range sd.State {
		if !skip[i] {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return
	}

	jac := p.numeric.columns(root, inputs, sd, mode, cols)
	for _, c := range p.fallback {
		for _, row := range ownIndices(c, mode) {
			for j, col := range cols {
				if v := jac.At(row, j); v != 0 {
					md.Assign(row, col, v)
				}
			}
		}
	}
}

// ownIndices lists the global indices of c's own block in mode.
func ownIndices(c dae.Component, mode dae.SolverMode) []int {
	b := c.Node()
	if !b.IsLoaded(mode, false) {
		return nil
	}
	o := b.Offsets(mode)
	var idx []int
	for i := 0; i < o.Local.AlgSize; i++ {
		idx = append(idx, o.AlgOffset+i)
	}
	for i := 0; i < o.Local.DiffSize; i++ {
		idx = append(idx, o.DiffOffset+i)
	}
	return idx
}
