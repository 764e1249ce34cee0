package dae

import (
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

// Base carries the tree, identity and offset bookkeeping shared by every
// component. Concrete components embed it and override the Component
// methods they need; the defaults contribute nothing.
type Base struct {
	id          ID
	name        string
	kind        string
	description string
	enabled     bool

	parent   ID
	arena    *Arena
	children []Component

	offsets OffsetTable

	// state and dstate hold the component's own states in local numbering:
	// algebraic first, then differential.
	state    []float64
	dstate   []float64
	localAlg int
}

func (b *Base) Node() *Base { return b }

func (b *Base) ID() ID              { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Kind() string        { return b.kind }
func (b *Base) Description() string { return b.description }
func (b *Base) Enabled() bool       { return b.enabled }
func (b *Base) Arena() *Arena       { return b.arena }

// Offsets returns the mutable record for mode.
func (b *Base) Offsets(mode SolverMode) *Offsets { return b.offsets.Get(mode) }

// IsLoaded reports whether sizes for mode are current.
func (b *Base) IsLoaded(mode SolverMode, dynOnly bool) bool {
	return b.offsets.IsLoaded(mode, dynOnly)
}

// Parent resolves the parent handle.
func (b *Base) Parent() (Component, bool) {
	if b.arena == nil {
		return nil, false
	}
	return b.arena.Lookup(b.parent)
}

// Children returns the children in insertion order. The slice must not be
// modified.
func (b *Base) Children() []Component { return b.children }

// AddChild appends c. Adding a component that already has a parent, or one
// from another arena, is a contract violation.
func (b *Base) AddChild(c Component) {
	cb := c.Node()
	if cb.parent != NoID {
		panic(&ContractViolation{Object: cb.name, Reason: "component already has a parent"})
	}
	if cb.arena != b.arena || b.arena == nil {
		panic(&ContractViolation{Object: cb.name, Reason: "parent and child belong to different arenas"})
	}
	cb.parent = b.id
	b.children = append(b.children, c)
	b.invalidate()
}

// RemoveChild detaches c and reports whether it was a child of b.
func (b *Base) RemoveChild(c Component) bool {
	for i, ch := range b.children {
		if ch == c {
			b.children = append(b.children[:i], b.children[i+1:]...)
			c.Node().parent = NoID
			b.invalidate()
			return true
		}
	}
	return false
}

// SetEnabled switches the component on or off. A disabled component keeps
// its slot in the tree with zero size.
func (b *Base) SetEnabled(on bool) {
	if b.enabled == on {
		return
	}
	b.enabled = on
	b.invalidate()
}

func (b *Base) SetName(name string) { b.name = name }

// Invalidate clears the offsets of b and every ancestor. Components call it
// when a parameter change alters their declared sizes.
func (b *Base) Invalidate() { b.invalidate() }

func (b *Base) invalidate() {
	b.offsets.Reset()
	for p, ok := b.Parent(); ok; p, ok = p.Node().Parent() {
		p.Node().offsets.Reset()
	}
}

// AlgOffset returns the first global algebraic index of b's subtree in mode,
// or NullLocation when it owns no algebraic states there.
func (b *Base) AlgOffset(mode SolverMode) int {
	if o, ok := b.offsets.Find(mode); ok {
		return o.AlgOffset
	}
	return NullLocation
}

func (b *Base) DiffOffset(mode SolverMode) int {
	if o, ok := b.offsets.Find(mode); ok {
		return o.DiffOffset
	}
	return NullLocation
}

func (b *Base) RootOffset(mode SolverMode) int {
	if o, ok := b.offsets.Find(mode); ok {
		return o.RootOffset
	}
	return NullLocation
}

// RootTriggered reports whether any of b's own roots is set in rootMask.
func (b *Base) RootTriggered(rootMask []int, mode SolverMode) bool {
	o, ok := b.offsets.Find(mode)
	if !ok || o.RootOffset == NullLocation {
		return false
	}
	for i := 0; i < o.Local.Roots(); i++ {
		if k := o.RootOffset + i; k < len(rootMask) && rootMask[k] != 0 {
			return true
		}
	}
	return false
}

// LocalState returns the component's own state buffer in local numbering.
func (b *Base) LocalState() []float64  { return b.state }
func (b *Base) LocalDState() []float64 { return b.dstate }

// LocalAlgSize returns the number of algebraic entries at the front of the
// local buffers.
func (b *Base) LocalAlgSize() int { return b.localAlg }

func (b *Base) ensureBuffers(alg, diff int) {
	if len(b.state) == alg+diff && b.localAlg == alg {
		return
	}
	state := make([]float64, alg+diff)
	dstate := make([]float64, alg+diff)
	copy(state, b.state[:min(b.localAlg, alg)])
	copy(dstate, b.dstate[:min(b.localAlg, alg)])
	if b.localAlg < len(b.state) {
		copy(state[alg:], b.state[b.localAlg:])
		copy(dstate[alg:], b.dstate[b.localAlg:])
	}
	b.state, b.dstate, b.localAlg = state, dstate, alg
}

func (b *Base) LocalSizes(SolverMode) StateSizes { return StateSizes{} }

func (b *Base) Residual([]float64, *StateData, []float64, SolverMode)   {}
func (b *Base) Derivative([]float64, *StateData, []float64, SolverMode) {}

func (b *Base) JacobianElements([]float64, *StateData, matrix.Sink, []int, SolverMode) {}

func (b *Base) Outputs([]float64, *StateData, SolverMode) []float64 { return nil }
func (b *Base) Output(int) float64                                  { return 0 }

// Set handles the parameters every component shares.
func (b *Base) Set(name string, value float64, _ units.Unit) error {
	switch name {
	case "enabled":
		b.SetEnabled(value != 0)
	default:
		return b.unknown(name)
	}
	return nil
}

func (b *Base) Get(name string, _ units.Unit) (float64, error) {
	switch name {
	case "enabled":
		if b.enabled {
			return 1, nil
		}
		return 0, nil
	case "id":
		return float64(b.id), nil
	}
	return 0, b.unknown(name)
}

// SetString handles the string-valued shared parameters.
func (b *Base) SetString(name, value string) error {
	switch name {
	case "name":
		b.name = value
	case "description":
		b.description = value
	default:
		return b.unknown(name)
	}
	return nil
}

func (b *Base) unknown(name string) error {
	return &ParameterError{Object: b.name, Param: name, Err: ErrUnrecognizedParameter}
}

// InvalidValue builds the error for a known parameter with a bad value.
func (b *Base) InvalidValue(name string, value float64) error {
	return &ParameterError{Object: b.name, Param: name, Value: value, Err: ErrInvalidParameterValue}
}
