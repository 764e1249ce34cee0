package dae

import (
	"fmt"
	"strings"

	"github.com/san-kum/griddae/internal/units"
)

// Cursor is the running position of the offset walk.
type Cursor struct {
	Alg  int
	Diff int
	Root int
}

// LoadSizes computes the own and subtree sizes of c for mode. It returns
// immediately when the sizes are already loaded: RJLoaded for the dynOnly
// path, which refreshes only root and Jacobian counts, StateLoaded for the
// full path. A disabled component collapses to zero size.
func LoadSizes(c Component, mode SolverMode, dynOnly bool) {
	b := c.Node()
	off := b.offsets.Get(mode)
	if dynOnly && off.RJLoaded || !dynOnly && off.StateLoaded {
		return
	}
	if !b.enabled {
		off.collapse()
		return
	}
	if !dynOnly {
		EnsureLocal(c)
	}

	local := c.LocalSizes(mode).ForMode(mode)
	total := local
	for _, ch := range b.children {
		LoadSizes(ch, mode, dynOnly)
		total = total.Add(ch.Node().offsets.Get(mode).Total)
	}

	if dynOnly {
		off.Local.AlgRoots, off.Local.DiffRoots, off.Local.JacSize = local.AlgRoots, local.DiffRoots, local.JacSize
		off.Total.AlgRoots, off.Total.DiffRoots, off.Total.JacSize = total.AlgRoots, total.DiffRoots, total.JacSize
		off.RJLoaded = true
		return
	}
	off.Local = local
	off.Total = total
	off.StateLoaded = true
	off.RJLoaded = true
}

// EnsureLocal sizes c's local buffers from its Local mode declaration.
// Constructors call it so local state can be set before the first layout.
func EnsureLocal(c Component) {
	full := c.LocalSizes(Local).ForMode(Local)
	c.Node().ensureBuffers(full.AlgSize, full.DiffSize)
}

// SetOffsets assigns global offsets to c and its subtree starting at start:
// the component's own block first, then each child in insertion order. In a
// local mode every component numbers its own block from zero and start is
// ignored.
func SetOffsets(c Component, start Cursor, mode SolverMode) {
	b := c.Node()
	off := b.offsets.Get(mode)
	if !off.StateLoaded {
		LoadSizes(c, mode, false)
	}
	if !b.enabled {
		return
	}
	if mode.IsLocal() {
		off.AlgOffset = locationOrNull(0, off.Local.AlgSize)
		off.DiffOffset = locationOrNull(off.Local.AlgSize, off.Local.DiffSize)
		off.RootOffset = locationOrNull(0, off.Local.Roots())
		for _, ch := range b.children {
			SetOffsets(ch, Cursor{}, mode)
		}
		return
	}

	off.AlgOffset = locationOrNull(start.Alg, off.Total.AlgSize)
	off.DiffOffset = locationOrNull(start.Diff, off.Total.DiffSize)
	off.RootOffset = locationOrNull(start.Root, off.Total.Roots())

	cur := Cursor{
		Alg:  start.Alg + off.Local.AlgSize,
		Diff: start.Diff + off.Local.DiffSize,
		Root: start.Root + off.Local.Roots(),
	}
	for _, ch := range b.children {
		SetOffsets(ch, cur, mode)
		t := ch.Node().offsets.Get(mode).Total
		cur.Alg += t.AlgSize
		cur.Diff += t.DiffSize
		cur.Root += t.Roots()
	}
}

func locationOrNull(at, size int) int {
	if size == 0 {
		return NullLocation
	}
	return at
}

// Layout loads sizes and assigns offsets for the whole tree rooted at c:
// algebraic states first, differential states after them, roots from zero.
func Layout(c Component, mode SolverMode) StateSizes {
	LoadSizes(c, mode, false)
	total := c.Node().offsets.Get(mode).Total
	SetOffsets(c, Cursor{Alg: 0, Diff: total.AlgSize, Root: 0}, mode)
	return total
}

// RefreshRootsAndJacobian recounts roots and Jacobian entries after a
// JacobianChange and reassigns root offsets. State offsets are unchanged.
func RefreshRootsAndJacobian(c Component, mode SolverMode) StateSizes {
	ResetRootAndJacobianCounts(c)
	LoadSizes(c, mode, true)
	total := c.Node().offsets.Get(mode).Total
	SetOffsets(c, Cursor{Alg: 0, Diff: total.AlgSize, Root: 0}, mode)
	return total
}

// TotalSizes returns the loaded subtree sizes of c for mode.
func TotalSizes(c Component, mode SolverMode) StateSizes {
	if o, ok := c.Node().offsets.Find(mode); ok {
		return o.Total
	}
	return StateSizes{}
}

// ResetOffsets clears the offsets of every component in the tree, enabled or
// not, for every mode.
func ResetOffsets(c Component) {
	b := c.Node()
	b.offsets.Reset()
	for _, ch := range b.children {
		ResetOffsets(ch)
	}
}

// ResetRootAndJacobianCounts clears root and Jacobian counts in the tree.
func ResetRootAndJacobianCounts(c Component) {
	b := c.Node()
	b.offsets.RootAndJacobianCountReset()
	for _, ch := range b.children {
		ResetRootAndJacobianCounts(ch)
	}
}

// Walk visits c and its enabled descendants in offset order. Returning false
// from fn skips the subtree of the visited component.
func Walk(c Component, fn func(Component) bool) {
	if !c.Node().enabled {
		return
	}
	if !fn(c) {
		return
	}
	for _, ch := range c.Node().children {
		Walk(ch, fn)
	}
}

// LayoutEntry is one row of a layout listing.
type LayoutEntry struct {
	Depth      int
	ID         ID
	Name       string
	Kind       string
	Enabled    bool
	AlgOffset  int
	DiffOffset int
	RootOffset int
	Local      StateSizes
	Total      StateSizes
	// Params holds the numeric parameters of components that list them.
	Params map[string]float64
}

// Describe lists the layout of the tree for mode in offset order, disabled
// components included.
func Describe(c Component, mode SolverMode) []LayoutEntry {
	var out []LayoutEntry
	var visit func(c Component, depth int)
	visit = func(c Component, depth int) {
		b := c.Node()
		e := LayoutEntry{
			Depth:      depth,
			ID:         b.id,
			Name:       b.name,
			Kind:       b.kind,
			Enabled:    b.enabled,
			AlgOffset:  NullLocation,
			DiffOffset: NullLocation,
			RootOffset: NullLocation,
		}
		if o, ok := b.offsets.Find(mode); ok {
			e.AlgOffset, e.DiffOffset, e.RootOffset = o.AlgOffset, o.DiffOffset, o.RootOffset
			e.Local, e.Total = o.Local, o.Total
		}
		if pl, ok := c.(ParamLister); ok {
			e.Params = pl.Params()
		}
		out = append(out, e)
		for _, ch := range b.children {
			visit(ch, depth+1)
		}
	}
	visit(c, 0)
	return out
}

// VarKind classifies a global state index.
type VarKind int

const (
	Algebraic VarKind = iota
	Differential
)

func (k VarKind) String() string {
	if k == Differential {
		return "differential"
	}
	return "algebraic"
}

// VariableKinds maps every global state index of the tree to its kind.
func VariableKinds(c Component, mode SolverMode) []VarKind {
	kinds := make([]VarKind, TotalSizes(c, mode).States())
	Walk(c, func(n Component) bool {
		o := n.Node().offsets.Get(mode)
		for i := 0; i < o.Local.AlgSize; i++ {
			kinds[o.AlgOffset+i] = Algebraic
		}
		for i := 0; i < o.Local.DiffSize; i++ {
			kinds[o.DiffOffset+i] = Differential
		}
		return true
	})
	return kinds
}

// ValidateLayout checks that the tree is loaded for mode, that every
// component's own state and root ranges are disjoint and inside the global
// vectors, and that every subtree total is the sum of its parts.
func ValidateLayout(c Component, mode SolverMode) error {
	if mode.IsLocal() {
		return fmt.Errorf("dae: layout validation needs a global mode, got %s", mode)
	}
	total := TotalSizes(c, mode)
	stateOwner := make([]ID, total.States())
	rootOwner := make([]ID, total.Roots())

	var err error
	claim := func(owners []ID, at, n int, id ID, what string) {
		for i := 0; i < n && err == nil; i++ {
			k := at + i
			if k < 0 || k >= len(owners) {
				err = fmt.Errorf("dae: %s index %d of component %d outside [0,%d)", what, k, id, len(owners))
				return
			}
			if owners[k] != NoID {
				err = fmt.Errorf("dae: %s index %d claimed by %d and %d", what, k, owners[k], id)
				return
			}
			owners[k] = id
		}
	}

	Walk(c, func(n Component) bool {
		if err != nil {
			return false
		}
		b := n.Node()
		o, ok := b.offsets.Find(mode)
		if !ok || !o.Loaded() {
			err = fmt.Errorf("%w: %s in %s", ErrOffsetsNotLoaded, b.name, mode)
			return false
		}
		claim(stateOwner, o.AlgOffset, o.Local.AlgSize, b.id, "state")
		claim(stateOwner, o.DiffOffset, o.Local.DiffSize, b.id, "state")
		claim(rootOwner, o.RootOffset, o.Local.Roots(), b.id, "root")

		sum := o.Local
		for _, ch := range b.children {
			if co, ok := ch.Node().offsets.Find(mode); ok {
				sum = sum.Add(co.Total)
			}
		}
		if sum != o.Total {
			err = fmt.Errorf("dae: totals of %s do not match its parts: %+v != %+v", b.name, o.Total, sum)
		}
		return err == nil
	})
	return err
}

// PushState copies the global snapshot into the local buffers of every
// component so they can later be restored with PullState, e.g. across a
// relayout.
func PushState(c Component, sd *StateData, mode SolverMode) {
	Walk(c, func(n Component) bool {
		b := n.Node()
		loc := GetLocations(sd, nil, mode, n)
		copy(b.state[:b.localAlg], loc.AlgState)
		copy(b.state[b.localAlg:], loc.DiffState)
		if loc.DState != nil {
			copy(b.dstate[b.localAlg:], loc.DState)
		}
		return true
	})
}

// PullState writes the local buffers of every component into the global
// vectors at their offsets for mode. dstate may be nil.
func PullState(c Component, state, dstate []float64, mode SolverMode) {
	sd := &StateData{State: state, DState: dstate}
	Walk(c, func(n Component) bool {
		b := n.Node()
		loc := GetLocations(sd, nil, mode, n)
		copy(loc.AlgState, b.state[:b.localAlg])
		copy(loc.DiffState, b.state[b.localAlg:])
		if dstate != nil {
			copy(loc.DState, b.dstate[b.localAlg:])
		}
		return true
	})
}

// RootMap lists the owner of every global root slot for mode and fails if a
// slot is claimed twice. roots may be nil; otherwise it supplies the values.
func RootMap(c Component, mode SolverMode, roots []float64) ([]RootEntry, error) {
	var out []RootEntry
	seen := make(map[int]ID)
	var err error
	Walk(c, func(n Component) bool {
		b := n.Node()
		o, ok := b.offsets.Find(mode)
		if !ok || !o.RJLoaded {
			err = fmt.Errorf("%w: %s in %s", ErrOffsetsNotLoaded, b.name, mode)
			return false
		}
		discrete := ""
		if mr, ok := n.(ModeReporter); ok {
			discrete = mr.DiscreteMode()
		}
		for i := 0; i < o.Local.Roots(); i++ {
			slot := o.RootOffset + i
			if owner, dup := seen[slot]; dup {
				err = fmt.Errorf("dae: root slot %d owned by %d and %d", slot, owner, b.id)
				return false
			}
			seen[slot] = b.id
			e := RootEntry{Slot: slot, Owner: b.id, Name: b.name, Mode: discrete}
			if slot < len(roots) {
				e.Value = roots[slot]
			}
			out = append(out, e)
		}
		return true
	})
	return out, err
}

// Find resolves a "/"-separated path of component names below c. Each
// segment matches the first descendant with that name, searched breadth
// first.
func Find(c Component, path string) (Component, error) {
	cur := c
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == cur.Node().name {
			continue
		}
		next, ok := findByName(cur, seg)
		if !ok {
			return nil, fmt.Errorf("%w: no component %q below %s", ErrObjectUpdateFailure, seg, cur.Node().name)
		}
		cur = next
	}
	return cur, nil
}

func findByName(c Component, name string) (Component, bool) {
	queue := append([]Component(nil), c.Node().children...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.Node().name == name {
			return n, true
		}
		queue = append(queue, n.Node().children...)
	}
	return nil, false
}

// splitParamPath splits "a/b:param" into the object path and the parameter.
func splitParamPath(path string) (string, string) {
	if i := strings.LastIndexByte(path, ':'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// SetParam sets a parameter addressed as "path/to/object:param" below c. A
// bare parameter name addresses c itself.
func SetParam(c Component, path string, value float64, unit units.Unit) error {
	obj, param := splitParamPath(path)
	target, err := Find(c, obj)
	if err != nil {
		return err
	}
	return target.Set(param, value, unit)
}

// GetParam reads a parameter addressed like SetParam.
func GetParam(c Component, path string, unit units.Unit) (float64, error) {
	obj, param := splitParamPath(path)
	target, err := Find(c, obj)
	if err != nil {
		return 0, err
	}
	return target.Get(param, unit)
}
