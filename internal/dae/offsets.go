package dae

// StateSizes counts the entries a node contributes in one mode.
type StateSizes struct {
	AlgSize   int
	DiffSize  int
	AlgRoots  int
	DiffRoots int
	// JacSize is an upper bound on the Jacobian non-zeros.
	JacSize int
}

// States returns the number of state entries.
func (s StateSizes) States() int { return s.AlgSize + s.DiffSize }

// Roots returns the number of root functions.
func (s StateSizes) Roots() int { return s.AlgRoots + s.DiffRoots }

// Add returns the element-wise sum of two size records.
func (s StateSizes) Add(o StateSizes) StateSizes {
	return StateSizes{
		AlgSize:   s.AlgSize + o.AlgSize,
		DiffSize:  s.DiffSize + o.DiffSize,
		AlgRoots:  s.AlgRoots + o.AlgRoots,
		DiffRoots: s.DiffRoots + o.DiffRoots,
		JacSize:   s.JacSize + o.JacSize,
	}
}

// ForMode drops the entries a mode does not include.
func (s StateSizes) ForMode(mode SolverMode) StateSizes {
	if !mode.HasAlgebraic() {
		s.AlgSize = 0
		s.AlgRoots = 0
	}
	if !mode.HasDifferential() {
		s.DiffSize = 0
		s.DiffRoots = 0
	}
	if s.States() == 0 {
		s.JacSize = 0
	}
	return s
}

// Offsets is the index bookkeeping of one node for one mode. Total includes
// the node's subtree; Local is the node's own contribution.
type Offsets struct {
	AlgOffset  int
	DiffOffset int
	RootOffset int

	Total StateSizes
	Local StateSizes

	RJLoaded    bool
	StateLoaded bool
}

func newOffsets() *Offsets {
	return &Offsets{
		AlgOffset:  NullLocation,
		DiffOffset: NullLocation,
		RootOffset: NullLocation,
	}
}

// Loaded reports whether both the state and root/Jacobian counts are current.
func (o *Offsets) Loaded() bool { return o.StateLoaded && o.RJLoaded }

// Reset clears all sizes, offsets and flags.
func (o *Offsets) Reset() {
	*o = *newOffsets()
}

// RootAndJacobianCountReset clears the root and Jacobian counts only; state
// sizes and offsets are kept.
func (o *Offsets) RootAndJacobianCountReset() {
	o.Local.AlgRoots, o.Local.DiffRoots, o.Local.JacSize = 0, 0, 0
	o.Total.AlgRoots, o.Total.DiffRoots, o.Total.JacSize = 0, 0, 0
	o.RJLoaded = false
}

// collapse turns the record into a loaded zero-size entry for a disabled node.
func (o *Offsets) collapse() {
	o.Reset()
	o.RJLoaded = true
	o.StateLoaded = true
}

// OffsetTable holds the Offsets of a node for every mode it has been sized
// in. Records are keyed by SolverMode.Index and created on demand.
type OffsetTable struct {
	entries []*Offsets
}

// Get returns the mutable record for mode, creating it if absent.
func (t *OffsetTable) Get(mode SolverMode) *Offsets {
	idx := mode.Index()
	if idx < 0 {
		panic(&ContractViolation{Reason: "offsets requested for the empty solver mode"})
	}
	for len(t.entries) <= idx {
		t.entries = append(t.entries, nil)
	}
	if t.entries[idx] == nil {
		t.entries[idx] = newOffsets()
	}
	return t.entries[idx]
}

// Find returns the record for mode without creating it.
func (t *OffsetTable) Find(mode SolverMode) (*Offsets, bool) {
	return t.at(mode.Index())
}

func (t *OffsetTable) at(idx int) (*Offsets, bool) {
	if idx < 0 || idx >= len(t.entries) || t.entries[idx] == nil {
		return nil, false
	}
	return t.entries[idx], true
}

// IsLoaded reports whether the sizes for mode are current.
func (t *OffsetTable) IsLoaded(mode SolverMode, dynOnly bool) bool {
	o, ok := t.Find(mode)
	if !ok {
		return false
	}
	if dynOnly {
		return o.RJLoaded
	}
	return o.StateLoaded
}

// Reset clears every mode's record.
func (t *OffsetTable) Reset() {
	for _, o := range t.entries {
		if o != nil {
			o.Reset()
		}
	}
}

// RootAndJacobianCountReset clears root and Jacobian counts in every mode.
func (t *OffsetTable) RootAndJacobianCountReset() {
	for _, o := range t.entries {
		if o != nil {
			o.RootAndJacobianCountReset()
		}
	}
}
