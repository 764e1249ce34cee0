package dae

// Locations are views into solver buffers for one component's own block.
// Every slice aliases the underlying buffer; nothing is copied.
type Locations struct {
	Time float64

	AlgState  []float64
	DiffState []float64
	DState    []float64

	// Dest views the algebraic rows of the destination, DestDiff the
	// differential rows. Both are nil when no destination was given.
	Dest     []float64
	DestDiff []float64

	AlgOffset  int
	DiffOffset int
}

// GetLocations returns the views of c's own block in mode. In a local mode,
// or when sd carries no state, the state views point into c's local buffers.
// In a partitioned mode the complementary views come from sd.PairState at the
// paired mode's offsets, or from the local buffers when that mode is not
// laid out.
//
// Calling it before the sizes and offsets of mode are loaded is a contract
// violation and panics.
func GetLocations(sd *StateData, dest []float64, mode SolverMode, c Component) Locations {
	b := c.Node()
	off, ok := b.offsets.Find(mode)
	if !ok || !off.Loaded() {
		panic(&ContractViolation{
			Object: b.name,
			Mode:   mode,
			Reason: "locations requested before sizes were loaded",
			Err:    ErrOffsetsNotLoaded,
		})
	}

	alg, diff := off.Local.AlgSize, off.Local.DiffSize
	loc := Locations{AlgOffset: off.AlgOffset, DiffOffset: off.DiffOffset}
	if sd != nil {
		loc.Time = sd.Time
	}

	if dest != nil {
		loc.Dest = span(dest, off.AlgOffset, alg)
		loc.DestDiff = span(dest, off.DiffOffset, diff)
	}

	if mode.IsLocal() || sd.Empty() {
		b.localViews(&loc, alg, diff)
		return loc
	}

	loc.AlgState = span(sd.State, off.AlgOffset, alg)
	loc.DiffState = span(sd.State, off.DiffOffset, diff)
	loc.DState = span(sd.DState, off.DiffOffset, diff)

	paired, isPartitioned := mode.Paired()
	if !isPartitioned {
		return loc
	}
	po, ok := b.offsets.at(paired)
	switch {
	case mode.HasAlgebraic() && !mode.HasDifferential():
		if ok && po.StateLoaded && sd.PairState != nil {
			loc.DiffState = span(sd.PairState, po.DiffOffset, po.Local.DiffSize)
			loc.DState = span(sd.PairDState, po.DiffOffset, po.Local.DiffSize)
		} else {
			n := b.localDiff()
			loc.DiffState = b.state[b.localAlg : b.localAlg+n]
			loc.DState = b.dstate[b.localAlg : b.localAlg+n]
		}
	case mode.HasDifferential() && !mode.HasAlgebraic():
		if ok && po.StateLoaded && sd.PairState != nil {
			loc.AlgState = span(sd.PairState, po.AlgOffset, po.Local.AlgSize)
		} else {
			loc.AlgState = b.state[:b.localAlg]
		}
	}
	return loc
}

func (b *Base) localViews(loc *Locations, alg, diff int) {
	loc.AlgState = b.state[:alg]
	loc.DiffState = b.state[b.localAlg : b.localAlg+diff]
	loc.DState = b.dstate[b.localAlg : b.localAlg+diff]
}

func (b *Base) localDiff() int { return len(b.state) - b.localAlg }

// span returns buf[at:at+n], or nil when the range is empty or buf is nil.
func span(buf []float64, at, n int) []float64 {
	if n == 0 || at < 0 || buf == nil {
		return nil
	}
	return buf[at : at+n : at+n]
}
