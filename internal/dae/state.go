package dae

// StateData is one solver snapshot. It is owned by the caller and read-only
// to components; only destination buffers passed alongside it are written.
type StateData struct {
	Time   float64
	State  []float64
	DState []float64 // optional; nil in static modes

	// PairState and PairDState carry the complementary partition in a
	// partitioned mode: the differential vector while solving DynAlg, the
	// algebraic vector while solving DynDiff.
	PairState  []float64
	PairDState []float64

	// SeqID identifies the snapshot. Zero means "no prior snapshot" and
	// always forces derived quantities to be recomputed.
	SeqID uint64

	// CJ is the backward-difference coefficient of the current step.
	CJ float64
}

// Empty reports whether the snapshot carries no state vector.
func (sd *StateData) Empty() bool {
	return sd == nil || sd.State == nil
}

// SeqSource hands out monotonically increasing snapshot identifiers. The
// zero value is ready to use and never returns zero.
type SeqSource struct {
	last uint64
}

// Next returns a fresh sequence ID.
func (s *SeqSource) Next() uint64 {
	s.last++
	if s.last == 0 {
		s.last = 1
	}
	return s.last
}

// Last returns the most recently issued ID, or zero.
func (s *SeqSource) Last() uint64 { return s.last }
