package dae

import (
	"fmt"
	"strings"
)

// NullLocation marks an index that does not exist in a mode.
const NullLocation = -1

// SolverMode selects the subset of state that is active for a solve pass.
// Its index is the stable identity used to key offset tables; two modes with
// the same index must describe the same flags.
type SolverMode struct {
	index        int
	paired       int
	local        bool
	dynamic      bool
	algebraic    bool
	differential bool
}

// ModeFlags describes a custom SolverMode.
type ModeFlags struct {
	Local        bool
	Dynamic      bool
	Algebraic    bool
	Differential bool
	// Paired is the index of the complementary partitioned mode, or
	// NullLocation.
	Paired int
}

// NewSolverMode builds a mode with the given identity. Indices below
// FirstCustomMode are reserved for the predefined modes.
func NewSolverMode(index int, f ModeFlags) SolverMode {
	return SolverMode{
		index:        index,
		paired:       f.Paired,
		local:        f.Local,
		dynamic:      f.Dynamic,
		algebraic:    f.Algebraic,
		differential: f.Differential,
	}
}

// FirstCustomMode is the lowest index available to NewSolverMode callers.
const FirstCustomMode = 6

var (
	// Local numbers each component's own states from zero.
	Local = NewSolverMode(0, ModeFlags{Local: true, Dynamic: true, Algebraic: true, Differential: true, Paired: NullLocation})
	// LocalB is a second local numbering used for scratch evaluations.
	LocalB = NewSolverMode(1, ModeFlags{Local: true, Dynamic: true, Algebraic: true, Differential: true, Paired: NullLocation})
	// DAE is the fully coupled dynamic mode.
	DAE = NewSolverMode(2, ModeFlags{Dynamic: true, Algebraic: true, Differential: true, Paired: NullLocation})
	// PowerFlow is the static algebraic mode.
	PowerFlow = NewSolverMode(3, ModeFlags{Algebraic: true, Paired: NullLocation})
	// DynAlg is the algebraic half of a partitioned dynamic solve.
	DynAlg = NewSolverMode(4, ModeFlags{Dynamic: true, Algebraic: true, Paired: 5})
	// DynDiff is the differential half of a partitioned dynamic solve.
	DynDiff = NewSolverMode(5, ModeFlags{Dynamic: true, Differential: true, Paired: 4})
	// Empty selects nothing.
	Empty = NewSolverMode(NullLocation, ModeFlags{Paired: NullLocation})
)

// Index returns the stable identity of the mode.
func (m SolverMode) Index() int { return m.index }

// Paired returns the index of the complementary partitioned mode.
func (m SolverMode) Paired() (int, bool) {
	return m.paired, m.paired != NullLocation
}

func (m SolverMode) Valid() bool           { return m.index != NullLocation }
func (m SolverMode) IsLocal() bool         { return m.local }
func (m SolverMode) IsDynamic() bool       { return m.dynamic }
func (m SolverMode) HasAlgebraic() bool    { return m.algebraic }
func (m SolverMode) HasDifferential() bool { return m.differential && m.dynamic }

// IsDAE reports whether both state kinds are solved together.
func (m SolverMode) IsDAE() bool {
	return m.dynamic && m.algebraic && m.differential
}

func (m SolverMode) IsAlgebraicOnly() bool {
	return m.algebraic && !m.HasDifferential()
}

func (m SolverMode) IsDifferentialOnly() bool {
	return m.HasDifferential() && !m.algebraic
}

// ParseMode resolves a predefined mode by name.
func ParseMode(name string) (SolverMode, error) {
	switch strings.ToLower(name) {
	case "", "dae", "dynamic":
		return DAE, nil
	case "local":
		return Local, nil
	case "powerflow", "pflow":
		return PowerFlow, nil
	case "dynalg":
		return DynAlg, nil
	case "dyndiff":
		return DynDiff, nil
	}
	return Empty, fmt.Errorf("unknown solver mode: %s", name)
}

func (m SolverMode) String() string {
	switch m.index {
	case 0:
		return "local"
	case 1:
		return "localb"
	case 2:
		return "dae"
	case 3:
		return "powerflow"
	case 4:
		return "dynalg"
	case 5:
		return "dyndiff"
	case NullLocation:
		return "empty"
	}
	return fmt.Sprintf("mode%d", m.index)
}
