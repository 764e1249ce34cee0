package dae

import "fmt"

// ChangeCode is the result of a discrete transition. Codes are ordered by
// severity and combined with MaxChange.
type ChangeCode int

const (
	NotTriggered ChangeCode = iota - 1
	NoChange
	// NonStateChange alters a discrete mode without touching the equations.
	NonStateChange
	// JacobianChange alters the equations or sparsity but not the state count.
	JacobianChange
	// ObjectChange alters an object's configuration.
	ObjectChange
	// StateCountChange alters the number of states; offsets must be rebuilt.
	StateCountChange
)

func (c ChangeCode) String() string {
	switch c {
	case NotTriggered:
		return "not_triggered"
	case NoChange:
		return "no_change"
	case NonStateChange:
		return "non_state_change"
	case JacobianChange:
		return "jacobian_change"
	case ObjectChange:
		return "object_change"
	case StateCountChange:
		return "state_count_change"
	}
	return fmt.Sprintf("change(%d)", int(c))
}

// MaxChange returns the more severe of two codes.
func MaxChange(a, b ChangeCode) ChangeCode {
	if b > a {
		return b
	}
	return a
}

// CheckLevel bounds what a RootCheck may do.
type CheckLevel int

const (
	// LowVoltageCheck only acts on low-voltage conditions.
	LowVoltageCheck CheckLevel = iota
	// ReversibleOnly permits transitions that a later check can undo.
	ReversibleOnly
	FullCheck
	CompleteStateCheck
)

func (l CheckLevel) String() string {
	switch l {
	case LowVoltageCheck:
		return "low_voltage"
	case ReversibleOnly:
		return "reversible"
	case FullCheck:
		return "full"
	case CompleteStateCheck:
		return "complete"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseCheckLevel resolves a level name as printed by String.
func ParseCheckLevel(s string) (CheckLevel, error) {
	for l := LowVoltageCheck; l <= CompleteStateCheck; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("dae: unknown check level %q", s)
}

// RootFinder is implemented by components with discrete modes.
//
// RootTest writes one value per owned root at RootOffset(mode); the value is
// positive while the current mode is consistent and crosses zero on the
// switching surface. RootTrigger runs the transition for every owned root
// whose rootMask entry is non-zero and must be a no-op when the condition
// that caused a previous transition still holds. RootCheck may flip modes
// during a Newton iteration without root localization.
type RootFinder interface {
	RootTest(inputs []float64, sd *StateData, roots []float64, mode SolverMode)
	RootTrigger(t float64, inputs []float64, rootMask []int, mode SolverMode) ChangeCode
	RootCheck(inputs []float64, sd *StateData, mode SolverMode, level CheckLevel) ChangeCode
}

// RootEntry describes the owner of one global root slot.
type RootEntry struct {
	Slot  int
	Owner ID
	Name  string
	Value float64
	// Mode is the owner's discrete mode when it reports one.
	Mode string
}
