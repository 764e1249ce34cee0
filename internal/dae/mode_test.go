package dae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredefinedModes(t *testing.T) {
	tests := []struct {
		mode     SolverMode
		local    bool
		alg      bool
		diff     bool
		algOnly  bool
		diffOnly bool
	}{
		{Local, true, true, true, false, false},
		{DAE, false, true, true, false, false},
		{PowerFlow, false, true, false, true, false},
		{DynAlg, false, true, false, true, false},
		{DynDiff, false, false, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.local, tt.mode.IsLocal())
			assert.Equal(t, tt.alg, tt.mode.HasAlgebraic())
			assert.Equal(t, tt.diff, tt.mode.HasDifferential())
			assert.Equal(t, tt.algOnly, tt.mode.IsAlgebraicOnly())
			assert.Equal(t, tt.diffOnly, tt.mode.IsDifferentialOnly())
		})
	}
}

func TestDifferentialNeedsDynamic(t *testing.T) {
	m := NewSolverMode(FirstCustomMode, ModeFlags{Algebraic: true, Differential: true, Paired: NullLocation})
	assert.False(t, m.HasDifferential())
	assert.False(t, m.IsDAE())
}

func TestPairedModes(t *testing.T) {
	p, ok := DynAlg.Paired()
	require.True(t, ok)
	assert.Equal(t, DynDiff.Index(), p)

	p, ok = DynDiff.Paired()
	require.True(t, ok)
	assert.Equal(t, DynAlg.Index(), p)

	_, ok = DAE.Paired()
	assert.False(t, ok)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("PowerFlow")
	require.NoError(t, err)
	assert.Equal(t, PowerFlow, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, DAE, m)

	_, err = ParseMode("quantum")
	assert.Error(t, err)
}

func TestParseCheckLevel(t *testing.T) {
	for l := LowVoltageCheck; l <= CompleteStateCheck; l++ {
		got, err := ParseCheckLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseCheckLevel("partial")
	assert.Error(t, err)
}

func TestChangeCodeOrdering(t *testing.T) {
	order := []ChangeCode{NotTriggered, NoChange, NonStateChange, JacobianChange, ObjectChange, StateCountChange}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
		assert.Equal(t, order[i], MaxChange(order[i-1], order[i]))
		assert.Equal(t, order[i], MaxChange(order[i], order[i-1]))
	}
	assert.Equal(t, "jacobian_change", JacobianChange.String())
}

func TestOffsetTableEmptyModePanics(t *testing.T) {
	var tbl OffsetTable
	err := catch(func() { tbl.Get(Empty) })
	var cv *ContractViolation
	assert.ErrorAs(t, err, &cv)
}

func TestStateSizesForMode(t *testing.T) {
	s := StateSizes{AlgSize: 2, DiffSize: 3, AlgRoots: 1, DiffRoots: 1, JacSize: 9}
	assert.Equal(t, StateSizes{AlgSize: 2, AlgRoots: 1, JacSize: 9}, s.ForMode(PowerFlow))
	assert.Equal(t, StateSizes{DiffSize: 3, DiffRoots: 1, JacSize: 9}, s.ForMode(DynDiff))
	assert.Equal(t, s, s.ForMode(DAE))

	onlyDiff := StateSizes{DiffSize: 1, JacSize: 1}
	assert.Equal(t, StateSizes{}, onlyDiff.ForMode(PowerFlow))
}
