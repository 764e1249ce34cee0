package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/units"
)

func TestMotorSlipResidual(t *testing.T) {
	m := NewMotor(dae.NewArena())
	m.H = 0.5
	require.NoError(t, m.Set("slip", 0.03, units.Default))

	sd := snapshot(m, dae.DAE, 0)
	require.Len(t, sd.State, 1)
	r := residual(m, BusInputs(1, 0, 1), sd, dae.DAE)

	assert.InDelta(t, m.MechPower(0.03)-m.RPower(1, 0.03), r[0], 1e-12)
	assert.InDelta(t, 0.6-0.0006/0.000436, r[0], 1e-9)
}

func TestMotorResidualMatchesDerivative(t *testing.T) {
	m := NewMotor(dae.NewArena())
	m.Beta, m.Gamma = 0.3, 0.2
	require.NoError(t, m.Set("slip", 0.05, units.Default))
	sd := snapshot(m, dae.DAE, 10)
	sd.DState[0] = 0.25
	in := BusInputs(0.95, 0, 1)

	d := derivative(m, in, sd, dae.DAE)
	r := residual(m, in, sd, dae.DAE)
	assert.InDelta(t, d[0]-0.25, r[0], 1e-12)
}

func TestMotorJacobian(t *testing.T) {
	for _, stalled := range []bool{false, true} {
		m := NewMotor(dae.NewArena())
		m.Beta, m.Gamma = 0.3, 0.2
		m.flags.stalled = stalled
		require.NoError(t, m.Set("slip", 0.05, units.Default))
		sd := snapshot(m, dae.DAE, 20)

		mis, err := diff.CheckJacobian(m, BusInputs(0.9, 0, 1), sd, nil, dae.DAE, diff.DefaultCheckOptions())
		require.NoError(t, err)
		assert.Empty(t, mis, "stalled=%v", stalled)
	}
}

func TestMotorInitializeFindsEquilibrium(t *testing.T) {
	m := NewMotor(dae.NewArena())
	in := BusInputs(1, 0, 1)
	m.InitializeState(0, in)

	assert.False(t, m.Stalled())
	s := diffState(m, 0)
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 0.05)

	sd := snapshot(m, dae.DAE, 0)
	assert.InDelta(t, 0, derivative(m, in, sd, dae.DAE)[0], 1e-9)
}

func TestMotorInitializeWithoutEquilibriumStalls(t *testing.T) {
	m := NewMotor(dae.NewArena())
	m.Alpha = 5
	m.InitializeState(0, BusInputs(1, 0, 1))
	assert.True(t, m.Stalled())
	assert.Equal(t, 1.0, diffState(m, 0))
}

func TestMotorStallParamChangesRootCount(t *testing.T) {
	m := NewMotor(dae.NewArena())
	assert.Equal(t, 1, dae.Layout(m, dae.DAE).Roots())

	require.NoError(t, m.Set("stall", 0, units.Default))
	assert.False(t, m.IsLoaded(dae.DAE, false))
	assert.Equal(t, 0, dae.Layout(m, dae.DAE).Roots())
}

func TestMotorStaticModeHasNoStates(t *testing.T) {
	m := NewMotor(dae.NewArena())
	total := dae.Layout(m, dae.PowerFlow)
	assert.Equal(t, dae.StateSizes{}, total)
	assert.Equal(t, dae.NullLocation, m.DiffOffset(dae.PowerFlow))
}

func TestMotorParameters(t *testing.T) {
	m := NewMotor(dae.NewArena())

	tests := []struct {
		name  string
		value float64
		err   error
	}{
		{"r1", 0.03, nil},
		{"r1", 0, dae.ErrInvalidParameterValue},
		{"h", -1, dae.ErrInvalidParameterValue},
		{"gamma", 0.1, nil},
		{"torque", 1, dae.ErrUnrecognizedParameter},
	}
	for _, tt := range tests {
		err := m.Set(tt.name, tt.value, units.Default)
		if tt.err == nil {
			assert.NoError(t, err, tt.name)
			got, gerr := m.Get(tt.name, units.Default)
			require.NoError(t, gerr)
			assert.Equal(t, tt.value, got)
			continue
		}
		assert.ErrorIs(t, err, tt.err, tt.name)
		var pe *dae.ParameterError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "motor_1", pe.Object)
	}
}
