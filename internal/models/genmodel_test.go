package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/units"
)

func initializedMachine(t *testing.T) (*GenModel, []float64) {
	t.Helper()
	g := NewGenModel(dae.NewArena())
	g.Ra = 0.01
	in := BusInputs(1.02, 0.1, 1)
	g.InitializeState(0, in)
	return g, in
}

func TestGenModelLayout(t *testing.T) {
	g := NewGenModel(dae.NewArena())
	assert.Equal(t, dae.StateSizes{AlgSize: 2, DiffSize: 2, JacSize: 24}, dae.Layout(g, dae.DAE))
	assert.Equal(t, 0, g.AlgOffset(dae.DAE))
	assert.Equal(t, 2, g.DiffOffset(dae.DAE))

	assert.Equal(t, dae.StateSizes{AlgSize: 2, JacSize: 12}, dae.Layout(g, dae.PowerFlow))
	assert.Equal(t, dae.NullLocation, g.DiffOffset(dae.PowerFlow))
}

func TestGenModelInitializedIsEquilibrium(t *testing.T) {
	g, in := initializedMachine(t)
	sd := snapshot(g, dae.DAE, 0)

	for i, r := range residual(g, in, sd, dae.DAE) {
		assert.InDelta(t, 0, r, 1e-12, "row %d", i)
	}
	out := g.Outputs(in, sd, dae.DAE)
	assert.InDelta(t, g.P0, out[0], 1e-12)
	assert.InDelta(t, g.Q0, out[1], 1e-12)
	assert.InDelta(t, g.P0+g.Ra*(sd.State[0]*sd.State[0]+sd.State[1]*sd.State[1]), g.Pm0, 1e-12)
}

func TestGenModelResidualMatchesDerivative(t *testing.T) {
	g, in := initializedMachine(t)
	sd := snapshot(g, dae.DAE, 5)
	sd.State[3] = 1.01
	sd.DState[2], sd.DState[3] = 0.5, -0.1

	d := derivative(g, in, sd, dae.DAE)
	r := residual(g, in, sd, dae.DAE)
	assert.InDelta(t, d[2]-0.5, r[2], 1e-12)
	assert.InDelta(t, d[3]+0.1, r[3], 1e-12)
	assert.InDelta(t, SyncSpeed*0.01, d[2], 1e-9)
}

func TestGenModelJacobian(t *testing.T) {
	g, in := initializedMachine(t)
	sd := snapshot(g, dae.DAE, 12)
	sd.State[2] += 0.05
	sd.State[3] = 1.01

	mis, err := diff.CheckJacobian(g, in, sd, nil, dae.DAE, diff.DefaultCheckOptions())
	require.NoError(t, err)
	assert.Empty(t, mis)
}

func TestGenModelStaticJacobian(t *testing.T) {
	g, in := initializedMachine(t)
	sd := snapshot(g, dae.PowerFlow, 0)
	require.Len(t, sd.State, 2)

	mis, err := diff.CheckJacobian(g, in, sd, nil, dae.PowerFlow, diff.DefaultCheckOptions())
	require.NoError(t, err)
	assert.Empty(t, mis)
}

func TestGenModelFrameCachedPerSnapshot(t *testing.T) {
	g, in := initializedMachine(t)
	sd := snapshot(g, dae.DAE, 0)
	out := make([]float64, len(sd.State))

	before := g.computes
	g.Residual(in, sd, out, dae.DAE)
	g.Derivative(in, sd, out, dae.DAE)
	assert.Equal(t, before+1, g.computes, "same seq computes once")

	sd.SeqID = 2
	g.Residual(in, sd, out, dae.DAE)
	assert.Equal(t, before+2, g.computes)

	sd.SeqID = 0
	g.Residual(in, sd, out, dae.DAE)
	g.Residual(in, sd, out, dae.DAE)
	assert.Equal(t, before+4, g.computes, "zero seq always recomputes")
}

func TestGenModelPowerInMW(t *testing.T) {
	g := NewGenModel(dae.NewArena())
	require.NoError(t, g.Set("p0", 50, units.MW))
	assert.InDelta(t, 0.5, g.P0, 1e-12)

	assert.ErrorIs(t, g.Set("xdp", 0, units.Default), dae.ErrInvalidParameterValue)
	assert.ErrorIs(t, g.Set("p0", 1, units.Deg), dae.ErrInvalidParameterValue)
}
