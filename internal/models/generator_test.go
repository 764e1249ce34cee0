package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/units"
)

func initializedGenerator(t *testing.T) (*Generator, []float64) {
	t.Helper()
	g := NewGenerator(dae.NewArena())
	g.Machine().Ra = 0.005
	in := BusInputs(1, 0.05, 1)
	g.InitializeState(0, in)
	return g, in
}

func TestGeneratorLayout(t *testing.T) {
	g := NewGenerator(dae.NewArena())
	total := dae.Layout(g, dae.DAE)

	assert.Equal(t, dae.StateSizes{AlgSize: 2, DiffSize: 4, DiffRoots: 2, JacSize: 28}, total)
	assert.Equal(t, 2, g.Machine().DiffOffset(dae.DAE))
	assert.Equal(t, 4, g.Exciter().DiffOffset(dae.DAE))
	assert.Equal(t, 5, g.Governor().DiffOffset(dae.DAE))
	assert.Equal(t, 0, g.Exciter().RootOffset(dae.DAE))
	assert.Equal(t, 1, g.Governor().RootOffset(dae.DAE))
	require.NoError(t, dae.ValidateLayout(g, dae.DAE))
}

func TestGeneratorInitializedIsEquilibrium(t *testing.T) {
	g, in := initializedGenerator(t)
	sd := snapshot(g, dae.DAE, 0)

	for i, r := range residual(g, in, sd, dae.DAE) {
		assert.InDelta(t, 0, r, 1e-10, "row %d", i)
	}
	assert.InDelta(t, g.Machine().Ef0, sd.State[4], 1e-12)
	assert.InDelta(t, g.Machine().Pm0, sd.State[5], 1e-12)
}

func TestGeneratorRoutesFieldThroughState(t *testing.T) {
	g, in := initializedGenerator(t)
	sd := snapshot(g, dae.DAE, 0)
	base := residual(g, in, sd, dae.DAE)

	sd.State[4] += 0.1
	sd.SeqID = 2
	moved := residual(g, in, sd, dae.DAE)
	assert.InDelta(t, base[1]-0.1, moved[1], 1e-12)
	assert.InDelta(t, base[0], moved[0], 1e-12)
}

func TestGeneratorJacobian(t *testing.T) {
	g, in := initializedGenerator(t)
	sd := snapshot(g, dae.DAE, 8)
	sd.State[3] = 1.002
	sd.State[4] += 0.05
	sd.State[5] -= 0.02

	mis, err := diff.CheckJacobian(g, in, sd, nil, dae.DAE, diff.DefaultCheckOptions())
	require.NoError(t, err)
	assert.Empty(t, mis)
}

func TestGeneratorWithoutGovernor(t *testing.T) {
	g, in := initializedGenerator(t)
	g.Governor().SetEnabled(false)
	sd := snapshot(g, dae.DAE, 0)

	assert.Len(t, sd.State, 5)
	assert.Equal(t, 1, dae.TotalSizes(g, dae.DAE).Roots())
	for i, r := range residual(g, in, sd, dae.DAE) {
		assert.InDelta(t, 0, r, 1e-10, "row %d", i)
	}
}

func TestGeneratorParameters(t *testing.T) {
	g := NewGenerator(dae.NewArena())

	require.NoError(t, g.Set("ka", 50, units.Default))
	assert.Equal(t, 50.0, g.Exciter().Ka)

	require.NoError(t, dae.SetParam(g, "governor:t", 500, units.Ms))
	assert.InDelta(t, 0.5, g.Governor().T, 1e-12)

	h, err := dae.GetParam(g, "machine:h", units.Default)
	require.NoError(t, err)
	assert.Equal(t, g.Machine().H, h)

	assert.ErrorIs(t, g.Set("bogus", 1, units.Default), dae.ErrUnrecognizedParameter)
	assert.ErrorIs(t, g.Set("h", 0, units.Default), dae.ErrInvalidParameterValue)

	require.NoError(t, g.Set("enabled", 0, units.Default))
	assert.False(t, g.Enabled())
	assert.True(t, g.Machine().Enabled())
}

func TestGeneratorPatternFollowsExciterLimit(t *testing.T) {
	g, in := initializedGenerator(t)
	sd := snapshot(g, dae.DAE, 10)
	locs := []int{6, dae.NullLocation, dae.NullLocation}
	jacSize := dae.TotalSizes(g, dae.DAE).JacSize

	emit := func() []matrix.Position {
		sd.SeqID++
		md := matrix.NewSparse(jacSize)
		g.JacobianElements(in, sd, md, locs, dae.DAE)
		return md.Pattern()
	}

	first := emit()
	assert.True(t, matrix.SamePattern(first, emit()), "pattern changed without a transition")
	assert.Contains(t, first, matrix.Position{Row: 4, Col: 6})

	sd.State[4] = g.Exciter().Vrmax + 0.1
	require.Equal(t, dae.JacobianChange, g.RootCheck(in, sd, dae.DAE, dae.FullCheck))
	sd.State[4] = g.Exciter().Vrmax
	clamped := emit()
	assert.False(t, matrix.SamePattern(first, clamped))
	assert.NotContains(t, clamped, matrix.Position{Row: 4, Col: 6})

	require.Equal(t, dae.JacobianChange, g.RootCheck(in, sd, dae.DAE, dae.FullCheck))
	assert.True(t, matrix.SamePattern(first, emit()), "pattern did not return after the release")
}
