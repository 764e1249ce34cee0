package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/units"
)

func TestZIPLoadDemand(t *testing.T) {
	z := NewZIPLoad(dae.NewArena())
	z.Yp, z.Ip = 0.2, 0.1

	tests := []struct {
		name  string
		v     float64
		lowV  bool
		wantP float64
	}{
		{"nominal", 1, false, 0.2 + 0.1 + 1},
		{"reduced", 0.9, false, 0.2*0.81 + 0.09 + 1},
		{"below_vpqmin", 0.35, true, 0.2*0.35*0.35 + 0.035 + 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z.flags.lowV = tt.lowV
			p, _ := z.Demand(tt.v)
			assert.InDelta(t, tt.wantP, p, 1e-12)
		})
	}
}

func TestZIPLoadRootLayout(t *testing.T) {
	z := NewZIPLoad(dae.NewArena())
	assert.Equal(t, dae.StateSizes{AlgRoots: 1}, dae.Layout(z, dae.DAE))
	assert.Equal(t, dae.StateSizes{AlgRoots: 1}, dae.Layout(z, dae.PowerFlow))
	assert.Equal(t, 0, z.RootOffset(dae.DAE))
	assert.Equal(t, dae.NullLocation, z.AlgOffset(dae.DAE))
	assert.Equal(t, dae.StateSizes{}, dae.Layout(z, dae.DynDiff))
}

func TestZIPLoadLowVoltageTransition(t *testing.T) {
	z := NewZIPLoad(dae.NewArena())
	dae.Layout(z, dae.DAE)
	roots := make([]float64, 1)
	m := mask(z, dae.DAE)

	z.RootTest(BusInputs(0.9, 0, 1), nil, roots, dae.DAE)
	assert.InDelta(t, 0.2, roots[0], 1e-12)

	low := BusInputs(0.6, 0, 1)
	z.RootTest(low, nil, roots, dae.DAE)
	assert.Less(t, roots[0], 0.0)

	assert.Equal(t, dae.NonStateChange, z.RootTrigger(1, low, m, dae.DAE))
	assert.True(t, z.LowVoltage())
	assert.Equal(t, dae.NoChange, z.RootTrigger(1, low, m, dae.DAE), "repeat trigger is a no-op")

	z.RootTest(low, nil, roots, dae.DAE)
	assert.Greater(t, roots[0], 0.0, "root is positive again in the new mode")

	assert.Equal(t, dae.NoChange, z.RootCheck(BusInputs(0.7, 0, 1), nil, dae.DAE, dae.LowVoltageCheck), "inside the release band")
	assert.Equal(t, dae.NonStateChange, z.RootCheck(BusInputs(0.8, 0, 1), nil, dae.DAE, dae.LowVoltageCheck))
	assert.Equal(t, "normal", z.DiscreteMode())
}

func TestZIPLoadParameters(t *testing.T) {
	z := NewZIPLoad(dae.NewArena())
	require.NoError(t, z.Set("p", 50, units.MW))
	assert.InDelta(t, 0.5, z.P, 1e-12)

	mw, err := z.Get("p", units.MW)
	require.NoError(t, err)
	assert.InDelta(t, 50, mw, 1e-9)

	assert.ErrorIs(t, z.Set("vpqmin", 0, units.Default), dae.ErrInvalidParameterValue)
	assert.ErrorIs(t, z.Set("z", 1, units.Default), dae.ErrUnrecognizedParameter)
}
