package dae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationsAliasSolverBuffers(t *testing.T) {
	tr := newTree()
	Layout(tr.root, DAE)

	sd := &StateData{
		Time:   1.5,
		State:  []float64{1, 2, 3, 4, 5, 6, 7},
		DState: []float64{0, 0, 0, 0.4, 0.5, 0.6, 0.7},
	}
	resid := make([]float64, 7)

	loc := GetLocations(sd, resid, DAE, tr.c2)
	assert.Equal(t, 1.5, loc.Time)
	assert.Equal(t, []float64{6, 7}, loc.DiffState)
	assert.Equal(t, []float64{0.6, 0.7}, loc.DState)
	assert.Nil(t, loc.AlgState)
	assert.Nil(t, loc.Dest)
	require.Len(t, loc.DestDiff, 2)

	loc.DestDiff[1] = 9
	assert.Equal(t, 9.0, resid[6])

	aloc := GetLocations(sd, resid, DAE, tr.a)
	assert.Equal(t, []float64{1, 2, 3}, aloc.AlgState)
	assert.Len(t, aloc.Dest, 3)
	assert.Equal(t, 0, cap(aloc.DiffState))
}

func TestLocationsBeforeLoadPanics(t *testing.T) {
	ar := NewArena()
	s := newStub(ar, 1, 1, 0)

	err := catch(func() { GetLocations(nil, nil, DAE, s) })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOffsetsNotLoaded)

	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, DAE, cv.Mode)
}

func TestLocationsWithoutSnapshotUseLocalBuffers(t *testing.T) {
	ar := NewArena()
	p := newStub(ar, 1, 2, 0)
	Layout(p, DAE)

	p.LocalState()[0] = 10
	p.LocalState()[2] = 30

	loc := GetLocations(nil, nil, DAE, p)
	assert.Equal(t, []float64{10}, loc.AlgState)
	assert.Equal(t, []float64{0, 30}, loc.DiffState)

	loc.DiffState[0] = 20
	assert.Equal(t, []float64{10, 20, 30}, p.LocalState())
}

func TestPartitionedModeUsesPairedOffsets(t *testing.T) {
	ar := NewArena()
	p := newStub(ar, 1, 1, 0)
	q := newStub(ar, 2, 1, 0)
	p.AddChild(q)
	Layout(p, DynAlg)
	Layout(p, DynDiff)

	assert.Equal(t, 1, q.AlgOffset(DynAlg))
	assert.Equal(t, 1, q.DiffOffset(DynDiff))

	alg := &StateData{
		State:      []float64{10, 11, 12},
		PairState:  []float64{20, 21},
		PairDState: []float64{0.2, 0.21},
	}
	loc := GetLocations(alg, nil, DynAlg, q)
	assert.Equal(t, []float64{11, 12}, loc.AlgState)
	assert.Equal(t, []float64{21}, loc.DiffState)
	assert.Equal(t, []float64{0.21}, loc.DState)

	diff := &StateData{
		State:     []float64{20, 21},
		DState:    []float64{0.2, 0.21},
		PairState: []float64{10, 11, 12},
	}
	loc = GetLocations(diff, nil, DynDiff, q)
	assert.Equal(t, []float64{21}, loc.DiffState)
	assert.Equal(t, []float64{11, 12}, loc.AlgState)
}

func TestPushPullRoundTrip(t *testing.T) {
	tr := newTree()
	Layout(tr.root, DAE)

	state := []float64{1, 2, 3, 4, 5, 6, 7}
	dstate := []float64{0, 0, 0, 0.4, 0.5, 0.6, 0.7}
	PushState(tr.root, &StateData{State: state, DState: dstate}, DAE)

	assert.Equal(t, []float64{6, 7}, tr.c2.LocalState())
	assert.Equal(t, []float64{0.6, 0.7}, tr.c2.LocalDState())
	assert.Equal(t, []float64{1, 2, 3}, tr.a.LocalState())

	outState := make([]float64, 7)
	outDState := make([]float64, 7)
	PullState(tr.root, outState, outDState, DAE)
	assert.Equal(t, state, outState)
	assert.Equal(t, dstate, outDState)
}
