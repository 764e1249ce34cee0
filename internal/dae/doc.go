// Package dae provides the bookkeeping and dispatch contract for
// hierarchical differential-algebraic models.
//
// A model is a tree of [Component] values. Every node contributes a local
// block of algebraic and differential states (and root functions) to a single
// global state vector owned by an outer solver:
//
//   - [SolverMode]: selects which subset of state is active for a solve pass
//   - [Offsets]/[OffsetTable]: per-mode index ranges of a node and its subtree
//   - [Locations]: typed views into the solver buffers for one node
//   - [Component]: residual, derivative, Jacobian and parameter contract
//   - [RootFinder]: root-test / root-trigger / root-check event protocol
//   - [SeqCache]: sequence-ID tagging of derived quantities
//
// # Layout
//
// Offsets are assigned by one deterministic walk: a node's own local block
// first, then every child in insertion order. The walk never re-sorts, so an
// unchanged tree always produces the same layout for a mode:
//
//	arena := dae.NewArena()
//	grid := dae.NewGroup(arena, "area")
//	grid.AddChild(models.NewMotor(arena))
//	sizes := dae.Layout(grid, dae.DAE)
//
// # Thread Safety
//
// Nothing here locks. A node only ever writes inside the ranges its own
// offsets assigned it, which keeps disjoint subtrees independent.
package dae
