// Package metrics collects solver statistics. Solver exports counters and
// histograms on a private prometheus registry and satisfies sim.Recorder;
// Stability and Drift observe accepted states.
package metrics
