// Package analysis characterizes recorded trajectories: the spectrum of a
// state, the dominant electromechanical mode with its damping, and ASCII
// phase portraits of two states against each other.
//
//	mode := analysis.DominantMode(delta, dt)
//	if mode.Damping < 0.05 {
//	    // poorly damped swing
//	}
package analysis
