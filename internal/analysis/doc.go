// Package analysis inspects recorded runs after the fact.
//
//   - [PowerSpectrum] and [DominantFrequency] look for oscillation in the
//     measured speed or the throttle, typical of an over-tuned controller.
//   - [StepResponse] summarizes how the loop answered the first target.
//
// Example:
//
//	freq, _ := analysis.DominantFrequency(throttle, 20)
//	if freq > 0.5 {
//	    // controller is hunting
//	}
package analysis
