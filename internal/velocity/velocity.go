// Package velocity holds the speed types shared by the reader, the
// controllers and the control loop, plus the mapping between physical speed
// and the normalized actuator range.
package velocity

import "math"

// Sample is a speed value that may be unknown, e.g. before the first encoder
// reading has arrived.
type Sample struct {
	Value float64
	OK    bool
}

// Unknown is the zero Sample.
var Unknown = Sample{}

func Known(v float64) Sample {
	return Sample{Value: v, OK: true}
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MapRange linearly maps x from [xMin, xMax] onto [yMin, yMax]. x is not
// clamped.
func MapRange(x, xMin, xMax, yMin, yMax float64) float64 {
	return (x-xMin)*(yMax-yMin)/(xMax-xMin) + yMin
}

func abs(v float64) float64 { return math.Abs(v) }
