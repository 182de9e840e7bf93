// Package metrics scores control runs tick by tick.
package metrics

import (
	"math"

	"github.com/san-kum/velctl/internal/loop"
)

// TrackingError is the mean absolute difference between target and
// measured speed over ticks where both are known.
type TrackingError struct {
	sum     float64
	samples int
}

func NewTrackingError() *TrackingError {
	return &TrackingError{}
}

func (e *TrackingError) Name() string { return "tracking_error" }

func (e *TrackingError) Observe(t loop.Tick) {
	if !t.Measured.OK || !t.Target.OK {
		return
	}
	e.sum += math.Abs(t.Target.Value - t.Measured.Value)
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *TrackingError) Reset() {
	e.sum = 0
	e.samples = 0
}

// Overshoot is the largest excess of measured over target speed in the
// target's direction, as a fraction of the target. Targets below minTarget
// are ignored.
type Overshoot struct {
	minTarget float64
	max       float64
}

func NewOvershoot(minTarget float64) *Overshoot {
	return &Overshoot{minTarget: minTarget}
}

func (o *Overshoot) Name() string { return "overshoot" }

func (o *Overshoot) Observe(t loop.Tick) {
	if !t.Measured.OK || !t.Target.OK {
		return
	}
	target := math.Abs(t.Target.Value)
	if target < o.minTarget || target == 0 {
		return
	}
	along := t.Measured.Value * math.Copysign(1, t.Target.Value)
	if excess := (along - target) / target; excess > o.max {
		o.max = excess
	}
}

func (o *Overshoot) Value() float64 { return o.max }

func (o *Overshoot) Reset() { o.max = 0 }

// Standard returns the metrics recorded for every run.
func Standard(minTarget, tolerance float64) []loop.Metric {
	return []loop.Metric{
		NewTrackingError(),
		NewControlEffort(),
		NewThrottleActivity(),
		NewOvershoot(minTarget),
		NewStability(tolerance),
	}
}
