package metrics

import (
	"math"

	"github.com/san-kum/velctl/internal/loop"
)

// ControlEffort is the mean absolute throttle.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(t loop.Tick) {
	c.sum += math.Abs(t.Throttle)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() { *c = ControlEffort{} }

// ThrottleActivity is the mean absolute change of the throttle between
// ticks.
type ThrottleActivity struct {
	last    float64
	sum     float64
	changes int
	seen    bool
}

func NewThrottleActivity() *ThrottleActivity { return &ThrottleActivity{} }

func (a *ThrottleActivity) Name() string { return "throttle_activity" }

func (a *ThrottleActivity) Observe(t loop.Tick) {
	if a.seen {
		a.sum += math.Abs(t.Throttle - a.last)
		a.changes++
	}
	a.last = t.Throttle
	a.seen = true
}

func (a *ThrottleActivity) Value() float64 {
	if a.changes == 0 {
		return 0
	}
	return a.sum / float64(a.changes)
}

func (a *ThrottleActivity) Reset() { *a = ThrottleActivity{} }
