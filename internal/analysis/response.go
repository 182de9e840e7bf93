package analysis

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/loop"
)

var ErrNoStep = errors.New("analysis: run has no non-zero initial target")

// Response describes the answer to the first commanded target of a run.
// Times are measured from the first tick.
type Response struct {
	Target           float64
	Rose             bool
	RiseTime         time.Duration
	Settled          bool
	SettlingTime     time.Duration
	Overshoot        float64
	SteadyStateError float64
}

// StepResponse considers the ticks up to the first target change. band is
// the settling tolerance as a fraction of the target.
func StepResponse(ticks []loop.Tick, band float64) (Response, error) {
	if len(ticks) == 0 || !ticks[0].Target.OK || ticks[0].Target.Value == 0 {
		return Response{}, ErrNoStep
	}
	target := ticks[0].Target.Value
	segment := ticks
	for i, t := range ticks {
		if t.Target != ticks[0].Target {
			segment = ticks[:i]
			break
		}
	}

	r := Response{Target: target}
	start := segment[0].Elapsed
	var t10 time.Duration
	seen10 := false
	lastOutside := -1
	for i, t := range segment {
		if !t.Measured.OK {
			lastOutside = i
			continue
		}
		y := t.Measured.Value / target
		if !seen10 && y >= 0.1 {
			seen10 = true
			t10 = t.Elapsed
		}
		if seen10 && !r.Rose && y >= 0.9 {
			r.Rose = true
			r.RiseTime = t.Elapsed - t10
		}
		if y-1 > r.Overshoot {
			r.Overshoot = y - 1
		}
		if math.Abs(y-1) > band {
			lastOutside = i
		}
	}
	if lastOutside < len(segment)-1 {
		r.Settled = true
		r.SettlingTime = segment[lastOutside+1].Elapsed - start
	}

	tail := segment[len(segment)-len(segment)/5-1:]
	sum, n := 0.0, 0
	for _, t := range tail {
		if t.Measured.OK {
			sum += math.Abs(target - t.Measured.Value)
			n++
		}
	}
	if n > 0 {
		r.SteadyStateError = sum / float64(n)
	}
	return r, nil
}
