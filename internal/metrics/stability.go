package metrics

import (
	"math"

	"github.com/san-kum/velctl/internal/loop"
)

// Stability is the fraction of known ticks whose tracking error stays
// within tolerance. With no samples it reports 1.
type Stability struct {
	name       string
	tolerance  float64
	violations int
	samples    int
}

func NewStability(tolerance float64) *Stability {
	return &Stability{
		name:      "stability",
		tolerance: tolerance,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(t loop.Tick) {
	if !t.Measured.OK || !t.Target.OK {
		return
	}
	s.samples++
	if math.Abs(t.Target.Value-t.Measured.Value) > s.tolerance {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
