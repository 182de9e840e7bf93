package controllers

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/velocity"
)

var ErrInvalidStep = errors.New("controllers: invalid step controller parameters")

type StepConfig struct {
	StepSize    float64
	MinSpeed    float64
	MaxSpeed    float64
	MinThrottle float64
}

// Step nudges the throttle magnitude by a fixed step each tick: up when the
// vehicle is slower than the target, down when it is faster. The magnitude
// stays within [MinThrottle, 1].
type Step struct {
	cfg    StepConfig
	logger *zap.SugaredLogger

	magnitude float64
	last      float64
}

func NewStep(cfg StepConfig, logger *zap.SugaredLogger) (*Step, error) {
	if cfg.StepSize <= 0 || cfg.StepSize > 1 {
		return nil, errors.Wrapf(ErrInvalidStep, "step size %g", cfg.StepSize)
	}
	if cfg.MinSpeed < 0 || cfg.MaxSpeed <= cfg.MinSpeed {
		return nil, errors.Wrapf(ErrInvalidStep, "speed range [%g, %g]", cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.MinThrottle < 0 || cfg.MinThrottle >= 1 {
		return nil, errors.Wrapf(ErrInvalidStep, "min throttle %g", cfg.MinThrottle)
	}
	return &Step{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

func (s *Step) Name() string { return "step" }

// Update ignores the incoming throttle; the step controller integrates its
// own previous output.
func (s *Step) Update(_ float64, measured, target velocity.Sample) float64 {
	if !measured.OK || !target.OK {
		s.logger.Debugw("speed unknown, holding throttle", "throttle", s.last)
		return s.last
	}

	direction := velocity.Sign(target.Value)
	want := math.Abs(target.Value)
	speed := math.Abs(measured.Value)

	if want < s.cfg.MinSpeed {
		s.last = 0
		return 0
	}

	mag := s.magnitude
	switch {
	case speed > want:
		mag -= s.cfg.StepSize
	case speed < want:
		mag += s.cfg.StepSize
	}
	s.magnitude = velocity.Clamp(mag, s.cfg.MinThrottle, 1)
	s.last = direction * s.magnitude
	return s.last
}

// Reset drops the held throttle back to zero.
func (s *Step) Reset() {
	s.magnitude = 0
	s.last = 0
}
