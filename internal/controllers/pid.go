package controllers

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/velocity"
)

var ErrInvalidPID = errors.New("controllers: invalid pid parameters")

type PIDConfig struct {
	Kp float64
	Ki float64
	Kd float64
	// IntegralLimit bounds the accumulated error from above.
	IntegralLimit float64
	// Floor is the constant output returned when LegacyFloorOutput is set.
	Floor             float64
	LegacyFloorOutput bool
}

// Diagnostics exposes the terms of the last PID update.
type Diagnostics struct {
	Error      float64
	Integral   float64
	Derivative float64
	P, I, D    float64
	Output     float64
}

// PID is a per-tick discrete PID on speed error. The integral is summed per
// tick, not scaled by dt, and clamped from above only.
type PID struct {
	cfg    PIDConfig
	logger *zap.SugaredLogger

	integral  float64
	prevErr   float64
	lastSpeed float64
	diag      Diagnostics
}

func NewPID(cfg PIDConfig, logger *zap.SugaredLogger) (*PID, error) {
	for _, g := range []float64{cfg.Kp, cfg.Ki, cfg.Kd} {
		if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, errors.Wrapf(ErrInvalidPID, "gain %g", g)
		}
	}
	if cfg.IntegralLimit < 0 {
		return nil, errors.Wrapf(ErrInvalidPID, "integral limit %g", cfg.IntegralLimit)
	}
	p := &PID{cfg: cfg, logger: logging.OrNop(logger)}
	if cfg.LegacyFloorOutput {
		p.logger.Warnw("legacy floor output enabled, pid result is ignored", "floor", cfg.Floor)
	}
	return p, nil
}

func (p *PID) Name() string { return "pid" }

func (p *PID) Update(throttle float64, measured, target velocity.Sample) float64 {
	if !measured.OK || !target.OK {
		return throttle
	}

	// a zero reading is treated as a dropout, not a stop
	current := measured.Value
	if current == 0 {
		current = p.lastSpeed
	} else {
		p.lastSpeed = current
	}

	err := target.Value - current
	p.integral = min(p.integral+err, p.cfg.IntegralLimit)
	derivative := err - p.prevErr
	p.prevErr = err

	pTerm := p.cfg.Kp * err
	iTerm := p.cfg.Ki * p.integral
	dTerm := p.cfg.Kd * derivative
	result := velocity.Clamp(pTerm+iTerm+dTerm, -1, 1)

	p.diag = Diagnostics{
		Error:      err,
		Integral:   p.integral,
		Derivative: derivative,
		P:          pTerm,
		I:          iTerm,
		D:          dTerm,
		Output:     result,
	}

	if p.cfg.LegacyFloorOutput {
		p.diag.Output = p.cfg.Floor
		return p.cfg.Floor
	}
	return result
}

func (p *PID) Diagnostics() Diagnostics { return p.diag }

func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.lastSpeed = 0
	p.diag = Diagnostics{}
}
