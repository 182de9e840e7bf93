package controllers

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/velctl/internal/velocity"
)

const step = 1.0 / 255

func newStep(t *testing.T, minThrottle float64) *Step {
	t.Helper()
	s, err := NewStep(StepConfig{StepSize: step, MinSpeed: 0.1, MaxSpeed: 3.0, MinThrottle: minThrottle}, nil)
	if err != nil {
		t.Fatalf("new step: %v", err)
	}
	return s
}

func TestStepIncrementsTowardTarget(t *testing.T) {
	s := newStep(t, 0)
	for i := 1; i <= 10; i++ {
		got := s.Update(0, velocity.Known(0), velocity.Known(1.0))
		if want := float64(i) * step; math.Abs(got-want) > 1e-12 {
			t.Fatalf("call %d: throttle = %f, want %f", i, got, want)
		}
	}
}

func TestStepDirectionFollowsTarget(t *testing.T) {
	s := newStep(t, 0)
	got := s.Update(0, velocity.Known(0), velocity.Known(-1.0))
	if got >= 0 {
		t.Errorf("throttle = %f, want negative for reverse target", got)
	}
	if math.Abs(got+step) > 1e-12 {
		t.Errorf("throttle = %f, want %f", got, -step)
	}
}

func TestStepDecreasesWhenTooFast(t *testing.T) {
	s := newStep(t, 0)
	for i := 0; i < 5; i++ {
		s.Update(0, velocity.Known(0), velocity.Known(1.0))
	}
	before := s.Update(0, velocity.Known(1.0), velocity.Known(1.0))
	after := s.Update(0, velocity.Known(2.0), velocity.Known(1.0))
	if math.Abs(before-after-step) > 1e-12 {
		t.Errorf("throttle %f -> %f, want one step down", before, after)
	}
}

func TestStepBelowMinSpeed(t *testing.T) {
	s := newStep(t, 0)
	s.Update(0, velocity.Known(0), velocity.Known(1.0))
	if got := s.Update(0, velocity.Known(0), velocity.Known(0.05)); got != 0 {
		t.Errorf("throttle = %f, want 0 below min speed", got)
	}
	if got := s.Update(0, velocity.Known(0), velocity.Known(1.0)); math.Abs(got-2*step) > 1e-12 {
		t.Errorf("throttle = %f, want magnitude kept across a stop", got)
	}
}

func TestStepTargetAboveMaxSpeed(t *testing.T) {
	s := newStep(t, 0)
	s.Update(0, velocity.Known(0), velocity.Known(5))
	s.Update(0, velocity.Known(0), velocity.Known(5))
	// measured is above max speed but still short of the target
	if got := s.Update(0, velocity.Known(4), velocity.Known(5)); math.Abs(got-3*step) > 1e-12 {
		t.Errorf("throttle = %f, want one step up to %f", got, 3*step)
	}
}

func TestStepHoldsOnUnknown(t *testing.T) {
	s := newStep(t, 0)
	s.Update(0, velocity.Known(0), velocity.Known(-1.0))
	held := s.Update(0.7, velocity.Unknown, velocity.Known(-1.0))
	if math.Abs(held+step) > 1e-12 {
		t.Errorf("throttle = %f, want held %f", held, -step)
	}
	if got := s.Update(0.7, velocity.Known(0), velocity.Unknown); got != held {
		t.Errorf("throttle = %f, want held %f", got, held)
	}
}

func TestStepClamped(t *testing.T) {
	s := newStep(t, 0.1)
	if got := s.Update(0, velocity.Known(0), velocity.Known(1.0)); got != 0.1 {
		t.Errorf("first throttle = %f, want min throttle 0.1", got)
	}
	for i := 0; i < 1000; i++ {
		s.Update(0, velocity.Known(0), velocity.Known(10.0))
	}
	if got := s.Update(0, velocity.Known(0), velocity.Known(10.0)); got != 1 {
		t.Errorf("throttle = %f, want saturation at 1", got)
	}
	for i := 0; i < 1000; i++ {
		s.Update(0, velocity.Known(5.0), velocity.Known(1.0))
	}
	if got := s.Update(0, velocity.Known(5.0), velocity.Known(1.0)); got != 0.1 {
		t.Errorf("throttle = %f, want floor at min throttle", got)
	}
}

func TestStepReset(t *testing.T) {
	s := newStep(t, 0)
	s.Update(0, velocity.Known(0), velocity.Known(1.0))
	s.Reset()
	if got := s.Update(0, velocity.Unknown, velocity.Known(1.0)); got != 0 {
		t.Errorf("throttle after reset = %f", got)
	}
}

func TestNewStepInvalid(t *testing.T) {
	bad := []StepConfig{
		{StepSize: 0, MinSpeed: 0.1, MaxSpeed: 3},
		{StepSize: 0.01, MinSpeed: 3, MaxSpeed: 1},
		{StepSize: 0.01, MinSpeed: 0.1, MaxSpeed: 3, MinThrottle: 1},
	}
	for i, c := range bad {
		if _, err := NewStep(c, nil); !errors.Is(err, ErrInvalidStep) {
			t.Errorf("case %d: error = %v", i, err)
		}
	}
}

func newPID(t *testing.T, cfg PIDConfig) *PID {
	t.Helper()
	p, err := NewPID(cfg, nil)
	if err != nil {
		t.Fatalf("new pid: %v", err)
	}
	return p
}

func defaultPID() PIDConfig {
	return DefaultConfig().PID()
}

func TestNewPIDInvalid(t *testing.T) {
	for _, c := range []PIDConfig{
		{Kp: -1, IntegralLimit: 0.5},
		{Ki: -0.1, IntegralLimit: 0.5},
		{Kd: math.NaN(), IntegralLimit: 0.5},
		{Kp: math.Inf(1), IntegralLimit: 0.5},
		{Kp: 1, IntegralLimit: -1},
	} {
		if _, err := NewPID(c, nil); !errors.Is(err, ErrInvalidPID) {
			t.Errorf("%+v: error = %v, want ErrInvalidPID", c, err)
		}
	}
}

func TestPIDIntegralBounded(t *testing.T) {
	p := newPID(t, defaultPID())
	for i := 0; i < 500; i++ {
		p.Update(0, velocity.Known(0.1), velocity.Known(3.0))
		if got := p.Diagnostics().Integral; got > 0.5 {
			t.Fatalf("call %d: integral = %f exceeds 0.5", i, got)
		}
	}
}

func TestPIDIntegralTermSaturates(t *testing.T) {
	p := newPID(t, PIDConfig{Ki: 1, IntegralLimit: 0.5})
	var got float64
	for i := 0; i < 20; i++ {
		got = p.Update(0, velocity.Known(0.9), velocity.Known(1.0))
	}
	// the bound applies to the accumulated sum, so the error never rides on top of it
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("output = %f, want 0.5", got)
	}
}

func TestPIDIntegralUnboundedBelow(t *testing.T) {
	p := newPID(t, defaultPID())
	for i := 0; i < 10; i++ {
		p.Update(0, velocity.Known(3.0), velocity.Known(1.0))
	}
	if got := p.Diagnostics().Integral; math.Abs(got+20) > 1e-9 {
		t.Errorf("integral = %f, want -20", got)
	}
}

func TestPIDOutput(t *testing.T) {
	p := newPID(t, PIDConfig{Kp: 1.1, Ki: 0.07, Kd: 0.5, IntegralLimit: 0.5, Floor: 0.2})

	got := p.Update(0, velocity.Known(0.5), velocity.Known(0.7))
	// err 0.2, integral 0.2, derivative 0.2
	want := 1.1*0.2 + 0.07*0.2 + 0.5*0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("output = %f, want %f", got, want)
	}
	d := p.Diagnostics()
	if math.Abs(d.P+d.I+d.D-want) > 1e-9 || d.Output != got {
		t.Errorf("diagnostics = %+v", d)
	}

	if got := p.Update(0, velocity.Known(0), velocity.Known(30)); got != 1 {
		t.Errorf("output = %f, want clamp to 1", got)
	}
	if got := p.Update(0, velocity.Known(30), velocity.Known(-30)); got != -1 {
		t.Errorf("output = %f, want clamp to -1", got)
	}
}

func TestPIDZeroReadingUsesLastSpeed(t *testing.T) {
	a := newPID(t, PIDConfig{Kp: 1, IntegralLimit: 0.5})
	a.Update(0, velocity.Known(0.4), velocity.Known(0.5))
	got := a.Update(0, velocity.Known(0), velocity.Known(0.5))
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("output = %f, want error against last nonzero speed", got)
	}
}

func TestPIDUnknownPassesThrottle(t *testing.T) {
	p := newPID(t, defaultPID())
	if got := p.Update(0.42, velocity.Unknown, velocity.Known(1)); got != 0.42 {
		t.Errorf("output = %f, want incoming throttle", got)
	}
	if got := p.Update(-0.3, velocity.Known(1), velocity.Unknown); got != -0.3 {
		t.Errorf("output = %f, want incoming throttle", got)
	}
	if p.Diagnostics() != (Diagnostics{}) {
		t.Error("unknown input should not touch controller state")
	}
}

func TestPIDLegacyFloor(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := defaultPID()
	cfg.LegacyFloorOutput = true
	p, err := NewPID(cfg, zap.New(core).Sugar())
	if err != nil {
		t.Fatalf("new pid: %v", err)
	}
	if logs.Len() != 1 {
		t.Errorf("expected a construction warning, got %d logs", logs.Len())
	}
	if got := p.Update(0, velocity.Known(2), velocity.Known(0.5)); got != cfg.Floor {
		t.Errorf("output = %f, want floor %f", got, cfg.Floor)
	}
	if p.Diagnostics().Error == 0 {
		t.Error("terms should still be computed")
	}
}

func TestPIDReset(t *testing.T) {
	p := newPID(t, defaultPID())
	p.Update(0, velocity.Known(1), velocity.Known(2))
	p.Reset()
	if p.Diagnostics() != (Diagnostics{}) {
		t.Errorf("diagnostics after reset = %+v", p.Diagnostics())
	}
}

func TestOpen(t *testing.T) {
	m, err := velocity.NewMapper(velocity.MapperConfig{MinSpeed: 0.1, MaxSpeed: 3, MinThrottle: 0.1})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	o := NewOpen(m)
	want := m.Normalize(1.5)
	if got := o.Update(0, velocity.Unknown, velocity.Known(1.5)); got != want {
		t.Errorf("output = %f, want %f", got, want)
	}
	if got := o.Update(0, velocity.Known(0), velocity.Unknown); got != want {
		t.Errorf("output = %f, want held %f", got, want)
	}
}

func TestNew(t *testing.T) {
	m, err := velocity.NewMapper(velocity.MapperConfig{MinSpeed: 0.1, MaxSpeed: 3, MinThrottle: 0.1})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	for _, name := range Names() {
		cfg := DefaultConfig()
		cfg.Kind = name
		c, err := New(cfg, m, nil)
		if err != nil {
			t.Errorf("New(%s): %v", name, err)
			continue
		}
		if c.Name() != name {
			t.Errorf("New(%s).Name() = %s", name, c.Name())
		}
	}

	cfg := DefaultConfig()
	cfg.Kind = "bang-bang"
	if _, err := New(cfg, m, nil); !errors.Is(err, ErrUnknownController) {
		t.Errorf("error = %v, want ErrUnknownController", err)
	}
}
