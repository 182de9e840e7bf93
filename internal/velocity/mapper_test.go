package velocity

import (
	"errors"
	"math"
	"testing"
)

func newTestMapper(t *testing.T) Mapper {
	t.Helper()
	m, err := NewMapper(MapperConfig{MinSpeed: 0.1, MaxSpeed: 3.0, MinThrottle: 0.1})
	if err != nil {
		t.Fatalf("new mapper: %v", err)
	}
	return m
}

func TestNormalizeBoundaries(t *testing.T) {
	m := newTestMapper(t)

	tests := []struct {
		speed    float64
		expected float64
	}{
		{0, 0},
		{0.05, 0},
		{-0.099, 0},
		{3.0, 1},
		{10, 1},
		{-3.0, -1},
		{-42, -1},
		{0.1, 0.1},
		{-0.1, -0.1},
	}

	for _, tt := range tests {
		got := m.Normalize(tt.speed)
		if math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("Normalize(%g) = %g, expected %g", tt.speed, got, tt.expected)
		}
	}
}

func TestNormalizeMonotonicAndSignPreserving(t *testing.T) {
	m := newTestMapper(t)

	prev := 0.0
	for speed := 0.1; speed < 3.0; speed += 0.01 {
		fwd := m.Normalize(speed)
		rev := m.Normalize(-speed)
		if fwd < prev {
			t.Fatalf("normalize decreased at %g: %g < %g", speed, fwd, prev)
		}
		if fwd <= 0 {
			t.Errorf("forward speed %g normalized to non-positive %g", speed, fwd)
		}
		if rev != -fwd {
			t.Errorf("reverse speed %g normalized to %g, expected %g", -speed, rev, -fwd)
		}
		prev = fwd
	}
}

func TestRoundTrip(t *testing.T) {
	m := newTestMapper(t)

	for _, speed := range []float64{0.11, 0.5, 1.0, 1.7, 2.99, -0.2, -2.5} {
		got := m.Denormalize(m.Normalize(speed))
		if math.Abs(got-speed) > 1e-9 {
			t.Errorf("round trip of %g gave %g", speed, got)
		}
	}

	for _, throttle := range []float64{0.11, 0.5, 0.99, -0.3} {
		got := m.Normalize(m.Denormalize(throttle))
		if math.Abs(got-throttle) > 1e-9 {
			t.Errorf("round trip of throttle %g gave %g", throttle, got)
		}
	}
}

func TestDenormalizeBoundaries(t *testing.T) {
	m := newTestMapper(t)

	if got := m.Denormalize(0.05); got != 0 {
		t.Errorf("expected 0 below min throttle, got %g", got)
	}
	if got := m.Denormalize(1.0); got != 3.0 {
		t.Errorf("expected top speed at full throttle, got %g", got)
	}
	if got := m.Denormalize(-1.5); got != -3.0 {
		t.Errorf("expected negative top speed, got %g", got)
	}
}

func TestNewMapperInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  MapperConfig
	}{
		{"inverted speeds", MapperConfig{MinSpeed: 2, MaxSpeed: 1}},
		{"equal speeds", MapperConfig{MinSpeed: 1, MaxSpeed: 1}},
		{"negative min speed", MapperConfig{MinSpeed: -1, MaxSpeed: 1}},
		{"min throttle one", MapperConfig{MinSpeed: 0.1, MaxSpeed: 1, MinThrottle: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapper(tt.cfg)
			if !errors.Is(err, ErrMapperBounds) {
				t.Errorf("expected ErrMapperBounds, got %v", err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	if Sign(-0.5) != -1 || Sign(0) != 0 || Sign(2) != 1 {
		t.Error("unexpected sign")
	}
	if Clamp(2, -1, 1) != 1 || Clamp(-2, -1, 1) != -1 || Clamp(0.5, -1, 1) != 0.5 {
		t.Error("unexpected clamp")
	}
	if got := MapRange(5, 0, 10, 0, 1); got != 0.5 {
		t.Errorf("expected 0.5, got %g", got)
	}
	if Unknown.OK || !Known(0).OK {
		t.Error("unexpected sample validity")
	}
}
