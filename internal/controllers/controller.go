// Package controllers holds the speed controllers that turn a measured and a
// target speed into a normalized throttle command.
package controllers

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/velocity"
)

var ErrUnknownController = errors.New("controllers: unknown controller")

// Controller computes the next throttle in [-1, 1] once per control tick.
// throttle is the command currently applied. When measured or target is
// unknown the controller returns a held value instead of guessing.
type Controller interface {
	Name() string
	Update(throttle float64, measured, target velocity.Sample) float64
	Reset()
}

// Config selects and parameterizes a controller.
type Config struct {
	Kind string `yaml:"kind" env:"KIND"`

	// StepSize is the step controller's per-tick throttle increment.
	StepSize float64 `yaml:"step" env:"STEP"`

	Kp                float64 `yaml:"kp" env:"KP"`
	Ki                float64 `yaml:"ki" env:"KI"`
	Kd                float64 `yaml:"kd" env:"KD"`
	IntegralLimit     float64 `yaml:"integral_limit" env:"INTEGRAL_LIMIT"`
	Floor             float64 `yaml:"floor" env:"FLOOR"`
	LegacyFloorOutput bool    `yaml:"legacy_floor_output" env:"LEGACY_FLOOR_OUTPUT"`
}

func DefaultConfig() Config {
	return Config{
		Kind:          "pid",
		StepSize:      1.0 / 255,
		Kp:            1.1,
		Ki:            0.07,
		Kd:            0,
		IntegralLimit: 0.5,
		Floor:         0.2,
	}
}

func (c Config) PID() PIDConfig {
	return PIDConfig{
		Kp:                c.Kp,
		Ki:                c.Ki,
		Kd:                c.Kd,
		IntegralLimit:     c.IntegralLimit,
		Floor:             c.Floor,
		LegacyFloorOutput: c.LegacyFloorOutput,
	}
}

type factory func(cfg Config, m velocity.Mapper, logger *zap.SugaredLogger) (Controller, error)

var registry = map[string]factory{
	"step": func(cfg Config, m velocity.Mapper, logger *zap.SugaredLogger) (Controller, error) {
		mc := m.Config()
		return NewStep(StepConfig{
			StepSize:    cfg.StepSize,
			MinSpeed:    mc.MinSpeed,
			MaxSpeed:    mc.MaxSpeed,
			MinThrottle: mc.MinThrottle,
		}, logger)
	},
	"pid": func(cfg Config, _ velocity.Mapper, logger *zap.SugaredLogger) (Controller, error) {
		return NewPID(cfg.PID(), logger)
	},
	"open": func(_ Config, m velocity.Mapper, _ *zap.SugaredLogger) (Controller, error) {
		return NewOpen(m), nil
	},
}

// New builds the controller named by cfg.Kind. The choice is made once;
// the loop only sees the Controller interface.
func New(cfg Config, m velocity.Mapper, logger *zap.SugaredLogger) (Controller, error) {
	fn, ok := registry[strings.ToLower(cfg.Kind)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownController, "%q (have %s)", cfg.Kind, strings.Join(Names(), ", "))
	}
	return fn(cfg, m, logging.OrNop(logger).Named(strings.ToLower(cfg.Kind)))
}

// Names lists the registered controller kinds.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
