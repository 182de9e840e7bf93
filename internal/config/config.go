// Package config holds the velctl configuration file: one section per
// component, loaded from YAML and overridden from VELCTL_* environment
// variables.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/velctl/internal/controllers"
	"github.com/san-kum/velctl/internal/encoder"
	"github.com/san-kum/velctl/internal/integrators"
	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/physics"
	"github.com/san-kum/velctl/internal/serialport"
	"github.com/san-kum/velctl/internal/sim"
	"github.com/san-kum/velctl/internal/velocity"
)

const (
	EnvPrefix       = "VELCTL_"
	DefaultRateHz   = 20.0
	DefaultTarget   = 1.0
	DefaultDuration = 10 * time.Second
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Serial     serialport.Config     `yaml:"serial" envPrefix:"SERIAL_"`
	Encoder    encoder.Config        `yaml:"encoder" envPrefix:"ENCODER_"`
	Mapper     velocity.MapperConfig `yaml:"mapper" envPrefix:"MAPPER_"`
	Controller controllers.Config    `yaml:"controller" envPrefix:"CONTROLLER_"`
	Loop       LoopConfig            `yaml:"loop" envPrefix:"LOOP_"`
	Sim        SimConfig             `yaml:"sim" envPrefix:"SIM_"`
}

type LoopConfig struct {
	RateHz float64 `yaml:"rate_hz" env:"RATE_HZ"`
	// Target is the constant speed used when Profile is empty.
	Target   float64         `yaml:"target" env:"TARGET"`
	Profile  []loop.Waypoint `yaml:"profile,omitempty"`
	Duration time.Duration   `yaml:"duration" env:"DURATION"`
}

type SimConfig struct {
	Integrator    string        `yaml:"integrator" env:"INTEGRATOR"`
	Dt            time.Duration `yaml:"dt" env:"DT"`
	TimeConstant  float64       `yaml:"time_constant" env:"TIME_CONSTANT"`
	TopSpeed      float64       `yaml:"top_speed" env:"TOP_SPEED"`
	StallThrottle float64       `yaml:"stall_throttle" env:"STALL_THROTTLE"`
	StallSpeed    float64       `yaml:"stall_speed" env:"STALL_SPEED"`
	// TicksPerMeter of zero uses the inverse of the encoder's distance per tick.
	TicksPerMeter float64 `yaml:"ticks_per_meter" env:"TICKS_PER_METER"`
	// GarbageOnOpen is emitted by the simulated device before its first report.
	GarbageOnOpen string `yaml:"garbage_on_open,omitempty" env:"GARBAGE_ON_OPEN"`
}

func DefaultConfig() *Config {
	return &Config{
		Serial:  serialport.DefaultConfig(),
		Encoder: encoder.DefaultConfig(),
		Mapper: velocity.MapperConfig{
			MinSpeed:    0.1,
			MaxSpeed:    3.0,
			MinThrottle: 0.1,
		},
		Controller: controllers.DefaultConfig(),
		Loop: LoopConfig{
			RateHz:   DefaultRateHz,
			Target:   DefaultTarget,
			Duration: DefaultDuration,
		},
		Sim: SimConfig{
			Integrator:    "rk4",
			Dt:            sim.DefaultStep,
			TimeConstant:  physics.DefaultTimeConstant,
			TopSpeed:      physics.DefaultTopSpeed,
			StallThrottle: physics.DefaultStallThrottle,
			StallSpeed:    physics.DefaultStallSpeed,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.Merge(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge reads path over c, e.g. to adjust a preset.
func (c *Config) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from VELCTL_* variables, e.g. VELCTL_SERIAL_PORT
// or VELCTL_CONTROLLER_KP.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(nil)
}

func (c *Config) applyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return errors.Wrap(err, "reading environment")
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var err error
	err = multierr.Append(err, c.Serial.Validate())
	err = multierr.Append(err, c.Encoder.Validate())
	err = multierr.Append(err, c.Mapper.Validate())
	if mapper, mErr := velocity.NewMapper(c.Mapper); mErr == nil {
		if _, cErr := controllers.New(c.Controller, mapper, nil); cErr != nil {
			err = multierr.Append(err, cErr)
		}
	}
	if c.Loop.RateHz <= 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "loop rate %g Hz", c.Loop.RateHz))
	}
	if c.Loop.Duration < 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "loop duration %v", c.Loop.Duration))
	}
	if _, iErr := integrators.New(c.Sim.Integrator); iErr != nil {
		err = multierr.Append(err, iErr)
	}
	err = multierr.Append(err, c.Drivetrain().Validate())
	if c.Sim.TicksPerMeter < 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "ticks per meter %g", c.Sim.TicksPerMeter))
	}
	return err
}

func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Loop.RateHz)
}

// Targets returns the profile when one is configured, otherwise the
// constant target.
func (c *Config) Targets() loop.TargetSource {
	if len(c.Loop.Profile) > 0 {
		return loop.NewProfile(c.Loop.Profile)
	}
	return loop.Constant(c.Loop.Target)
}

// RunDuration is the configured duration, extended to cover the last
// profile waypoint plus one second.
func (c *Config) RunDuration() time.Duration {
	d := c.Loop.Duration
	if len(c.Loop.Profile) > 0 {
		if end := loop.NewProfile(c.Loop.Profile).End() + time.Second; end > d {
			d = end
		}
	}
	return d
}

func (c *Config) Drivetrain() *physics.Drivetrain {
	return &physics.Drivetrain{
		TimeConstant:  c.Sim.TimeConstant,
		TopSpeed:      c.Sim.TopSpeed,
		StallThrottle: c.Sim.StallThrottle,
		StallSpeed:    c.Sim.StallSpeed,
	}
}

func (c *Config) TicksPerMeter() float64 {
	if c.Sim.TicksPerMeter > 0 {
		return c.Sim.TicksPerMeter
	}
	return 1 / c.Encoder.DistancePerTick
}
