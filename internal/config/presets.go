package config

import (
	"sort"
	"time"

	"github.com/san-kum/velctl/internal/velocity"
)

type Preset struct {
	Description string
	apply       func(*Config)
}

var Presets = map[string]Preset{
	"donkey": {
		Description: "1/10 scale car, 20 ppr encoder on a 78mm wheel",
		apply:       func(*Config) {},
	},
	"rover": {
		Description: "slow differential rover, fine encoder, PID tuned for a heavy chassis",
		apply: func(c *Config) {
			c.Encoder.DistancePerTick = 0.0005
			c.Mapper = mapper(0.05, 1.5, 0.15)
			c.Controller.Kp = 0.9
			c.Controller.Ki = 0.1
			c.Controller.Kd = 0.05
			c.Loop.Target = 0.8
			c.Sim.TimeConstant = 0.6
			c.Sim.TopSpeed = 1.5
			c.Sim.StallThrottle = 0.15
			c.Sim.StallSpeed = 0.05
		},
	},
	"crawler": {
		Description: "geared rock crawler driven by the step controller",
		apply: func(c *Config) {
			c.Encoder.DistancePerTick = 0.001
			c.Mapper = mapper(0.05, 0.5, 0.25)
			c.Controller.Kind = "step"
			c.Controller.StepSize = 0.01
			c.Loop.Target = 0.3
			c.Loop.Duration = 20 * time.Second
			c.Sim.TimeConstant = 0.8
			c.Sim.TopSpeed = 0.5
			c.Sim.StallThrottle = 0.25
			c.Sim.StallSpeed = 0.05
		},
	},
}

// GetPreset returns a fresh configuration for name, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mapper(minSpeed, maxSpeed, minThrottle float64) velocity.MapperConfig {
	return velocity.MapperConfig{MinSpeed: minSpeed, MaxSpeed: maxSpeed, MinThrottle: minThrottle}
}
