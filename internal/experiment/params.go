package experiment

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/config"
)

var ErrUnknownParam = errors.New("experiment: unknown parameter")

// params maps tunable names onto config fields.
var params = map[string]func(*config.Config) *float64{
	"kp":             func(c *config.Config) *float64 { return &c.Controller.Kp },
	"ki":             func(c *config.Config) *float64 { return &c.Controller.Ki },
	"kd":             func(c *config.Config) *float64 { return &c.Controller.Kd },
	"step":           func(c *config.Config) *float64 { return &c.Controller.StepSize },
	"integral_limit": func(c *config.Config) *float64 { return &c.Controller.IntegralLimit },
	"floor":          func(c *config.Config) *float64 { return &c.Controller.Floor },
	"target":         func(c *config.Config) *float64 { return &c.Loop.Target },
	"rate_hz":        func(c *config.Config) *float64 { return &c.Loop.RateHz },
	"time_constant":  func(c *config.Config) *float64 { return &c.Sim.TimeConstant },
}

// ApplyParams returns a copy of base with the named values set.
func ApplyParams(base *config.Config, values map[string]float64) (*config.Config, error) {
	cfg := *base
	cfg.Loop.Profile = append(cfg.Loop.Profile[:0:0], base.Loop.Profile...)
	for name, v := range values {
		field, ok := params[strings.ToLower(name)]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownParam, "%q (have %s)", name, strings.Join(ParamNames(), ", "))
		}
		*field(&cfg) = v
	}
	return &cfg, nil
}

func ParamNames() []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
