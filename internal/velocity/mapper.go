package velocity

import "github.com/pkg/errors"

// ErrMapperBounds is returned for a mapper whose ranges are empty or inverted.
var ErrMapperBounds = errors.New("velocity: invalid mapper bounds")

// MapperConfig describes the drivetrain's usable speed range.
type MapperConfig struct {
	// MinSpeed is the stall speed, below which the vehicle cannot sustain motion.
	MinSpeed float64 `yaml:"min_speed" env:"MIN_SPEED"`
	// MaxSpeed is the speed at full throttle.
	MaxSpeed float64 `yaml:"max_speed" env:"MAX_SPEED"`
	// MinThrottle is the normalized throttle that corresponds to MinSpeed.
	MinThrottle float64 `yaml:"min_throttle" env:"MIN_THROTTLE"`
}

func (c MapperConfig) Validate() error {
	if c.MinSpeed < 0 || c.MaxSpeed <= c.MinSpeed {
		return errors.Wrapf(ErrMapperBounds, "speed range [%g, %g]", c.MinSpeed, c.MaxSpeed)
	}
	if c.MinThrottle < 0 || c.MinThrottle >= 1 {
		return errors.Wrapf(ErrMapperBounds, "min throttle %g outside [0, 1)", c.MinThrottle)
	}
	return nil
}

// Mapper converts between physical speed and normalized throttle in
// [-1, 1]. Both directions preserve sign.
type Mapper struct {
	cfg MapperConfig
}

func NewMapper(cfg MapperConfig) (Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return Mapper{}, err
	}
	return Mapper{cfg: cfg}, nil
}

func (m Mapper) Config() MapperConfig { return m.cfg }

// Normalize maps a speed onto the actuator range. Speeds under the stall
// speed map to 0 and speeds at or above top speed saturate at ±1.
func (m Mapper) Normalize(speed float64) float64 {
	s := Sign(speed)
	v := abs(speed)
	if v < m.cfg.MinSpeed {
		return 0
	}
	if v >= m.cfg.MaxSpeed {
		return s
	}
	return s * MapRange(v, m.cfg.MinSpeed, m.cfg.MaxSpeed, m.cfg.MinThrottle, 1)
}

// Denormalize is the inverse of Normalize.
func (m Mapper) Denormalize(throttle float64) float64 {
	s := Sign(throttle)
	v := abs(throttle)
	if v < m.cfg.MinThrottle {
		return 0
	}
	if v >= 1 {
		return s * m.cfg.MaxSpeed
	}
	return s * MapRange(v, m.cfg.MinThrottle, 1, m.cfg.MinSpeed, m.cfg.MaxSpeed)
}
