// Package physics provides the longitudinal vehicle model used by the
// simulator.
package physics

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/sim"
)

const (
	DefaultTimeConstant  = 0.4
	DefaultTopSpeed      = 3.0
	DefaultStallThrottle = 0.1
	DefaultStallSpeed    = 0.1
)

var ErrParameterBounds = errors.New("physics: parameter out of valid bounds")

// Drivetrain is a first-order speed model. Throttle sets a steady-state
// speed and the vehicle approaches it with time constant TimeConstant.
// Below StallThrottle the motor produces no drive and the vehicle coasts
// to a stop.
//
// State is [position, velocity]; control is [throttle].
type Drivetrain struct {
	TimeConstant  float64
	TopSpeed      float64
	StallThrottle float64
	StallSpeed    float64
}

func NewDrivetrain() *Drivetrain {
	return &Drivetrain{
		TimeConstant:  DefaultTimeConstant,
		TopSpeed:      DefaultTopSpeed,
		StallThrottle: DefaultStallThrottle,
		StallSpeed:    DefaultStallSpeed,
	}
}

func (d *Drivetrain) Validate() error {
	if d.TimeConstant <= 0 {
		return errors.Wrapf(ErrParameterBounds, "time constant %g", d.TimeConstant)
	}
	if d.StallSpeed < 0 || d.TopSpeed <= d.StallSpeed {
		return errors.Wrapf(ErrParameterBounds, "speed range [%g, %g]", d.StallSpeed, d.TopSpeed)
	}
	if d.StallThrottle < 0 || d.StallThrottle >= 1 {
		return errors.Wrapf(ErrParameterBounds, "stall throttle %g", d.StallThrottle)
	}
	return nil
}

func (d *Drivetrain) StateDim() int   { return 2 }
func (d *Drivetrain) ControlDim() int { return 1 }

// SteadySpeed is the speed the vehicle settles at under constant throttle.
func (d *Drivetrain) SteadySpeed(throttle float64) float64 {
	mag := math.Min(math.Abs(throttle), 1)
	if mag < d.StallThrottle {
		return 0
	}
	v := d.StallSpeed + (mag-d.StallThrottle)*(d.TopSpeed-d.StallSpeed)/(1-d.StallThrottle)
	return math.Copysign(v, throttle)
}

func (d *Drivetrain) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	throttle := 0.0
	if len(u) > 0 {
		throttle = u[0]
	}
	return sim.State{x[1], (d.SteadySpeed(throttle) - x[1]) / d.TimeConstant}
}
