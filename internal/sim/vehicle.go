package sim

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DefaultStep = 5 * time.Millisecond

var ErrInvalidState = errors.New("sim: invalid state (NaN or Inf detected)")

// Vehicle advances a Dynamics in fixed steps of dt under a held throttle.
// The first state component is position in meters, the second velocity.
type Vehicle struct {
	mu    sync.Mutex
	dyn   Dynamics
	integ Integrator
	dt    time.Duration

	x        State
	throttle float64
	t        time.Duration
	err      error
}

// NewVehicle starts at rest at the origin. A non-positive dt falls back to
// DefaultStep.
func NewVehicle(dyn Dynamics, integ Integrator, dt time.Duration) *Vehicle {
	if dt <= 0 {
		dt = DefaultStep
	}
	return &Vehicle{
		dyn:   dyn,
		integ: integ,
		dt:    dt,
		x:     make(State, dyn.StateDim()),
	}
}

// Apply sets the throttle held from now on. It makes a Vehicle usable as
// the control loop's actuator.
func (v *Vehicle) Apply(throttle float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	v.throttle = throttle
	return nil
}

func (v *Vehicle) Throttle() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.throttle
}

// AdvanceTo integrates up to simulated time t. Times in the past are
// ignored.
func (v *Vehicle) AdvanceTo(t time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.err == nil && v.t < t {
		h := min(v.dt, t-v.t)
		next := v.integ.Step(v.dyn, v.x, Control{v.throttle}, v.t.Seconds(), h.Seconds())
		if !next.IsValid() {
			v.err = errors.Wrapf(ErrInvalidState, "at t=%v", v.t)
			break
		}
		v.x = next
		v.t += h
	}
	return v.err
}

func (v *Vehicle) Elapsed() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.t
}

func (v *Vehicle) Position() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.x[0]
}

func (v *Vehicle) Velocity() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.x[1]
}

func (v *Vehicle) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.x.Clone()
}
