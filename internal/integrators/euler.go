package integrators

import "github.com/san-kum/velctl/internal/sim"

// Euler is the explicit first order step. It is stateless and safe to share.
type Euler struct{}

func NewEuler() *Euler { return &Euler{} }

func (Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	next := x.Clone()
	for i, d := range dyn.Derivative(x, u, t) {
		next[i] += dt * d
	}
	return next
}
