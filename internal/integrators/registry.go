// Package integrators provides fixed-step ODE solvers for the simulated
// drivetrain.
package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/sim"
)

var ErrUnknownIntegrator = errors.New("integrators: unknown integrator")

var registry = map[string]func() sim.Integrator{
	"euler": func() sim.Integrator { return NewEuler() },
	"rk4":   func() sim.Integrator { return NewRK4() },
}

// New returns a fresh integrator by name.
func New(name string) (sim.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntegrator, "%q", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
