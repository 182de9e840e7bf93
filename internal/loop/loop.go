// Package loop is the periodic scheduler that wires a speed source, a
// controller and an actuator together, one tick at a time.
package loop

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/controllers"
	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/velocity"
)

const DefaultPeriod = 50 * time.Millisecond

// SpeedSource is polled once per tick. It always returns its best estimate;
// an error only says the estimate is stale.
type SpeedSource interface {
	Update() (velocity.Sample, error)
}

// Actuator applies a normalized throttle in [-1, 1].
type Actuator interface {
	Apply(throttle float64) error
}

// TargetSource supplies the commanded speed at a point in the run.
type TargetSource interface {
	Target(elapsed time.Duration) velocity.Sample
}

// Tick records one pass through the loop.
type Tick struct {
	N        int
	Elapsed  time.Duration
	Target   velocity.Sample
	Measured velocity.Sample
	Throttle float64
	// Fresh is set when the source absorbed new telemetry on this tick.
	Fresh bool
}

type Metric interface {
	Name() string
	Observe(t Tick)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(t Tick)
}

type ObserverFunc func(Tick)

func (f ObserverFunc) OnTick(t Tick) { f(t) }

type Option func(*Loop)

func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithPeriod sets the tick period used by Run.
func WithPeriod(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.period = d
		}
	}
}

// WithRate is WithPeriod expressed in hertz.
func WithRate(hz float64) Option {
	return func(l *Loop) {
		if hz > 0 {
			l.period = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithDuration makes Run return once the run has lasted d.
func WithDuration(d time.Duration) Option {
	return func(l *Loop) { l.duration = d }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Loop) { l.logger = logging.OrNop(logger) }
}

type Loop struct {
	source  SpeedSource
	ctrl    controllers.Controller
	act     Actuator
	targets TargetSource

	clock    clock.Clock
	period   time.Duration
	duration time.Duration
	logger   *zap.SugaredLogger

	metrics   []Metric
	observers []Observer

	started  bool
	start    time.Time
	n        int
	throttle float64
}

func New(source SpeedSource, ctrl controllers.Controller, act Actuator, targets TargetSource, opts ...Option) *Loop {
	l := &Loop{
		source:  source,
		ctrl:    ctrl,
		act:     act,
		targets: targets,
		clock:   clock.New(),
		period:  DefaultPeriod,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) AddMetric(m Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

func (l *Loop) Period() time.Duration { return l.period }

// Throttle returns the last applied command.
func (l *Loop) Throttle() float64 { return l.throttle }

// Step runs one tick: poll the source, ask the controller, apply the
// result. Source errors are logged and the last estimate is used; only an
// actuator failure is returned.
func (l *Loop) Step() (Tick, error) {
	now := l.clock.Now()
	if !l.started {
		l.started = true
		l.start = now
		for _, m := range l.metrics {
			m.Reset()
		}
	}
	elapsed := now.Sub(l.start)

	measured, err := l.source.Update()
	if err != nil {
		l.logger.Debugw("no fresh speed", "tick", l.n, "error", err)
	}
	target := l.targets.Target(elapsed)
	throttle := l.ctrl.Update(l.throttle, measured, target)

	tick := Tick{
		N:        l.n,
		Elapsed:  elapsed,
		Target:   target,
		Measured: measured,
		Throttle: throttle,
		Fresh:    err == nil,
	}
	if err := l.act.Apply(throttle); err != nil {
		return tick, errors.Wrapf(err, "applying throttle %.3f at tick %d", throttle, l.n)
	}
	l.throttle = throttle
	l.n++

	for _, m := range l.metrics {
		m.Observe(tick)
	}
	for _, o := range l.observers {
		o.OnTick(tick)
	}
	return tick, nil
}

// Run ticks every period until ctx is done, the configured duration has
// elapsed or a step fails. It commands zero throttle on the way out.
func (l *Loop) Run(ctx context.Context) (err error) {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()
	defer func() {
		if stopErr := l.act.Apply(0); stopErr != nil {
			err = multierr.Append(err, errors.Wrap(stopErr, "stopping actuator"))
		}
	}()

	l.logger.Infow("control loop started", "controller", l.ctrl.Name(), "period", l.period)
	for {
		tick, err := l.Step()
		if err != nil {
			return err
		}
		if l.duration > 0 && tick.Elapsed >= l.duration {
			l.logger.Infow("control loop finished", "ticks", l.n)
			return nil
		}
		select {
		case <-ctx.Done():
			l.logger.Infow("control loop stopped", "ticks", l.n)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Metrics returns the current value of every registered metric.
func (l *Loop) Metrics() map[string]float64 {
	out := make(map[string]float64, len(l.metrics))
	for _, m := range l.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
