// Package experiment assembles a complete simulated run: drivetrain,
// encoder device, serial link, encoder reader, controller and loop, all
// built from one config.Config.
package experiment

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/config"
	"github.com/san-kum/velctl/internal/controllers"
	"github.com/san-kum/velctl/internal/encoder"
	"github.com/san-kum/velctl/internal/integrators"
	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/metrics"
	"github.com/san-kum/velctl/internal/serialport"
	"github.com/san-kum/velctl/internal/sim"
	"github.com/san-kum/velctl/internal/velocity"
)

// StabilityBand is the tracking tolerance of the stability metric as a
// fraction of top speed.
const StabilityBand = 0.05

var ErrNoDuration = errors.New("experiment: virtual runs need a positive duration")

type Option func(*Experiment)

// WithClock sets the clock shared by the device, reader and loop. A
// *clock.Mock makes Run step through virtual time as fast as possible.
func WithClock(c clock.Clock) Option {
	return func(e *Experiment) { e.clock = c }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Experiment) { e.logger = logging.OrNop(logger) }
}

// WithTargets replaces the targets from the config, e.g. with a
// loop.Manual driven by the dashboard.
func WithTargets(t loop.TargetSource) Option {
	return func(e *Experiment) { e.targets = t }
}

func WithObserver(o loop.Observer) Option {
	return func(e *Experiment) { e.observers = append(e.observers, o) }
}

// WithDuration overrides the config's run duration. Zero runs until the
// context ends.
func WithDuration(d time.Duration) Option {
	return func(e *Experiment) { e.duration = d }
}

type Experiment struct {
	cfg       *config.Config
	clock     clock.Clock
	logger    *zap.SugaredLogger
	targets   loop.TargetSource
	observers []loop.Observer
	duration  time.Duration

	vehicle  *sim.Vehicle
	device   *sim.Device
	reader   *encoder.Reader
	ctrl     controllers.Controller
	loop     *loop.Loop
	recorder *loop.Recorder
}

type Result struct {
	Ticks    []loop.Tick
	Metrics  map[string]float64
	Stats    encoder.Stats
	Distance float64
	// Final is the simulated vehicle state [position, velocity].
	Final sim.State
}

func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:      cfg,
		clock:    clock.New(),
		logger:   zap.NewNop().Sugar(),
		targets:  cfg.Targets(),
		duration: cfg.RunDuration(),
		recorder: loop.NewRecorder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, virtual := e.clock.(*clock.Mock); virtual && e.duration <= 0 {
		return nil, ErrNoDuration
	}

	integ, err := integrators.New(cfg.Sim.Integrator)
	if err != nil {
		return nil, err
	}
	e.vehicle = sim.NewVehicle(cfg.Drivetrain(), integ, cfg.Sim.Dt)
	e.device = sim.NewDevice(e.vehicle, e.clock, cfg.TicksPerMeter())
	e.device.Garbage = []byte(cfg.Sim.GarbageOnOpen)

	link, err := serialport.NewLink(cfg.Serial, e.logger.Named("serial"), serialport.WithOpener(e.device.Open))
	if err != nil {
		return nil, err
	}
	if err := link.Start(); err != nil {
		return nil, errors.Wrap(err, "opening simulated device")
	}
	e.reader, err = encoder.NewReader(link, cfg.Encoder, e.clock, e.logger.Named("encoder"))
	if err != nil {
		return nil, multierr.Append(err, link.Stop())
	}

	mapper, err := velocity.NewMapper(cfg.Mapper)
	if err != nil {
		return nil, multierr.Append(err, e.reader.Close())
	}
	e.ctrl, err = controllers.New(cfg.Controller, mapper, e.logger)
	if err != nil {
		return nil, multierr.Append(err, e.reader.Close())
	}

	e.loop = loop.New(e.reader, e.ctrl, e.vehicle, e.targets,
		loop.WithClock(e.clock),
		loop.WithPeriod(cfg.Period()),
		loop.WithDuration(e.duration),
		loop.WithLogger(e.logger.Named("loop")),
	)
	for _, m := range metrics.Standard(cfg.Mapper.MinSpeed, StabilityBand*cfg.Mapper.MaxSpeed) {
		e.loop.AddMetric(m)
	}
	e.loop.AddObserver(e.recorder)
	for _, o := range e.observers {
		e.loop.AddObserver(o)
	}
	return e, nil
}

func (e *Experiment) Reader() *encoder.Reader            { return e.reader }
func (e *Experiment) Controller() controllers.Controller { return e.ctrl }
func (e *Experiment) Vehicle() *sim.Vehicle              { return e.vehicle }
func (e *Experiment) Device() *sim.Device                { return e.device }

// Run drives the loop to completion and closes the reader. The result is
// returned even when the run ends early with an error.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	var err error
	if mock, ok := e.clock.(*clock.Mock); ok {
		err = e.simulate(ctx, mock)
	} else {
		err = e.loop.Run(ctx)
	}
	err = multierr.Append(err, e.reader.Close())

	return &Result{
		Ticks:    e.recorder.Ticks(),
		Metrics:  e.loop.Metrics(),
		Stats:    e.reader.Stats(),
		Distance: e.reader.Distance(),
		Final:    e.vehicle.State(),
	}, err
}

// simulate steps the loop and advances the mock clock by one period between
// ticks, then stops the vehicle the way Loop.Run does.
func (e *Experiment) simulate(ctx context.Context, mock *clock.Mock) (err error) {
	defer func() {
		if stopErr := e.vehicle.Apply(0); stopErr != nil {
			err = multierr.Append(err, errors.Wrap(stopErr, "stopping vehicle"))
		}
	}()

	period := e.loop.Period()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tick, err := e.loop.Step()
		if err != nil {
			return err
		}
		if tick.Elapsed >= e.duration {
			return nil
		}
		mock.Add(period)
	}
}
