// Package encoder turns the tick stream of a serial wheel encoder into a
// speed estimate.
package encoder

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
	"github.com/san-kum/velctl/internal/velocity"
)

var (
	// ErrMalformed marks a telemetry line that is not "<ticks>,<ms>".
	ErrMalformed = errors.New("encoder: malformed telemetry line")

	// ErrNoData means nothing was buffered on this poll.
	ErrNoData = errors.New("encoder: no telemetry buffered")

	ErrConfig = errors.New("encoder: invalid configuration")
)

// Link is the part of serialport.Link the reader uses.
type Link interface {
	Buffered() int
	ReadLine() (string, error)
	WriteLine(text string) error
	Stop() error
}

type Config struct {
	// ReportPeriod is the continuous reporting period requested from the device.
	ReportPeriod time.Duration `yaml:"report_period" env:"REPORT_PERIOD"`
	// DistancePerTick converts ticks to meters.
	DistancePerTick float64 `yaml:"distance_per_tick" env:"DISTANCE_PER_TICK"`
	// MinInterval is the shortest window over which speed is recomputed.
	MinInterval  time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`
	ResetOnStart bool          `yaml:"reset_on_start" env:"RESET_ON_START"`
}

// DefaultConfig matches a 20 pulse encoder on a 78mm wheel. MinInterval
// equals the report period so every report updates the speed.
func DefaultConfig() Config {
	return Config{
		ReportPeriod:    50 * time.Millisecond,
		DistancePerTick: 0.078 * 3.141592653589793 / 20,
		MinInterval:     50 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.ReportPeriod < time.Millisecond {
		return errors.Wrapf(ErrConfig, "report period %v", c.ReportPeriod)
	}
	if c.DistancePerTick <= 0 {
		return errors.Wrapf(ErrConfig, "distance per tick %g", c.DistancePerTick)
	}
	if c.MinInterval < 0 {
		return errors.Wrapf(ErrConfig, "min interval %v", c.MinInterval)
	}
	return nil
}

// Stats counts poll outcomes.
type Stats struct {
	// Accepted samples recomputed the speed.
	Accepted uint64
	// Deferred samples were absorbed before MinInterval had elapsed.
	Deferred  uint64
	Malformed uint64
	// Failed polls hit a link error (closed, i/o, decode).
	Failed uint64
	Empty  uint64
}

// Reader polls a Link once per control tick. Only one goroutine may use it.
type Reader struct {
	link     Link
	cfg      Config
	clock    clock.Clock
	logger   *zap.SugaredLogger
	startCmd string

	lastTicks  int64
	lastUpdate time.Time
	speed      float64
	measured   bool
	stats      Stats
}

// NewReader binds a reader to an already started link and asks the device
// to begin continuous reporting. A nil clock means wall time.
func NewReader(link Link, cfg Config, clk clock.Clock, logger *zap.SugaredLogger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	r := &Reader{
		link:       link,
		cfg:        cfg,
		clock:      clk,
		logger:     logging.OrNop(logger),
		startCmd:   StartCommand(cfg.ReportPeriod),
		lastUpdate: clk.Now(),
	}
	if cfg.ResetOnStart {
		r.send(ResetCommand)
	}
	r.send(r.startCmd)
	return r, nil
}

// Update re-requests continuous reporting, then absorbs at most one line.
// It always returns the current estimate; a non-nil error says why no
// sample was absorbed on this poll.
func (r *Reader) Update() (velocity.Sample, error) {
	r.send(r.startCmd)

	if r.link.Buffered() == 0 {
		r.stats.Empty++
		return r.Sample(), ErrNoData
	}
	line, err := r.link.ReadLine()
	if err != nil {
		r.stats.Failed++
		return r.Sample(), err
	}
	s, err := ParseSample(line)
	if err != nil {
		r.stats.Malformed++
		r.logger.Debugw("discarding telemetry line", "line", line, "error", err)
		return r.Sample(), err
	}
	r.absorb(s)
	return r.Sample(), nil
}

func (r *Reader) absorb(s Sample) {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastUpdate)
	if elapsed > 0 && elapsed >= r.cfg.MinInterval {
		r.speed = float64(s.Ticks-r.lastTicks) * r.cfg.DistancePerTick / elapsed.Seconds()
		r.lastUpdate = now
		r.measured = true
		r.stats.Accepted++
	} else {
		r.stats.Deferred++
	}
	// ticks are absorbed even when the speed is not recomputed
	r.lastTicks = s.Ticks
}

// Speed returns the latest estimate in meters per second.
func (r *Reader) Speed() float64 { return r.speed }

// Sample is Speed, unknown until the first estimate has been computed.
func (r *Reader) Sample() velocity.Sample {
	if !r.measured {
		return velocity.Unknown
	}
	return velocity.Known(r.speed)
}

// Ticks returns the last absorbed tick count.
func (r *Reader) Ticks() int64 { return r.lastTicks }

// Distance returns odometry in meters since the last device reset.
func (r *Reader) Distance() float64 {
	return float64(r.lastTicks) * r.cfg.DistancePerTick
}

func (r *Reader) Stats() Stats { return r.stats }

// Reset zeroes the device counter and the local tick bookkeeping. The speed
// estimate is kept.
func (r *Reader) Reset() error {
	if err := r.send(ResetCommand); err != nil {
		return err
	}
	r.lastTicks = 0
	r.lastUpdate = r.clock.Now()
	return nil
}

// Close stops continuous reporting and closes the link.
func (r *Reader) Close() error {
	return multierr.Combine(r.send(StopCommand), r.link.Stop())
}

func (r *Reader) send(cmd string) error {
	if err := r.link.WriteLine(cmd); err != nil {
		r.logger.Debugw("encoder command not sent", "command", cmd, "error", err)
		return err
	}
	return nil
}
