package loop

import (
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
)

// Recorder keeps every tick in memory.
type Recorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) OnTick(t Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *Recorder) Ticks() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

// Feed forwards ticks to a channel without blocking the loop; ticks are
// dropped while the reader is behind.
type Feed struct {
	ch chan Tick
}

func NewFeed(buffer int) *Feed {
	return &Feed{ch: make(chan Tick, buffer)}
}

func (f *Feed) OnTick(t Tick) {
	select {
	case f.ch <- t:
	default:
	}
}

func (f *Feed) C() <-chan Tick { return f.ch }

// Close ends the channel. Call it once the loop has stopped.
func (f *Feed) Close() { close(f.ch) }

// LogActuator stands in for a motor driver: it logs every command.
type LogActuator struct {
	logger *zap.SugaredLogger
	last   float64
}

func NewLogActuator(logger *zap.SugaredLogger) *LogActuator {
	return &LogActuator{logger: logging.OrNop(logger)}
}

func (a *LogActuator) Apply(throttle float64) error {
	if throttle != a.last {
		a.logger.Debugw("throttle", "value", throttle)
	}
	a.last = throttle
	return nil
}

func (a *LogActuator) Last() float64 { return a.last }
