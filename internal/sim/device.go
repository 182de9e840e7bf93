package sim

import (
	"bytes"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/san-kum/velctl/internal/encoder"
	"github.com/san-kum/velctl/internal/serialport"
)

var ErrDeviceClosed = errors.New("sim: device closed")

const maxOutput = 4096

// Device emulates the encoder microcontroller on the far side of the serial
// port. It understands c<ms>, c, r and p, and while reporting it queues one
// "<ticks>,<ms>" line per period. Time only moves when the port is used:
// every Read and Write first catches the vehicle and the report schedule up
// to the clock.
type Device struct {
	mu            sync.Mutex
	vehicle       *Vehicle
	clock         clock.Clock
	ticksPerMeter float64

	// Garbage is queued ahead of any telemetry each time the port opens.
	Garbage []byte

	open     bool
	opened   time.Time
	base     time.Duration
	cmd      []byte
	out      []byte
	period   time.Duration
	nextEmit time.Time
	offset   int64
	received []string
}

func NewDevice(v *Vehicle, clk clock.Clock, ticksPerMeter float64) *Device {
	if clk == nil {
		clk = clock.New()
	}
	return &Device{vehicle: v, clock: clk, ticksPerMeter: ticksPerMeter}
}

// Open satisfies serialport.Opener. The mode is accepted as is.
func (d *Device) Open(_ string, _ *serial.Mode) (serialport.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.opened = d.clock.Now()
	d.base = d.vehicle.Elapsed()
	d.cmd = d.cmd[:0]
	d.out = append([]byte(nil), d.Garbage...)
	d.period = 0
	return d, nil
}

func (d *Device) Read(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrDeviceClosed
	}
	if err := d.catchUp(); err != nil {
		return 0, err
	}
	n := copy(b, d.out)
	d.out = d.out[n:]
	return n, nil
}

func (d *Device) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrDeviceClosed
	}
	if err := d.catchUp(); err != nil {
		return 0, err
	}
	d.cmd = append(d.cmd, b...)
	for {
		i := bytes.IndexByte(d.cmd, '\n')
		if i < 0 {
			break
		}
		line := string(d.cmd[:i])
		d.cmd = d.cmd[i+1:]
		d.handle(line)
	}
	return len(b), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

// SetReadTimeout is a no-op: reads never wait because simulated time only
// advances with the clock.
func (d *Device) SetReadTimeout(time.Duration) error { return nil }

func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = d.out[:0]
	return nil
}

// Received returns the command lines seen so far.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Ticks returns the counter the device would report now.
func (d *Device) Ticks() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		if err := d.catchUp(); err != nil {
			return 0, err
		}
	}
	return d.rawTicks() - d.offset, nil
}

func (d *Device) handle(line string) {
	cmd, arg, hasArg, err := encoder.ParseCommand(line)
	if err != nil {
		// the firmware ignores what it does not understand
		return
	}
	d.received = append(d.received, line)
	now := d.clock.Now()
	switch cmd {
	case 'c':
		if !hasArg || arg <= 0 {
			d.period = 0
			return
		}
		period := time.Duration(arg) * time.Millisecond
		if period != d.period {
			d.period = period
			d.nextEmit = now.Add(period)
		}
	case 'r':
		d.offset = d.rawTicks()
	case 'p':
		d.emit(now)
	}
}

func (d *Device) catchUp() error {
	now := d.clock.Now()
	if d.period > 0 {
		for !d.nextEmit.After(now) {
			if err := d.vehicle.AdvanceTo(d.simTime(d.nextEmit)); err != nil {
				return err
			}
			d.emit(d.nextEmit)
			d.nextEmit = d.nextEmit.Add(d.period)
		}
	}
	return d.vehicle.AdvanceTo(d.simTime(now))
}

func (d *Device) simTime(at time.Time) time.Duration {
	return d.base + at.Sub(d.opened)
}

func (d *Device) rawTicks() int64 {
	return int64(math.Round(d.vehicle.Position() * d.ticksPerMeter))
}

func (d *Device) emit(at time.Time) {
	s := encoder.Sample{
		Ticks:        d.rawTicks() - d.offset,
		DeviceMillis: at.Sub(d.opened).Milliseconds(),
	}
	d.out = append(d.out, s.Format()...)
	d.out = append(d.out, '\n')
	if over := len(d.out) - maxOutput; over > 0 {
		d.out = d.out[over:]
	}
}
