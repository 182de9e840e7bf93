// Package serialport provides a text-oriented link to a serial device with
// non-blocking reads. A link may be opened and closed repeatedly; every
// operation on a closed link fails fast with ErrClosed.
package serialport

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/logging"
)

const (
	// maxPending caps input held between reads; older bytes are dropped.
	maxPending = 4096
	// maxLine bounds how far ReadLine waits for a terminator.
	maxLine   = 256
	readChunk = 256
)

// Port is the subset of serial.Port the link relies on.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens the named port with the given mode.
type Opener func(path string, mode *serial.Mode) (Port, error)

// Open is the default opener backed by go.bug.st/serial.
var Open Opener = func(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// ListPorts enumerates the serial ports present on the host.
var ListPorts = serial.GetPortsList

// Ports returns the host's serial port names.
func Ports() ([]string, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, errors.Wrap(err, "listing serial ports")
	}
	return ports, nil
}

type Option func(*Link)

// WithOpener replaces the port opener, e.g. with a simulated device.
func WithOpener(open Opener) Option {
	return func(l *Link) { l.open = open }
}

// Link is a serial connection with an internal receive buffer. It is not
// safe for concurrent use; one control loop owns it.
type Link struct {
	cfg     Config
	mode    *serial.Mode
	charset Charset
	open    Opener
	logger  *zap.SugaredLogger

	port    Port
	pending []byte
	chunk   []byte
}

// NewLink validates the configuration and returns a closed link.
func NewLink(cfg Config, logger *zap.SugaredLogger, opts ...Option) (*Link, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	cs, err := LookupCharset(cfg.Charset)
	if err != nil {
		return nil, err
	}
	l := &Link{
		cfg:     cfg,
		mode:    mode,
		charset: cs,
		open:    Open,
		logger:  logging.OrNop(logger),
		chunk:   make([]byte, readChunk),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Link) Config() Config { return l.cfg }

// Start opens the port. Starting an open link is a no-op.
func (l *Link) Start() error {
	if l.port != nil {
		return nil
	}
	port, err := l.open(l.cfg.Port, l.mode)
	if err != nil {
		return errors.Wrapf(err, "opening serial port %s", l.cfg.Port)
	}
	l.port = port
	l.pending = l.pending[:0]
	l.logger.Debugw("opened serial port", "port", l.cfg.Port, "baud", l.cfg.BaudRate, "charset", l.charset.Name())
	return nil
}

// Stop closes the port. Stopping a closed link is a no-op.
func (l *Link) Stop() error {
	if l.port == nil {
		return nil
	}
	port := l.port
	l.port = nil
	l.pending = l.pending[:0]
	if err := port.Close(); err != nil {
		return errors.Wrapf(err, "closing serial port %s", l.cfg.Port)
	}
	l.logger.Debugw("closed serial port", "port", l.cfg.Port)
	return nil
}

func (l *Link) IsOpen() bool { return l.port != nil }

// Buffered reports how many received bytes are waiting. A closed link or a
// failed query reports zero.
func (l *Link) Buffered() int {
	if l.port == nil {
		return 0
	}
	if err := l.fill(); err != nil {
		l.logger.Debugw("can't query serial input", "port", l.cfg.Port, "error", err)
		return 0
	}
	return len(l.pending)
}

// ReadBytes returns exactly count bytes if that many are already buffered,
// and ErrNotReady otherwise. It never waits.
func (l *Link) ReadBytes(count int) ([]byte, error) {
	if l.port == nil {
		return nil, ErrClosed
	}
	if count < 0 {
		count = 0
	}
	if err := l.fill(); err != nil {
		l.logger.Warnw("failed reading from serial port", "port", l.cfg.Port, "error", err)
		return nil, opError("read", ErrIO, err)
	}
	if len(l.pending) < count {
		return nil, ErrNotReady
	}
	return l.take(count), nil
}

// Read is ReadBytes decoded with the link charset.
func (l *Link) Read(count int) (string, error) {
	b, err := l.ReadBytes(count)
	if err != nil {
		return "", err
	}
	s, err := l.charset.Decode(b)
	if err != nil {
		l.logger.Debugw("failed decoding serial input", "port", l.cfg.Port, "error", err)
		return "", opError("read", ErrDecode, err)
	}
	return s, nil
}

// ReadLine returns the next line including its '\n'. It returns ErrNotReady
// when nothing is buffered. With a partial line buffered it waits up to the
// read timeout for the terminator and returns what it has if none arrives.
func (l *Link) ReadLine() (string, error) {
	if l.port == nil {
		return "", ErrClosed
	}
	if err := l.fill(); err != nil {
		l.logger.Warnw("failed reading line from serial port", "port", l.cfg.Port, "error", err)
		return "", opError("readline", ErrIO, err)
	}
	if len(l.pending) == 0 {
		return "", ErrNotReady
	}
	end := bytes.IndexByte(l.pending, '\n')
	if end < 0 {
		var err error
		if end, err = l.awaitTerminator(); err != nil {
			l.logger.Warnw("failed reading line from serial port", "port", l.cfg.Port, "error", err)
			return "", opError("readline", ErrIO, err)
		}
	}
	var raw []byte
	if end < 0 {
		raw = l.take(len(l.pending))
	} else {
		raw = l.take(end + 1)
	}
	s, err := l.charset.Decode(raw)
	if err != nil {
		l.logger.Warnw("failed decoding line from serial port", "port", l.cfg.Port, "error", err)
		return "", opError("readline", ErrDecode, err)
	}
	return s, nil
}

// WriteBytes sends raw bytes.
func (l *Link) WriteBytes(data []byte) error {
	if l.port == nil {
		l.logger.Warnw("can't write to closed serial port", "port", l.cfg.Port)
		return ErrClosed
	}
	if _, err := l.port.Write(data); err != nil {
		l.logger.Warnw("can't write to serial port", "port", l.cfg.Port, "error", err)
		return opError("write", ErrIO, err)
	}
	return nil
}

// Write encodes text with the link charset and sends it.
func (l *Link) Write(text string) error {
	data, err := l.charset.Encode(text)
	if err != nil {
		l.logger.Warnw("can't encode serial output", "port", l.cfg.Port, "error", err)
		return opError("write", ErrEncode, err)
	}
	return l.WriteBytes(data)
}

// WriteLine sends text followed by '\n'.
func (l *Link) WriteLine(text string) error {
	return l.Write(text + "\n")
}

// Clear discards all received input.
func (l *Link) Clear() error {
	l.pending = l.pending[:0]
	if l.port == nil {
		return nil
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		l.logger.Warnw("can't clear serial input", "port", l.cfg.Port, "error", err)
		return opError("clear", ErrIO, err)
	}
	return nil
}

// fill drains everything the driver already holds without waiting.
func (l *Link) fill() error {
	if err := l.port.SetReadTimeout(0); err != nil {
		return err
	}
	for {
		n, err := l.port.Read(l.chunk)
		l.appendPending(l.chunk[:n])
		if err != nil {
			return err
		}
		if n < len(l.chunk) {
			return nil
		}
	}
}

// awaitTerminator reads with the configured timeout until '\n' arrives. It
// returns the terminator index, or -1 on timeout or once maxLine is reached.
func (l *Link) awaitTerminator() (int, error) {
	if err := l.port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		return -1, err
	}
	for len(l.pending) < maxLine {
		n, err := l.port.Read(l.chunk)
		l.appendPending(l.chunk[:n])
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			return i, nil
		}
		if err != nil {
			return -1, err
		}
		if n == 0 {
			return -1, nil
		}
	}
	return -1, nil
}

func (l *Link) appendPending(b []byte) {
	l.pending = append(l.pending, b...)
	if over := len(l.pending) - maxPending; over > 0 {
		n := copy(l.pending, l.pending[over:])
		l.pending = l.pending[:n]
	}
}

func (l *Link) take(n int) []byte {
	out := make([]byte, n)
	copy(out, l.pending[:n])
	rest := copy(l.pending, l.pending[n:])
	l.pending = l.pending[:rest]
	return out
}
