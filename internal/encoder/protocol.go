package encoder

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Commands understood by the encoder microcontroller. Each is sent as one
// newline-terminated line.
const (
	// StopCommand ends continuous reporting.
	StopCommand = "c"
	// ResetCommand zeroes the device tick counter.
	ResetCommand = "r"
	// PollCommand asks for a single reading.
	PollCommand = "p"
)

// StartCommand asks the device to report every period. Resending it while
// reporting is active is harmless.
func StartCommand(period time.Duration) string {
	return StopCommand + strconv.FormatInt(period.Milliseconds(), 10)
}

// Sample is one telemetry line: the cumulative tick count and the device's
// own millisecond timestamp.
type Sample struct {
	Ticks        int64
	DeviceMillis int64
}

// ParseSample parses "<ticks>,<deviceMs>". Any other shape is ErrMalformed.
func ParseSample(line string) (Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 2 {
		return Sample{}, errors.Wrapf(ErrMalformed, "%d fields in %q", len(fields), line)
	}
	ticks, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrMalformed, "ticks %q", fields[0])
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrMalformed, "timestamp %q", fields[1])
	}
	return Sample{Ticks: ticks, DeviceMillis: ms}, nil
}

// Format renders the sample the way the device sends it, without the
// terminator.
func (s Sample) Format() string {
	return strconv.FormatInt(s.Ticks, 10) + "," + strconv.FormatInt(s.DeviceMillis, 10)
}

// ParseCommand splits a received command line into its letter and optional
// numeric argument, e.g. "c50" -> ('c', 50, true).
func ParseCommand(line string) (cmd byte, arg int64, hasArg bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, 0, false, errors.New("encoder: empty command")
	}
	cmd = line[0]
	if len(line) == 1 {
		return cmd, 0, false, nil
	}
	arg, err = strconv.ParseInt(line[1:], 10, 64)
	if err != nil {
		return 0, 0, false, errors.Wrapf(err, "encoder: command %q", line)
	}
	return cmd, arg, true, nil
}
