package serialport

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Config holds the connection parameters of a serial link.
type Config struct {
	Port        string        `yaml:"port" env:"PORT"`
	BaudRate    int           `yaml:"baud_rate" env:"BAUD"`
	DataBits    int           `yaml:"data_bits" env:"DATA_BITS"`
	Parity      string        `yaml:"parity" env:"PARITY"`
	StopBits    float64       `yaml:"stop_bits" env:"STOP_BITS"`
	Charset     string        `yaml:"charset" env:"CHARSET"`
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		Parity:      "N",
		StopBits:    1,
		Charset:     "ascii",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Mode converts the config into the go.bug.st/serial port mode.
func (c Config) Mode() (*serial.Mode, error) {
	if c.BaudRate <= 0 {
		return nil, errors.Wrapf(ErrConfig, "baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, errors.Wrapf(ErrConfig, "data bits %d", c.DataBits)
	}
	parity, err := parseParity(c.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(c.StopBits)
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.Wrap(ErrConfig, "empty port")
	}
	if c.ReadTimeout < 0 {
		return errors.Wrapf(ErrConfig, "read timeout %v", c.ReadTimeout)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	_, err := LookupCharset(c.Charset)
	return err
}

func parseParity(p string) (serial.Parity, error) {
	switch strings.ToUpper(p) {
	case "", "N", "NONE":
		return serial.NoParity, nil
	case "O", "ODD":
		return serial.OddParity, nil
	case "E", "EVEN":
		return serial.EvenParity, nil
	case "M", "MARK":
		return serial.MarkParity, nil
	case "S", "SPACE":
		return serial.SpaceParity, nil
	}
	return 0, errors.Wrapf(ErrConfig, "parity %q", p)
}

func parseStopBits(b float64) (serial.StopBits, error) {
	switch b {
	case 0, 1:
		return serial.OneStopBit, nil
	case 1.5:
		return serial.OnePointFiveStopBits, nil
	case 2:
		return serial.TwoStopBits, nil
	}
	return 0, errors.Wrapf(ErrConfig, "stop bits %g", b)
}
