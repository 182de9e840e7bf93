package encoder

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestParseSample(t *testing.T) {
	tests := []struct {
		line    string
		want    Sample
		wantErr bool
	}{
		{"12,340\n", Sample{12, 340}, false},
		{" -7 , 15 \r\n", Sample{-7, 15}, false},
		{"0,0", Sample{0, 0}, false},
		{"abc", Sample{}, true},
		{"1,2,3", Sample{}, true},
		{"", Sample{}, true},
		{"1.5,2", Sample{}, true},
		{"1,", Sample{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSample(tt.line)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("ParseSample(%q) error = %v, want ErrMalformed", tt.line, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSample(%q): %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSample(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestSampleFormat(t *testing.T) {
	s := Sample{Ticks: -42, DeviceMillis: 1200}
	if got := s.Format(); got != "-42,1200" {
		t.Errorf("Format() = %q", got)
	}
	back, err := ParseSample(s.Format())
	if err != nil || back != s {
		t.Errorf("ParseSample(Format()) = %+v, %v", back, err)
	}
}

func TestCommands(t *testing.T) {
	if got := StartCommand(50 * time.Millisecond); got != "c50" {
		t.Errorf("StartCommand = %q", got)
	}

	tests := []struct {
		line   string
		cmd    byte
		arg    int64
		hasArg bool
	}{
		{"c50\n", 'c', 50, true},
		{"c", 'c', 0, false},
		{"r\n", 'r', 0, false},
		{"p", 'p', 0, false},
	}
	for _, tt := range tests {
		cmd, arg, hasArg, err := ParseCommand(tt.line)
		if err != nil {
			t.Errorf("ParseCommand(%q): %v", tt.line, err)
			continue
		}
		if cmd != tt.cmd || arg != tt.arg || hasArg != tt.hasArg {
			t.Errorf("ParseCommand(%q) = %c %d %v", tt.line, cmd, arg, hasArg)
		}
	}
	if _, _, _, err := ParseCommand("cfast"); err == nil {
		t.Error("expected error for non-numeric argument")
	}
	if _, _, _, err := ParseCommand(" \n"); err == nil {
		t.Error("expected error for empty command")
	}
}
