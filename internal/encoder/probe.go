package encoder

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Probe exercises a device by hand: it resets the counter, starts reporting
// every period and hands each received line to fn until ctx ends. Reporting
// is stopped on the way out; the link is left open.
func Probe(ctx context.Context, link Link, period time.Duration, clk clock.Clock, fn func(line string, s Sample, err error)) error {
	if clk == nil {
		clk = clock.New()
	}
	if err := link.WriteLine(ResetCommand); err != nil {
		return errors.Wrap(err, "resetting encoder")
	}
	if err := link.WriteLine(StartCommand(period)); err != nil {
		return errors.Wrap(err, "starting continuous reporting")
	}

	poll := clk.Ticker(max(period/5, time.Millisecond))
	defer poll.Stop()
	for {
		for link.Buffered() > 0 {
			line, err := link.ReadLine()
			if err != nil {
				fn("", Sample{}, err)
				break
			}
			s, err := ParseSample(line)
			fn(strings.TrimSpace(line), s, err)
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(link.WriteLine(StopCommand), "stopping continuous reporting")
		case <-poll.C:
		}
	}
}
