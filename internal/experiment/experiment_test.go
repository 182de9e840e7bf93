package experiment_test

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/velctl/internal/config"
	"github.com/san-kum/velctl/internal/experiment"
	"github.com/san-kum/velctl/internal/loop"
)

func testConfig(kind string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Encoder.DistancePerTick = 0.001
	cfg.Controller.Kind = kind
	cfg.Loop.Duration = 10 * time.Second
	return cfg
}

// meanMeasured averages the known speeds of the last n ticks.
func meanMeasured(ticks []loop.Tick, n int) float64 {
	sum, count := 0.0, 0
	for _, t := range ticks[len(ticks)-n:] {
		if t.Measured.OK {
			sum += t.Measured.Value
			count++
		}
	}
	Expect(count).To(BeNumerically(">", 0))
	return sum / float64(count)
}

func run(cfg *config.Config, opts ...experiment.Option) *experiment.Result {
	opts = append([]experiment.Option{experiment.WithClock(clock.NewMock())}, opts...)
	exp, err := experiment.New(cfg, opts...)
	Expect(err).NotTo(HaveOccurred())
	result, err := exp.Run(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return result
}

var _ = Describe("closed loop against the simulated drivetrain", func() {
	It("reaches the target open loop when the mapper matches the drivetrain", func() {
		result := run(testConfig("open"))

		Expect(result.Ticks).To(HaveLen(201))
		Expect(meanMeasured(result.Ticks, 20)).To(BeNumerically("~", 1.0, 0.03))
		Expect(result.Final[1]).To(BeNumerically("~", 1.0, 0.01))
		Expect(result.Distance).To(BeNumerically(">", 8))
	})

	It("converges with the step controller", func() {
		cfg := testConfig("step")
		cfg.Loop.Duration = 20 * time.Second
		result := run(cfg)

		Expect(meanMeasured(result.Ticks, 100)).To(BeNumerically("~", 1.0, 0.15))
		Expect(result.Metrics).To(HaveKey("tracking_error"))
		Expect(result.Metrics["control_effort"]).To(BeNumerically(">", 0.1))
	})

	It("settles below the target with the PID controller", func() {
		result := run(testConfig("pid"))

		speed := meanMeasured(result.Ticks, 40)
		Expect(speed).To(BeNumerically(">", 0.6))
		Expect(speed).To(BeNumerically("<", 0.9))
		Expect(result.Stats.Accepted).To(BeNumerically(">=", 190))
	})

	It("tracks a reversing profile", func() {
		cfg := testConfig("open")
		cfg.Loop.Profile = []loop.Waypoint{
			{At: 0, Speed: 1},
			{At: 5 * time.Second, Speed: -0.5},
		}
		result := run(cfg)

		Expect(meanMeasured(result.Ticks, 20)).To(BeNumerically("~", -0.5, 0.03))
		Expect(result.Metrics["overshoot"]).To(BeNumerically("<", 0.1))
	})

	It("survives garbage in front of the first report", func() {
		cfg := testConfig("open")
		cfg.Sim.GarbageOnOpen = "noise"
		result := run(cfg, experiment.WithDuration(2*time.Second))

		Expect(result.Stats.Malformed).To(BeEquivalentTo(1))
		Expect(meanMeasured(result.Ticks, 5)).To(BeNumerically("~", 1.0, 0.05))
	})

	It("stops reporting and the vehicle on the way out", func() {
		exp, err := experiment.New(testConfig("open"),
			experiment.WithClock(clock.NewMock()), experiment.WithDuration(time.Second))
		Expect(err).NotTo(HaveOccurred())
		_, err = exp.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		received := exp.Device().Received()
		Expect(received[0]).To(Equal("c50"))
		Expect(received[len(received)-1]).To(Equal("c"))
		Expect(exp.Vehicle().Throttle()).To(Equal(0.0))
	})

	It("follows a manual target", func() {
		manual := loop.NewManual(0.5, 3)
		result := run(testConfig("open"), experiment.WithTargets(manual), experiment.WithDuration(3*time.Second))
		Expect(meanMeasured(result.Ticks, 5)).To(BeNumerically("~", 0.5, 0.03))
	})

	It("feeds extra observers", func() {
		feed := loop.NewFeed(1000)
		result := run(testConfig("open"), experiment.WithObserver(feed), experiment.WithDuration(time.Second))
		Expect(feed.C()).To(HaveLen(len(result.Ticks)))
	})

	It("returns the context error with what was recorded", func() {
		exp, err := experiment.New(testConfig("pid"), experiment.WithClock(clock.NewMock()))
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := exp.Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(result.Ticks).To(BeEmpty())
	})

	It("runs in wall time with a real clock", func() {
		cfg := testConfig("open")
		exp, err := experiment.New(cfg, experiment.WithDuration(150*time.Millisecond))
		Expect(err).NotTo(HaveOccurred())
		result, err := exp.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(len(result.Ticks)).To(BeNumerically(">=", 3))
	})

	It("rejects virtual runs without a duration", func() {
		_, err := experiment.New(testConfig("pid"), experiment.WithClock(clock.NewMock()), experiment.WithDuration(0))
		Expect(err).To(MatchError(experiment.ErrNoDuration))
	})

	It("rejects invalid configs", func() {
		cfg := testConfig("lqr")
		_, err := experiment.New(cfg, experiment.WithClock(clock.NewMock()))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ApplyParams", func() {
	It("sets named fields on a copy", func() {
		base := config.DefaultConfig()
		cfg, err := experiment.ApplyParams(base, map[string]float64{"kp": 2, "ki": 0.5, "target": 1.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Controller.Kp).To(Equal(2.0))
		Expect(cfg.Controller.Ki).To(Equal(0.5))
		Expect(cfg.Loop.Target).To(Equal(1.5))
		Expect(base.Controller.Kp).To(Equal(1.1))
	})

	It("rejects unknown names", func() {
		_, err := experiment.ApplyParams(config.DefaultConfig(), map[string]float64{"gain": 1})
		Expect(err).To(MatchError(experiment.ErrUnknownParam))
	})

	It("lists tunable names", func() {
		Expect(experiment.ParamNames()).To(ContainElements("kp", "ki", "kd", "step"))
	})
})
