package loop_test

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/san-kum/velctl/internal/controllers"
	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/velocity"
)

type scriptedSource struct {
	samples []velocity.Sample
	errs    []error
	calls   int
}

func (s *scriptedSource) Update() (velocity.Sample, error) {
	i := s.calls
	s.calls++
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.samples[i], err
}

type recordingActuator struct {
	applied []float64
	failAt  int
}

func (a *recordingActuator) Apply(throttle float64) error {
	if a.failAt > 0 && len(a.applied)+1 == a.failAt {
		return errors.New("driver fault")
	}
	a.applied = append(a.applied, throttle)
	return nil
}

type countingMetric struct {
	n      int
	resets int
}

func (m *countingMetric) Name() string      { return "count" }
func (m *countingMetric) Observe(loop.Tick) { m.n++ }
func (m *countingMetric) Value() float64    { return float64(m.n) }
func (m *countingMetric) Reset()            { m.n = 0; m.resets++ }

var _ = Describe("Loop", func() {
	var (
		mock   *clock.Mock
		source *scriptedSource
		act    *recordingActuator
		step   controllers.Controller
	)

	BeforeEach(func() {
		mock = clock.NewMock()
		source = &scriptedSource{samples: []velocity.Sample{velocity.Known(0)}}
		act = &recordingActuator{}
		var err error
		step, err = controllers.NewStep(controllers.StepConfig{StepSize: 0.1, MinSpeed: 0.1, MaxSpeed: 3}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Step", func() {
		It("feeds the previous throttle, measured and target speed to the controller", func() {
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithClock(mock))

			for i := 0; i < 3; i++ {
				tick, err := l.Step()
				Expect(err).NotTo(HaveOccurred())
				Expect(tick.N).To(Equal(i))
				Expect(tick.Target).To(Equal(velocity.Known(1.0)))
				mock.Add(50 * time.Millisecond)
			}
			Expect(act.applied).To(HaveLen(3))
			Expect(act.applied[2]).To(BeNumerically("~", 0.3, 1e-9))
			Expect(l.Throttle()).To(BeNumerically("~", 0.3, 1e-9))
		})

		It("keeps going when the source has no fresh data", func() {
			source.samples = []velocity.Sample{velocity.Unknown, velocity.Known(0.5)}
			source.errs = []error{errors.New("no telemetry"), nil}
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithClock(mock))

			tick, err := l.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(tick.Fresh).To(BeFalse())
			Expect(tick.Throttle).To(Equal(0.0))

			tick, err = l.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(tick.Fresh).To(BeTrue())
			Expect(tick.Measured).To(Equal(velocity.Known(0.5)))
		})

		It("reports actuator failures", func() {
			act.failAt = 2
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithClock(mock))
			_, err := l.Step()
			Expect(err).NotTo(HaveOccurred())
			_, err = l.Step()
			Expect(err).To(MatchError(ContainSubstring("driver fault")))
		})

		It("measures elapsed time from the first tick", func() {
			mock.Add(time.Hour)
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithClock(mock))
			tick, _ := l.Step()
			Expect(tick.Elapsed).To(BeZero())
			mock.Add(250 * time.Millisecond)
			tick, _ = l.Step()
			Expect(tick.Elapsed).To(Equal(250 * time.Millisecond))
		})

		It("drives metrics and observers", func() {
			m := &countingMetric{}
			rec := loop.NewRecorder()
			feed := loop.NewFeed(1)
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithClock(mock))
			l.AddMetric(m)
			l.AddObserver(rec)
			l.AddObserver(feed)

			for i := 0; i < 4; i++ {
				_, err := l.Step()
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(m.resets).To(Equal(1))
			Expect(l.Metrics()).To(HaveKeyWithValue("count", 4.0))
			Expect(rec.Ticks()).To(HaveLen(4))
			Expect(feed.C()).To(HaveLen(1))
			Expect((<-feed.C()).N).To(Equal(0))
		})
	})

	Describe("Run", func() {
		It("stops after the configured duration and zeroes the throttle", func() {
			l := loop.New(source, step, act, loop.Constant(1.0),
				loop.WithPeriod(time.Millisecond), loop.WithDuration(20*time.Millisecond))

			Expect(l.Run(context.Background())).To(Succeed())
			Expect(len(act.applied)).To(BeNumerically(">", 2))
			Expect(act.applied[len(act.applied)-1]).To(Equal(0.0))
		})

		It("returns the context error when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			l := loop.New(source, step, act, loop.Constant(1.0), loop.WithPeriod(time.Hour))

			Expect(l.Run(ctx)).To(MatchError(context.Canceled))
			Expect(act.applied).To(Equal([]float64{0.1, 0}))
		})
	})

	Describe("targets", func() {
		It("follows a waypoint profile", func() {
			p := loop.NewProfile([]loop.Waypoint{
				{At: 2 * time.Second, Speed: -0.5},
				{At: 0, Speed: 1},
			})
			Expect(p.Target(0)).To(Equal(velocity.Known(1)))
			Expect(p.Target(1999 * time.Millisecond)).To(Equal(velocity.Known(1)))
			Expect(p.Target(3 * time.Second)).To(Equal(velocity.Known(-0.5)))
			Expect(p.End()).To(Equal(2 * time.Second))
		})

		It("is zero before the first waypoint", func() {
			p := loop.NewProfile([]loop.Waypoint{{At: time.Second, Speed: 1}})
			Expect(p.Target(0)).To(Equal(velocity.Known(0)))
		})

		It("clamps manual targets", func() {
			m := loop.NewManual(0, 2)
			Expect(m.Nudge(1.5)).To(Equal(1.5))
			Expect(m.Nudge(1.5)).To(Equal(2.0))
			m.Set(-9)
			Expect(m.Target(0)).To(Equal(velocity.Known(-2)))
		})
	})
})
