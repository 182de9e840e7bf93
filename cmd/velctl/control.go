package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/velctl/internal/config"
	"github.com/san-kum/velctl/internal/controllers"
	"github.com/san-kum/velctl/internal/encoder"
	"github.com/san-kum/velctl/internal/experiment"
	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/metrics"
	"github.com/san-kum/velctl/internal/serialport"
	"github.com/san-kum/velctl/internal/storage"
	"github.com/san-kum/velctl/internal/tui"
	"github.com/san-kum/velctl/internal/velocity"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runHardware(cmd *cobra.Command, args []string) error {
	dashboard, _ := cmd.Flags().GetBool("dashboard")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(dashboard)
	if err != nil {
		return err
	}
	defer logger.Sync()

	link, err := serialport.NewLink(cfg.Serial, logger.Named("serial"))
	if err != nil {
		return err
	}
	if err := link.Start(); err != nil {
		return err
	}
	reader, err := encoder.NewReader(link, cfg.Encoder, nil, logger.Named("encoder"))
	if err != nil {
		link.Stop()
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warnw("failed closing encoder", "error", err)
		}
	}()

	mapper, err := velocity.NewMapper(cfg.Mapper)
	if err != nil {
		return err
	}
	ctrl, err := controllers.New(cfg.Controller, mapper, logger)
	if err != nil {
		return err
	}

	var targets loop.TargetSource = cfg.Targets()
	var manual *loop.Manual
	if dashboard {
		manual = loop.NewManual(cfg.Loop.Target, cfg.Mapper.MaxSpeed)
		targets = manual
	}

	act := loop.NewLogActuator(logger.Named("actuator"))
	l := loop.New(reader, ctrl, act, targets,
		loop.WithRate(cfg.Loop.RateHz),
		loop.WithDuration(cfg.RunDuration()),
		loop.WithLogger(logger.Named("loop")),
	)
	for _, m := range metrics.Standard(cfg.Mapper.MinSpeed, experiment.StabilityBand*cfg.Mapper.MaxSpeed) {
		l.AddMetric(m)
	}
	rec := loop.NewRecorder()
	l.AddObserver(rec)

	ctx, stop := signalContext(cmd)
	defer stop()

	start := time.Now()
	if dashboard {
		feed := loop.NewFeed(64)
		l.AddObserver(feed)
		err = withDashboard(ctx, feed, tui.Options{Title: "velctl run " + cfg.Serial.Port, Manual: manual}, l.Run)
	} else {
		fmt.Printf("controlling via %s with %s controller (ctrl+c to stop)\n", cfg.Serial.Port, ctrl.Name())
		err = l.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := reader.Stats()
	fmt.Printf("telemetry: %d accepted, %d deferred, %d malformed, %d failed, %d empty\n",
		stats.Accepted, stats.Deferred, stats.Malformed, stats.Failed, stats.Empty)
	return saveRun("hardware", cfg, start, time.Since(start), rec.Ticks(), l.Metrics())
}

func runSim(cmd *cobra.Command, args []string) error {
	realtime, _ := cmd.Flags().GetBool("realtime")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := []experiment.Option{experiment.WithLogger(logger)}
	if !realtime {
		opts = append(opts, experiment.WithClock(clock.NewMock()))
	}
	exp, err := experiment.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Printf("simulating %v with %s controller...\n", cfg.RunDuration(), cfg.Controller.Kind)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("ticks: %d\n", len(result.Ticks))
	fmt.Printf("distance: %.3f m\n", result.Distance)
	printMetrics(result.Metrics)
	return saveRun("sim", cfg, start, cfg.RunDuration(), result.Ticks, result.Metrics)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var d time.Duration
	if cmd.Flags().Changed("time") {
		d = cfg.Loop.Duration
	}
	manual := loop.NewManual(cfg.Loop.Target, cfg.Mapper.MaxSpeed)
	feed := loop.NewFeed(64)
	exp, err := experiment.New(cfg,
		experiment.WithLogger(logger),
		experiment.WithTargets(manual),
		experiment.WithObserver(feed),
		experiment.WithDuration(d),
	)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	start := time.Now()
	var result *experiment.Result
	err = withDashboard(ctx, feed, tui.Options{Title: "velctl live " + cfg.Controller.Kind, Manual: manual},
		func(ctx context.Context) error {
			var runErr error
			result, runErr = exp.Run(ctx)
			return runErr
		})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if result == nil || len(result.Ticks) == 0 {
		return nil
	}
	printMetrics(result.Metrics)
	return saveRun("live", cfg, start, time.Since(start), result.Ticks, result.Metrics)
}

// withDashboard runs the loop and the dashboard side by side. Quitting the
// dashboard cancels the loop; the loop ending closes the feed.
func withDashboard(ctx context.Context, feed *loop.Feed, opts tui.Options, run func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer feed.Close()
		return run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		err := tui.Run(gctx, tui.New(feed.C(), opts))
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func runProbe(cmd *cobra.Command, args []string) error {
	period, _ := cmd.Flags().GetDuration("period")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	link, err := serialport.NewLink(cfg.Serial, logger.Named("serial"))
	if err != nil {
		return err
	}
	if err := link.Start(); err != nil {
		return fmt.Errorf("error opening serial port: %w", err)
	}
	defer link.Stop()
	fmt.Printf("connected to %s at %d baud\n", cfg.Serial.Port, cfg.Serial.BaudRate)

	ctx, stop := signalContext(cmd)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	fmt.Printf("reset the counter and started reporting every %v (ctrl+c to exit)\n", period)
	err = encoder.Probe(ctx, link, period, nil, func(line string, s encoder.Sample, err error) {
		switch {
		case errors.Is(err, serialport.ErrDecode):
			fmt.Printf("decoding error: %v, raw data ignored\n", err)
		case err != nil:
			fmt.Printf("received: %s (%v)\n", line, err)
		default:
			fmt.Printf("received: %s  ticks=%d  device=%dms  distance=%.3fm\n",
				line, s.Ticks, s.DeviceMillis, float64(s.Ticks)*cfg.Encoder.DistancePerTick)
		}
	})
	fmt.Println("stopped continuous reporting")
	return err
}

func listPorts(cmd *cobra.Command, args []string) error {
	ports, err := serialport.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func saveRun(mode string, cfg *config.Config, start time.Time, d time.Duration, ticks []loop.Tick, m map[string]float64) error {
	if len(ticks) == 0 {
		return nil
	}
	meta := storage.RunMetadata{
		Mode:       mode,
		Preset:     preset,
		Timestamp:  start,
		Controller: cfg.Controller.Kind,
		Period:     cfg.Period().Seconds(),
		Duration:   d.Seconds(),
		Metrics:    m,
	}
	if mode != "hardware" {
		meta.Integrator = cfg.Sim.Integrator
	}
	runID, err := storage.New(dataDir).Save(meta, ticks)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}
