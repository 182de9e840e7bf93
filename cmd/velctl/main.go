package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/velctl/internal/config"
	"github.com/san-kum/velctl/internal/logging"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string

	port       string
	controller string
	kp         float64
	ki         float64
	kd         float64
	stepSize   float64
	target     float64
	rateHz     float64
	duration   time.Duration
	integrator string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "velctl",
		Short:         "closed-loop wheel speed control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".velctl", "data directory")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a named preset")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "control the vehicle through the serial encoder",
		Args:  cobra.NoArgs,
		RunE:  runHardware,
	}
	runCmd.Flags().StringVar(&port, "port", "", "serial port")
	runCmd.Flags().Bool("dashboard", false, "show the live dashboard")
	addLoopFlags(runCmd)

	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "run the loop against the simulated drivetrain",
		Args:  cobra.NoArgs,
		RunE:  runSim,
	}
	simCmd.Flags().Bool("realtime", false, "run in wall time instead of as fast as possible")
	simCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4)")
	addLoopFlags(simCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "drive the simulated vehicle from the dashboard",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4)")
	addLoopFlags(liveCmd)

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "reset the encoder and print its reports",
		Args:  cobra.NoArgs,
		RunE:  runProbe,
	}
	probeCmd.Flags().StringVar(&port, "port", "", "serial port")
	probeCmd.Flags().Duration("period", 500*time.Millisecond, "report period")
	probeCmd.Flags().DurationVar(&duration, "time", 0, "stop after this long (0 waits for ctrl+c)")

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "list serial ports",
		Args:  cobra.NoArgs,
		RunE:  listPorts,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json, csv or svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().String("format", "json", "output format (json, csv, svg)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "step response and oscillation analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64("band", 0.05, "settling band as a fraction of the target")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search controller parameters in simulation",
		Args:  cobra.NoArgs,
		RunE:  tuneController,
	}
	tuneCmd.Flags().StringArray("param", nil, "name=lo:hi:n or name=v1,v2,... (repeatable)")
	tuneCmd.Flags().String("metric", "tracking_error", "metric to minimize")
	tuneCmd.Flags().Int("workers", 0, "concurrent runs (0 uses all cores)")
	addLoopFlags(tuneCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, simCmd, liveCmd, probeCmd, portsCmd, listCmd, plotCmd, exportCmd, analyzeCmd, tuneCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addLoopFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&controller, "controller", "", "controller (open, pid, step)")
	f.Float64Var(&kp, "kp", 0, "pid kp")
	f.Float64Var(&ki, "ki", 0, "pid ki")
	f.Float64Var(&kd, "kd", 0, "pid kd")
	f.Float64Var(&stepSize, "step", 0, "step controller increment")
	f.Float64Var(&target, "target", 0, "target speed in m/s")
	f.Float64Var(&rateHz, "rate", 0, "loop rate in Hz")
	f.DurationVar(&duration, "time", 0, "run duration")
}

// loadConfig layers defaults or a preset, the config file, VELCTL_*
// variables and finally flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		if err := cfg.Merge(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = port
	}
	if flags.Changed("controller") {
		cfg.Controller.Kind = controller
	}
	if flags.Changed("kp") {
		cfg.Controller.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Controller.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.Controller.Kd = kd
	}
	if flags.Changed("step") {
		cfg.Controller.StepSize = stepSize
	}
	if flags.Changed("target") {
		cfg.Loop.Target = target
		cfg.Loop.Profile = nil
	}
	if flags.Changed("rate") {
		cfg.Loop.RateHz = rateHz
	}
	if flags.Changed("time") {
		cfg.Loop.Duration = duration
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to stderr, or to a file in the data directory while a
// dashboard owns the terminal.
func newLogger(toFile bool) (*zap.SugaredLogger, error) {
	if !toFile {
		return logging.New("velctl", logLevel)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	return logging.New("velctl", logLevel, dataDir+"/velctl.log")
}
