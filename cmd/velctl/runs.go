package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/benbjohnson/clock"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/velctl/internal/analysis"
	"github.com/san-kum/velctl/internal/config"
	"github.com/san-kum/velctl/internal/experiment"
	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/optim"
	"github.com/san-kum/velctl/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTIME\tDURATION\tCTRL\tTICKS\tTRACKING")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%s\t%d\t%.4f\n",
			run.ID,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Controller,
			run.Ticks,
			run.Metrics["tracking_error"],
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []loop.Tick, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	ticks, err := st.LoadTicks(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(ticks) == 0 {
		return nil, nil, fmt.Errorf("run %s has no ticks", runID)
	}
	return meta, ticks, nil
}

// series extracts target, measured and throttle columns. Unknown speeds
// repeat the previous value so the plot has no gaps.
func series(ticks []loop.Tick) (targets, measured, throttle []float64) {
	targets = make([]float64, len(ticks))
	measured = make([]float64, len(ticks))
	throttle = make([]float64, len(ticks))
	for i, t := range ticks {
		targets[i] = t.Target.Value
		throttle[i] = t.Throttle
		switch {
		case t.Measured.OK:
			measured[i] = t.Measured.Value
		case i > 0:
			measured[i] = measured[i-1]
		}
	}
	return targets, measured, throttle
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mode: %s, controller: %s\n", meta.Mode, meta.Controller)
	fmt.Printf("ticks: %d\n\n", len(ticks))

	targets, measured, throttle := series(ticks)
	graph := asciigraph.PlotMany([][]float64{targets, measured},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Yellow, asciigraph.Green),
		asciigraph.Caption("target (yellow) / measured (green) m/s"),
	)
	fmt.Println(graph)
	fmt.Println()

	graph = asciigraph.Plot(throttle,
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("throttle"),
	)
	fmt.Println(graph)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return storage.ExportJSON(os.Stdout, *meta, ticks)
	case "csv":
		return exportCSV(ticks)
	case "svg":
		return storage.ExportSVG(os.Stdout, ticks, 800, 400)
	default:
		return fmt.Errorf("unknown format: %s (available: json, csv, svg)", format)
	}
}

func exportCSV(ticks []loop.Tick) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"time", "target", "measured", "throttle"}); err != nil {
		return err
	}
	for _, t := range ticks {
		measured := ""
		if t.Measured.OK {
			measured = strconv.FormatFloat(t.Measured.Value, 'f', 6, 64)
		}
		row := []string{
			strconv.FormatFloat(t.Elapsed.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(t.Target.Value, 'f', 6, 64),
			measured,
			strconv.FormatFloat(t.Throttle, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	band, _ := cmd.Flags().GetFloat64("band")
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("analysis: %s\n", meta.ID)
	fmt.Printf("controller: %s\n\n", meta.Controller)

	r, err := analysis.StepResponse(ticks, band)
	if err != nil {
		fmt.Printf("step response: %v\n", err)
	} else {
		fmt.Printf("step to %.3f m/s\n", r.Target)
		if r.Rose {
			fmt.Printf("  rise time (10-90%%): %v\n", r.RiseTime)
		} else {
			fmt.Println("  never reached 90% of the target")
		}
		if r.Settled {
			fmt.Printf("  settling time (±%.0f%%): %v\n", band*100, r.SettlingTime)
		} else {
			fmt.Println("  never settled")
		}
		fmt.Printf("  overshoot: %.1f%%\n", r.Overshoot*100)
		fmt.Printf("  steady state error: %.4f m/s\n", r.SteadyStateError)
	}

	rate := 1 / loop.DefaultPeriod.Seconds()
	if meta.Period > 0 {
		rate = 1 / meta.Period
	}
	_, measured, throttle := series(ticks)
	ps := analysis.PowerSpectrum(throttle)
	if len(ps) > 1 {
		fmt.Println()
		graph := asciigraph.Plot(ps[1:],
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("throttle spectrum"),
		)
		fmt.Println(graph)
	}
	freq, _ := analysis.DominantFrequency(throttle, rate)
	fmt.Printf("\ndominant throttle frequency: %.3f hz\n", freq)
	freq, _ = analysis.DominantFrequency(measured, rate)
	fmt.Printf("dominant speed frequency: %.3f hz\n", freq)
	return nil
}

func tuneController(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetStringArray("param")
	metric, _ := cmd.Flags().GetString("metric")
	workers, _ := cmd.Flags().GetInt("workers")
	if len(raw) == 0 {
		return fmt.Errorf("at least one --param is required (tunable: %s)", strings.Join(experiment.ParamNames(), ", "))
	}

	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	names := make([]string, len(raw))
	ranges := make([][]float64, len(raw))
	for i, arg := range raw {
		names[i], ranges[i], err = parseParam(arg)
		if err != nil {
			return err
		}
	}

	g := optim.NewGridSearch(names, ranges)
	g.Workers = workers
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := experiment.ApplyParams(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg, experiment.WithClock(clock.NewMock()))
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Printf("searching %s over %v...\n", metric, names)
	evals, err := g.Evaluate(ctx, build, metric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(metric))
	for _, ev := range evals {
		cols := make([]string, len(names))
		for i, n := range names {
			cols[i] = strconv.FormatFloat(ev.Params[n], 'g', 4, 64)
		}
		val := "error: " + fmt.Sprint(ev.Err)
		if ev.Err == nil {
			val = strconv.FormatFloat(ev.Value, 'f', 6, 64)
		}
		fmt.Fprintln(w, strings.Join(cols, "\t")+"\t"+val)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best, val, err := optim.Best(evals)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("\nbest %s = %.6f with", metric, val)
	for _, k := range keys {
		fmt.Printf(" %s=%g", k, best[k])
	}
	fmt.Println()
	return nil
}

// parseParam reads "name=lo:hi:n" or "name=v1,v2,...".
func parseParam(arg string) (string, []float64, error) {
	name, values, ok := strings.Cut(arg, "=")
	if !ok || name == "" || values == "" {
		return "", nil, fmt.Errorf("bad --param %q, want name=lo:hi:n or name=v1,v2", arg)
	}
	if parts := strings.Split(values, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 1 {
			return "", nil, fmt.Errorf("bad range in --param %q", arg)
		}
		return name, optim.Linspace(lo, hi, n), nil
	}
	var out []float64
	for _, s := range strings.Split(values, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad value %q in --param %q", s, arg)
		}
		out = append(out, v)
	}
	return name, out, nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONTROLLER\tMAX SPEED\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%.2f m/s\t%s\n", name, cfg.Controller.Kind, cfg.Mapper.MaxSpeed, config.Presets[name].Description)
	}
	return w.Flush()
}
