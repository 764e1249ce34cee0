package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/griddae/internal/analysis"
	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/diff"
	"github.com/san-kum/griddae/internal/experiment"
	"github.com/san-kum/griddae/internal/export"
	"github.com/san-kum/griddae/internal/metrics"
	"github.com/san-kum/griddae/internal/sim"
	"github.com/san-kum/griddae/internal/storage"
	"github.com/san-kum/griddae/internal/tui"
	"github.com/san-kum/griddae/internal/units"
)

var (
	logLevel  string
	dataDir   string
	caseFile  string
	dt        float64
	duration  float64
	level     string
	save      bool
	live      bool
	frameRate int
	plotVars  []int
	sweep     string
	sweepUnit string
	bound     float64
	svgPath   string
	variable  int
	xAxis     int
	yAxis     int
	fdStep    float64
	relTol    float64
	params    bool
)

var (
	header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	faint  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "griddae",
		Short: "hierarchical DAE engine for power grid dynamics",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunWatch(experiment.NewRegistry(), nil)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warning", "log level (trace, debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".griddae", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a case",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCase,
	}
	addCaseFlags(runCmd)
	runCmd.Flags().Float64Var(&dt, "dt", 0, "override the step size")
	runCmd.Flags().Float64Var(&duration, "time", 0, "override the duration")
	runCmd.Flags().StringVar(&level, "check", "", "root check level (low_voltage, reversible, full, complete)")
	runCmd.Flags().BoolVar(&save, "save", false, "store the run under the data directory")
	runCmd.Flags().BoolVar(&live, "live", false, "draw the state vector while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate of the live view")
	runCmd.Flags().IntSliceVar(&plotVars, "plot", []int{0}, "state indices to plot")
	runCmd.Flags().StringVar(&sweep, "sweep", "", "run once per value: path:param=v1,v2,...")
	runCmd.Flags().StringVar(&sweepUnit, "unit", "", "unit of the sweep values")
	runCmd.Flags().Float64Var(&bound, "bound", 10, "state magnitude counted as unstable")

	offsetsCmd := &cobra.Command{
		Use:   "offsets [preset]",
		Short: "print the state layout of a case",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printOffsets,
	}
	addCaseFlags(offsetsCmd)
	offsetsCmd.Flags().BoolVar(&params, "params", false, "list component parameters")

	checkCmd := &cobra.Command{
		Use:   "check [preset]",
		Short: "compare analytic jacobians against finite differences",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkCase,
	}
	addCaseFlags(checkCmd)
	checkCmd.Flags().Float64Var(&fdStep, "step", diff.DefaultStep, "finite-difference step")
	checkCmd.Flags().Float64Var(&relTol, "rtol", 1e-5, "relative tolerance")

	watchCmd := &cobra.Command{
		Use:   "watch [preset]",
		Short: "step a case interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && caseFile == "" {
				return tui.RunWatch(experiment.NewRegistry(), nil)
			}
			c, err := loadCase(args)
			if err != nil {
				return err
			}
			return tui.RunWatch(experiment.NewRegistry(), c)
		},
	}
	addCaseFlags(watchCmd)

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list component types",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := experiment.NewRegistry()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCONTAINER\tDESCRIPTION")
			for _, name := range reg.ListModels() {
				f, _ := reg.Get(name)
				fmt.Fprintf(w, "%s\t%t\t%s\n", name, f.Container, f.Description)
			}
			return w.Flush()
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntSliceVar(&plotVars, "plot", []int{0}, "state indices to plot")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the first plotted state to an svg file")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "oscillation mode and spectrum of a stored state",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&variable, "var", 0, "state index")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of two stored states",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")

	rootCmd.AddCommand(runCmd, offsetsCmd, checkCmd, watchCmd, modelsCmd, presetsCmd, listCmd, plotCmd, exportCmd, analyzeCmd, phaseCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCaseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&caseFile, "case", "", "case file path (yaml)")
}

// loadCase resolves a case from --case or a preset name, defaulting to the
// generator preset.
func loadCase(args []string) (*config.Case, error) {
	if caseFile != "" {
		return config.Load(caseFile)
	}
	if len(args) == 0 {
		return config.DefaultCase(), nil
	}
	c := config.GetPreset(args[0])
	if c == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	return c, nil
}

func runCase(cmd *cobra.Command, args []string) error {
	c, err := loadCase(args)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dt") {
		c.Solver.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		c.Solver.Duration = duration
	}
	if cmd.Flags().Changed("check") {
		c.Solver.CheckLevel = level
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if sweep != "" {
		return runSweep(ctx, c)
	}

	exp := experiment.New(c, experiment.NewRegistry())
	if err := exp.Setup(); err != nil {
		return err
	}
	s := exp.GetSimulator()
	stats := metrics.NewSolver()
	s.SetRecorder(stats)
	drift := metrics.NewDrift()
	stability := metrics.NewStability(bound)
	s.AddObserver(drift)
	s.AddObserver(stability)

	if live {
		if err := s.Initialize(); err != nil {
			return err
		}
		r := tui.NewLiveRenderer(c.Name, os.Stdout, frameRate)
		r.SetLayout(s.Root(), s.Mode())
		s.AddObserver(r)
		r.Start()
		defer r.Stop()
	}

	logrus.WithField("case", c.Name).Info("running")
	start := time.Now()
	result, err := exp.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if result != nil && len(result.Times) > 1 {
			fmt.Fprintln(os.Stderr, warn.Render(fmt.Sprintf("stopped at t=%.3f", result.Times[len(result.Times)-1])))
		}
		return err
	}

	labels := tui.StateLabels(s.Root(), s.Mode())
	snap, err := stats.Snapshot()
	if err != nil {
		return err
	}
	printSummary(c, result, snap, elapsed, map[string]float64{
		drift.Name():     drift.Value(),
		stability.Name(): stability.Value(),
	})
	if t := stability.FirstExcursion(); !math.IsNaN(t) {
		fmt.Println(warn.Render(fmt.Sprintf("states left |x| <= %g at t=%.3f", bound, t)))
	}
	printTriggers(result.Triggers)
	plotStates(labels, result.Times, statesOf(result), plotVars)

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(c, labels, result, map[string]float64{
			drift.Name():      drift.Value(),
			stability.Name():  stability.Value(),
			"mean_iterations": snap.MeanIterations(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	return nil
}

func runSweep(ctx context.Context, c *config.Case) error {
	path, raw, ok := strings.Cut(sweep, "=")
	if !ok {
		return fmt.Errorf("sweep must look like path:param=v1,v2, got %q", sweep)
	}
	var values []float64
	for _, f := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return fmt.Errorf("sweep value %q: %w", f, err)
		}
		values = append(values, v)
	}
	u, err := units.Parse(sweepUnit)
	if err != nil {
		return err
	}

	results, err := experiment.New(c, experiment.NewRegistry()).Sweep(ctx, path, values, u)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(faint).
		Headers(path, "steps", "iterations", "triggers", "relayouts", "|x(end)|")
	for i, r := range results {
		final := r.States[len(r.States)-1]
		t.Row(
			strconv.FormatFloat(values[i], 'g', -1, 64),
			strconv.Itoa(r.StepsTaken),
			strconv.Itoa(r.Iterations),
			strconv.Itoa(len(r.Triggers)),
			strconv.Itoa(r.Relayouts),
			fmt.Sprintf("%.6g", final.Norm()),
		)
	}
	fmt.Println(header.Render(c.Name + " sweep"))
	fmt.Println(t.Render())
	return nil
}

func printSummary(c *config.Case, r *sim.Result, snap metrics.Snapshot, elapsed time.Duration, extra map[string]float64) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(faint).
		Headers("", "value")
	t.Row("steps", strconv.Itoa(r.StepsTaken))
	t.Row("newton iterations", strconv.Itoa(r.Iterations))
	t.Row("mean iterations", fmt.Sprintf("%.2f", snap.MeanIterations()))
	t.Row("residual evaluations", fmt.Sprintf("%.0f", snap.Residuals))
	t.Row("jacobian evaluations", fmt.Sprintf("%.0f", snap.Jacobians))
	t.Row("root triggers", strconv.Itoa(len(r.Triggers)))
	t.Row("relayouts", strconv.Itoa(r.Relayouts))
	for _, name := range []string{"drift", "stability"} {
		if v, ok := extra[name]; ok {
			t.Row(name, fmt.Sprintf("%.6g", v))
		}
	}
	t.Row("wall time", elapsed.Round(time.Microsecond).String())

	fmt.Println(header.Render(c.Name) + faint.Render(fmt.Sprintf("  dt=%g  t=%gs  check=%s", c.Solver.Dt, c.Solver.Duration, c.Solver.CheckLevel)))
	fmt.Println(t.Render())
}

func printTriggers(triggers []sim.Trigger) {
	if len(triggers) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOWNER\tMODE\tCHANGE")
	for _, tr := range triggers {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", tr.Time, tr.Name, tr.Mode, tr.Code)
	}
	w.Flush()
}

func statesOf(r *sim.Result) [][]float64 {
	out := make([][]float64, len(r.States))
	for i, x := range r.States {
		out[i] = x
	}
	return out
}

// plotStates draws one graph per index; rows shorter than the index (after a
// relayout) are skipped.
func plotStates(labels []string, times []float64, states [][]float64, indices []int) {
	if len(times) < 2 {
		return
	}
	for _, idx := range indices {
		var data []float64
		for _, x := range states {
			if idx >= 0 && idx < len(x) {
				data = append(data, x[idx])
			}
		}
		if len(data) < 2 {
			fmt.Println(faint.Render(fmt.Sprintf("no data for state %d", idx)))
			continue
		}
		caption := label(labels, idx)
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s over %.2fs", caption, times[len(times)-1]-times[0])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
}

func printOffsets(cmd *cobra.Command, args []string) error {
	c, err := loadCase(args)
	if err != nil {
		return err
	}
	exp := experiment.New(c, experiment.NewRegistry())
	if err := exp.Setup(); err != nil {
		return err
	}
	s := exp.GetSimulator()
	if err := s.Initialize(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tKIND\tALG\tDIFF\tROOT\tLOCAL a/d/r/j\tTOTAL a/d/r/j")
	for _, e := range dae.Describe(s.Root(), s.Mode()) {
		name := strings.Repeat("  ", e.Depth) + e.Name
		if !e.Enabled {
			name += " (disabled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", name, e.Kind,
			loc(e.AlgOffset), loc(e.DiffOffset), loc(e.RootOffset), sizes(e.Local), sizes(e.Total))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if params {
		fmt.Println()
		for _, e := range dae.Describe(s.Root(), s.Mode()) {
			if len(e.Params) > 0 {
				fmt.Printf("%s %s\n", header.Render(e.Name), faint.Render(paramList(e.Params)))
			}
		}
	}
	total := s.Sizes()
	fmt.Printf("\n%s %d states (%d algebraic, %d differential), %d roots, %d jacobian entries\n",
		s.Mode(), total.States(), total.AlgSize, total.DiffSize, total.Roots(), total.JacSize)
	return nil
}

// paramList formats parameters as sorted name=value pairs.
func paramList(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4g", k, p[k])
	}
	return strings.Join(parts, " ")
}

func loc(at int) string {
	if at == dae.NullLocation {
		return "-"
	}
	return strconv.Itoa(at)
}

func sizes(s dae.StateSizes) string {
	return fmt.Sprintf("%d/%d/%d/%d", s.AlgSize, s.DiffSize, s.Roots(), s.JacSize)
}

func checkCase(cmd *cobra.Command, args []string) error {
	c, err := loadCase(args)
	if err != nil {
		return err
	}
	exp := experiment.New(c, experiment.NewRegistry())
	if err := exp.Setup(); err != nil {
		return err
	}
	s := exp.GetSimulator()

	opts := diff.DefaultCheckOptions()
	opts.Strategy.Step = fdStep
	opts.RelTol = relTol
	mis, err := s.CheckJacobian(c.Solver.Dt, opts)
	if err != nil {
		return err
	}
	if len(mis) == 0 {
		fmt.Printf("%s: jacobian matches finite differences (%d states, %s)\n", c.Name, len(s.State()), s.Plan())
		return nil
	}
	labels := tui.StateLabels(s.Root(), s.Mode())
	for _, m := range mis {
		fmt.Printf("  %s / %s  %s\n", labels[m.Row], labels[m.Col], m)
	}
	return fmt.Errorf("%s: %d jacobian entries disagree", c.Name, len(mis))
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCASE\tTIME\tDURATION\tDT\tSTEPS\tTRIGGERS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%d\t%d\n",
			run.ID,
			run.Case,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Steps,
			len(run.Triggers),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("case: %s\n\n", meta.Case)
	plotStates(meta.Labels, times, states, plotVars)

	if svgPath == "" || len(plotVars) == 0 {
		return nil
	}
	idx := plotVars[0]
	tr := export.Trace{Label: label(meta.Labels, idx)}
	for i, x := range states {
		if idx >= 0 && idx < len(x) {
			tr.Times = append(tr.Times, times[i])
			tr.Values = append(tr.Values, x[idx])
		}
	}
	for _, trig := range meta.Triggers {
		tr.Triggers = append(tr.Triggers, trig.Time)
	}
	f, err := os.Create(svgPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.TraceSVG(f, tr, 800, 300, "#00ff88"); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgPath)
	return nil
}

func label(labels []string, idx int) string {
	if idx >= 0 && idx < len(labels) {
		return labels[idx]
	}
	return fmt.Sprintf("x%d", idx)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	data := analysis.Column(states, variable)
	if len(data) < 4 {
		return fmt.Errorf("not enough samples of state %d", variable)
	}

	name := label(meta.Labels, variable)
	mode := analysis.DominantMode(data, meta.Dt)
	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("state: %s\n", name)
	fmt.Printf("frequency: %.4f Hz\n", mode.Frequency)
	if mode.Swings >= 2 {
		fmt.Printf("damping ratio: %.4f (%d swings)\n", mode.Damping, mode.Swings)
	} else {
		fmt.Println("damping ratio: no oscillation")
	}

	freqs, amps := analysis.Spectrum(data, meta.Dt)
	if len(amps) < 2 {
		return nil
	}
	n := min(len(amps), 80)
	fmt.Println()
	fmt.Println(asciigraph.Plot(amps[1:n],
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("amplitude spectrum of %s, %.2f to %.2f Hz", name, freqs[1], freqs[n-1])),
	))
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	xs, ys := analysis.Column(states, xAxis), analysis.Column(states, yAxis)
	if len(xs) == 0 || len(ys) == 0 {
		return fmt.Errorf("run %s has no states %d and %d", meta.ID, xAxis, yAxis)
	}

	fmt.Printf("%s  %s vs %s\n\n", meta.ID, label(meta.Labels, yAxis), label(meta.Labels, xAxis))
	fmt.Print(analysis.PhasePortrait(xs, ys, 70, 24))
	return nil
}
