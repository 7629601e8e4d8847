package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/san-kum/satsim/internal/analysis"
	"github.com/san-kum/satsim/internal/config"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/logging"
	"github.com/san-kum/satsim/internal/metrics"
	"github.com/san-kum/satsim/internal/optim"
	"github.com/san-kum/satsim/internal/sim"
	"github.com/san-kum/satsim/internal/tle"
	"github.com/san-kum/satsim/internal/viz"
	"github.com/spf13/cobra"
)

var (
	configFile string
	preset     string
	logLevel   string
	logFormat  string

	dt         float64
	duration   float64
	integrator string
	frame      string
	kp         float64
	ki         float64
	kd         float64
	maxTorque  float64
	altitude   float64
	tleFile    string

	metricsAddr string
	plot        bool

	kpValues []float64
	kiValues []float64
	kdValues []float64
	metric   string
)

const historyCapacity = 2000

func main() {
	rootCmd := &cobra.Command{
		Use:           "satsim",
		Short:         "coupled orbit and attitude simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "start from a preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "logfmt", "log format (logfmt, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and print the final report",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	runCmd.Flags().BoolVar(&plot, "plot", true, "plot radius and attitude error")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with live terminal visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	scenarioFlags(liveCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over controller gains",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	scenarioFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&kpValues, "kp-values", []float64{0.05, 0.1, 0.2, 0.5}, "proportional gains to try")
	tuneCmd.Flags().Float64SliceVar(&kiValues, "ki-values", nil, "integral gains to try")
	tuneCmd.Flags().Float64SliceVar(&kdValues, "kd-values", []float64{0.5, 1, 2, 4}, "derivative gains to try")
	tuneCmd.Flags().StringVar(&metric, "metric", "attitude_error", "metric to minimize")

	compareCmd := &cobra.Command{
		Use:   "compare [integrator...]",
		Short: "compare integrators on the same scenario",
		RunE:  compareIntegrators,
	}
	scenarioFlags(compareCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, tuneCmd, compareCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&dt, "dt", config.DefaultDt, "reporting step, s")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration, s")
	f.StringVar(&integrator, "integrator", config.IntegratorRK45, "integrator (rk45, rk4)")
	f.StringVar(&frame, "frame", config.FrameInertial, "reference frame (inertial, ned)")
	f.Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	f.Float64Var(&ki, "ki", config.DefaultKi, "integral gain")
	f.Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
	f.Float64Var(&maxTorque, "max-torque", config.DefaultMaxTorque, "torque limit per axis, N·m")
	f.Float64Var(&altitude, "altitude", config.DefaultAltitude, "initial altitude, m")
	f.StringVar(&tleFile, "tle", "", "seed the orbit from a two-line element file")
}

// loadConfig layers the preset, the config file and the changed flags, in
// that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		if cfg = config.GetPreset(preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		var err error
		if cfg, err = config.LoadOver(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	f := cmd.Flags()
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("integrator") {
		cfg.Integrator.Name = integrator
	}
	if f.Changed("frame") {
		cfg.Frame = frame
	}
	if f.Changed("kp") {
		cfg.Gains.Kp = kp
	}
	if f.Changed("ki") {
		cfg.Gains.Ki = ki
	}
	if f.Changed("kd") {
		cfg.Gains.Kd = kd
	}
	if f.Changed("max-torque") {
		cfg.MaxTorque = maxTorque
	}
	if cmd.Flags().Changed("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") || cfg.Log.Format == "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initialOverrides turns --altitude and --tle into session overrides.
func initialOverrides(cmd *cobra.Command, cfg *config.Config) (map[string]any, error) {
	hasAlt := cmd.Flags().Changed("altitude")
	switch {
	case tleFile != "" && hasAlt:
		return nil, errors.New("--tle and --altitude are mutually exclusive")
	case hasAlt:
		return map[string]any{"altitude": altitude}, nil
	case tleFile == "":
		return nil, nil
	}

	if cfg.Frame != config.FrameInertial {
		return nil, fmt.Errorf("--tle needs the %s frame, got %s", config.FrameInertial, cfg.Frame)
	}
	f, err := os.Open(tleFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	el, err := tle.Read(f)
	if err != nil {
		return nil, err
	}
	return el.Overrides(el.Epoch)
}

func title(cfg *config.Config) string {
	if preset != "" {
		return preset
	}
	return "satsim " + cfg.Frame
}

func newSession(cmd *cobra.Command, quiet bool) (*sim.Session, *config.Config, map[string]any, log.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := logging.Nop()
	if !quiet {
		if logger, err = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	overrides, err := initialOverrides(cmd, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	s, err := sim.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return s, cfg, overrides, logger, nil
}

func serveMetrics(addr string, col *metrics.Collector, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", col.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server stopped", "err", err)
		}
	}()
	level.Info(logger).Log("msg", "serving metrics", "addr", addr)
	return srv
}

func runSimulation(cmd *cobra.Command, args []string) error {
	s, cfg, overrides, logger, err := newSession(cmd, false)
	if err != nil {
		return err
	}

	s.AddMetric(metrics.NewAttitudeError())
	s.AddMetric(metrics.NewControlEffort())
	s.AddMetric(metrics.NewEnergyDrift(s.Satellite()))
	s.AddMetric(metrics.NewRadiusDrift())
	s.AddMetric(metrics.NewPointing(0.01))
	hist := viz.NewHistory(historyCapacity)
	s.AddObserver(hist)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		col, err := metrics.NewCollector(reg)
		if err != nil {
			return err
		}
		s.SetRecorder(col)
		srv := serveMetrics(metricsAddr, col, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	if err := s.Initialize(overrides); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s for %.0fs (dt=%gs, %s)...\n", title(cfg), cfg.Duration, cfg.Dt, cfg.Integrator.Name)
	start := time.Now()
	runErr := s.Run(ctx, cfg.Duration, cfg.Dt, nil)
	elapsed := time.Since(start)

	if !plot {
		fmt.Println(viz.Summary(title(cfg), s.Last(), nil, s.Metrics()))
	} else {
		fmt.Println(viz.Summary(title(cfg), s.Last(), hist, s.Metrics()))
		printPeriods(s, hist, cfg.Dt)
	}

	st := s.Stats()
	fmt.Printf("completed %d steps in %v (%d sub-steps, %d rejected, %d evaluations)\n",
		s.Steps(), elapsed, st.Accepted, st.Rejected, st.Evaluations)
	return runErr
}

// printPeriods compares the dominant oscillation periods of the recorded
// series with the two-body period at the final radius.
func printPeriods(s *sim.Session, h *viz.History, dt float64) {
	fmt.Printf("two-body period: %.1fs\n", s.OrbitalPeriod())
	if p, ok := analysis.DominantPeriod(h.Radius.Values(), dt); ok {
		fmt.Printf("radius oscillation: %.1fs\n", p)
	}
	if p, ok := analysis.DominantPeriod(h.AttitudeError.Values(), dt); ok {
		fmt.Printf("attitude error oscillation: %.1fs\n", p)
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	// logs would tear the alternate screen
	s, cfg, overrides, _, err := newSession(cmd, true)
	if err != nil {
		return err
	}
	h := sim.NewHost(s)
	if msg := h.Initialize(overrides); msg != sim.StatusInitialized {
		return errors.New(msg)
	}
	return viz.RunLive(h, title(cfg), cfg.Dt)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	overrides, err := initialOverrides(cmd, cfg)
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, p := range []struct {
		name   string
		values []float64
	}{{"kp", kpValues}, {"ki", kiValues}, {"kd", kdValues}} {
		if len(p.values) > 0 {
			names = append(names, p.name)
			ranges = append(ranges, p.values)
		}
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s over %d points (%.0fs each)...\n\n", strings.Join(names, ","), len(g.Points()), cfg.Duration)
	best, trials, err := g.Run(ctx, optim.Search{
		Config:    cfg,
		Overrides: overrides,
		Duration:  cfg.Duration,
		Dt:        cfg.Dt,
		Metric:    metric,
		Logger:    logger,
	})
	if trials != nil {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
		for _, t := range trials {
			cols := make([]string, len(names))
			for i, n := range names {
				cols[i] = fmt.Sprintf("%g", t.Params[n])
			}
			val := fmt.Sprintf("%.6g", t.Value)
			if t.Err != nil {
				val = "error: " + t.Err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\n", strings.Join(cols, "\t"), val)
		}
		w.Flush()
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: %v (%s=%.6g)\n", best.Params, metric, best.Value)
	return nil
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	overrides, err := initialOverrides(cmd, cfg)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{config.IntegratorRK45, config.IntegratorRK4}
	}

	variants := make([]sim.Variant, len(args))
	for i, name := range args {
		c := cfg.Clone()
		c.Integrator.Name = name
		variants[i] = sim.Variant{Name: name, Config: c, Overrides: overrides}
	}

	start := time.Now()
	results, err := sim.Sweep(context.Background(), variants, cfg.Duration, cfg.Dt, func() []dynamo.Metric {
		return []dynamo.Metric{metrics.NewRadiusDrift(), metrics.NewAttitudeError()}
	}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("comparing integrators (dt=%gs, duration=%.0fs, %v total)\n\n", cfg.Dt, cfg.Duration, time.Since(start).Round(time.Millisecond))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tRADIUS_DRIFT_M\tATT_ERR_DEG\tSUBSTEPS\tREJECTED\tEVALS")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%.3e\t%.4f\t%d\t%d\t%d\n", r.Name,
			r.Metrics["radius_drift"], r.Final.AttitudeError*180/math.Pi,
			r.Stats.Accepted, r.Stats.Rejected, r.Stats.Evaluations)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tDURATION\tDT\tKP\tKD")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%gs\t%gs\t%g\t%g\n", name, cfg.Duration, cfg.Dt, cfg.Gains.Kp, cfg.Gains.Kd)
	}
	return w.Flush()
}
