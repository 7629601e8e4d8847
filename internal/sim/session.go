// Package sim drives a satellite simulation step by step.
//
// A [Session] owns the state vector, simulation time, controller memory,
// configuration and solver. It moves between three states:
//
//	uninitialized --Initialize--> ready --Step/SetParameter--> ready
//	ready --solver stops--> failed --Reset--> ready
//
// Sessions are independent and not safe for concurrent use.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/san-kum/satsim/internal/config"
	"github.com/san-kum/satsim/internal/control"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/integrators"
	"github.com/san-kum/satsim/internal/models"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

type Status int

const (
	StatusUninitialized Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Observer is notified after every successful step.
type Observer interface {
	OnStep(r Report)
}

// Recorder receives step and failure events, typically a Prometheus
// collector.
type Recorder interface {
	RecordStep(radius, attitudeError float64, rejected int, elapsed time.Duration)
	RecordFailure()
}

type Session struct {
	cfg    *config.Config
	logger log.Logger

	ctrl   *control.Attitude
	sat    *models.Satellite
	solver integrators.Solver

	status  Status
	err     error
	state   dynamo.State
	t       float64
	steps   int
	last    Report
	metrics []dynamo.Metric

	observers []Observer
	recorder  Recorder
}

// New builds an uninitialized session from cfg. The session keeps its own
// copy of cfg.
func New(cfg *config.Config, logger log.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	if logger == nil {
		logger = log.NewNopLogger()
	}

	desired, err := cfg.Desired()
	if err != nil {
		return nil, err
	}
	inertia, err := cfg.InertiaTensor()
	if err != nil {
		return nil, err
	}
	mode, err := control.ParseIntegralMode(cfg.IntegralMode)
	if err != nil {
		return nil, err
	}

	ctrl := control.NewAttitude(cfg.Gains.Kp, cfg.Gains.Ki, cfg.Gains.Kd, cfg.MaxTorque)
	ctrl.Mode = mode
	ctrl.Interval = cfg.ControlInterval
	if err := ctrl.SetDesired(desired); err != nil {
		return nil, err
	}

	sat := models.NewSatellite(ctrl)
	sat.Props = cfg.Properties()
	sat.Inertia = inertia
	sat.Perturb = models.Perturbations{
		Drag:            cfg.Perturbations.Drag,
		Solar:           cfg.Perturbations.Solar,
		GravityGradient: cfg.Perturbations.GravityGradient,
	}

	return &Session{
		cfg:    cfg,
		logger: log.With(logger, "component", "session"),
		ctrl:   ctrl,
		sat:    sat,
		status: StatusUninitialized,
	}, nil
}

func (s *Session) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Session) AddObserver(o Observer)        { s.observers = append(s.observers, o) }
func (s *Session) SetRecorder(r Recorder)        { s.recorder = r }
func (s *Session) Status() Status                { return s.status }
func (s *Session) Err() error                    { return s.err }
func (s *Session) Time() float64                 { return s.t }
func (s *Session) Steps() int                    { return s.steps }
func (s *Session) Last() Report                  { return s.last }
func (s *Session) Satellite() *models.Satellite  { return s.sat }
func (s *Session) Controller() *control.Attitude { return s.ctrl }

// State returns a copy of the current state vector.
func (s *Session) State() dynamo.State { return s.state.Clone() }

// Config returns a copy of the live configuration, including parameter
// changes made since New.
func (s *Session) Config() *config.Config { return s.cfg.Clone() }

// Stats returns the solver counters since the last initialize.
func (s *Session) Stats() integrators.Stats {
	if s.solver == nil {
		return integrators.Stats{}
	}
	return s.solver.Stats()
}

// Metrics returns the current value of every registered metric.
func (s *Session) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Session) newSolver(t0 float64, x0 dynamo.State) (integrators.Solver, error) {
	ic := s.cfg.Integrator
	opts := integrators.Options{
		RTol:      ic.RTol,
		ATol:      ic.ATol,
		MaxStep:   ic.MaxStep,
		MinStep:   ic.MinStep,
		FirstStep: ic.FirstStep,
		TBound:    ic.TBound,
	}

	var (
		solver integrators.Solver
		err    error
	)
	switch ic.Name {
	case config.IntegratorRK4:
		solver, err = integrators.NewRK4(s.sat, t0, x0, opts)
	default:
		solver, err = integrators.NewRK45(s.sat, t0, x0, opts)
	}
	if err != nil {
		return nil, err
	}

	solver.OnAccept(func(_, h float64, y dynamo.State) {
		s.ctrl.Accumulate(y.Attitude(), h)
	})
	return solver, nil
}

// Initialize builds the initial state from the configuration with overrides
// applied, binds a fresh solver and clears the controller memory. Invalid
// overrides leave the session untouched.
func (s *Session) Initialize(overrides map[string]any) error {
	in, err := config.ParseOverrides(overrides)
	if err != nil {
		level.Warn(s.logger).Log("msg", "initialize rejected", "err", err)
		return err
	}

	cfg := s.cfg.Clone()
	cfg.Initial = cfg.Initial.Merge(in)
	x0, err := cfg.GetInitState()
	if err != nil {
		level.Warn(s.logger).Log("msg", "initialize rejected", "err", err)
		return err
	}

	// The solver evaluates the dynamics on construction, which feeds the
	// nominal-mode integral, so it is built against a cleared controller
	// and the old memory comes back if construction fails.
	saved := *s.ctrl
	s.ctrl.Reset()
	solver, err := s.newSolver(0, x0)
	if err != nil {
		*s.ctrl = saved
		level.Error(s.logger).Log("msg", "solver construction failed", "err", err)
		return err
	}

	s.solver = solver
	s.state = x0
	s.t = 0
	s.steps = 0
	s.err = nil
	s.status = StatusReady
	s.last = s.report(0)
	for _, m := range s.metrics {
		m.Reset()
	}

	level.Info(s.logger).Log(
		"msg", "initialized",
		"frame", s.cfg.Frame,
		"integrator", s.cfg.Integrator.Name,
		"radius", s.last.Radius,
		"overrides", len(overrides),
	)
	return nil
}

// Reset re-runs Initialize without overrides. Parameter changes made with
// SetParameter are kept.
func (s *Session) Reset() error {
	prev := s.status
	if err := s.Initialize(nil); err != nil {
		return err
	}
	level.Info(s.logger).Log("msg", "reset", "from", prev)
	return nil
}

// Step advances the session by dt seconds and returns the report for the
// new state. A solver that stops, or a degenerate attitude, leaves the
// session failed until Reset.
func (s *Session) Step(dt float64) (Report, error) {
	switch s.status {
	case StatusUninitialized:
		return Report{}, fmt.Errorf("%w: not initialized", dynamo.ErrNotReady)
	case StatusFailed:
		return Report{}, fmt.Errorf("%w: failed: %w", dynamo.ErrNotReady, s.err)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Report{}, fmt.Errorf("%w: dt=%g must be positive", dynamo.ErrInvalidValue, dt)
	}

	start := time.Now()
	before := s.solver.Stats()

	if err := s.solver.AdvanceTo(s.t + dt); err != nil {
		return Report{}, s.fail(err)
	}

	y := s.solver.State()
	q, err := quat.Normalize(y.Attitude())
	if err != nil {
		return Report{}, s.fail(fmt.Errorf("%w: renormalizing at t=%g", err, s.solver.Time()))
	}
	y = y.WithAttitude(q)
	s.solver.Project(y)

	s.state = y
	s.t = s.solver.Time()
	s.steps++
	elapsed := time.Since(start)

	rep := s.report(elapsed)
	s.last = rep

	sample := dynamo.Sample{
		Time:          s.t,
		State:         s.state,
		Control:       dynamo.Control{rep.Torque.X, rep.Torque.Y, rep.Torque.Z},
		AttitudeError: rep.AttitudeError,
	}
	for _, m := range s.metrics {
		m.Observe(sample)
	}
	for _, o := range s.observers {
		o.OnStep(rep)
	}

	rejected := s.solver.Stats().Rejected - before.Rejected
	if s.recorder != nil {
		s.recorder.RecordStep(rep.Radius, rep.AttitudeError, rejected, elapsed)
	}

	level.Debug(s.logger).Log(
		"msg", "step",
		"t", s.t,
		"radius", rep.Radius,
		"att_err", rep.AttitudeError,
		"substeps", s.solver.Stats().Accepted-before.Accepted,
		"rejected", rejected,
	)
	return rep, nil
}

func (s *Session) report(elapsed time.Duration) Report {
	rep := NewReport(s.t, s.state, s.cfg.PolarAxis())
	rep.AttitudeError = s.ctrl.ErrorAngle(rep.Quaternion)
	rep.Torque, _ = s.ctrl.LastTorque()
	rep.StepTime = elapsed
	return rep
}

func (s *Session) fail(err error) error {
	s.status = StatusFailed
	s.err = err
	if s.recorder != nil {
		s.recorder.RecordFailure()
	}

	var simErr *dynamo.SimulationError
	if errors.As(err, &simErr) {
		level.Error(s.logger).Log("msg", "step failed", "t", simErr.Time, "solver_step", simErr.Step, "err", simErr.Wrapped)
	} else {
		level.Error(s.logger).Log("msg", "step failed", "t", s.t, "err", err)
	}
	return err
}

// SetParameter updates a controller or vehicle parameter. The value is
// validated before anything changes; unknown names are rejected.
func (s *Session) SetParameter(name string, value any) error {
	err := s.setParameter(name, value)
	if err != nil {
		level.Warn(s.logger).Log("msg", "parameter rejected", "name", name, "err", err)
		return err
	}
	level.Info(s.logger).Log("msg", "parameter set", "name", name, "value", fmt.Sprint(value))
	return nil
}

func (s *Session) setParameter(name string, value any) error {
	switch name {
	case "kp", "ki", "kd", "max_torque":
		f, err := config.ToFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := s.ctrl.SetParam(name, f); err != nil {
			return err
		}
		switch name {
		case "kp":
			s.cfg.Gains.Kp = f
		case "ki":
			s.cfg.Gains.Ki = f
		case "kd":
			s.cfg.Gains.Kd = f
		default:
			s.cfg.MaxTorque = f
		}

	case "q_desired", "desired_attitude":
		v, err := config.ToVector(value, 4)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := s.ctrl.SetDesired(quat.FromSlice(v)); err != nil {
			return err
		}
		s.cfg.DesiredAttitude = s.ctrl.Desired().Slice()

	case "mass", "area", "c_d", "c_r":
		f, err := config.ToFloat(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := s.sat.SetParam(name, f); err != nil {
			return err
		}
		s.cfg.Satellite = config.SatelliteConfig{
			Mass: s.sat.Props.Mass,
			Area: s.sat.Props.Area,
			Cd:   s.sat.Props.Cd,
			Cr:   s.sat.Props.Cr,
		}

	case "integral_mode":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: integral_mode wants a string, got %T", dynamo.ErrInvalidValue, value)
		}
		mode, err := control.ParseIntegralMode(str)
		if err != nil {
			return err
		}
		s.ctrl.Mode = mode
		s.cfg.IntegralMode = mode.String()

	default:
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return nil
}

// Run steps the session every dt seconds until duration has elapsed, fn
// returns false, or ctx is cancelled.
func (s *Session) Run(ctx context.Context, duration, dt float64, fn func(Report) bool) error {
	end := s.t + duration
	for s.t < end-1e-9 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rep, err := s.Step(math.Min(dt, end-s.t))
		if err != nil {
			return err
		}
		if fn != nil && !fn(rep) {
			return nil
		}
	}
	return nil
}

// OrbitalPeriod returns the two-body period of a circular orbit at the
// current radius.
func (s *Session) OrbitalPeriod() float64 {
	return s.sat.Env.Period(r3.Norm(s.state.Position()))
}

// Energy returns the specific orbital energy of the current state, J/kg.
func (s *Session) Energy() float64 { return s.sat.Energy(s.state) }
