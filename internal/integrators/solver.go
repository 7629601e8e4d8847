// Package integrators advances a [dynamo.System] through time.
//
// A [Solver] owns the current time, state and step-size estimate. [RK45] is
// the adaptive Dormand-Prince 5(4) pair; [RK4] is a fixed-step reference.
package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/satsim/internal/dynamo"
)

type Status int

const (
	StatusRunning Status = iota
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Options configure a solver. Zero values select the defaults.
type Options struct {
	RTol      float64
	ATol      float64
	MaxStep   float64
	MinStep   float64
	FirstStep float64 // 0 selects the step automatically
	TBound    float64
}

func DefaultOptions() Options {
	return Options{
		RTol:    1e-3,
		ATol:    1e-6,
		MaxStep: 0.2,
		MinStep: 1e-10,
		TBound:  1e5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RTol <= 0 {
		o.RTol = d.RTol
	}
	if o.ATol <= 0 {
		o.ATol = d.ATol
	}
	if o.MaxStep <= 0 {
		o.MaxStep = math.Inf(1)
	}
	if o.MinStep <= 0 {
		o.MinStep = d.MinStep
	}
	if o.TBound == 0 {
		o.TBound = d.TBound
	}
	return o
}

// Stats counts solver work.
type Stats struct {
	Accepted    int
	Rejected    int
	Evaluations int
}

// AcceptFunc is called after every accepted step of size h ending at (t, y).
type AcceptFunc func(t, h float64, y dynamo.State)

type Solver interface {
	Time() float64
	State() dynamo.State
	Status() Status
	Err() error
	StepSize() float64
	Stats() Stats

	// Step takes one accepted step, or fails.
	Step() error
	// AdvanceTo steps until Time() reaches target; the final step is
	// shortened to land on it.
	AdvanceTo(target float64) error
	// Project replaces the current state without re-evaluating the
	// derivative, for small corrections such as quaternion renormalization.
	Project(y dynamo.State)
	OnAccept(fn AcceptFunc)
}

// stepper is the per-method part of a solver.
type stepper interface {
	Solver
	stepTo(limit float64) error
}

func advance(s stepper, target float64) error {
	for s.Status() == StatusRunning && s.Time() < target {
		if err := s.stepTo(target); err != nil {
			return err
		}
	}
	switch s.Status() {
	case StatusRunning:
		return nil
	case StatusFinished:
		if s.Time() < target {
			return fmt.Errorf("%w: stopped at t=%g before target %g", dynamo.ErrTimeBound, s.Time(), target)
		}
		return fmt.Errorf("%w: t=%g", dynamo.ErrTimeBound, s.Time())
	default:
		return s.Err()
	}
}

// base holds the bookkeeping shared by every solver.
type base struct {
	dyn    dynamo.System
	opts   Options
	t      float64
	y      dynamo.State
	h      float64
	status Status
	err    error
	stats  Stats
	hooks  []AcceptFunc
}

func newBase(dyn dynamo.System, t0 float64, y0 dynamo.State, opts Options) (base, error) {
	if len(y0) != dyn.StateDim() {
		return base{}, fmt.Errorf("%w: state has %d components, system wants %d", dynamo.ErrDimensionMismatch, len(y0), dyn.StateDim())
	}
	opts = opts.withDefaults()
	if opts.TBound <= t0 {
		return base{}, fmt.Errorf("integrators: t_bound %g must exceed t0 %g", opts.TBound, t0)
	}
	return base{dyn: dyn, opts: opts, t: t0, y: y0.Clone(), status: StatusRunning}, nil
}

func (b *base) Time() float64          { return b.t }
func (b *base) State() dynamo.State    { return b.y.Clone() }
func (b *base) Status() Status         { return b.status }
func (b *base) Err() error             { return b.err }
func (b *base) StepSize() float64      { return b.h }
func (b *base) Stats() Stats           { return b.stats }
func (b *base) OnAccept(fn AcceptFunc) { b.hooks = append(b.hooks, fn) }

func (b *base) Project(y dynamo.State) {
	copy(b.y, y)
}

func (b *base) eval(y dynamo.State, t float64) (dynamo.State, error) {
	b.stats.Evaluations++
	return b.dyn.Derive(y, t)
}

func (b *base) fail(err error) error {
	b.status = StatusFailed
	b.err = &dynamo.SimulationError{Step: b.stats.Accepted, Time: b.t, State: b.y.Clone(), Wrapped: err}
	return b.err
}

func (b *base) accept(tNew, h float64, yNew dynamo.State) {
	b.t = tNew
	b.y = yNew
	b.stats.Accepted++
	if b.t >= b.opts.TBound {
		b.status = StatusFinished
	}
	for _, fn := range b.hooks {
		fn(b.t, h, b.y)
	}
}

// running rejects a step request on a solver that has stopped.
func (b *base) running() error {
	switch b.status {
	case StatusRunning:
		return nil
	case StatusFinished:
		return fmt.Errorf("%w: t=%g", dynamo.ErrTimeBound, b.t)
	default:
		return b.err
	}
}

// nextStop returns the time the next step may not pass.
func (b *base) nextStop(limit float64) float64 {
	return math.Min(limit, b.opts.TBound)
}
