package integrators

import (
	"errors"
	"math"

	"github.com/san-kum/satsim/internal/dynamo"
)

// RK4 is a classical fixed-step Runge-Kutta solver stepping at
// Options.MaxStep. It has no error control and never rejects a step.
type RK4 struct {
	base
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4(dyn dynamo.System, t0 float64, y0 dynamo.State, opts Options) (*RK4, error) {
	b, err := newBase(dyn, t0, y0, opts)
	if err != nil {
		return nil, err
	}
	if math.IsInf(b.opts.MaxStep, 1) {
		return nil, errors.New("integrators: rk4 needs a finite max step")
	}
	r := &RK4{base: b}
	r.h = b.opts.MaxStep
	r.scratch = make(dynamo.State, len(y0))
	return r, nil
}

func (r *RK4) Step() error { return r.stepTo(math.Inf(1)) }

func (r *RK4) AdvanceTo(target float64) error { return advance(r, target) }

func (r *RK4) stepTo(limit float64) error {
	if err := r.running(); err != nil {
		return err
	}
	stop := r.nextStop(limit)
	dt := r.h
	tNew := r.t + dt
	if tNew >= stop {
		tNew = stop
		dt = stop - r.t
	}

	x, t, n := r.y, r.t, len(r.y)
	var err error

	if r.k1, err = r.eval(x, t); err != nil {
		return r.fail(err)
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	if r.k2, err = r.eval(r.scratch, t+dt*0.5); err != nil {
		return r.fail(err)
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	if r.k3, err = r.eval(r.scratch, t+dt*0.5); err != nil {
		return r.fail(err)
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	if r.k4, err = r.eval(r.scratch, t+dt); err != nil {
		return r.fail(err)
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	if !result.IsValid() {
		return r.fail(dynamo.ErrInvalidState)
	}
	r.accept(tNew, dt, result)
	return nil
}
