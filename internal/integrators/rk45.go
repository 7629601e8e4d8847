package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/satsim/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// errorOrder is the order of the embedded error estimate.
const errorOrder = 4

// RK45 is an adaptive Dormand-Prince 5(4) solver. The fifth-order solution
// is propagated; the difference to the embedded fourth-order solution is
// the local error estimate. The last stage derivative is reused as the
// first stage of the next step.
type RK45 struct {
	base
	f dynamo.State

	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45(dyn dynamo.System, t0 float64, y0 dynamo.State, opts Options) (*RK45, error) {
	b, err := newBase(dyn, t0, y0, opts)
	if err != nil {
		return nil, err
	}
	r := &RK45{
		base:     b,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}

	r.f, err = r.eval(r.y, r.t)
	if err != nil {
		return nil, fmt.Errorf("integrators: initial derivative: %w", err)
	}

	if r.opts.FirstStep > 0 {
		r.h = r.opts.FirstStep
	} else if r.h, err = r.initialStep(); err != nil {
		return nil, fmt.Errorf("integrators: initial step: %w", err)
	}
	r.h = math.Min(r.h, math.Min(r.opts.MaxStep, r.opts.TBound-r.t))
	return r, nil
}

func rmsNorm(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// initialStep estimates a first step from the size of y0, f0 and a trial
// Euler step (Hairer, Nørsett & Wanner, II.4).
func (r *RK45) initialStep() (float64, error) {
	n := len(r.y)
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = r.opts.ATol + math.Abs(r.y[i])*r.opts.RTol
	}

	d0 := rmsNorm(floats.DivTo(make([]float64, n), r.y, scale))
	d1 := rmsNorm(floats.DivTo(make([]float64, n), r.f, scale))

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}

	y1 := floats.AddScaledTo(make([]float64, n), r.y, h0, r.f)
	f1, err := r.eval(y1, r.t+h0)
	if err != nil {
		return 0, err
	}

	diff := floats.SubTo(make([]float64, n), f1, r.f)
	d2 := rmsNorm(floats.DivTo(diff, diff, scale)) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1.0/(errorOrder+1))
	}
	return math.Min(100*h0, h1), nil
}

func (r *RK45) Step() error { return r.stepTo(math.Inf(1)) }

func (r *RK45) AdvanceTo(target float64) error { return advance(r, target) }

// stepTo takes one accepted step that does not pass limit. Rejected
// attempts shrink the step and retry from the same point; the accepted
// state is only replaced on success.
func (r *RK45) stepTo(limit float64) error {
	if err := r.running(); err != nil {
		return err
	}
	stop := r.nextStop(limit)
	minStep := math.Max(r.opts.MinStep, 10*math.Abs(math.Nextafter(r.t, math.Inf(1))-r.t))

	hAbs := math.Min(r.h, r.opts.MaxStep)
	if hAbs < minStep {
		hAbs = minStep
	}
	rejected := false

	for {
		if hAbs < minStep {
			return r.fail(fmt.Errorf("%w: h=%g < %g", dynamo.ErrStepTooSmall, hAbs, minStep))
		}

		h := hAbs
		tNew := r.t + h
		truncated := false
		if tNew >= stop {
			tNew = stop
			h = stop - r.t
			truncated = true
		}

		yNew, fNew, errNorm, err := r.attempt(h)
		if err != nil {
			return r.fail(err)
		}

		if errNorm < 1 {
			factor := r.maxScale
			if errNorm > 0 {
				factor = math.Min(r.maxScale, r.safety*math.Pow(errNorm, -1.0/(errorOrder+1)))
			}
			if rejected {
				factor = math.Min(1, factor)
			}
			next := h * factor
			if truncated && !rejected {
				next = math.Max(next, hAbs)
			}
			r.h = math.Min(next, r.opts.MaxStep)
			r.f = fNew
			r.accept(tNew, h, yNew)
			return nil
		}

		factor := r.minScale
		if !math.IsNaN(errNorm) {
			factor = math.Max(r.minScale, r.safety*math.Pow(errNorm, -1.0/(errorOrder+1)))
		}
		hAbs = h * factor
		rejected = true
		r.stats.Rejected++
	}
}

// attempt evaluates the seven Dormand-Prince stages for a step of size dt
// from the current point and returns the fifth-order solution, its
// derivative, and the scaled RMS error norm.
func (r *RK45) attempt(dt float64) (dynamo.State, dynamo.State, float64, error) {
	x, t := r.y, r.t
	n := len(x)

	k1 := r.f

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt*b21*k1[i]
	}
	k2, err := r.eval(x2, t+a2*dt)
	if err != nil {
		return nil, nil, 0, err
	}

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	k3, err := r.eval(x3, t+a3*dt)
	if err != nil {
		return nil, nil, 0, err
	}

	x4 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := r.eval(x4, t+a4*dt)
	if err != nil {
		return nil, nil, 0, err
	}

	x5 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := r.eval(x5, t+a5*dt)
	if err != nil {
		return nil, nil, 0, err
	}

	x6 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := r.eval(x6, t+dt)
	if err != nil {
		return nil, nil, 0, err
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	k7, err := r.eval(xNew, t+dt)
	if err != nil {
		return nil, nil, 0, err
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		scale := r.opts.ATol + math.Max(math.Abs(x[i]), math.Abs(xNew[i]))*r.opts.RTol
		sum += (errEst / scale) * (errEst / scale)
	}

	return xNew, k7, math.Sqrt(sum / float64(n)), nil
}
