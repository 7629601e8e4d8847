package control

import (
	"fmt"
	"math"

	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// IntegralMode selects how the integral of the attitude error accumulates.
type IntegralMode int

const (
	// IntegralElapsed adds e·h once per accepted integrator step of size h,
	// so the integral tracks simulated time.
	IntegralElapsed IntegralMode = iota
	// IntegralNominal adds e·Interval on every dynamics evaluation,
	// including the integrator's intermediate stages and rejected attempts.
	IntegralNominal
)

func (m IntegralMode) String() string {
	switch m {
	case IntegralElapsed:
		return "elapsed"
	case IntegralNominal:
		return "nominal"
	}
	return fmt.Sprintf("IntegralMode(%d)", int(m))
}

// ParseIntegralMode maps "elapsed" or "nominal" to a mode.
func ParseIntegralMode(s string) (IntegralMode, error) {
	switch s {
	case "elapsed", "":
		return IntegralElapsed, nil
	case "nominal":
		return IntegralNominal, nil
	}
	return 0, fmt.Errorf("%w: integral mode %q", dynamo.ErrInvalidValue, s)
}

type Attitude struct {
	Kp        float64
	Ki        float64
	Kd        float64
	MaxTorque float64
	Mode      IntegralMode
	Interval  float64 // nominal control interval, s

	desired  quat.Quaternion
	integral r3.Vec
	raw      r3.Vec
	torque   r3.Vec
}

func NewAttitude(kp, ki, kd, maxTorque float64) *Attitude {
	return &Attitude{
		Kp:        kp,
		Ki:        ki,
		Kd:        kd,
		MaxTorque: maxTorque,
		Interval:  1.0,
		desired:   quat.Identity,
	}
}

// SetGains replaces all three gains at once. Nothing changes if any gain is
// negative or not finite.
func (a *Attitude) SetGains(kp, ki, kd float64) error {
	for _, g := range []float64{kp, ki, kd} {
		if math.IsNaN(g) || math.IsInf(g, 0) || g < 0 {
			return fmt.Errorf("%w: gains (%g, %g, %g)", dynamo.ErrInvalidValue, kp, ki, kd)
		}
	}
	a.Kp, a.Ki, a.Kd = kp, ki, kd
	return nil
}

// Desired returns the target attitude.
func (a *Attitude) Desired() quat.Quaternion { return a.desired }

// SetDesired stores the normalized target. A zero quaternion is rejected and
// leaves the previous target in place.
func (a *Attitude) SetDesired(q quat.Quaternion) error {
	u, err := quat.Normalize(q)
	if err != nil {
		return fmt.Errorf("%w: desired attitude: %w", dynamo.ErrInvalidValue, err)
	}
	a.desired = u
	return nil
}

// Error returns the attitude error of q relative to the target, expressed
// in the body frame.
//
// q_err = q_desired ⊗ conj(q) is the reference-frame rotation still needed
// to reach the target; its vector part is flipped when the scalar part is
// negative so the error follows the shortest path. The returned vector is
// that rotation seen from the body and pointing from target to current, so
// that -Kp·e is restoring under q̇ = ½ q ⊗ [0, ω].
func (a *Attitude) Error(q quat.Quaternion) r3.Vec {
	qErr := quat.Multiply(a.desired, quat.Conjugate(q))
	e := qErr.Vec()
	if qErr.W < 0 {
		e = r3.Scale(-1, e)
	}
	return r3.Scale(-1, quat.RotateInverse(q, e))
}

// ErrorAngle returns the shortest rotation angle between q and the target.
func (a *Attitude) ErrorAngle(q quat.Quaternion) float64 {
	return quat.AngleBetween(q, a.desired)
}

// Torque computes the saturated control torque for attitude q and body
// rates omega. In nominal mode it also advances the integral.
func (a *Attitude) Torque(q quat.Quaternion, omega r3.Vec) r3.Vec {
	e := a.Error(q)
	if a.Mode == IntegralNominal {
		a.integral = r3.Add(a.integral, r3.Scale(a.Interval, e))
	}

	a.raw = r3.Sub(r3.Sub(r3.Scale(-a.Kp, e), r3.Scale(a.Kd, omega)), r3.Scale(a.Ki, a.integral))
	a.torque = r3.Vec{
		X: clamp(a.raw.X, a.MaxTorque),
		Y: clamp(a.raw.Y, a.MaxTorque),
		Z: clamp(a.raw.Z, a.MaxTorque),
	}
	return a.torque
}

// Accumulate advances the integral by e·h. It is a no-op in nominal mode,
// and for a degenerate q.
func (a *Attitude) Accumulate(q quat.Quaternion, h float64) {
	if a.Mode != IntegralElapsed {
		return
	}
	u, err := quat.Normalize(q)
	if err != nil {
		return
	}
	a.integral = r3.Add(a.integral, r3.Scale(h, a.Error(u)))
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Integral returns the accumulated attitude error.
func (a *Attitude) Integral() r3.Vec { return a.integral }

// LastTorque returns the most recent saturated torque and its unclamped value.
func (a *Attitude) LastTorque() (clamped, raw r3.Vec) { return a.torque, a.raw }

// Reset clears the integral and the torque history.
func (a *Attitude) Reset() {
	a.integral = r3.Vec{}
	a.raw = r3.Vec{}
	a.torque = r3.Vec{}
}

// GetParams returns tunable parameters for live adjustment
func (a *Attitude) GetParams() map[string]float64 {
	return map[string]float64{
		"kp":         a.Kp,
		"ki":         a.Ki,
		"kd":         a.Kd,
		"max_torque": a.MaxTorque,
	}
}

// SetParam adjusts a gain or the torque limit.
func (a *Attitude) SetParam(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %s=%g", dynamo.ErrInvalidValue, name, value)
	}
	switch name {
	case "kp":
		a.Kp = value
	case "ki":
		a.Ki = value
	case "kd":
		a.Kd = value
	case "max_torque":
		if value == 0 {
			return fmt.Errorf("%w: max_torque must be positive", dynamo.ErrInvalidValue)
		}
		a.MaxTorque = value
	default:
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
