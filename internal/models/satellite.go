package models

import (
	"fmt"
	"math"

	"github.com/san-kum/satsim/internal/control"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	_ dynamo.System       = (*Satellite)(nil)
	_ dynamo.Hamiltonian  = (*Satellite)(nil)
	_ dynamo.Configurable = (*Satellite)(nil)
	_ dynamo.Configurable = (*control.Attitude)(nil)
)

// Perturbations switches the optional force and torque models.
type Perturbations struct {
	Drag            bool
	Solar           bool
	GravityGradient bool
}

// AllPerturbations enables every model.
func AllPerturbations() Perturbations {
	return Perturbations{Drag: true, Solar: true, GravityGradient: true}
}

// Satellite is the coupled orbit and attitude right-hand side. The
// controller is evaluated inside Derive, so every integrator stage sees a
// fresh control torque.
type Satellite struct {
	Env        physics.Environment
	Props      physics.Properties
	Inertia    *physics.Inertia
	Controller *control.Attitude
	Perturb    Perturbations
}

func NewSatellite(ctrl *control.Attitude) *Satellite {
	return &Satellite{
		Env:        physics.Earth(),
		Props:      physics.DefaultProperties(),
		Inertia:    physics.DefaultInertia(),
		Controller: ctrl,
		Perturb:    AllPerturbations(),
	}
}

func (s *Satellite) StateDim() int { return dynamo.StateDim }

// Derive returns dX/dt. The incoming quaternion is renormalized first; a
// zero-norm quaternion is an error.
func (s *Satellite) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	if len(x) != dynamo.StateDim {
		return nil, fmt.Errorf("%w: got %d components", dynamo.ErrDimensionMismatch, len(x))
	}
	q, err := quat.Normalize(x.Attitude())
	if err != nil {
		return nil, fmt.Errorf("t=%g: %w", t, err)
	}
	r := x.Position()
	v := x.Velocity()
	omega := x.AngularVelocity()

	accel := r3.Add(s.Env.Gravity(r), s.Accelerations(r, v))

	tau := s.Controller.Torque(q, omega)
	if s.Perturb.GravityGradient {
		tau = r3.Add(tau, s.Env.GravityGradientTorque(quat.RotateInverse(q, r), s.Inertia))
	}
	gyro := r3.Cross(omega, s.Inertia.Apply(omega))
	omegaDot := s.Inertia.Solve(r3.Sub(tau, gyro))

	qDot := quat.Scale(0.5, quat.Multiply(q, quat.Pure(omega)))

	return dynamo.NewState(v, accel, qDot, omegaDot), nil
}

// Accelerations returns the non-gravitational accelerations that are
// switched on.
func (s *Satellite) Accelerations(r, v r3.Vec) r3.Vec {
	var a r3.Vec
	if s.Perturb.Drag {
		a = r3.Add(a, s.Env.Drag(r, v, s.Props))
	}
	if s.Perturb.Solar {
		a = r3.Add(a, s.Env.SolarPressure(r, s.Props))
	}
	return a
}

// Energy returns the specific orbital energy v²/2 - μ/r, J/kg.
func (s *Satellite) Energy(x dynamo.State) float64 {
	v := x.Velocity()
	return 0.5*r3.Dot(v, v) - s.Env.Mu/r3.Norm(x.Position())
}

// GetParams returns the vehicle constants.
func (s *Satellite) GetParams() map[string]float64 {
	return map[string]float64{
		"mass": s.Props.Mass,
		"area": s.Props.Area,
		"c_d":  s.Props.Cd,
		"c_r":  s.Props.Cr,
	}
}

// SetParam adjusts a vehicle constant. Negative and non-finite values are
// rejected.
func (s *Satellite) SetParam(name string, value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s=%g", dynamo.ErrInvalidValue, name, value)
	}
	switch name {
	case "mass":
		if value == 0 {
			return fmt.Errorf("%w: mass must be positive", dynamo.ErrInvalidValue)
		}
		s.Props.Mass = value
	case "area":
		s.Props.Area = value
	case "c_d":
		s.Props.Cd = value
	case "c_r":
		s.Props.Cr = value
	default:
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
