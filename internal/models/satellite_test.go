package models

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/satsim/internal/control"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func defaultState() dynamo.State {
	return dynamo.NewState(r3.Vec{X: 7000e3}, r3.Vec{Y: 7500}, quat.Identity, r3.Vec{Z: 0.01})
}

func TestSatelliteStateDim(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	if s.StateDim() != 13 {
		t.Errorf("expected 13 states, got %d", s.StateDim())
	}
}

func TestSatelliteKinematics(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	s.Perturb = Perturbations{}
	x := defaultState()

	dx, err := s.Derive(x, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if dx.Position() != x.Velocity() {
		t.Errorf("dr/dt = %+v, want %+v", dx.Position(), x.Velocity())
	}

	g := physics.MuEarth / (7000e3 * 7000e3)
	if math.Abs(dx[dynamo.VelIdx]+g) > 1e-12 {
		t.Errorf("dv/dt x = %g, want %g", dx[dynamo.VelIdx], -g)
	}

	// q̇ = ½ q ⊗ [0, ω] at identity is [0, ω/2].
	qd := dx.Attitude()
	if qd.W != 0 || math.Abs(qd.Z-0.005) > 1e-15 {
		t.Errorf("dq/dt = %+v", qd)
	}

	// Spin about a principal axis has no gyroscopic coupling.
	if r3.Norm(dx.AngularVelocity()) > 1e-15 {
		t.Errorf("dω/dt = %+v, want zero", dx.AngularVelocity())
	}
}

func TestSatelliteGyroscopicCoupling(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	s.Perturb = Perturbations{}
	omega := r3.Vec{X: 0.1, Y: 0.2}
	x := defaultState().WithAngularVelocity(omega)

	dx, err := s.Derive(x, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	// Izz ω̇z = -(Iyy - Ixx) ωx ωy
	want := -(8.0 - 10.0) * 0.1 * 0.2 / 5.0
	if got := dx[dynamo.OmegaIdx+2]; math.Abs(got-want) > 1e-15 {
		t.Errorf("dωz/dt = %g, want %g", got, want)
	}
}

func TestSatelliteControlTorque(t *testing.T) {
	ctrl := control.NewAttitude(0.5, 0, 0, 0.1)
	s := NewSatellite(ctrl)
	s.Perturb = Perturbations{}
	x := defaultState().
		WithAttitude(quat.FromAxisAngle(r3.Vec{X: 1}, 0.1)).
		WithAngularVelocity(r3.Vec{})

	dx, err := s.Derive(x, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if dx[dynamo.OmegaIdx] >= 0 {
		t.Errorf("control should decelerate toward the target, got ω̇x=%g", dx[dynamo.OmegaIdx])
	}
	tau, _ := ctrl.LastTorque()
	if math.Abs(dx[dynamo.OmegaIdx]-tau.X/10) > 1e-15 {
		t.Errorf("ω̇x = %g, want τx/Ixx = %g", dx[dynamo.OmegaIdx], tau.X/10)
	}
}

func TestSatelliteRenormalizesQuaternion(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	x := defaultState()
	scaled := x.WithAttitude(quat.New(3, 0, 0, 0))

	a, err := s.Derive(x, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Derive(scaled, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Sub(b).Norm() > 1e-15 {
		t.Errorf("scaled quaternion changed the derivative: %v vs %v", a, b)
	}
}

func TestSatelliteDegenerateQuaternion(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	x := defaultState().WithAttitude(quat.Quaternion{})

	if _, err := s.Derive(x, 1.5); !errors.Is(err, dynamo.ErrDegenerateQuaternion) {
		t.Errorf("expected ErrDegenerateQuaternion, got %v", err)
	}
	if _, err := s.Derive(x[:6], 0); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSatelliteEnergy(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))
	r := 7000e3
	v := s.Env.CircularSpeed(r)
	x := dynamo.NewState(r3.Vec{X: r}, r3.Vec{Y: v}, quat.Identity, r3.Vec{})

	// circular orbit: ε = -μ/2r
	want := -physics.MuEarth / (2 * r)
	if e := s.Energy(x); math.Abs(e-want)/math.Abs(want) > 1e-12 {
		t.Errorf("energy = %g, want %g", e, want)
	}
}

func TestSatelliteSetParam(t *testing.T) {
	s := NewSatellite(control.NewAttitude(0, 0, 0, 0.1))

	if err := s.SetParam("mass", 250); err != nil || s.Props.Mass != 250 {
		t.Errorf("SetParam mass: %v", err)
	}
	if err := s.SetParam("mass", 0); !errors.Is(err, dynamo.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if err := s.SetParam("colour", 1); !errors.Is(err, dynamo.ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}

	for _, name := range []string{"mass", "area", "c_d", "c_r"} {
		for _, v := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
			before := s.Props
			if err := s.SetParam(name, v); !errors.Is(err, dynamo.ErrInvalidValue) {
				t.Errorf("SetParam(%s, %g): expected ErrInvalidValue, got %v", name, v, err)
			}
			if s.Props != before {
				t.Errorf("SetParam(%s, %g) changed props to %+v", name, v, s.Props)
			}
		}
	}
}
