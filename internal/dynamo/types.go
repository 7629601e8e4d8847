package dynamo

import (
	"math"

	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Layout of the 13-element state vector.
const (
	PosIdx   = 0
	VelIdx   = 3
	QuatIdx  = 6
	OmegaIdx = 10
	StateDim = 13
)

type State []float64

// NewState assembles a state vector from its groups.
func NewState(pos, vel r3.Vec, q quat.Quaternion, omega r3.Vec) State {
	return State{
		pos.X, pos.Y, pos.Z,
		vel.X, vel.Y, vel.Z,
		q.W, q.X, q.Y, q.Z,
		omega.X, omega.Y, omega.Z,
	}
}

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	return floats.Norm(s, 2)
}

func (s State) Add(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Add(result[:n], other[:n])
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Sub(result[:n], other[:n])
	return result
}

func vec(s []float64) r3.Vec { return r3.Vec{X: s[0], Y: s[1], Z: s[2]} }

func (s State) Position() r3.Vec          { return vec(s[PosIdx:]) }
func (s State) Velocity() r3.Vec          { return vec(s[VelIdx:]) }
func (s State) Attitude() quat.Quaternion { return quat.FromSlice(s[QuatIdx:]) }
func (s State) AngularVelocity() r3.Vec   { return vec(s[OmegaIdx:]) }

func setVec(s []float64, v r3.Vec) { s[0], s[1], s[2] = v.X, v.Y, v.Z }

// WithPosition returns a copy of s with the position replaced.
func (s State) WithPosition(v r3.Vec) State {
	c := s.Clone()
	setVec(c[PosIdx:], v)
	return c
}

// WithVelocity returns a copy of s with the velocity replaced.
func (s State) WithVelocity(v r3.Vec) State {
	c := s.Clone()
	setVec(c[VelIdx:], v)
	return c
}

// WithAttitude returns a copy of s with the quaternion replaced.
func (s State) WithAttitude(q quat.Quaternion) State {
	c := s.Clone()
	copy(c[QuatIdx:QuatIdx+4], q.Slice())
	return c
}

// WithAngularVelocity returns a copy of s with the body rates replaced.
func (s State) WithAngularVelocity(v r3.Vec) State {
	c := s.Clone()
	setVec(c[OmegaIdx:], v)
	return c
}

// Control holds the applied body-frame control torque, N·m.
type Control []float64

// System is an ODE right-hand side. Derive may fail, for instance when the
// state carries a degenerate attitude quaternion.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

// Hamiltonian is implemented by systems with a conserved energy-like quantity.
type Hamiltonian interface {
	Energy(x State) float64
}

// Sample is one reported point of a run.
type Sample struct {
	Time          float64
	State         State
	Control       Control
	AttitudeError float64 // radians
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
