// Package quat implements the scalar-first quaternion algebra used for
// attitude: Hamilton product, conjugate, normalization and vector rotation.
//
// A unit quaternion maps vectors from the body frame to the reference frame:
//
//	v_ref = q ⊗ [0, v_body] ⊗ conj(q)
package quat

import (
	"errors"
	"math"

	gquat "gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerate is returned when normalizing a quaternion whose norm is zero
// or not finite.
var ErrDegenerate = errors.New("quat: degenerate quaternion (zero or non-finite norm)")

// Quaternion is a scalar-first quaternion W + Xi + Yj + Zk.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity is the null rotation.
var Identity = Quaternion{W: 1}

// New builds a quaternion from its four components, scalar first.
func New(w, x, y, z float64) Quaternion {
	return Quaternion{W: w, X: x, Y: y, Z: z}
}

// FromSlice reads a scalar-first quaternion from the first four elements of s.
func FromSlice(s []float64) Quaternion {
	return Quaternion{W: s[0], X: s[1], Y: s[2], Z: s[3]}
}

// Pure returns the quaternion [0, v].
func Pure(v r3.Vec) Quaternion {
	return Quaternion{X: v.X, Y: v.Y, Z: v.Z}
}

// FromAxisAngle returns the unit quaternion rotating by angle (radians) about axis.
func FromAxisAngle(axis r3.Vec, angle float64) Quaternion {
	n := r3.Norm(axis)
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return Quaternion{W: math.Cos(angle / 2), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

func (q Quaternion) number() gquat.Number {
	return gquat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n gquat.Number) Quaternion {
	return Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// Multiply returns the Hamilton product q1 ⊗ q2. It is not commutative:
// q1 ⊗ q2 applies q2 first, then q1.
func Multiply(q1, q2 Quaternion) Quaternion {
	return fromNumber(gquat.Mul(q1.number(), q2.number()))
}

// Conjugate negates the vector part. For unit quaternions it is the inverse.
func Conjugate(q Quaternion) Quaternion {
	return fromNumber(gquat.Conj(q.number()))
}

// Normalize divides q by its Euclidean norm.
func Normalize(q Quaternion) (Quaternion, error) {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Quaternion{}, ErrDegenerate
	}
	return fromNumber(gquat.Scale(1/n, q.number())), nil
}

// Scale multiplies every component by f.
func Scale(f float64, q Quaternion) Quaternion {
	return fromNumber(gquat.Scale(f, q.number()))
}

// Rotate maps v from the body frame to the reference frame.
func Rotate(q Quaternion, v r3.Vec) r3.Vec {
	return Multiply(Multiply(q, Pure(v)), Conjugate(q)).Vec()
}

// RotateInverse maps v from the reference frame to the body frame.
func RotateInverse(q Quaternion, v r3.Vec) r3.Vec {
	return Multiply(Multiply(Conjugate(q), Pure(v)), q).Vec()
}

// Norm returns the Euclidean norm of all four components.
func (q Quaternion) Norm() float64 {
	return gquat.Abs(q.number())
}

// Vec returns the vector part.
func (q Quaternion) Vec() r3.Vec {
	return r3.Vec{X: q.X, Y: q.Y, Z: q.Z}
}

// Slice returns the components scalar first.
func (q Quaternion) Slice() []float64 {
	return []float64{q.W, q.X, q.Y, q.Z}
}

// Angle returns the rotation angle of a unit quaternion in [0, π], taking the
// shortest path.
func (q Quaternion) Angle() float64 {
	w := math.Abs(q.W)
	if w > 1 {
		w = 1
	}
	return 2 * math.Acos(w)
}

// AngleBetween returns the shortest rotation angle taking a to b.
func AngleBetween(a, b Quaternion) float64 {
	return Multiply(b, Conjugate(a)).Angle()
}
