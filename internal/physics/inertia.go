package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Inertia is a diagonal body inertia tensor with its precomputed inverse.
type Inertia struct {
	tensor *mat.DiagDense
	inv    *mat.Dense
}

// NewInertia builds the tensor diag(ixx, iyy, izz) and inverts it once.
func NewInertia(ixx, iyy, izz float64) (*Inertia, error) {
	for _, v := range []float64{ixx, iyy, izz} {
		if v <= 0 {
			return nil, fmt.Errorf("inertia: principal moments must be positive, got [%g %g %g]", ixx, iyy, izz)
		}
	}
	tensor := mat.NewDiagDense(3, []float64{ixx, iyy, izz})
	var inv mat.Dense
	if err := inv.Inverse(tensor); err != nil {
		return nil, fmt.Errorf("inertia: %w", err)
	}
	return &Inertia{tensor: tensor, inv: &inv}, nil
}

// DefaultInertia returns diag(10, 8, 5) kg·m².
func DefaultInertia() *Inertia {
	in, _ := NewInertia(10, 8, 5)
	return in
}

func mulVec(m mat.Matrix, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Apply returns I·v.
func (in *Inertia) Apply(v r3.Vec) r3.Vec { return mulVec(in.tensor, v) }

// Solve returns I⁻¹·v.
func (in *Inertia) Solve(v r3.Vec) r3.Vec { return mulVec(in.inv, v) }

// Diagonal returns the principal moments.
func (in *Inertia) Diagonal() [3]float64 {
	return [3]float64{in.tensor.At(0, 0), in.tensor.At(1, 1), in.tensor.At(2, 2)}
}

// RotationalEnergy returns ½ ωᵀ I ω.
func (in *Inertia) RotationalEnergy(omega r3.Vec) float64 {
	return 0.5 * r3.Dot(omega, in.Apply(omega))
}
