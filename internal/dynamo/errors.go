package dynamo

import (
	"errors"
	"fmt"

	"github.com/san-kum/satsim/internal/quat"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates the adaptive step size fell below its minimum
	// before the local error tolerance was met.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrTimeBound indicates the integrator reached its configured time bound.
	ErrTimeBound = errors.New("dynamo: integrator reached its time bound")

	// ErrDegenerateQuaternion indicates a zero-norm attitude quaternion.
	ErrDegenerateQuaternion = quat.ErrDegenerate

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrNotReady indicates an operation on a session that is not ready.
	ErrNotReady = errors.New("dynamo: session not ready")

	// ErrUnknownParameter indicates a parameter name the session does not know.
	ErrUnknownParameter = errors.New("dynamo: unknown parameter")

	// ErrInvalidValue indicates a malformed or out-of-range parameter value.
	ErrInvalidValue = errors.New("dynamo: invalid parameter value")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
