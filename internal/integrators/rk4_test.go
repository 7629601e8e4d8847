package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/satsim/internal/dynamo"
)

func TestRK4_Accuracy(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0.01
	solver, err := NewRK4(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	if err := solver.AdvanceTo(1); err != nil {
		t.Fatal(err)
	}

	x := solver.State()
	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("RK4 error too large: got %f, want %f", x[0], math.Cos(1))
	}
	if solver.Stats().Evaluations != 4*solver.Stats().Accepted {
		t.Errorf("expected four evaluations per step, got %+v", solver.Stats())
	}
}

func TestRK4_ShortensFinalStep(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0.2
	solver, err := NewRK4(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	if err := solver.AdvanceTo(0.5); err != nil {
		t.Fatal(err)
	}
	if solver.Time() != 0.5 || solver.Stats().Accepted != 3 {
		t.Errorf("t=%g after %d steps, want 0.5 after 3", solver.Time(), solver.Stats().Accepted)
	}
	if solver.StepSize() != 0.2 {
		t.Errorf("step size changed to %g", solver.StepSize())
	}
}

func TestRK4_RequiresMaxStep(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0
	if _, err := NewRK4(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts); err == nil {
		t.Error("expected an error without a max step")
	}
}

func TestRK4_DerivativeErrorFails(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0.1
	solver, err := NewRK4(&brokenAfter{at: 0.25}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := solver.AdvanceTo(1); !errors.Is(err, dynamo.ErrDegenerateQuaternion) {
		t.Errorf("expected ErrDegenerateQuaternion, got %v", err)
	}
	if solver.Status() != StatusFailed {
		t.Errorf("status = %v, want failed", solver.Status())
	}
}
