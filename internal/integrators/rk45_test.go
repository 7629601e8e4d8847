package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/satsim/internal/dynamo"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) StateDim() int { return 2 }

func (h *harmonicOscillator) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	return dynamo.State{x[1], -x[0]}, nil
}

func (h *harmonicOscillator) Energy(x dynamo.State) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

// blowUp is dx/dt = x², which is singular at t = 1 for x(0) = 1.
type blowUp struct{}

func (b *blowUp) StateDim() int { return 1 }

func (b *blowUp) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	return dynamo.State{x[0] * x[0]}, nil
}

// brokenAfter returns an error once t passes at.
type brokenAfter struct{ at float64 }

func (b *brokenAfter) StateDim() int { return 2 }

func (b *brokenAfter) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	if t > b.at {
		return nil, dynamo.ErrDegenerateQuaternion
	}
	return dynamo.State{x[1], -x[0]}, nil
}

func tightOptions() Options {
	opts := DefaultOptions()
	opts.RTol = 1e-9
	opts.ATol = 1e-12
	opts.MaxStep = 0
	return opts
}

func TestRK45_Accuracy(t *testing.T) {
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, tightOptions())
	if err != nil {
		t.Fatal(err)
	}

	if err := solver.AdvanceTo(10); err != nil {
		t.Fatalf("AdvanceTo: %v", err)
	}

	x := solver.State()
	if math.Abs(x[0]-math.Cos(10)) > 1e-6 || math.Abs(x[1]+math.Sin(10)) > 1e-6 {
		t.Errorf("x(10) = %v, want [%g %g]", x, math.Cos(10), -math.Sin(10))
	}
}

func TestRK45_EnergyConservation(t *testing.T) {
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}
	solver, err := NewRK45(dyn, 0, x0, tightOptions())
	if err != nil {
		t.Fatal(err)
	}

	if err := solver.AdvanceTo(100); err != nil {
		t.Fatal(err)
	}

	drift := math.Abs(dyn.Energy(solver.State())-dyn.Energy(x0)) / dyn.Energy(x0)
	if drift > 1e-6 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45_LandsOnTarget(t *testing.T) {
	opts := DefaultOptions()
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	for _, target := range []float64{0.05, 0.33, 1.0, 2.71828} {
		if err := solver.AdvanceTo(target); err != nil {
			t.Fatalf("AdvanceTo(%g): %v", target, err)
		}
		if solver.Time() != target {
			t.Errorf("Time() = %.17g, want %.17g", solver.Time(), target)
		}
		if solver.Status() != StatusRunning {
			t.Errorf("status = %v, want running", solver.Status())
		}
	}
}

func TestRK45_RespectsMaxStep(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0.2
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	var largest float64
	solver.OnAccept(func(_, h float64, _ dynamo.State) {
		largest = math.Max(largest, h)
	})
	if err := solver.AdvanceTo(5); err != nil {
		t.Fatal(err)
	}
	if largest > 0.2+1e-15 {
		t.Errorf("largest step %g exceeds max step", largest)
	}
	if solver.Stats().Accepted < 25 {
		t.Errorf("expected at least 25 steps, got %d", solver.Stats().Accepted)
	}
}

func TestRK45_RejectsOversizedStep(t *testing.T) {
	opts := tightOptions()
	opts.FirstStep = 2.0
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	accepted := 0
	solver.OnAccept(func(float64, float64, dynamo.State) { accepted++ })

	if err := solver.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	stats := solver.Stats()
	if stats.Rejected == 0 {
		t.Error("expected the oversized first step to be rejected")
	}
	if accepted != 1 || stats.Accepted != 1 {
		t.Errorf("hook ran %d times, %d accepted; want 1", accepted, stats.Accepted)
	}

	tt := solver.Time()
	x := solver.State()
	if tt <= 0 || tt >= 2 {
		t.Fatalf("accepted step ended at t=%g", tt)
	}
	if math.Abs(x[0]-math.Cos(tt)) > 1e-8 {
		t.Errorf("x(%g) = %g, want %g", tt, x[0], math.Cos(tt))
	}
}

func TestRK45_AutomaticFirstStep(t *testing.T) {
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, tightOptions())
	if err != nil {
		t.Fatal(err)
	}
	if h := solver.StepSize(); h <= 0 || math.IsInf(h, 0) {
		t.Errorf("initial step = %g", h)
	}
}

func TestRK45_StepTooSmall(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStep = 0
	opts.MinStep = 1e-6
	solver, err := NewRK45(&blowUp{}, 0, dynamo.State{1}, opts)
	if err != nil {
		t.Fatal(err)
	}

	err = solver.AdvanceTo(2)
	if !errors.Is(err, dynamo.ErrStepTooSmall) {
		t.Fatalf("expected ErrStepTooSmall, got %v", err)
	}
	if solver.Status() != StatusFailed {
		t.Errorf("status = %v, want failed", solver.Status())
	}
	if solver.Time() >= 1 {
		t.Errorf("solver passed the singularity: t=%g", solver.Time())
	}

	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) {
		t.Errorf("expected a SimulationError, got %T", err)
	}

	if err := solver.Step(); !errors.Is(err, dynamo.ErrStepTooSmall) {
		t.Errorf("failed solver stepped again: %v", err)
	}
}

func TestRK45_DerivativeErrorFails(t *testing.T) {
	solver, err := NewRK45(&brokenAfter{at: 0.5}, 0, dynamo.State{1, 0}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	err = solver.AdvanceTo(1)
	if !errors.Is(err, dynamo.ErrDegenerateQuaternion) {
		t.Fatalf("expected ErrDegenerateQuaternion, got %v", err)
	}
	if solver.Status() != StatusFailed || solver.Err() == nil {
		t.Errorf("status = %v, err = %v", solver.Status(), solver.Err())
	}
	if solver.Time() > 0.5 {
		t.Errorf("state advanced past the failure: t=%g", solver.Time())
	}
}

func TestRK45_FinishesAtTBound(t *testing.T) {
	opts := DefaultOptions()
	opts.TBound = 1
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, opts)
	if err != nil {
		t.Fatal(err)
	}

	err = solver.AdvanceTo(2)
	if !errors.Is(err, dynamo.ErrTimeBound) {
		t.Fatalf("expected ErrTimeBound, got %v", err)
	}
	if solver.Status() != StatusFinished {
		t.Errorf("status = %v, want finished", solver.Status())
	}
	if solver.Time() != 1 {
		t.Errorf("Time() = %g, want 1", solver.Time())
	}
}

func TestRK45_Project(t *testing.T) {
	solver, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	solver.Project(dynamo.State{2, 0})
	if x := solver.State(); x[0] != 2 {
		t.Errorf("Project did not replace the state: %v", x)
	}

	x := solver.State()
	x[0] = 99
	if solver.State()[0] != 2 {
		t.Error("State() must return a copy")
	}
}

func TestNewRK45_DimensionMismatch(t *testing.T) {
	_, err := NewRK45(&harmonicOscillator{}, 0, dynamo.State{1, 0, 0}, DefaultOptions())
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusRunning:  "running",
		StatusFinished: "finished",
		StatusFailed:   "failed",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
