package metrics

import (
	"math"

	"github.com/san-kum/satsim/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

// EnergyDrift tracks the largest relative change of the system energy
// from the first observed sample.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	currentEnergy float64
	maxDrift      float64
	samples       int
	dyn           dynamo.Hamiltonian
}

func NewEnergyDrift(dyn dynamo.Hamiltonian) *EnergyDrift {
	return &EnergyDrift{
		name: "energy_drift",
		dyn:  dyn,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s dynamo.Sample) {
	energy := e.dyn.Energy(s.State)

	if e.samples == 0 {
		e.initialEnergy = energy
	}

	e.currentEnergy = energy
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.currentEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

// RadiusDrift tracks the largest absolute change of the orbital radius from
// the first observed sample, m.
type RadiusDrift struct {
	name     string
	initial  float64
	current  float64
	maxDrift float64
	samples  int
}

func NewRadiusDrift() *RadiusDrift {
	return &RadiusDrift{name: "radius_drift"}
}

func (r *RadiusDrift) Name() string { return r.name }

func (r *RadiusDrift) Observe(s dynamo.Sample) {
	radius := r3.Norm(s.State.Position())
	if r.samples == 0 {
		r.initial = radius
	}
	r.current = radius
	r.samples++
	r.maxDrift = math.Max(r.maxDrift, math.Abs(radius-r.initial))
}

func (r *RadiusDrift) Value() float64 { return r.maxDrift }

// Final returns the drift of the latest sample.
func (r *RadiusDrift) Final() float64 { return r.current - r.initial }

func (r *RadiusDrift) Reset() {
	r.initial = 0
	r.current = 0
	r.maxDrift = 0
	r.samples = 0
}
