package metrics

import (
	"github.com/san-kum/satsim/internal/dynamo"
)

// AttitudeError reports the attitude error of the latest sample, rad.
type AttitudeError struct {
	name    string
	last    float64
	peak    float64
	samples int
}

func NewAttitudeError() *AttitudeError {
	return &AttitudeError{name: "attitude_error"}
}

func (a *AttitudeError) Name() string { return a.name }

func (a *AttitudeError) Observe(s dynamo.Sample) {
	a.last = s.AttitudeError
	if s.AttitudeError > a.peak {
		a.peak = s.AttitudeError
	}
	a.samples++
}

func (a *AttitudeError) Value() float64 { return a.last }

func (a *AttitudeError) Peak() float64 { return a.peak }

func (a *AttitudeError) Reset() {
	a.last = 0
	a.peak = 0
	a.samples = 0
}

// Pointing is the fraction of samples whose attitude error is within
// threshold radians.
type Pointing struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewPointing(threshold float64) *Pointing {
	return &Pointing{
		name:      "pointing",
		threshold: threshold,
	}
}

func (p *Pointing) Name() string {
	return p.name
}

func (p *Pointing) Observe(s dynamo.Sample) {
	p.samples++
	if s.AttitudeError > p.threshold {
		p.violations++
	}
}

func (p *Pointing) Value() float64 {
	if p.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(p.violations)/float64(p.samples)
}

func (p *Pointing) Reset() {
	p.violations = 0
	p.samples = 0
}
