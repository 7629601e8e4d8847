package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// MuEarth is Earth's gravitational parameter, m³/s².
	MuEarth = 3.986e14
	// REarth is the mean Earth radius, m.
	REarth = 6371e3
	// Rho0 is the reference atmospheric density, kg/m³.
	Rho0 = 1.225e-9
	// ScaleHeight is the exponential atmosphere scale height, m.
	ScaleHeight = 100e3
	// SolarPressure is the radiation pressure at 1 AU, N/m².
	SolarPressure = 4.5e-6
)

// Environment holds the central-body and radiation constants.
type Environment struct {
	Mu          float64
	BodyRadius  float64
	Rho0        float64
	ScaleHeight float64
	Pressure    float64
	SunDir      r3.Vec // unit vector, reference frame
}

// Earth returns the default environment with the sun along +X.
func Earth() Environment {
	return Environment{
		Mu:          MuEarth,
		BodyRadius:  REarth,
		Rho0:        Rho0,
		ScaleHeight: ScaleHeight,
		Pressure:    SolarPressure,
		SunDir:      r3.Vec{X: 1},
	}
}

// Properties are the vehicle constants used by the surface-force models.
type Properties struct {
	Mass float64 // kg
	Area float64 // m², cross-section
	Cd   float64 // drag coefficient
	Cr   float64 // reflectivity coefficient
}

// DefaultProperties describes a 500 kg, 2 m² satellite.
func DefaultProperties() Properties {
	return Properties{Mass: 500, Area: 2, Cd: 2.2, Cr: 1.5}
}

// Gravity returns the point-mass acceleration -μ r / |r|³.
func (e Environment) Gravity(r r3.Vec) r3.Vec {
	n := r3.Norm(r)
	return r3.Scale(-e.Mu/(n*n*n), r)
}

// Density returns the exponential-model atmospheric density at radius r.
func (e Environment) Density(r float64) float64 {
	return e.Rho0 * math.Exp(-(r-e.BodyRadius)/e.ScaleHeight)
}

// Drag returns the aerodynamic acceleration opposing v. It underflows to
// zero far from the body.
func (e Environment) Drag(r, v r3.Vec, p Properties) r3.Vec {
	rho := e.Density(r3.Norm(r))
	k := 0.5 * rho * p.Cd * p.Area / p.Mass * r3.Norm(v)
	return r3.Scale(-k, v)
}

// InShadow reports whether r lies on the night side of the sun-direction
// plane.
func (e Environment) InShadow(r r3.Vec) bool {
	return r3.Dot(r, e.SunDir) < 0
}

// SolarPressure returns the radiation acceleration P·A·Cr/m along the sun
// direction, or zero in shadow.
func (e Environment) SolarPressure(r r3.Vec, p Properties) r3.Vec {
	if e.InShadow(r) {
		return r3.Vec{}
	}
	return r3.Scale(e.Pressure*p.Area*p.Cr/p.Mass, e.SunDir)
}

// GravityGradientTorque returns 3μ/|r|³ · (r̂ × I r̂), where rBody is the
// position expressed in the body frame.
func (e Environment) GravityGradientTorque(rBody r3.Vec, in *Inertia) r3.Vec {
	n := r3.Norm(rBody)
	rHat := r3.Scale(1/n, rBody)
	return r3.Scale(3*e.Mu/(n*n*n), r3.Cross(rHat, in.Apply(rHat)))
}

// CircularSpeed returns the speed of a circular orbit at radius r.
func (e Environment) CircularSpeed(r float64) float64 {
	return math.Sqrt(e.Mu / r)
}

// Period returns the period of a circular orbit at radius r.
func (e Environment) Period(r float64) float64 {
	return 2 * math.Pi * math.Sqrt(r*r*r/e.Mu)
}
