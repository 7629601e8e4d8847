package sim

import (
	"math"
	"time"

	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Report holds the quantities derived from the state after a step. Angles
// are in degrees unless noted.
type Report struct {
	Time               float64
	Position           r3.Vec
	Velocity           r3.Vec
	Radius             float64
	Polar              float64 // rad from the frame's polar axis
	Latitude           float64
	Longitude          float64
	Azimuth            float64
	RadialVelocity     float64
	TangentialVelocity float64
	Quaternion         quat.Quaternion
	AngularVelocity    r3.Vec
	AttitudeError      float64 // rad
	Torque             r3.Vec
	StepTime           time.Duration
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// NewReport derives the spherical position and the radial/tangential split
// of the velocity. axis is the unit polar axis.
func NewReport(t float64, x dynamo.State, axis r3.Vec) Report {
	r := x.Position()
	v := x.Velocity()
	radius := r3.Norm(r)

	var polar, vr float64
	if radius > 0 {
		cos := math.Max(-1, math.Min(1, r3.Dot(r, axis)/radius))
		polar = math.Acos(cos)
		vr = r3.Dot(v, r) / radius
	}
	vt := math.Sqrt(math.Max(0, r3.Dot(v, v)-vr*vr))
	lon := math.Atan2(r.Y, r.X)

	return Report{
		Time:               t,
		Position:           r,
		Velocity:           v,
		Radius:             radius,
		Polar:              polar,
		Latitude:           90 - degrees(polar),
		Longitude:          degrees(lon),
		Azimuth:            degrees(lon),
		RadialVelocity:     vr,
		TangentialVelocity: vt,
		Quaternion:         x.Attitude(),
		AngularVelocity:    x.AngularVelocity(),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Rounded returns the host mapping. Display fields are rounded; "position"
// carries the raw components.
func (r Report) Rounded() map[string]any {
	q := r.Quaternion.Slice()
	for i := range q {
		q[i] = round(q[i], 4)
	}
	return map[string]any{
		"Time (s)":                  round(r.Time, 1),
		"Position X (m)":            round(r.Position.X, 2),
		"Position Y (m)":            round(r.Position.Y, 2),
		"Position Z (m)":            round(r.Position.Z, 2),
		"Radius (m)":                round(r.Radius, 2),
		"Latitude (deg)":            round(r.Latitude, 2),
		"Longitude (deg)":           round(r.Longitude, 2),
		"Radial Velocity (m/s)":     round(r.RadialVelocity, 2),
		"Tangential Velocity (m/s)": round(r.TangentialVelocity, 2),
		"Azimuth (deg)":             round(r.Azimuth, 2),
		"Attitude Error (deg)":      round(degrees(r.AttitudeError), 2),
		"Sim Step Time (ms)":        round(float64(r.StepTime)/float64(time.Millisecond), 2),
		"quaternion":                q,
		"position":                  []float64{r.Position.X, r.Position.Y, r.Position.Z},
	}
}
