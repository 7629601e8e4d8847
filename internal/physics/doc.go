// Package physics provides the perturbation models acting on an orbiting
// rigid body.
//
// Every model is a pure function of position (and velocity for drag):
//
//   - [Gravity]: point-mass inverse-square attraction
//   - [Drag]: exponential-atmosphere aerodynamic drag
//   - [SolarPressure]: constant radiation pressure with a cylindrical shadow
//   - [GravityGradientTorque]: torque from the differential pull across the body
//
// Constants live in [Environment]; vehicle constants in [Properties]; the
// body inertia tensor and its inverse in [Inertia].
//
// # Example
//
//	env := physics.Earth()
//	a := r3.Add(env.Gravity(r), env.Drag(r, v, props))
package physics
