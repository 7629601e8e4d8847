// Package dynamo provides the core simulation primitives shared by the
// satellite engine.
//
//   - [State]: the 13-element rigid-body state vector
//   - [System]: interface for ODE right-hand sides (dX/dt = f(X, t))
//   - [Sample]: one observed point of a run, fed to [Metric] observers
//   - domain errors returned by the integrator and the session
//
// # State layout
//
//	[0:3]   position, m
//	[3:6]   velocity, m/s
//	[6:10]  attitude quaternion, scalar first, body to reference
//	[10:13] angular velocity, rad/s, body frame
//
// # Thread Safety
//
// None of the types here synchronize. A State is a plain slice; callers that
// share one between goroutines must Clone it first.
package dynamo
