// Package control provides the closed-loop attitude controller.
//
// [Attitude] is a PID law on the quaternion error between a desired and the
// current attitude, with saturation at the actuator torque limit:
//
//	τ = clamp(-Kp·e - Kd·ω - Ki·∫e, ±MaxTorque)
//
// The controller is stateful: it owns the integral of the attitude error.
// How that integral accumulates is selected by [IntegralMode].
//
// # Usage
//
//	ctrl := control.NewAttitude(0.08, 0.0, 0.44, 0.1)
//	tau := ctrl.Torque(q, omega) // once per dynamics evaluation
//
// Controllers implement [dynamo.Configurable] for live tuning.
package control
