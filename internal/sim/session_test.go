package sim

import (
	"context"
	"math"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/satsim/internal/config"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/integrators"
	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func newSession(cfg *config.Config) *Session {
	s, err := New(cfg, nil)
	Expect(err).NotTo(HaveOccurred())
	return s
}

// attitudeOnly disables the gravity-gradient torque so only the controller
// acts on the attitude.
func attitudeOnly(kp, ki, kd float64) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gains = config.GainsConfig{Kp: kp, Ki: ki, Kd: kd}
	cfg.Perturbations.GravityGradient = false
	return cfg
}

func tilted(angle float64) map[string]any {
	q := quat.FromAxisAngle(r3.Vec{X: 1}, angle)
	return map[string]any{
		"attitude":         q.Slice(),
		"angular_velocity": []float64{0, 0, 0},
	}
}

// zeroAttitude reports a zero quaternion from an otherwise working solver.
type zeroAttitude struct{ integrators.Solver }

func (z zeroAttitude) State() dynamo.State {
	return z.Solver.State().WithAttitude(quat.Quaternion{})
}

var _ = ginkgo.Describe("Session", func() {
	ginkgo.Describe("state machine", func() {
		ginkgo.It("starts uninitialized and refuses to step", func() {
			s := newSession(nil)
			Expect(s.Status()).To(Equal(StatusUninitialized))

			_, err := s.Step(0.2)
			Expect(err).To(MatchError(dynamo.ErrNotReady))
		})

		ginkgo.It("becomes ready after Initialize", func() {
			s := newSession(nil)
			Expect(s.Initialize(nil)).To(Succeed())
			Expect(s.Status()).To(Equal(StatusReady))
			Expect(s.Time()).To(BeZero())
			Expect(s.State()).To(HaveLen(dynamo.StateDim))
		})

		ginkgo.It("rejects non-positive dt without failing", func() {
			s := newSession(nil)
			Expect(s.Initialize(nil)).To(Succeed())

			for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
				_, err := s.Step(dt)
				Expect(err).To(MatchError(dynamo.ErrInvalidValue))
			}
			Expect(s.Status()).To(Equal(StatusReady))
		})

		ginkgo.It("keeps the previous state when overrides are malformed", func() {
			s := newSession(nil)
			Expect(s.Initialize(map[string]any{"altitude": 500e3})).To(Succeed())
			before := s.State()

			err := s.Initialize(map[string]any{"velocity": []any{1.0, "fast", 0.0}})
			Expect(err).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.State()).To(Equal(before))
			Expect(s.Status()).To(Equal(StatusReady))

			err = s.Initialize(map[string]any{"inclination": 51.6})
			Expect(err).To(MatchError(dynamo.ErrUnknownParameter))
		})

		ginkgo.It("fails when the solver reaches its time bound and recovers on reset", func() {
			cfg := config.DefaultConfig()
			cfg.Integrator.TBound = 1
			s := newSession(cfg)
			Expect(s.Initialize(nil)).To(Succeed())

			_, err := s.Step(0.6)
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Step(0.6)
			Expect(err).To(MatchError(dynamo.ErrTimeBound))
			Expect(s.Status()).To(Equal(StatusFailed))
			Expect(s.Err()).To(HaveOccurred())
			Expect(s.Time()).To(BeNumerically("~", 0.6, 1e-12))

			_, err = s.Step(0.1)
			Expect(err).To(MatchError(dynamo.ErrNotReady))

			Expect(s.Reset()).To(Succeed())
			Expect(s.Status()).To(Equal(StatusReady))
			Expect(s.Err()).NotTo(HaveOccurred())
			_, err = s.Step(0.2)
			Expect(err).NotTo(HaveOccurred())
		})

		ginkgo.It("resets idempotently", func() {
			s := newSession(nil)
			Expect(s.Initialize(map[string]any{"altitude": 300e3})).To(Succeed())
			for i := 0; i < 5; i++ {
				_, err := s.Step(0.5)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(s.Reset()).To(Succeed())
			first := s.State()
			Expect(s.Reset()).To(Succeed())
			second := s.State()

			Expect(second).To(Equal(first))
			Expect(s.Time()).To(BeZero())
			Expect(s.Controller().Integral()).To(Equal(r3.Vec{}))
		})

		ginkgo.It("keeps parameter changes across reset", func() {
			s := newSession(nil)
			Expect(s.Initialize(nil)).To(Succeed())
			Expect(s.SetParameter("kp", 0.5)).To(Succeed())
			Expect(s.Reset()).To(Succeed())

			Expect(s.Controller().Kp).To(Equal(0.5))
			Expect(s.Config().Gains.Kp).To(Equal(0.5))
		})

		ginkgo.It("runs sessions side by side without sharing state", func() {
			a := newSession(attitudeOnly(0.5, 0, 4))
			b := newSession(attitudeOnly(0, 0, 0))
			Expect(a.Initialize(tilted(0.1))).To(Succeed())
			Expect(b.Initialize(tilted(0.1))).To(Succeed())

			for i := 0; i < 20; i++ {
				_, err := a.Step(1)
				Expect(err).NotTo(HaveOccurred())
				_, err = b.Step(1)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(a.Last().AttitudeError).To(BeNumerically("<", b.Last().AttitudeError))
			Expect(b.Last().AttitudeError).To(BeNumerically("~", 0.1, 1e-6))
		})
	})

	ginkgo.Describe("failures", func() {
		ginkgo.It("fails on a degenerate attitude and recovers on reset", func() {
			s := newSession(nil)
			Expect(s.Initialize(nil)).To(Succeed())
			_, err := s.Step(0.2)
			Expect(err).NotTo(HaveOccurred())
			before := s.State()

			s.solver = zeroAttitude{s.solver}
			_, err = s.Step(0.2)
			Expect(err).To(MatchError(dynamo.ErrDegenerateQuaternion))
			Expect(s.Status()).To(Equal(StatusFailed))
			Expect(s.Err()).To(MatchError(dynamo.ErrDegenerateQuaternion))
			Expect(s.State()).To(Equal(before))

			_, err = s.Step(0.2)
			Expect(err).To(MatchError(dynamo.ErrNotReady))

			Expect(s.Reset()).To(Succeed())
			_, err = s.Step(0.2)
			Expect(err).NotTo(HaveOccurred())
		})

		ginkgo.It("keeps controller memory when the solver cannot be built", func() {
			s := newSession(attitudeOnly(0, 1e-6, 0))
			Expect(s.SetParameter("integral_mode", "nominal")).To(Succeed())
			Expect(s.Initialize(tilted(0.1))).To(Succeed())
			for i := 0; i < 3; i++ {
				_, err := s.Step(1)
				Expect(err).NotTo(HaveOccurred())
			}
			integral := s.Controller().Integral()
			torque, raw := s.Controller().LastTorque()
			state, t := s.State(), s.Time()
			Expect(r3.Norm(integral)).To(BeNumerically(">", 0))

			s.cfg.Integrator.TBound = -1
			Expect(s.Initialize(nil)).NotTo(Succeed())

			Expect(s.Controller().Integral()).To(Equal(integral))
			gotTorque, gotRaw := s.Controller().LastTorque()
			Expect(gotTorque).To(Equal(torque))
			Expect(gotRaw).To(Equal(raw))
			Expect(s.State()).To(Equal(state))
			Expect(s.Time()).To(Equal(t))
			Expect(s.Status()).To(Equal(StatusReady))
		})
	})

	ginkgo.Describe("stepping", func() {
		ginkgo.It("matches the 400 km example scenario", func() {
			s := newSession(nil)
			Expect(s.Initialize(map[string]any{
				"altitude": 400e3,
				"velocity": []float64{0, 7500, 0},
			})).To(Succeed())

			rep, err := s.Step(0.2)
			Expect(err).NotTo(HaveOccurred())

			r0 := physics.REarth + 400e3
			Expect(rep.Time).To(BeNumerically("~", 0.2, 1e-12))
			Expect(rep.Radius).To(BeNumerically("~", r0, 300))
			Expect(rep.Quaternion.Norm()).To(BeNumerically("~", 1, 1e-4))

			out := NewHost(s).Step(0.2)
			Expect(out).NotTo(HaveKey("error"))
			q := out["quaternion"].([]float64)
			norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
			Expect(math.Round(norm*1e4) / 1e4).To(Equal(1.0))
		})

		ginkgo.It("keeps the quaternion normalized after every step", func() {
			s := newSession(nil)
			Expect(s.Initialize(map[string]any{"angular_velocity": []float64{0.02, -0.01, 0.03}})).To(Succeed())

			for i := 0; i < 50; i++ {
				rep, err := s.Step(1)
				Expect(err).NotTo(HaveOccurred())
				Expect(rep.Quaternion.Norm()).To(BeNumerically("~", 1, 1e-6))
				Expect(s.State().Attitude().Norm()).To(BeNumerically("~", 1, 1e-6))
			}
		})

		ginkgo.It("returns to the starting radius after one revolution without perturbations", func() {
			cfg := config.GetPreset("conservative")
			s := newSession(cfg)

			r0 := 7000e3
			v := physics.Earth().CircularSpeed(r0)
			Expect(s.Initialize(map[string]any{
				"position": []float64{r0, 0, 0},
				"velocity": []float64{0, v, 0},
			})).To(Succeed())

			period := s.OrbitalPeriod()
			e0 := s.Energy()
			Expect(s.Run(context.Background(), period, period/100, func(rep Report) bool {
				Expect(rep.Radius).To(BeNumerically("~", r0, 100))
				return true
			})).To(Succeed())

			Expect(s.Time()).To(BeNumerically("~", period, 1e-6))
			Expect(s.Last().Radius).To(BeNumerically("~", r0, 100))
			Expect(r3.Norm(r3.Sub(s.State().Position(), r3.Vec{X: r0}))).To(BeNumerically("<", 1000))
			Expect(math.Abs((s.Energy() - e0) / e0)).To(BeNumerically("<", 1e-6))
		})

		ginkgo.It("drives the attitude error toward zero", func() {
			s := newSession(attitudeOnly(0.5, 0, 4))
			Expect(s.Initialize(tilted(0.1))).To(Succeed())
			initial := s.Last().AttitudeError
			Expect(initial).To(BeNumerically("~", 0.1, 1e-9))

			var errs []float64
			for i := 0; i < 300; i++ {
				rep, err := s.Step(1)
				Expect(err).NotTo(HaveOccurred())
				errs = append(errs, rep.AttitudeError)
			}

			for i := 20; i < 80; i++ {
				Expect(errs[i+1]).To(BeNumerically("<=", errs[i]+1e-6), "error grew at t=%d s", i+2)
			}
			Expect(errs[len(errs)-1]).To(BeNumerically("<", 0.01*initial))
		})

		ginkgo.It("never exceeds the torque limit", func() {
			cfg := attitudeOnly(100, 0, 100)
			cfg.MaxTorque = 0.05
			s := newSession(cfg)
			Expect(s.Initialize(tilted(2.0))).To(Succeed())

			saturated := false
			for i := 0; i < 20; i++ {
				rep, err := s.Step(0.5)
				Expect(err).NotTo(HaveOccurred())
				for _, c := range []float64{rep.Torque.X, rep.Torque.Y, rep.Torque.Z} {
					Expect(math.Abs(c)).To(BeNumerically("<=", 0.05))
				}
				_, raw := s.Controller().LastTorque()
				if math.Abs(raw.X) > 0.05 {
					saturated = true
				}
			}
			Expect(saturated).To(BeTrue(), "the raw torque should have exceeded the limit")
		})
	})

	ginkgo.Describe("integral accumulation", func() {
		const e = 0.04997916927067833 // sin(0.05)

		ginkgo.It("integrates over elapsed solver time by default", func() {
			s := newSession(attitudeOnly(0, 1e-6, 0))
			Expect(s.Initialize(tilted(0.1))).To(Succeed())

			_, err := s.Step(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(r3.Norm(s.Controller().Integral())).To(BeNumerically("~", e, 0.05*e))
		})

		ginkgo.It("accumulates a fixed interval per evaluation in nominal mode", func() {
			s := newSession(attitudeOnly(0, 1e-6, 0))
			Expect(s.SetParameter("integral_mode", "nominal")).To(Succeed())
			Expect(s.Initialize(tilted(0.1))).To(Succeed())

			_, err := s.Step(1)
			Expect(err).NotTo(HaveOccurred())
			evals := float64(s.Stats().Evaluations)
			Expect(r3.Norm(s.Controller().Integral())).To(BeNumerically("~", evals*e, 0.05*evals*e))
		})
	})

	ginkgo.Describe("SetParameter", func() {
		var s *Session

		ginkgo.BeforeEach(func() {
			s = newSession(nil)
			Expect(s.Initialize(nil)).To(Succeed())
		})

		ginkgo.It("updates gains", func() {
			Expect(s.SetParameter("kd", 1.5)).To(Succeed())
			Expect(s.SetParameter("ki", 2)).To(Succeed())
			Expect(s.Controller().Kd).To(Equal(1.5))
			Expect(s.Controller().Ki).To(Equal(2.0))
		})

		ginkgo.It("renormalizes the desired attitude", func() {
			Expect(s.SetParameter("q_desired", []any{2.0, 0.0, 0.0, 0.0})).To(Succeed())
			Expect(s.Controller().Desired()).To(Equal(quat.Identity))
			Expect(s.Config().DesiredAttitude).To(Equal([]float64{1, 0, 0, 0}))

			Expect(s.SetParameter("desired_attitude", []float64{0, 0, 0, 3})).To(Succeed())
			Expect(s.Controller().Desired().Z).To(BeNumerically("~", 1, 1e-15))
		})

		ginkgo.It("rejects a zero desired attitude and keeps the old one", func() {
			Expect(s.SetParameter("q_desired", []float64{0, 0, 0, 0})).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.Controller().Desired()).To(Equal(quat.Identity))
		})

		ginkgo.It("rejects malformed values without side effects", func() {
			Expect(s.SetParameter("kp", "fast")).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.SetParameter("kp", -1.0)).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.SetParameter("q_desired", []float64{1, 0})).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.SetParameter("mass", 0.0)).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.SetParameter("integral_mode", 3)).To(MatchError(dynamo.ErrInvalidValue))
			Expect(s.SetParameter("kp", math.Inf(1))).To(MatchError(dynamo.ErrInvalidValue))
			for _, name := range []string{"mass", "area", "c_d", "c_r"} {
				Expect(s.SetParameter(name, math.Inf(1))).To(MatchError(dynamo.ErrInvalidValue), name)
				Expect(s.SetParameter(name, math.NaN())).To(MatchError(dynamo.ErrInvalidValue), name)
			}
			Expect(s.Controller().Kp).To(Equal(config.DefaultKp))
			Expect(s.Satellite().Props).To(Equal(physics.DefaultProperties()))
			Expect(s.Config().Satellite.Area).To(Equal(physics.DefaultProperties().Area))

			_, err := s.Step(0.2)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Status()).To(Equal(StatusReady))
		})

		ginkgo.It("rejects unknown names", func() {
			Expect(s.SetParameter("thrust", 1.0)).To(MatchError(dynamo.ErrUnknownParameter))
			Expect(s.Status()).To(Equal(StatusReady))
		})

		ginkgo.It("updates vehicle constants", func() {
			Expect(s.SetParameter("mass", 250)).To(Succeed())
			Expect(s.SetParameter("c_d", 2.0)).To(Succeed())
			Expect(s.Satellite().Props.Mass).To(Equal(250.0))
			Expect(s.Config().Satellite.Cd).To(Equal(2.0))
		})
	})

	ginkgo.Describe("frames", func() {
		ginkgo.It("uses the NED default state and measures latitude from up", func() {
			cfg := config.DefaultConfig()
			cfg.Frame = config.FrameNED
			s := newSession(cfg)
			Expect(s.Initialize(nil)).To(Succeed())

			rep := s.Last()
			Expect(rep.Radius).To(BeNumerically("~", physics.REarth+400e3, 1e-6))
			Expect(rep.Latitude).To(BeNumerically("~", 90, 1e-9))
			Expect(rep.TangentialVelocity).To(BeNumerically("~", 7500, 1e-9))
		})
	})
})
