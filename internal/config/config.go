package config

import (
	"fmt"
	"math"
	"os"

	"github.com/san-kum/satsim/internal/control"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultKp              = 0.08
	DefaultKi              = 0.0
	DefaultKd              = 0.44
	DefaultMaxTorque       = 0.1
	DefaultControlInterval = 1.0
	DefaultDt              = 0.2
	DefaultDuration        = 600.0
	DefaultAltitude        = 400e3
	DefaultSpinRate        = 0.01
)

// Frames. Quaternions are always scalar-first and rotate body vectors into
// the reference frame.
const (
	FrameInertial = "inertial"
	FrameNED      = "ned"
)

const (
	IntegratorRK45 = "rk45"
	IntegratorRK4  = "rk4"
)

type Config struct {
	Gains           GainsConfig        `yaml:"gains"`
	DesiredAttitude []float64          `yaml:"desired_attitude"`
	Satellite       SatelliteConfig    `yaml:"satellite"`
	Inertia         []float64          `yaml:"inertia"`
	MaxTorque       float64            `yaml:"max_torque"`
	Frame           string             `yaml:"frame"`
	Integrator      IntegratorConfig   `yaml:"integrator"`
	IntegralMode    string             `yaml:"integral_mode"`
	ControlInterval float64            `yaml:"control_interval"`
	Perturbations   PerturbationConfig `yaml:"perturbations"`
	Initial         InitialConfig      `yaml:"initial"`
	Dt              float64            `yaml:"dt"`
	Duration        float64            `yaml:"duration"`
	Log             LogConfig          `yaml:"log"`
}

type GainsConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

type SatelliteConfig struct {
	Mass float64 `yaml:"mass"`
	Area float64 `yaml:"area"`
	Cd   float64 `yaml:"c_d"`
	Cr   float64 `yaml:"c_r"`
}

type IntegratorConfig struct {
	Name      string  `yaml:"name"`
	RTol      float64 `yaml:"rtol"`
	ATol      float64 `yaml:"atol"`
	MaxStep   float64 `yaml:"max_step"`
	MinStep   float64 `yaml:"min_step"`
	FirstStep float64 `yaml:"first_step"`
	TBound    float64 `yaml:"t_bound"`
}

type PerturbationConfig struct {
	Drag            bool `yaml:"drag"`
	Solar           bool `yaml:"solar"`
	GravityGradient bool `yaml:"gravity_gradient"`
}

// InitialConfig overrides parts of the frame's default initial state. Unset
// fields keep the default. Altitude places the satellite at R+altitude
// along the default position direction and cannot be combined with Position.
type InitialConfig struct {
	Position        []float64 `yaml:"position,omitempty"`
	Velocity        []float64 `yaml:"velocity,omitempty"`
	Attitude        []float64 `yaml:"attitude,omitempty"`
	AngularVelocity []float64 `yaml:"angular_velocity,omitempty"`
	Altitude        *float64  `yaml:"altitude,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Gains:           GainsConfig{Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd},
		DesiredAttitude: []float64{1, 0, 0, 0},
		Satellite:       SatelliteConfig{Mass: 500, Area: 2, Cd: 2.2, Cr: 1.5},
		Inertia:         []float64{10, 8, 5},
		MaxTorque:       DefaultMaxTorque,
		Frame:           FrameInertial,
		Integrator: IntegratorConfig{
			Name:    IntegratorRK45,
			RTol:    1e-3,
			ATol:    1e-6,
			MaxStep: 0.2,
			MinStep: 1e-10,
			TBound:  1e5,
		},
		IntegralMode:    control.IntegralElapsed.String(),
		ControlInterval: DefaultControlInterval,
		Perturbations:   PerturbationConfig{Drag: true, Solar: true, GravityGradient: true},
		Dt:              DefaultDt,
		Duration:        DefaultDuration,
		Log:             LogConfig{Level: "info", Format: "logfmt"},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of a copy of base, so a file only needs the
// fields it changes.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.DesiredAttitude = cloneFloats(c.DesiredAttitude)
	out.Inertia = cloneFloats(c.Inertia)
	out.Initial = c.Initial.Clone()
	return &out
}

func (i InitialConfig) Clone() InitialConfig {
	out := InitialConfig{
		Position:        cloneFloats(i.Position),
		Velocity:        cloneFloats(i.Velocity),
		Attitude:        cloneFloats(i.Attitude),
		AngularVelocity: cloneFloats(i.AngularVelocity),
	}
	if i.Altitude != nil {
		alt := *i.Altitude
		out.Altitude = &alt
	}
	return out
}

// Merge returns i with every field set in o replacing its own. Position and
// Altitude displace each other.
func (i InitialConfig) Merge(o InitialConfig) InitialConfig {
	out := i.Clone()
	o = o.Clone()
	if o.Position != nil {
		out.Position = o.Position
		out.Altitude = nil
	}
	if o.Altitude != nil {
		out.Altitude = o.Altitude
		out.Position = nil
	}
	if o.Velocity != nil {
		out.Velocity = o.Velocity
	}
	if o.Attitude != nil {
		out.Attitude = o.Attitude
	}
	if o.AngularVelocity != nil {
		out.AngularVelocity = o.AngularVelocity
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkVector(name string, v []float64, n int) error {
	if v == nil {
		return nil
	}
	if len(v) != n {
		return fmt.Errorf("%w: %s needs %d components, got %d", dynamo.ErrInvalidValue, name, n, len(v))
	}
	for _, x := range v {
		if !finite(x) {
			return fmt.Errorf("%w: %s has a non-finite component", dynamo.ErrInvalidValue, name)
		}
	}
	return nil
}

func (i InitialConfig) Validate() error {
	if i.Position != nil && i.Altitude != nil {
		return fmt.Errorf("%w: position and altitude are mutually exclusive", dynamo.ErrInvalidValue)
	}
	if err := checkVector("position", i.Position, 3); err != nil {
		return err
	}
	if i.Position != nil && r3.Norm(vec3(i.Position)) == 0 {
		return fmt.Errorf("%w: position must be non-zero", dynamo.ErrInvalidValue)
	}
	if err := checkVector("velocity", i.Velocity, 3); err != nil {
		return err
	}
	if err := checkVector("attitude", i.Attitude, 4); err != nil {
		return err
	}
	if i.Attitude != nil {
		if _, err := quat.Normalize(quat.FromSlice(i.Attitude)); err != nil {
			return fmt.Errorf("%w: attitude: %w", dynamo.ErrInvalidValue, err)
		}
	}
	if err := checkVector("angular_velocity", i.AngularVelocity, 3); err != nil {
		return err
	}
	if i.Altitude != nil && (!finite(*i.Altitude) || *i.Altitude < 0) {
		return fmt.Errorf("%w: altitude %g", dynamo.ErrInvalidValue, *i.Altitude)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if !finite(v) || v < 0 {
		return fmt.Errorf("%w: %s=%g", dynamo.ErrInvalidValue, name, v)
	}
	return nil
}

func positive(name string, v float64) error {
	if !finite(v) || v <= 0 {
		return fmt.Errorf("%w: %s=%g must be positive", dynamo.ErrInvalidValue, name, v)
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	checks := []error{
		nonNegative("kp", c.Gains.Kp),
		nonNegative("ki", c.Gains.Ki),
		nonNegative("kd", c.Gains.Kd),
		positive("max_torque", c.MaxTorque),
		positive("mass", c.Satellite.Mass),
		nonNegative("area", c.Satellite.Area),
		nonNegative("c_d", c.Satellite.Cd),
		nonNegative("c_r", c.Satellite.Cr),
		positive("rtol", c.Integrator.RTol),
		positive("atol", c.Integrator.ATol),
		nonNegative("max_step", c.Integrator.MaxStep),
		positive("min_step", c.Integrator.MinStep),
		nonNegative("first_step", c.Integrator.FirstStep),
		positive("t_bound", c.Integrator.TBound),
		positive("control_interval", c.ControlInterval),
		positive("dt", c.Dt),
		positive("duration", c.Duration),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if err := checkVector("desired_attitude", c.DesiredAttitude, 4); err != nil {
		return err
	}
	if _, err := c.Desired(); err != nil {
		return err
	}
	if _, err := c.InertiaTensor(); err != nil {
		return err
	}

	switch c.Frame {
	case FrameInertial, FrameNED:
	default:
		return fmt.Errorf("%w: frame %q", dynamo.ErrInvalidValue, c.Frame)
	}
	switch c.Integrator.Name {
	case IntegratorRK45:
	case IntegratorRK4:
		if c.Integrator.MaxStep == 0 {
			return fmt.Errorf("%w: rk4 needs max_step", dynamo.ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: integrator %q", dynamo.ErrInvalidValue, c.Integrator.Name)
	}
	if _, err := control.ParseIntegralMode(c.IntegralMode); err != nil {
		return err
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error", "none":
	default:
		return fmt.Errorf("%w: log level %q", dynamo.ErrInvalidValue, c.Log.Level)
	}
	switch c.Log.Format {
	case "", "logfmt", "json":
	default:
		return fmt.Errorf("%w: log format %q", dynamo.ErrInvalidValue, c.Log.Format)
	}
	return c.Initial.Validate()
}

// Desired returns the normalized desired attitude.
func (c *Config) Desired() (quat.Quaternion, error) {
	if len(c.DesiredAttitude) != 4 {
		return quat.Quaternion{}, fmt.Errorf("%w: desired_attitude needs 4 components", dynamo.ErrInvalidValue)
	}
	q, err := quat.Normalize(quat.FromSlice(c.DesiredAttitude))
	if err != nil {
		return quat.Quaternion{}, fmt.Errorf("%w: desired_attitude: %w", dynamo.ErrInvalidValue, err)
	}
	return q, nil
}

func (c *Config) InertiaTensor() (*physics.Inertia, error) {
	if len(c.Inertia) != 3 {
		return nil, fmt.Errorf("%w: inertia needs 3 diagonal components", dynamo.ErrInvalidValue)
	}
	in, err := physics.NewInertia(c.Inertia[0], c.Inertia[1], c.Inertia[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrInvalidValue, err)
	}
	return in, nil
}

func (c *Config) Properties() physics.Properties {
	return physics.Properties{
		Mass: c.Satellite.Mass,
		Area: c.Satellite.Area,
		Cd:   c.Satellite.Cd,
		Cr:   c.Satellite.Cr,
	}
}

// PolarAxis is the fixed axis derived angles are measured from: +Z in the
// inertial frame, up (-Z) in NED.
func (c *Config) PolarAxis() r3.Vec {
	if c.Frame == FrameNED {
		return r3.Vec{Z: -1}
	}
	return r3.Vec{Z: 1}
}

func vec3(s []float64) r3.Vec { return r3.Vec{X: s[0], Y: s[1], Z: s[2]} }

// defaultOrbit returns the frame's default position and velocity.
func (c *Config) defaultOrbit() (r3.Vec, r3.Vec) {
	if c.Frame == FrameNED {
		return r3.Vec{Z: -(physics.REarth + DefaultAltitude)}, r3.Vec{X: 7500}
	}
	return r3.Vec{X: 7000e3}, r3.Vec{Y: 7500}
}

// GetInitState builds the initial state vector from the frame defaults with
// c.Initial applied on top.
func (c *Config) GetInitState() (dynamo.State, error) {
	init := c.Initial
	if err := init.Validate(); err != nil {
		return nil, err
	}

	pos, vel := c.defaultOrbit()
	att := quat.Identity
	omega := r3.Vec{Z: DefaultSpinRate}

	switch {
	case init.Position != nil:
		pos = vec3(init.Position)
	case init.Altitude != nil:
		pos = r3.Scale(physics.REarth+*init.Altitude, r3.Unit(pos))
	}
	if init.Velocity != nil {
		vel = vec3(init.Velocity)
	}
	if init.Attitude != nil {
		q, err := quat.Normalize(quat.FromSlice(init.Attitude))
		if err != nil {
			return nil, fmt.Errorf("%w: attitude: %w", dynamo.ErrInvalidValue, err)
		}
		att = q
	}
	if init.AngularVelocity != nil {
		omega = vec3(init.AngularVelocity)
	}

	return dynamo.NewState(pos, vel, att, omega), nil
}

func (c *Config) GetControllerParams() map[string]float64 {
	return map[string]float64{
		"kp":         c.Gains.Kp,
		"ki":         c.Gains.Ki,
		"kd":         c.Gains.Kd,
		"max_torque": c.MaxTorque,
	}
}
