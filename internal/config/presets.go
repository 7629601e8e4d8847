package config

import (
	"math"
	"sort"
)

func ptr(v float64) *float64 { return &v }

// Presets are named scenarios applied on top of DefaultConfig.
var Presets = map[string]func(*Config){
	"leo": func(c *Config) {},
	"iss": func(c *Config) {
		// 408 km circular, 51.6° inclination
		inc := 51.6 * math.Pi / 180
		c.Initial = InitialConfig{
			Altitude: ptr(408e3),
			Velocity: []float64{0, 7668 * math.Cos(inc), 7668 * math.Sin(inc)},
		}
		c.Duration = 5560
		c.Dt = 1.0
	},
	"detumble": func(c *Config) {
		c.Gains = GainsConfig{Kp: 0.08, Ki: 0, Kd: 2.0}
		c.Initial.AngularVelocity = []float64{0.05, -0.03, 0.02}
		c.Duration = 300
	},
	"slew": func(c *Config) {
		// 30° about body z
		half := 15 * math.Pi / 180
		c.DesiredAttitude = []float64{math.Cos(half), 0, 0, math.Sin(half)}
		c.Gains = GainsConfig{Kp: 0.5, Ki: 0, Kd: 4.0}
		c.Initial.AngularVelocity = []float64{0, 0, 0}
		c.Duration = 300
	},
	"conservative": func(c *Config) {
		c.Gains = GainsConfig{}
		c.Perturbations = PerturbationConfig{}
		c.Integrator.RTol = 1e-9
		c.Integrator.ATol = 1e-9
		c.Integrator.MaxStep = 60
		c.Initial.AngularVelocity = []float64{0, 0, 0}
		c.Initial.Velocity = []float64{0, 7546.05, 0}
		c.Dt = 10
		c.Duration = 5828.5
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
