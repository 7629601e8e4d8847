package config

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/san-kum/satsim/internal/dynamo"
)

// ToFloat converts a host-supplied scalar.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", dynamo.ErrInvalidValue, x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %v (%T) is not a number", dynamo.ErrInvalidValue, v, v)
}

// ToVector converts a host-supplied sequence of exactly n numbers.
func ToVector(v any, n int) ([]float64, error) {
	var out []float64
	switch x := v.(type) {
	case []float64:
		out = cloneFloats(x)
	case []any:
		out = make([]float64, len(x))
		for i, e := range x {
			f, err := ToFloat(e)
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i, err)
			}
			out[i] = f
		}
	case []int:
		out = make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
	default:
		return nil, fmt.Errorf("%w: %v (%T) is not a vector", dynamo.ErrInvalidValue, v, v)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: want %d components, got %d", dynamo.ErrInvalidValue, n, len(out))
	}
	return out, nil
}

// overrideKeys maps accepted override names, including aliases, to the
// field they set.
var overrideKeys = map[string]string{
	"position":         "position",
	"r0":               "position",
	"velocity":         "velocity",
	"v0":               "velocity",
	"attitude":         "attitude",
	"quaternion":       "attitude",
	"q0":               "attitude",
	"angular_velocity": "angular_velocity",
	"omega":            "angular_velocity",
	"omega0":           "angular_velocity",
	"altitude":         "altitude",
}

// ParseOverrides converts a host override mapping into an InitialConfig.
// Nothing is returned unless every entry is valid.
func ParseOverrides(m map[string]any) (InitialConfig, error) {
	var out InitialConfig

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := overrideKeys[k]
		if !ok {
			return InitialConfig{}, fmt.Errorf("%w: override %q", dynamo.ErrUnknownParameter, k)
		}
		v := m[k]
		var err error
		switch field {
		case "position":
			out.Position, err = ToVector(v, 3)
		case "velocity":
			out.Velocity, err = ToVector(v, 3)
		case "attitude":
			out.Attitude, err = ToVector(v, 4)
		case "angular_velocity":
			out.AngularVelocity, err = ToVector(v, 3)
		case "altitude":
			var alt float64
			alt, err = ToFloat(v)
			out.Altitude = &alt
		}
		if err != nil {
			return InitialConfig{}, fmt.Errorf("override %q: %w", k, err)
		}
	}

	if err := out.Validate(); err != nil {
		return InitialConfig{}, err
	}
	return out, nil
}
