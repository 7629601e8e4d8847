// Package optim tunes controller parameters by exhaustive search.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/san-kum/satsim/internal/config"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/metrics"
	"github.com/san-kum/satsim/internal/sim"
)

var ErrNoResult = errors.New("optim: no trial produced the metric")

// GridSearch evaluates every combination of parameter values. Names are
// session parameters such as kp, kd or max_torque.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters, %d ranges", dynamo.ErrInvalidValue, len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("%w: empty range for %s", dynamo.ErrInvalidValue, params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points returns the grid in row-major order, last parameter fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[g.paramNames[depth]] = val
		g.collect(depth+1, next, out)
	}
}

// Trial is the outcome of one grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search holds the scenario every trial runs.
type Search struct {
	Config    *config.Config
	Overrides map[string]any
	Duration  float64
	Dt        float64
	Metric    string
	// NewMetrics defaults to DefaultMetrics.
	NewMetrics func() []dynamo.Metric
	Logger     log.Logger
}

// DefaultMetrics are the observers a tuning run scores against.
func DefaultMetrics() []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewAttitudeError(),
		metrics.NewControlEffort(),
		metrics.NewPointing(0.01),
	}
}

// Run evaluates the grid in parallel and returns the trial with the lowest
// metric, plus every trial in grid order. Failed trials are kept with their
// error and never win.
func (g *GridSearch) Run(ctx context.Context, s Search) (Trial, []Trial, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	newMetrics := s.NewMetrics
	if newMetrics == nil {
		newMetrics = DefaultMetrics
	}

	points := g.Points()
	variants := make([]sim.Variant, len(points))
	for i, p := range points {
		params := make(map[string]any, len(p))
		for k, v := range p {
			params[k] = v
		}
		variants[i] = sim.Variant{
			Name:      label(p),
			Config:    s.Config,
			Overrides: s.Overrides,
			Params:    params,
		}
	}

	results, err := sim.Sweep(ctx, variants, s.Duration, s.Dt, newMetrics, logger)
	if err != nil {
		return Trial{}, nil, err
	}

	best := Trial{Value: math.Inf(1)}
	trials := make([]Trial, len(results))
	for i, r := range results {
		trials[i] = Trial{Params: points[i], Value: math.NaN(), Err: r.Err}
		if r.Err != nil {
			level.Warn(logger).Log("msg", "trial failed", "params", variants[i].Name, "err", r.Err)
			continue
		}
		val, ok := r.Metrics[s.Metric]
		if !ok {
			trials[i].Err = fmt.Errorf("%w: %q not recorded", ErrNoResult, s.Metric)
			continue
		}
		trials[i].Value = val
		if val < best.Value {
			best = trials[i]
		}
	}

	if best.Params == nil {
		return Trial{}, trials, fmt.Errorf("%w: %s over %d trials", ErrNoResult, s.Metric, len(trials))
	}
	level.Info(logger).Log("msg", "grid search done", "trials", len(trials), "best", label(best.Params), s.Metric, best.Value)
	return best, trials, nil
}

func label(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, ",")
}
