package sim

import (
	"context"
	"runtime"

	"github.com/go-kit/log"
	"github.com/san-kum/satsim/internal/config"
	"github.com/san-kum/satsim/internal/dynamo"
	"github.com/san-kum/satsim/internal/integrators"
	"golang.org/x/sync/errgroup"
)

// Variant is one configuration of a sweep. Params are applied with
// SetParameter before the session is initialized.
type Variant struct {
	Name      string
	Config    *config.Config
	Overrides map[string]any
	Params    map[string]any
}

// Result is the outcome of one variant. Err is set when the variant's
// session failed; the sweep itself carries on.
type Result struct {
	Name    string
	Final   Report
	Steps   int
	Metrics map[string]float64
	Stats   integrators.Stats
	Err     error
}

// Sweep runs every variant in its own session for duration seconds at
// step dt, at most runtime.NumCPU() at a time. newMetrics, if not nil,
// supplies fresh metrics for each session.
func Sweep(ctx context.Context, variants []Variant, duration, dt float64, newMetrics func() []dynamo.Metric, logger log.Logger) ([]Result, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	results := make([]Result, len(variants))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, v := range variants {
		g.Go(func() error {
			results[i] = runVariant(ctx, v, duration, dt, newMetrics, log.With(logger, "variant", v.Name))
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runVariant(ctx context.Context, v Variant, duration, dt float64, newMetrics func() []dynamo.Metric, logger log.Logger) Result {
	res := Result{Name: v.Name}

	s, err := New(v.Config, logger)
	if err != nil {
		res.Err = err
		return res
	}
	for name, value := range v.Params {
		if err := s.SetParameter(name, value); err != nil {
			res.Err = err
			return res
		}
	}
	if newMetrics != nil {
		for _, m := range newMetrics() {
			s.AddMetric(m)
		}
	}
	if err := s.Initialize(v.Overrides); err != nil {
		res.Err = err
		return res
	}

	res.Err = s.Run(ctx, duration, dt, nil)
	res.Final = s.Last()
	res.Steps = s.Steps()
	res.Metrics = s.Metrics()
	res.Stats = s.Stats()
	return res
}
