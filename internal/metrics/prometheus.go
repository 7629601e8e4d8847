package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports session progress to Prometheus.
type Collector struct {
	gatherer prometheus.Gatherer

	Steps         prometheus.Counter
	Rejected      prometheus.Counter
	Failures      prometheus.Counter
	StepDuration  prometheus.Histogram
	Radius        prometheus.Gauge
	AttitudeError prometheus.Gauge
}

// NewCollector registers the satsim metrics against reg, defaulting to the
// global registry when nil. Registering twice on the same registry reuses
// the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satsim_steps_total",
		Help: "Completed session steps.",
	}), "satsim_steps_total")
	if err != nil {
		return nil, err
	}
	rejected, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satsim_rejected_substeps_total",
		Help: "Integrator sub-steps rejected by error control.",
	}), "satsim_rejected_substeps_total")
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satsim_failures_total",
		Help: "Steps that left the session failed.",
	}), "satsim_failures_total")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satsim_step_duration_seconds",
		Help:    "Wall-clock time spent in one session step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "satsim_step_duration_seconds")
	if err != nil {
		return nil, err
	}
	radius, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satsim_orbit_radius_meters",
		Help: "Orbital radius after the latest step.",
	}), "satsim_orbit_radius_meters")
	if err != nil {
		return nil, err
	}
	attErr, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satsim_attitude_error_radians",
		Help: "Attitude error after the latest step.",
	}), "satsim_attitude_error_radians")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Steps:         steps,
		Rejected:      rejected,
		Failures:      failures,
		StepDuration:  duration,
		Radius:        radius,
		AttitudeError: attErr,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// RecordStep notes one completed step.
func (c *Collector) RecordStep(radius, attitudeError float64, rejected int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.Rejected.Add(float64(rejected))
	c.StepDuration.Observe(elapsed.Seconds())
	c.Radius.Set(radius)
	c.AttitudeError.Set(attitudeError)
}

func (c *Collector) RecordFailure() {
	if c == nil {
		return
	}
	c.Failures.Inc()
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
