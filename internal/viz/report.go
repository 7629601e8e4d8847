package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

func deg(rad float64) float64 { return rad * 180 / math.Pi }

// RenderReport formats a step report as a label/value panel.
func RenderReport(r sim.Report) string {
	var b strings.Builder
	b.WriteString(row("Time", fmt.Sprintf("%.1f s", r.Time)))
	b.WriteString(row("Altitude", fmt.Sprintf("%.2f km", (r.Radius-physics.REarth)/1e3)))
	b.WriteString(row("Latitude", fmt.Sprintf("%.2f°", r.Latitude)))
	b.WriteString(row("Longitude", fmt.Sprintf("%.2f°", r.Longitude)))
	b.WriteString(row("V radial", fmt.Sprintf("%.2f m/s", r.RadialVelocity)))
	b.WriteString(row("V tangential", fmt.Sprintf("%.2f m/s", r.TangentialVelocity)))
	q := r.Quaternion
	b.WriteString(row("Attitude", fmt.Sprintf("[%.4f %.4f %.4f %.4f]", q.W, q.X, q.Y, q.Z)))
	b.WriteString(row("Att. error", fmt.Sprintf("%.3f°", deg(r.AttitudeError))))
	b.WriteString(row("|ω|", fmt.Sprintf("%.4f rad/s", r3.Norm(r.AngularVelocity))))
	b.WriteString(row("|τ|", fmt.Sprintf("%.4g N·m", r3.Norm(r.Torque))))
	b.WriteString(row("Step time", fmt.Sprintf("%.2f ms", float64(r.StepTime.Microseconds())/1e3)))
	return b.String()
}

// RenderParams lists the controller parameters in name order, marking
// selected.
func RenderParams(params map[string]float64, selected string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		line := fmt.Sprintf("%-11s %.4g", k, params[k])
		if k == selected {
			b.WriteString(activeStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + labelStyle.UnsetWidth().Render(line) + "\n")
		}
	}
	return b.String()
}

// Plot draws values with asciigraph. Fewer than two values give "".
func Plot(caption string, values []float64, width, height int) string {
	if len(values) < 2 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Precision(3),
		asciigraph.Caption(caption),
	)
}

// Series is a fixed-capacity history of samples, oldest first.
type Series struct {
	values   []float64
	capacity int
}

func NewSeries(capacity int) *Series {
	return &Series{values: make([]float64, 0, capacity), capacity: capacity}
}

func (s *Series) Push(v float64) {
	if len(s.values) == s.capacity {
		copy(s.values, s.values[1:])
		s.values = s.values[:len(s.values)-1]
	}
	s.values = append(s.values, v)
}

func (s *Series) Values() []float64 { return s.values }
func (s *Series) Len() int          { return len(s.values) }
func (s *Series) Reset()            { s.values = s.values[:0] }

// History collects reports from a session for the summary charts.
type History struct {
	Radius        *Series
	AttitudeError *Series
	Torque        *Series
}

func NewHistory(capacity int) *History {
	return &History{
		Radius:        NewSeries(capacity),
		AttitudeError: NewSeries(capacity),
		Torque:        NewSeries(capacity),
	}
}

// OnStep implements sim.Observer.
func (h *History) OnStep(r sim.Report) {
	h.Radius.Push(r.Radius / 1e3)
	h.AttitudeError.Push(deg(r.AttitudeError))
	h.Torque.Push(r3.Norm(r.Torque))
}

func (h *History) Reset() {
	h.Radius.Reset()
	h.AttitudeError.Reset()
	h.Torque.Reset()
}

// Summary renders the final report and the recorded charts.
func Summary(title string, last sim.Report, h *History, metrics map[string]float64) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.ToUpper(title)) + "\n")
	b.WriteString(RenderReport(last))

	if len(metrics) > 0 {
		b.WriteString("\n")
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(row(k, fmt.Sprintf("%.6g", metrics[k])))
		}
	}

	if h != nil {
		for _, c := range []struct {
			caption string
			s       *Series
		}{
			{"radius (km)", h.Radius},
			{"attitude error (deg)", h.AttitudeError},
		} {
			if chart := Plot(c.caption, c.s.Values(), 60, 8); chart != "" {
				b.WriteString("\n" + graphStyle.Render(chart) + "\n")
			}
		}
	}
	return b.String()
}
