// Package analysis extracts frequency content from uniformly sampled runs,
// such as the attitude nutation left after a slew or the radial breathing
// of an eccentric orbit.
package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const minSamples = 8

// PowerSpectrum returns |X_k| for k in [0, n/2) of the mean-removed
// samples. Any length is accepted.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return nil
	}
	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	centred := make([]float64, n)
	for i, v := range data {
		centred[i] = v - mean
	}

	spec := fft.FFTReal(centred)
	ps := make([]float64, n/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// DominantPeriod returns the period of the strongest non-constant component
// of samples spaced dt apart. ok is false for short or flat input.
func DominantPeriod(data []float64, dt float64) (period float64, ok bool) {
	if len(data) < minSamples || !(dt > 0) {
		return 0, false
	}
	ps := PowerSpectrum(data)

	best, peak := 0, 0.0
	for k := 1; k < len(ps); k++ {
		if ps[k] > peak {
			best, peak = k, ps[k]
		}
	}
	if best == 0 || peak < 1e-12 {
		return 0, false
	}
	return float64(len(data)) * dt / float64(best), true
}
