// Package quality summarizes how well a recorded series was sampled and
// estimates its dominant rhythm.
package quality

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Report describes the sampling of a series.
type Report struct {
	Count          int     `json:"count"`
	DurationS      float64 `json:"duration_s"`
	EffectiveHz    float64 `json:"effective_hz"`
	MeanIntervalMs float64 `json:"mean_interval_ms"`
	JitterMs       float64 `json:"jitter_ms"` // standard deviation of the sample interval
	MaxGapMs       float64 `json:"max_gap_ms"`
	DominantHz     float64 `json:"dominant_hz"`
	FirstNs        int64   `json:"first_ns"`
	LastNs         int64   `json:"last_ns"`
}

// BPM converts the dominant frequency to beats per minute.
func (r Report) BPM() float64 {
	return r.DominantHz * 60
}

// Analyze computes a Report for samples sorted by timestamp. Fewer than two
// samples produce a report with only Count set.
func Analyze(samples []models.Sample) Report {
	r := Report{Count: len(samples)}
	if len(samples) == 0 {
		return r
	}
	r.FirstNs = samples[0].TimestampNs
	r.LastNs = samples[len(samples)-1].TimestampNs
	if len(samples) < 2 {
		return r
	}

	intervals := make([]float64, len(samples)-1)
	var sum float64
	for i := 1; i < len(samples); i++ {
		d := float64(samples[i].TimestampNs-samples[i-1].TimestampNs) / 1e6
		intervals[i-1] = d
		sum += d
		if d > r.MaxGapMs {
			r.MaxGapMs = d
		}
	}
	r.MeanIntervalMs = sum / float64(len(intervals))

	var sq float64
	for _, d := range intervals {
		sq += (d - r.MeanIntervalMs) * (d - r.MeanIntervalMs)
	}
	r.JitterMs = math.Sqrt(sq / float64(len(intervals)))

	r.DurationS = float64(r.LastNs-r.FirstNs) / 1e9
	if r.DurationS > 0 {
		r.EffectiveHz = float64(len(samples)-1) / r.DurationS
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	r.DominantHz = DominantFrequency(values, r.EffectiveHz)

	return r
}

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// DominantFrequency returns the frequency in Hz of the strongest non-DC
// component of values sampled at rate hz, or 0 when there is none.
func DominantFrequency(values []float64, hz float64) float64 {
	n := len(values)
	if n < 4 || hz <= 0 {
		return 0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	window := Hamming(n)
	frame := make([]float64, n)
	for i, v := range values {
		frame[i] = (v - mean) * window[i]
	}

	spectrum := fft.FFTReal(frame)
	mag := Magnitudes(spectrum)

	best, bestMag := 0, 0.0
	for k := 1; k < len(mag); k++ {
		if mag[k] > bestMag {
			best, bestMag = k, mag[k]
		}
	}
	if best == 0 || bestMag < 1e-12 {
		return 0
	}
	return float64(best) * hz / float64(n)
}

// Magnitudes returns |X[k]| for the positive-frequency half of spectrum.
func Magnitudes(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// Percentile returns the p-th percentile (0..100) of the sample values,
// using nearest-rank.
func Percentile(samples []models.Sample, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.Value
	}
	sort.Float64s(vals)
	rank := int(math.Ceil(p/100*float64(len(vals)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(vals) {
		rank = len(vals) - 1
	}
	return vals[rank]
}
