package timeline

import (
	"github.com/himanishpuri/EKGSync/internal/units"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

type options struct {
	duration    float64
	hasDuration bool
	start       float64
	hasStart    bool
}

// Option configures Generate.
type Option func(*options)

// WithDuration sets the span of the signal in seconds. Values <= 0 are
// treated as unavailable.
func WithDuration(seconds float64) Option {
	return func(o *options) {
		o.duration = seconds
		o.hasDuration = seconds > 0
	}
}

// WithAbsoluteStart anchors the timeline at an absolute time in seconds
// since Unix epoch.
func WithAbsoluteStart(seconds float64) Option {
	return func(o *options) {
		o.start = seconds
		o.hasStart = true
	}
}

// Generate builds an m-point timeline.
//
// With a valid duration the relative axis is m evenly spaced points over
// [0, duration], both ends included. Without one it falls back to the plain
// sample index and no absolute axis is produced. The absolute axis also
// requires an anchor from WithAbsoluteStart.
func Generate(m int, opts ...Option) models.SyntheticTimeline {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if m <= 0 {
		return models.SyntheticTimeline{RelativeSeconds: []float64{}}
	}

	if !o.hasDuration {
		rel := make([]float64, m)
		for k := range rel {
			rel[k] = float64(k)
		}
		return models.SyntheticTimeline{RelativeSeconds: rel}
	}

	rel := linspace(0, o.duration, m)
	tl := models.SyntheticTimeline{RelativeSeconds: rel}
	if o.hasStart {
		abs := make([]float64, m)
		for k, r := range rel {
			abs[k] = o.start + r
		}
		tl.AbsoluteSeconds = abs
	}
	return tl
}

// FromReference builds the timeline for ref's secondary signal. The duration
// and anchor come from the boundary timestamps when last > first.
func FromReference(ref models.ReferenceSeries) models.SyntheticTimeline {
	var opts []Option
	if d, ok := units.ReferenceDurationSeconds(ref.BoundaryFirst, ref.BoundaryLast); ok {
		opts = append(opts,
			WithDuration(d),
			WithAbsoluteStart(units.ReferenceStartSeconds(ref.BoundaryFirst)),
		)
	}
	return Generate(len(ref.Signal), opts...)
}

// linspace returns n evenly spaced values over [start, stop]; the last value
// is exactly stop.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for k := range out {
		out[k] = start + float64(k)*step
	}
	out[n-1] = stop
	return out
}
