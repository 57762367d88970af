package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Scale factors. Reference boundaries arrive in microseconds and go straight
// to nanoseconds; manual bounds are microsecond counts that become seconds
// first. The two paths are kept separate on purpose and must not be merged.
const (
	referenceMicrosToNanos   = 1_000
	referenceMicrosToSeconds = 1_000_000.0
	manualMicrosToSeconds    = 1e-6
	secondsToNanos           = 1_000_000_000
)

// ReferenceToNanos converts a reference boundary (microseconds) to
// nanoseconds, truncating toward zero.
func ReferenceToNanos(us float64) int64 {
	return saturate(us * referenceMicrosToNanos)
}

// ReferenceInterval converts a reference boundary pair into a normalized
// nanosecond interval.
func ReferenceInterval(first, last float64) models.AlignmentInterval {
	return models.AlignmentInterval{
		StartNs: ReferenceToNanos(first),
		EndNs:   ReferenceToNanos(last),
	}.Normalized()
}

// ReferenceStartSeconds converts the first boundary to seconds since epoch.
func ReferenceStartSeconds(first float64) float64 {
	return first / referenceMicrosToSeconds
}

// ReferenceDurationSeconds returns (last - first) in seconds and whether the
// duration is usable, i.e. last > first.
func ReferenceDurationSeconds(first, last float64) (float64, bool) {
	if !(last > first) {
		return 0, false
	}
	return (last - first) / referenceMicrosToSeconds, true
}

// SecondsToNanos converts seconds to nanoseconds, truncating toward zero.
// Results beyond the int64 range saturate at its ends.
func SecondsToNanos(s float64) int64 {
	return saturate(s * secondsToNanos)
}

// saturate truncates ns toward zero, clamping to the int64 range. NaN maps to 0.
func saturate(ns float64) int64 {
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return int64(ns)
}

// ParseManualMicros parses a manual bound: a non-negative integer count of
// microseconds in plain text. The result is in seconds.
func ParseManualMicros(txt string) (float64, error) {
	s := strings.TrimSpace(txt)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", models.ErrInvalidBounds)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer microsecond count", models.ErrInvalidBounds, txt)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %q is negative", models.ErrInvalidBounds, txt)
	}
	return float64(v) * manualMicrosToSeconds, nil
}

// ParseManualBounds parses both manual bounds. Supplying only one of them is
// an error; supplying neither is also an error since there is nothing to trim to.
func ParseManualBounds(startTxt, endTxt string, relative bool) (models.ManualBounds, error) {
	hasStart := strings.TrimSpace(startTxt) != ""
	hasEnd := strings.TrimSpace(endTxt) != ""
	if !hasStart || !hasEnd {
		return models.ManualBounds{}, fmt.Errorf("%w: incomplete manual bounds, both start and end are required", models.ErrInvalidBounds)
	}

	start, err := ParseManualMicros(startTxt)
	if err != nil {
		return models.ManualBounds{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseManualMicros(endTxt)
	if err != nil {
		return models.ManualBounds{}, fmt.Errorf("end: %w", err)
	}

	return models.ManualBounds{
		Start:              &start,
		End:                &end,
		RelativeToECGStart: relative,
	}, nil
}
