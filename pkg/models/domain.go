package models

// Sample is one reading of the locally acquired ECG series.
type Sample struct {
	Index            int     // 1-based acquisition counter, not contiguous after trimming
	Value            float64 // raw analog value
	TimestampNs      int64   // nanoseconds since Unix epoch
	TimestampSeconds float64 // TimestampNs / 1e9, or the value stored alongside it
}

// NewSample builds a Sample deriving TimestampSeconds from the nanosecond stamp.
func NewSample(index int, value float64, timestampNs int64) Sample {
	return Sample{
		Index:            index,
		Value:            value,
		TimestampNs:      timestampNs,
		TimestampSeconds: float64(timestampNs) / 1e9,
	}
}

// ReferenceSeries is the externally recorded signal. Only its boundary
// timestamps are known; both are microseconds since Unix epoch and are not
// guaranteed to be ordered.
type ReferenceSeries struct {
	Source        string    // file the series was loaded from, if any
	BoundaryFirst float64   // UnixTimestampFirst, microseconds
	BoundaryLast  float64   // UnixTimestampLast, microseconds
	Signal        []float64 // optional secondary signal, nil when absent
}

// HasSignal reports whether the secondary signal is present and non-empty.
func (r *ReferenceSeries) HasSignal() bool {
	return r != nil && len(r.Signal) > 0
}

// AlignmentInterval is a normalized [StartNs, EndNs] window.
type AlignmentInterval struct {
	StartNs int64
	EndNs   int64
}

// Normalized returns the interval with StartNs <= EndNs.
func (a AlignmentInterval) Normalized() AlignmentInterval {
	if a.StartNs > a.EndNs {
		return AlignmentInterval{StartNs: a.EndNs, EndNs: a.StartNs}
	}
	return a
}

// ManualBounds are user-entered trim bounds in seconds. Both must be set.
type ManualBounds struct {
	Start              *float64
	End                *float64
	RelativeToECGStart bool
}

// Complete reports whether both bounds were supplied.
func (m ManualBounds) Complete() bool {
	return m.Start != nil && m.End != nil
}

// TrimMode selects how the trim interval is derived.
type TrimMode int

const (
	ModeReference TrimMode = iota
	ModeManual
)

func (m TrimMode) String() string {
	switch m {
	case ModeReference:
		return "reference_anchored"
	case ModeManual:
		return "manual_seconds"
	default:
		return "unknown"
	}
}

// TrimRequestInfo records what was asked for, after normalization.
// Reference* fields are set in reference mode, Input*/Resolved* in manual mode.
type TrimRequestInfo struct {
	Mode     TrimMode
	Interval AlignmentInterval

	ReferenceFirstNs int64
	ReferenceLastNs  int64

	RelativeToECGStart bool
	InputStartS        float64
	InputEndS          float64
	ResolvedStartAbsS  float64
	ResolvedEndAbsS    float64
}

// TrimResult is one immutable trim outcome.
type TrimResult struct {
	Samples          []Sample
	StartIndex       int
	EndIndex         int
	BoundaryDeltasNs [2]int64 // |chosen - requested| for start and end
	Request          TrimRequestInfo
}

// First returns the first retained sample.
func (t *TrimResult) First() (Sample, bool) {
	if t == nil || len(t.Samples) == 0 {
		return Sample{}, false
	}
	return t.Samples[0], true
}

// Last returns the last retained sample.
func (t *TrimResult) Last() (Sample, bool) {
	if t == nil || len(t.Samples) == 0 {
		return Sample{}, false
	}
	return t.Samples[len(t.Samples)-1], true
}

// SyntheticTimeline is a reconstructed time axis for a signal without
// per-sample timestamps. AbsoluteSeconds is nil when no anchor is known.
type SyntheticTimeline struct {
	RelativeSeconds []float64
	AbsoluteSeconds []float64
}

// HasAbsolute reports whether an absolute axis was produced.
func (s SyntheticTimeline) HasAbsolute() bool {
	return s.AbsoluteSeconds != nil
}
