package report

import (
	"fmt"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// SampleRecord is the serialized form of a sample.
type SampleRecord struct {
	SampleNum        int     `json:"sample_num"`
	AnalogValue      float64 `json:"analog_value"`
	TimestampNs      int64   `json:"timestamp_ns"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
}

// NewSampleRecord converts a sample.
func NewSampleRecord(s models.Sample) SampleRecord {
	return SampleRecord{
		SampleNum:        s.Index,
		AnalogValue:      s.Value,
		TimestampNs:      s.TimestampNs,
		TimestampSeconds: s.TimestampSeconds,
	}
}

// TrimReport describes one trim. Field order is the serialized key order;
// pointer fields are omitted when the trim mode does not produce them.
type TrimReport struct {
	Mode               string        `json:"mode"`
	RelativeToECGStart *bool         `json:"relative_to_ecg_start,omitempty"`
	InputStartS        *float64      `json:"input_start_s,omitempty"`
	InputEndS          *float64      `json:"input_end_s,omitempty"`
	ResolvedStartAbsS  *float64      `json:"resolved_start_abs_s,omitempty"`
	ResolvedEndAbsS    *float64      `json:"resolved_end_abs_s,omitempty"`
	StartIdx           int           `json:"start_idx"`
	EndIdx             int           `json:"end_idx"`
	StartSample        *SampleRecord `json:"start_sample,omitempty"`
	EndSample          *SampleRecord `json:"end_sample,omitempty"`
	HoloFirstNs        *int64        `json:"holo_first_ns,omitempty"`
	HoloLastNs         *int64        `json:"holo_last_ns,omitempty"`
	StartTimeDiffNs    *int64        `json:"start_time_diff_ns,omitempty"`
	EndTimeDiffNs      *int64        `json:"end_time_diff_ns,omitempty"`
}

// BuildTrimReport formats a trim result. It performs no unit conversion.
func BuildTrimReport(res *models.TrimResult) (*TrimReport, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: no trim result", models.ErrEmptyResult)
	}

	req := res.Request
	rep := &TrimReport{
		Mode:     req.Mode.String(),
		StartIdx: res.StartIndex,
		EndIdx:   res.EndIndex,
	}

	switch req.Mode {
	case models.ModeManual:
		rep.RelativeToECGStart = ptr(req.RelativeToECGStart)
		rep.InputStartS = ptr(req.InputStartS)
		rep.InputEndS = ptr(req.InputEndS)
		rep.ResolvedStartAbsS = ptr(req.ResolvedStartAbsS)
		rep.ResolvedEndAbsS = ptr(req.ResolvedEndAbsS)
	case models.ModeReference:
		rep.HoloFirstNs = ptr(req.ReferenceFirstNs)
		rep.HoloLastNs = ptr(req.ReferenceLastNs)
	}

	if first, ok := res.First(); ok {
		rec := NewSampleRecord(first)
		rep.StartSample = &rec
		rep.StartTimeDiffNs = ptr(res.BoundaryDeltasNs[0])
	}
	if last, ok := res.Last(); ok {
		rec := NewSampleRecord(last)
		rep.EndSample = &rec
		rep.EndTimeDiffNs = ptr(res.BoundaryDeltasNs[1])
	}

	return rep, nil
}

// TimelineUnits names the units of the timeline payload.
type TimelineUnits struct {
	Velocity string `json:"velocity"`
	Time     string `json:"time"`
}

// TimelineMeta summarizes a timeline payload.
type TimelineMeta struct {
	Count               int           `json:"count"`
	Units               TimelineUnits `json:"units"`
	HasAbsoluteUnixTime bool          `json:"has_absolute_unix_time"`
}

// TimelinePayload is the secondary signal with its reconstructed time axis.
// UnixTimeS serializes as null when no absolute anchor exists.
type TimelinePayload struct {
	Meta      TimelineMeta `json:"meta"`
	TRelS     []float64    `json:"t_rel_s"`
	UnixTimeS []float64    `json:"unix_time_s"`
	Velocity  []float64    `json:"velocity"`
}

// BuildTimelinePayload pairs a signal with its timeline. An absent or empty
// signal is ErrEmptyResult.
func BuildTimelinePayload(signal []float64, tl models.SyntheticTimeline) (*TimelinePayload, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("%w: no secondary signal loaded", models.ErrEmptyResult)
	}
	if len(tl.RelativeSeconds) != len(signal) {
		return nil, fmt.Errorf("timeline has %d points, signal has %d", len(tl.RelativeSeconds), len(signal))
	}
	if tl.AbsoluteSeconds != nil && len(tl.AbsoluteSeconds) != len(signal) {
		return nil, fmt.Errorf("absolute timeline has %d points, signal has %d", len(tl.AbsoluteSeconds), len(signal))
	}

	return &TimelinePayload{
		Meta: TimelineMeta{
			Count:               len(signal),
			Units:               TimelineUnits{Velocity: "a.u.", Time: "s"},
			HasAbsoluteUnixTime: tl.HasAbsolute(),
		},
		TRelS:     tl.RelativeSeconds,
		UnixTimeS: tl.AbsoluteSeconds,
		Velocity:  signal,
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}
