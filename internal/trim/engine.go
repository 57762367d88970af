package trim

import (
	"fmt"
	"math"

	"github.com/himanishpuri/EKGSync/internal/tsindex"
	"github.com/himanishpuri/EKGSync/internal/units"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// State is the lifecycle position of an Engine.
type State int

const (
	Uninitialized State = iota
	LocalLoaded
	ReferenceLoaded
	BothLoaded
	Trimmed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case LocalLoaded:
		return "LOCAL_LOADED"
	case ReferenceLoaded:
		return "REFERENCE_LOADED"
	case BothLoaded:
		return "BOTH_LOADED"
	case Trimmed:
		return "TRIMMED"
	default:
		return "UNKNOWN"
	}
}

// Request selects the trim mode. Manual is only read in ModeManual.
type Request struct {
	Mode   models.TrimMode
	Manual models.ManualBounds
}

// ReferenceRequest is a Request for a reference-anchored trim.
func ReferenceRequest() Request {
	return Request{Mode: models.ModeReference}
}

// ManualRequest is a Request for a manual trim in seconds.
func ManualRequest(start, end float64, relative bool) Request {
	return Request{
		Mode: models.ModeManual,
		Manual: models.ManualBounds{
			Start:              &start,
			End:                &end,
			RelativeToECGStart: relative,
		},
	}
}

// Engine aligns one local series against one reference series.
// The local series and its index are never modified after LoadLocal, so an
// Engine derived through WithReference can share them safely.
type Engine struct {
	local   []models.Sample
	index   *tsindex.Index
	ref     *models.ReferenceSeries
	trimmed bool
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// LoadLocal replaces the local series and rebuilds its index. The samples
// must already be sorted by timestamp; the engine keeps its own copy.
func (e *Engine) LoadLocal(samples []models.Sample) {
	cp := make([]models.Sample, len(samples))
	copy(cp, samples)
	e.local = cp
	e.index = tsindex.Build(cp)
	e.trimmed = false
}

// LoadReference replaces the reference series.
func (e *Engine) LoadReference(ref models.ReferenceSeries) {
	e.ref = &ref
	e.trimmed = false
}

// WithReference returns a new engine sharing this engine's local series and
// index, with ref as its reference.
func (e *Engine) WithReference(ref models.ReferenceSeries) *Engine {
	return &Engine{
		local: e.local,
		index: e.index,
		ref:   &ref,
	}
}

// Local returns the loaded local series. Callers must not modify it.
func (e *Engine) Local() []models.Sample {
	return e.local
}

// Reference returns the loaded reference, or nil.
func (e *Engine) Reference() *models.ReferenceSeries {
	return e.ref
}

// State reports the engine's lifecycle position.
func (e *Engine) State() State {
	hasLocal := len(e.local) > 0
	hasRef := e.ref != nil
	switch {
	case hasLocal && hasRef && e.trimmed:
		return Trimmed
	case hasLocal && hasRef:
		return BothLoaded
	case hasLocal:
		return LocalLoaded
	case hasRef:
		return ReferenceLoaded
	default:
		return Uninitialized
	}
}

// Trim resolves the requested interval against the local series and returns
// a fresh result. Previous results are never touched.
func (e *Engine) Trim(req Request) (*models.TrimResult, error) {
	var (
		info models.TrimRequestInfo
		err  error
	)

	switch req.Mode {
	case models.ModeReference:
		info, err = e.referenceInterval()
	case models.ModeManual:
		info, err = e.manualInterval(req.Manual)
	default:
		return nil, fmt.Errorf("unknown trim mode %d", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.slice(info)
	if err != nil {
		return nil, err
	}
	e.trimmed = true
	return result, nil
}

func (e *Engine) referenceInterval() (models.TrimRequestInfo, error) {
	if e.ref == nil {
		return models.TrimRequestInfo{}, fmt.Errorf("%w: no reference boundaries available", models.ErrNoDataLoaded)
	}
	if len(e.local) == 0 {
		return models.TrimRequestInfo{}, fmt.Errorf("%w: no local series loaded", models.ErrNoDataLoaded)
	}

	return models.TrimRequestInfo{
		Mode:             models.ModeReference,
		Interval:         units.ReferenceInterval(e.ref.BoundaryFirst, e.ref.BoundaryLast),
		ReferenceFirstNs: units.ReferenceToNanos(e.ref.BoundaryFirst),
		ReferenceLastNs:  units.ReferenceToNanos(e.ref.BoundaryLast),
	}, nil
}

func (e *Engine) manualInterval(b models.ManualBounds) (models.TrimRequestInfo, error) {
	if len(e.local) == 0 {
		return models.TrimRequestInfo{}, fmt.Errorf("%w: no local series loaded", models.ErrNoDataLoaded)
	}
	if !b.Complete() {
		return models.TrimRequestInfo{}, fmt.Errorf("%w: incomplete manual bounds", models.ErrInvalidBounds)
	}

	start, end := *b.Start, *b.End
	if start > end {
		start, end = end, start
	}

	startAbs, endAbs := start, end
	if b.RelativeToECGStart {
		t0 := e.local[0].TimestampSeconds
		startAbs = t0 + start
		endAbs = t0 + end
	}

	return models.TrimRequestInfo{
		Mode: models.ModeManual,
		Interval: models.AlignmentInterval{
			StartNs: units.SecondsToNanos(startAbs),
			EndNs:   units.SecondsToNanos(endAbs),
		},
		RelativeToECGStart: b.RelativeToECGStart,
		InputStartS:        start,
		InputEndS:          end,
		ResolvedStartAbsS:  startAbs,
		ResolvedEndAbsS:    endAbs,
	}, nil
}

func (e *Engine) slice(info models.TrimRequestInfo) (*models.TrimResult, error) {
	startIdx, okStart := e.index.Nearest(info.Interval.StartNs)
	endIdx, okEnd := e.index.Nearest(info.Interval.EndNs)
	if !okStart || !okEnd {
		return nil, fmt.Errorf("%w: could not locate nearest samples", models.ErrNoDataLoaded)
	}
	if startIdx > endIdx {
		startIdx, endIdx = endIdx, startIdx
	}

	out := make([]models.Sample, endIdx-startIdx+1)
	copy(out, e.local[startIdx:endIdx+1])

	return &models.TrimResult{
		Samples:    out,
		StartIndex: startIdx,
		EndIndex:   endIdx,
		BoundaryDeltasNs: [2]int64{
			absDiff(e.index.At(startIdx), info.Interval.StartNs),
			absDiff(e.index.At(endIdx), info.Interval.EndNs),
		},
		Request: info,
	}, nil
}

// absDiff returns |a - b|, saturating at math.MaxInt64.
func absDiff(a, b int64) int64 {
	if a < b {
		a, b = b, a
	}
	if d := a - b; d >= 0 {
		return d
	}
	return math.MaxInt64
}
