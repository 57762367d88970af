package ekgsync

import (
	"github.com/himanishpuri/EKGSync/internal/report"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// AlignRequest describes one alignment of an ECG file.
type AlignRequest struct {
	ECGPath string
	// ReferencePath is required in reference mode. In manual mode it is
	// optional and only feeds the timeline and plot outputs.
	ReferencePath string
	Mode          models.TrimMode

	// Manual bounds as integer microsecond text, read in manual mode.
	Start    string
	End      string
	Relative bool

	// OutputPath overrides the trimmed CSV location; the other outputs are
	// written beside it.
	OutputPath string
}

// Outputs lists the files written by an alignment. Empty fields were not
// produced.
type Outputs struct {
	TrimmedCSV  string `json:"trimmed_csv"`
	TrimmedJSON string `json:"trimmed_json"`
	TrimInfo    string `json:"trim_info"`
	Timeline    string `json:"timeline,omitempty"`
	Plot        string `json:"plot,omitempty"`
	WAV         string `json:"wav,omitempty"`
}

// AlignResult is the outcome of a successful alignment.
type AlignResult struct {
	RunID       string             `json:"run_id"`
	RecordingID string             `json:"recording_id"`
	Report      *report.TrimReport `json:"report"`
	Outputs     Outputs            `json:"outputs"`
	SampleCount int                `json:"sample_count"`

	Result *models.TrimResult `json:"-"`
}

// BatchOptions applies to every reference of a batch.
type BatchOptions struct {
	Mode     models.TrimMode
	Start    string
	End      string
	Relative bool
	// SkipDone skips references that already have a successful run.
	SkipDone bool
}

// BatchOutcome is the result for one reference of a batch. Exactly one of
// Result, Err is set unless Skipped.
type BatchOutcome struct {
	ReferencePath string
	Result        *AlignResult
	Err           error
	Skipped       bool
}
