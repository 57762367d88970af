package models

import "time"

// Recording is a stored ECG file that has been aligned at least once.
type Recording struct {
	ID          string // UUID
	Path        string
	SampleCount int
	FirstNs     int64
	LastNs      int64
	CreatedAt   time.Time
}

// Run status values.
const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// Run is one stored alignment outcome.
type Run struct {
	ID            string // UUID
	RecordingID   string
	ReferencePath string
	Mode          string
	StartIdx      int
	EndIdx        int
	SampleCount   int
	StartDiffNs   int64
	EndDiffNs     int64
	OutputDir     string
	Status        string // RunStatusOK or RunStatusFailed
	Error         string
	ReportJSON    string
	CreatedAt     time.Time
}
