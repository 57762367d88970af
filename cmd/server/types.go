package main

import (
	"encoding/json"
	"time"

	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Upload limits for POST /api/align
const (
	// MaxUploadBytes bounds the whole multipart body (ECG + reference)
	MaxUploadBytes = 200 << 20

	// LargeUploadThreshold triggers logging for big ECG uploads
	LargeUploadThreshold = 50 << 20
)

// AlignResponse is the response for POST /api/align
type AlignResponse struct {
	Message string `json:"message"`
	*ekgsync.AlignResult
}

// RunDTO represents a stored run in API responses
type RunDTO struct {
	ID            string          `json:"id"`
	RecordingID   string          `json:"recording_id"`
	ReferencePath string          `json:"reference_path,omitempty"`
	Mode          string          `json:"mode"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	StartIdx      int             `json:"start_idx"`
	EndIdx        int             `json:"end_idx"`
	SampleCount   int             `json:"sample_count"`
	StartDiffNs   int64           `json:"start_time_diff_ns"`
	EndDiffNs     int64           `json:"end_time_diff_ns"`
	OutputDir     string          `json:"output_dir,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Report        json.RawMessage `json:"report,omitempty"`
}

func newRunDTO(run models.Run, withReport bool) RunDTO {
	dto := RunDTO{
		ID:            run.ID,
		RecordingID:   run.RecordingID,
		ReferencePath: run.ReferencePath,
		Mode:          run.Mode,
		Status:        run.Status,
		Error:         run.Error,
		StartIdx:      run.StartIdx,
		EndIdx:        run.EndIdx,
		SampleCount:   run.SampleCount,
		StartDiffNs:   run.StartDiffNs,
		EndDiffNs:     run.EndDiffNs,
		OutputDir:     run.OutputDir,
		CreatedAt:     run.CreatedAt,
	}
	if withReport && json.Valid([]byte(run.ReportJSON)) {
		dto.Report = json.RawMessage(run.ReportJSON)
	}
	return dto
}

// ListRunsResponse is the response for GET /api/runs
type ListRunsResponse struct {
	Runs  []RunDTO `json:"runs"`
	Count int      `json:"count"`
}

// RecordingDTO represents a recording in API responses
type RecordingDTO struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	SampleCount int       `json:"sample_count"`
	FirstNs     int64     `json:"first_ns"`
	LastNs      int64     `json:"last_ns"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListRecordingsResponse is the response for GET /api/recordings
type ListRecordingsResponse struct {
	Recordings []RecordingDTO `json:"recordings"`
	Count      int            `json:"count"`
}

// DeleteResponse is the response for DELETE /api/runs/{id} and /api/recordings/{id}
type DeleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status         string `json:"status"`
	DatabasePath   string `json:"database_path"`
	RecordingCount int    `json:"recording_count"`
	RunCount       int    `json:"run_count"`
	FailedRuns     int    `json:"failed_runs"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
