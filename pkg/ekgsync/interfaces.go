package ekgsync

import (
	"context"

	"github.com/himanishpuri/EKGSync/internal/quality"
	"github.com/himanishpuri/EKGSync/internal/report"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

type Service interface {
	Align(ctx context.Context, req AlignRequest) (*AlignResult, error)
	AlignBatch(ctx context.Context, ecgPath string, refPaths []string, opts BatchOptions) ([]BatchOutcome, error)
	ExportTimeline(ctx context.Context, refPath, outPath string) (*report.TimelinePayload, error)
	Inspect(ecgPath string) (*quality.Report, error)
	ListRuns() ([]models.Run, error)
	GetRun(id string) (*models.Run, error)
	DeleteRun(id string) error
	ListRecordings() ([]models.Recording, error)
	DeleteRecording(id string) error
	HasRunForReference(path string) (bool, error)
	Close() error
}

// Storage persists recordings and alignment runs. Lookups of unknown IDs
// return an error wrapping models.ErrNotFound.
type Storage interface {
	RegisterRecording(path string, sampleCount int, firstNs, lastNs int64) (string, error)
	StoreRun(run *models.Run) (string, error)
	GetRun(id string) (*models.Run, error)
	ListRuns(recordingID string) ([]models.Run, error)
	DeleteRun(id string) error
	ListRecordings() ([]models.Recording, error)
	DeleteRecordingByID(id string) error
	HasRunForReference(path string) (bool, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
