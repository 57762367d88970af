package ekgsync

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/himanishpuri/EKGSync/internal/storage"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// storageAdapter adapts storage.DBClient to the Storage interface and maps
// gorm's not-found error onto models.ErrNotFound.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", models.ErrNotFound, err)
	}
	return err
}

func (s *storageAdapter) RegisterRecording(path string, sampleCount int, firstNs, lastNs int64) (string, error) {
	return s.db.RegisterRecording(path, sampleCount, firstNs, lastNs)
}

func (s *storageAdapter) StoreRun(run *models.Run) (string, error) {
	return s.db.StoreRun(run)
}

func (s *storageAdapter) GetRun(id string) (*models.Run, error) {
	run, err := s.db.GetRun(id)
	return run, notFound(err)
}

func (s *storageAdapter) ListRuns(recordingID string) ([]models.Run, error) {
	return s.db.ListRuns(recordingID)
}

func (s *storageAdapter) DeleteRun(id string) error {
	return notFound(s.db.DeleteRun(id))
}

func (s *storageAdapter) ListRecordings() ([]models.Recording, error) {
	return s.db.ListRecordings()
}

func (s *storageAdapter) DeleteRecordingByID(id string) error {
	return notFound(s.db.DeleteRecordingByID(id))
}

func (s *storageAdapter) HasRunForReference(path string) (bool, error) {
	return s.db.HasRunForReference(path)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}
