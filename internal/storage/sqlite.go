//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

const DefaultDBFile = "ekgsync.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Recording struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Path        string `gorm:"uniqueIndex:idx_recording_unique,priority:1"`
	FirstNs     int64  `gorm:"uniqueIndex:idx_recording_unique,priority:2"`
	LastNs      int64
	SampleCount int
	CreatedAt   time.Time
}

type Run struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	RecordingID   string `gorm:"type:varchar(36);index:idx_run_recording"`
	ReferencePath string `gorm:"index:idx_run_reference"`
	Mode          string
	StartIdx      int
	EndIdx        int
	SampleCount   int
	StartDiffNs   int64
	EndDiffNs     int64
	OutputDir     string
	Status        string `gorm:"index:idx_run_status"`
	Error         string
	ReportJSON    string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index:idx_run_created"`
}

// NewDBClient opens the database named by EKGSYNC_DB_PATH, or DefaultDBFile.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("EKGSYNC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY between them
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Recording{}, &Run{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// RegisterRecording returns the ID of the recording with this path and first
// timestamp, creating it if needed.
func (c *DBClient) RegisterRecording(path string, sampleCount int, firstNs, lastNs int64) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	var rec Recording
	err := c.DB.Where("path = ? AND first_ns = ?", path, firstNs).First(&rec).Error
	if err == nil {
		if rec.SampleCount != sampleCount || rec.LastNs != lastNs {
			if err := c.DB.Model(&rec).Updates(map[string]any{"sample_count": sampleCount, "last_ns": lastNs}).Error; err != nil {
				return "", fmt.Errorf("updating recording: %w", err)
			}
		}
		return rec.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing recording: %w", err)
	}

	rec = Recording{ID: uuid.NewString(), Path: path, FirstNs: firstNs, LastNs: lastNs, SampleCount: sampleCount}
	if err := c.DB.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if fetchErr := c.DB.Where("path = ? AND first_ns = ?", path, firstNs).First(&rec).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching recording after constraint violation: %w", fetchErr)
			}
			return rec.ID, nil
		}
		return "", fmt.Errorf("creating recording: %w", err)
	}
	return rec.ID, nil
}

func (c *DBClient) GetRecording(id string) (*models.Recording, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rec Recording
	if err := c.DB.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("recording %s: %w", id, err)
	}
	out := rec.toModel()
	return &out, nil
}

func (c *DBClient) ListRecordings() ([]models.Recording, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []Recording
	if err := c.DB.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	out := make([]models.Recording, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// DeleteRecordingByID removes a recording and all of its runs.
func (c *DBClient) DeleteRecordingByID(id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recording_id = ?", id).Delete(&Run{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Recording{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("recording %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil
	})
}

// StoreRun persists run, assigning an ID when it has none, and returns the ID.
func (c *DBClient) StoreRun(run *models.Run) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if run == nil {
		return "", errors.New("nil run")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	row := runFromModel(*run)
	if err := c.DB.Create(&row).Error; err != nil {
		return "", fmt.Errorf("storing run: %w", err)
	}
	run.CreatedAt = row.CreatedAt
	return row.ID, nil
}

func (c *DBClient) GetRun(id string) (*models.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var row Run
	if err := c.DB.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	out := row.toModel()
	return &out, nil
}

// ListRuns returns runs newest first. A non-empty recordingID filters by
// recording.
func (c *DBClient) ListRuns(recordingID string) ([]models.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	q := c.DB.Order("created_at DESC")
	if recordingID != "" {
		q = q.Where("recording_id = ?", recordingID)
	}
	var rows []Run
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]models.Run, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (c *DBClient) DeleteRun(id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	res := c.DB.Where("id = ?", id).Delete(&Run{})
	if res.Error != nil {
		return fmt.Errorf("deleting run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// HasRunForReference reports whether a successful run exists for the
// reference file at path.
func (c *DBClient) HasRunForReference(path string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	var count int64
	if err := c.DB.Model(&Run{}).Where("reference_path = ? AND status = ?", path, models.RunStatusOK).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting runs: %w", err)
	}
	return count > 0, nil
}

func (r Recording) toModel() models.Recording {
	return models.Recording{
		ID:          r.ID,
		Path:        r.Path,
		SampleCount: r.SampleCount,
		FirstNs:     r.FirstNs,
		LastNs:      r.LastNs,
		CreatedAt:   r.CreatedAt,
	}
}

func (r Run) toModel() models.Run {
	return models.Run(r)
}

func runFromModel(m models.Run) Run {
	return Run(m)
}
