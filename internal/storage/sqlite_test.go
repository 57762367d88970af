package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_ekgsync.sqlite3")
	t.Setenv("EKGSYNC_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func sampleRun(recordingID, refPath, status string) *models.Run {
	return &models.Run{
		RecordingID:   recordingID,
		ReferencePath: refPath,
		Mode:          models.ModeReference.String(),
		StartIdx:      10,
		EndIdx:        20,
		SampleCount:   11,
		StartDiffNs:   250,
		EndDiffNs:     1200,
		OutputDir:     "out/" + filepath.Base(refPath),
		Status:        status,
		ReportJSON:    `{"mode":"reference_anchored"}`,
	}
}

// TestNewDBClient tests database initialization
func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

// TestNewDBClientWithCustomPath tests database creation in a missing directory
func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

// TestRegisterRecordingIdempotent tests that the same file and start returns the same ID
func TestRegisterRecordingIdempotent(t *testing.T) {
	client, _ := setupTestDB(t)

	id1, err := client.RegisterRecording("data/ecg.csv", 100, 1_000, 2_000)
	if err != nil {
		t.Fatalf("Failed to register recording: %v", err)
	}
	if id1 == "" {
		t.Fatal("Expected non-empty recording ID")
	}

	id2, err := client.RegisterRecording("data/ecg.csv", 120, 1_000, 2_400)
	if err != nil {
		t.Fatalf("Failed to register recording again: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Expected same recording ID, got %s and %s", id1, id2)
	}

	rec, err := client.GetRecording(id1)
	if err != nil {
		t.Fatalf("Failed to fetch recording: %v", err)
	}
	if rec.SampleCount != 120 || rec.LastNs != 2_400 {
		t.Errorf("Expected updated count/last (120, 2400), got (%d, %d)", rec.SampleCount, rec.LastNs)
	}

	// a different start is a different recording
	id3, err := client.RegisterRecording("data/ecg.csv", 100, 5_000, 6_000)
	if err != nil {
		t.Fatalf("Failed to register second recording: %v", err)
	}
	if id3 == id1 {
		t.Error("Expected a new ID for a different first timestamp")
	}

	recs, err := client.ListRecordings()
	if err != nil {
		t.Fatalf("Failed to list recordings: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("Expected 2 recordings, got %d", len(recs))
	}
}

// TestStoreAndGetRun tests the run round trip through the database
func TestStoreAndGetRun(t *testing.T) {
	client, _ := setupTestDB(t)

	recID, _ := client.RegisterRecording("ecg.csv", 50, 0, 49)
	run := sampleRun(recID, "refs/a.json", models.RunStatusOK)

	id, err := client.StoreRun(run)
	if err != nil {
		t.Fatalf("Failed to store run: %v", err)
	}
	if id == "" || run.ID != id {
		t.Fatalf("Expected run ID to be assigned, got %q / %q", id, run.ID)
	}

	got, err := client.GetRun(id)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.RecordingID != recID || got.StartIdx != 10 || got.EndIdx != 20 || got.EndDiffNs != 1200 {
		t.Errorf("Unexpected run fields: %+v", got)
	}
	if got.ReportJSON != run.ReportJSON {
		t.Errorf("Expected report %q, got %q", run.ReportJSON, got.ReportJSON)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

// TestGetRunNotFound tests the not-found error is recognizable
func TestGetRunNotFound(t *testing.T) {
	client, _ := setupTestDB(t)

	_, err := client.GetRun("missing")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected gorm.ErrRecordNotFound, got %v", err)
	}
	if err := client.DeleteRun("missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected gorm.ErrRecordNotFound on delete, got %v", err)
	}
}

// TestListRunsFilter tests listing all runs and runs of one recording
func TestListRunsFilter(t *testing.T) {
	client, _ := setupTestDB(t)

	recA, _ := client.RegisterRecording("a.csv", 10, 0, 9)
	recB, _ := client.RegisterRecording("b.csv", 10, 0, 9)
	for _, r := range []*models.Run{
		sampleRun(recA, "r1.json", models.RunStatusOK),
		sampleRun(recA, "r2.json", models.RunStatusFailed),
		sampleRun(recB, "r3.json", models.RunStatusOK),
	} {
		if _, err := client.StoreRun(r); err != nil {
			t.Fatalf("Failed to store run: %v", err)
		}
	}

	all, err := client.ListRuns("")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 runs, got %d", len(all))
	}

	onlyA, err := client.ListRuns(recA)
	if err != nil {
		t.Fatalf("Failed to list runs for recording: %v", err)
	}
	if len(onlyA) != 2 {
		t.Errorf("Expected 2 runs for recording A, got %d", len(onlyA))
	}
}

// TestHasRunForReference tests that only successful runs count
func TestHasRunForReference(t *testing.T) {
	client, _ := setupTestDB(t)

	recID, _ := client.RegisterRecording("ecg.csv", 10, 0, 9)
	client.StoreRun(sampleRun(recID, "failed.json", models.RunStatusFailed))
	client.StoreRun(sampleRun(recID, "done.json", models.RunStatusOK))

	tests := []struct {
		path string
		want bool
	}{
		{"done.json", true},
		{"failed.json", false},
		{"never.json", false},
	}
	for _, tt := range tests {
		got, err := client.HasRunForReference(tt.path)
		if err != nil {
			t.Fatalf("HasRunForReference(%s): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("HasRunForReference(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// TestDeleteRecordingCascades tests that a recording's runs go with it
func TestDeleteRecordingCascades(t *testing.T) {
	client, _ := setupTestDB(t)

	recID, _ := client.RegisterRecording("ecg.csv", 10, 0, 9)
	keepID, _ := client.RegisterRecording("other.csv", 10, 0, 9)
	client.StoreRun(sampleRun(recID, "a.json", models.RunStatusOK))
	client.StoreRun(sampleRun(recID, "b.json", models.RunStatusOK))
	client.StoreRun(sampleRun(keepID, "c.json", models.RunStatusOK))

	if err := client.DeleteRecordingByID(recID); err != nil {
		t.Fatalf("Failed to delete recording: %v", err)
	}

	var count int64
	client.DB.Model(&Run{}).Where("recording_id = ?", recID).Count(&count)
	if count != 0 {
		t.Errorf("Expected 0 runs after deletion, found %d", count)
	}
	client.DB.Model(&Run{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected the other recording's run to remain, found %d runs", count)
	}

	if err := client.DeleteRecordingByID(recID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

// TestDeleteRun tests removing a single run
func TestDeleteRun(t *testing.T) {
	client, _ := setupTestDB(t)

	recID, _ := client.RegisterRecording("ecg.csv", 10, 0, 9)
	id, _ := client.StoreRun(sampleRun(recID, "a.json", models.RunStatusOK))

	if err := client.DeleteRun(id); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}
	if _, err := client.GetRun(id); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected run to be gone, got %v", err)
	}
}

// TestNilClient tests that a nil client fails cleanly
func TestNilClient(t *testing.T) {
	var client *DBClient

	if err := client.Close(); err != nil {
		t.Errorf("Expected nil error closing nil client, got %v", err)
	}
	if _, err := client.RegisterRecording("x", 0, 0, 0); err == nil {
		t.Error("Expected error from nil client")
	}
	if _, err := client.StoreRun(&models.Run{}); err == nil {
		t.Error("Expected error from nil client")
	}
}
