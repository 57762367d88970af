package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service ekgsync.Service
	config  *ServerConfig
	log     ekgsync.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	UploadDir      string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service ekgsync.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().With("server"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrMissingInput),
		errors.Is(err, models.ErrInvalidBounds),
		errors.Is(err, models.ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoDataLoaded):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "EKGSync API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":          "GET /health",
			"metrics":         "GET /api/health/metrics",
			"align":           "POST /api/align",
			"runs":            "GET /api/runs",
			"getRun":          "GET /api/runs/{id}",
			"deleteRun":       "DELETE /api/runs/{id}",
			"recordings":      "GET /api/recordings",
			"deleteRecording": "DELETE /api/recordings/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListRecordings()
	if err != nil {
		s.log.Errorf("Failed to count recordings: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}
	runs, err := s.service.ListRuns()
	if err != nil {
		s.log.Errorf("Failed to count runs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	failed := 0
	for _, run := range runs {
		if run.Status != models.RunStatusOK {
			failed++
		}
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:         "healthy",
		DatabasePath:   s.config.DBPath,
		RecordingCount: len(recs),
		RunCount:       len(runs),
		FailedRuns:     failed,
	})
}

// handleAlign handles POST /api/align (multipart upload)
//
// Form fields: ecg (file, required), reference (file), start, end, relative.
// Without start/end the reference window is used; with them the manual
// window is used and the reference is optional.
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	start := strings.TrimSpace(r.FormValue("start"))
	end := strings.TrimSpace(r.FormValue("end"))
	mode := models.ModeReference
	if start != "" || end != "" {
		mode = models.ModeManual
	}

	// outputs are written beside the uploaded ECG, so each request gets its
	// own directory that outlives the request
	dir := filepath.Join(s.config.UploadDir, fmt.Sprintf("upload_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Errorf("Failed to create upload dir: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}

	ecgPath, err := s.saveUpload(r, "ecg", dir)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "ecg file is required")
		return
	}
	refPath, err := s.saveUpload(r, "reference", dir)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		s.respondError(w, http.StatusBadRequest, "Failed to read reference file")
		return
	}

	s.log.Infof("Aligning uploaded ECG %s (%s)", filepath.Base(ecgPath), mode)
	res, err := s.service.Align(ctx, ekgsync.AlignRequest{
		ECGPath:       ecgPath,
		ReferencePath: refPath,
		Mode:          mode,
		Start:         start,
		End:           end,
		Relative:      r.FormValue("relative") == "true",
	})
	if err != nil {
		s.log.Errorf("Failed to align: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to align: %v", err))
		return
	}

	s.log.Infof("Alignment complete: run %s kept %d samples", res.RunID, res.SampleCount)
	s.respondJSON(w, http.StatusCreated, AlignResponse{
		Message:     "Alignment complete",
		AlignResult: res,
	})
}

// saveUpload copies the named form file into dir as <field>_<name> and
// returns its path.
func (s *Server) saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if header.Size >= LargeUploadThreshold {
		s.log.Warnf("Large %s upload received: %d bytes", field, header.Size)
	}
	return copyUpload(file, filepath.Join(dir, field+"_"+filepath.Base(header.Filename)))
}

func copyUpload(src multipart.File, path string) (string, error) {
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, out.Close()
}

// handleListRuns handles GET /api/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns()
	if err != nil {
		s.log.Errorf("Failed to list runs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = newRunDTO(run, false)
	}

	s.respondJSON(w, http.StatusOK, ListRunsResponse{
		Runs:  dtos,
		Count: len(dtos),
	})
}

// handleGetRun handles GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.service.GetRun(id)
	if err != nil {
		s.log.Warnf("Run not found: %s", id)
		s.respondError(w, statusFor(err), fmt.Sprintf("Run with ID %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, newRunDTO(*run, true))
}

// handleDeleteRun handles DELETE /api/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteRun(id); err != nil {
		s.log.Errorf("Failed to delete run %s: %v", id, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to delete run %s", id))
		return
	}

	s.log.Infof("Deleted run %s", id)
	s.respondJSON(w, http.StatusOK, DeleteResponse{
		Message: "Run deleted successfully",
		ID:      id,
	})
}

// handleListRecordings handles GET /api/recordings
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListRecordings()
	if err != nil {
		s.log.Errorf("Failed to list recordings: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve recordings")
		return
	}

	dtos := make([]RecordingDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = RecordingDTO{
			ID:          rec.ID,
			Path:        rec.Path,
			SampleCount: rec.SampleCount,
			FirstNs:     rec.FirstNs,
			LastNs:      rec.LastNs,
			CreatedAt:   rec.CreatedAt,
		}
	}

	s.respondJSON(w, http.StatusOK, ListRecordingsResponse{
		Recordings: dtos,
		Count:      len(dtos),
	})
}

// handleDeleteRecording handles DELETE /api/recordings/{id}
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteRecording(id); err != nil {
		s.log.Errorf("Failed to delete recording %s: %v", id, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to delete recording %s", id))
		return
	}

	s.log.Infof("Deleted recording %s", id)
	s.respondJSON(w, http.StatusOK, DeleteResponse{
		Message: "Recording deleted successfully",
		ID:      id,
	})
}

// handleAlignRoute routes requests to /api/align
func (s *Server) handleAlignRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleAlign(w, r)
}

// handleRuns routes requests to /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleListRuns(w, r)
}

// handleRun routes requests to /api/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Run ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetRun(w, r, id)
	case http.MethodDelete:
		s.handleDeleteRun(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleRecordings routes requests to /api/recordings
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleListRecordings(w, r)
}

// handleRecording routes requests to /api/recordings/{id}
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/recordings/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Recording ID required")
		return
	}
	if r.Method != http.MethodDelete {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleDeleteRecording(w, r, id)
}
