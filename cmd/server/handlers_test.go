package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

const ecgCSV = `sample_num,analog_value,timestamp_ns,timestamp_seconds
1,0.1,0,0
2,0.2,10000,0.00001
3,0.3,20000,0.00002
4,0.4,30000,0.00003
5,0.5,40000,0.00004
`

const refJSON = `{"UnixTimestampFirst": [0], "UnixTimestampLast": [25], "SignalsArterialVelocity_y": [1, 2, 3]}`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()

	svc, err := ekgsync.NewService(ekgsync.WithDBPath(filepath.Join(dir, "test.sqlite3")))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	s := NewServer(svc, &ServerConfig{
		DBPath:         filepath.Join(dir, "test.sqlite3"),
		UploadDir:      filepath.Join(dir, "uploads"),
		AllowedOrigins: []string{"*"},
	})
	return s.setupRoutes()
}

func alignRequest(t *testing.T, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, content := range files {
		name := "ecg.csv"
		if field == "reference" {
			name = "holo.json"
		}
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/align", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAlignEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, alignRequest(t, map[string]string{"ecg": ecgCSV, "reference": refJSON}, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		RunID       string `json:"run_id"`
		SampleCount int    `json:"sample_count"`
		Report      struct {
			Mode          string `json:"mode"`
			EndTimeDiffNs int64  `json:"end_time_diff_ns"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.SampleCount)
	assert.Equal(t, "reference_anchored", resp.Report.Mode)
	assert.Equal(t, int64(5000), resp.Report.EndTimeDiffNs)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run RunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusOK, run.Status)
	assert.NotEmpty(t, run.Report)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/"+resp.RunID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.RunID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlignEndpointSameUploadNames(t *testing.T) {
	h := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, content := range map[string]string{"ecg": ecgCSV, "reference": refJSON} {
		fw, err := mw.CreateFormFile(field, "session.json")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/align", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		SampleCount int `json:"sample_count"`
		Outputs     struct {
			TrimmedCSV  string `json:"trimmed_csv"`
			TrimmedJSON string `json:"trimmed_json"`
		} `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.SampleCount)
	assert.Equal(t, "trimmed_ecg_session.json", filepath.Base(resp.Outputs.TrimmedCSV))
	assert.Equal(t, "trimmed_ecg_session_samples.json", filepath.Base(resp.Outputs.TrimmedJSON))
}

func TestAlignEndpointManual(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, alignRequest(t,
		map[string]string{"ecg": ecgCSV},
		map[string]string{"start": "10", "end": "30", "relative": "true"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"mode":"manual_seconds"`)
}

func TestAlignEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		fields map[string]string
		want   int
	}{
		{"no ecg", map[string]string{"reference": refJSON}, nil, http.StatusBadRequest},
		{"no reference", map[string]string{"ecg": ecgCSV}, nil, http.StatusBadRequest},
		{"one bound", map[string]string{"ecg": ecgCSV}, map[string]string{"start": "10"}, http.StatusBadRequest},
		{"bad reference", map[string]string{"ecg": ecgCSV, "reference": `{"UnixTimestampFirst": 1}`}, nil, http.StatusBadRequest},
	}

	h := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, alignRequest(t, tt.files, tt.fields))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutesAndMethods(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/health/metrics", http.StatusOK},
		{http.MethodGet, "/api/runs", http.StatusOK},
		{http.MethodGet, "/api/recordings", http.StatusOK},
		{http.MethodGet, "/api/align", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/runs", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/recordings/nope", http.StatusNotFound},
		{http.MethodGet, "/api/runs/", http.StatusBadRequest},
		{http.MethodOptions, "/api/runs", http.StatusNoContent},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", models.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(models.ErrInvalidBounds))
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrNoDataLoaded))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(models.ErrEmptyResult))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}
