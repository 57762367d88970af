package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/himanishpuri/EKGSync/pkg/models"
	"github.com/himanishpuri/EKGSync/pkg/utils"
)

// CSVHeader is the column order of trimmed series files.
var CSVHeader = []string{"sample_num", "analog_value", "timestamp_ns", "timestamp_seconds"}

// SampleWriter streams samples as CSV rows, writing the header first.
type SampleWriter struct {
	cw  *csv.Writer
	row []string
}

func NewSampleWriter(w io.Writer) (*SampleWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	return &SampleWriter{cw: cw, row: make([]string, len(CSVHeader))}, nil
}

func (sw *SampleWriter) Write(s models.Sample) error {
	sw.row[0] = strconv.Itoa(s.Index)
	sw.row[1] = strconv.FormatFloat(s.Value, 'f', -1, 64)
	sw.row[2] = strconv.FormatInt(s.TimestampNs, 10)
	sw.row[3] = strconv.FormatFloat(s.TimestampSeconds, 'f', -1, 64)
	if err := sw.cw.Write(sw.row); err != nil {
		return fmt.Errorf("writing csv row %d: %w", s.Index, err)
	}
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (sw *SampleWriter) Flush() error {
	sw.cw.Flush()
	return sw.cw.Error()
}

// WriteTrimmedCSV writes samples as CSV, header first.
func WriteTrimmedCSV(w io.Writer, samples []models.Sample) error {
	sw, err := NewSampleWriter(w)
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := sw.Write(s); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// WriteTrimmedJSON writes samples as a JSON array of sample records.
func WriteTrimmedJSON(w io.Writer, samples []models.Sample) error {
	out := make([]SampleRecord, len(samples))
	for i, s := range samples {
		out[i] = NewSampleRecord(s)
	}
	return WriteJSON(w, out)
}

// WriteJSON encodes v with two-space indentation.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

// SaveFile creates path's directory, writes through write into a temporary
// file and moves it into place once write succeeds.
func SaveFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath)

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	return utils.MoveFile(tmpPath, path)
}
