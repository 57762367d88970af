package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/himanishpuri/EKGSync/internal/units"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Accepted header names per column, first match wins.
var (
	sampleNumColumns   = []string{"sample_num", "Sample#"}
	analogColumns      = []string{"analog_value", "analog", "Analog", "value"}
	timestampNsColumns = []string{"timestamp_ns", "Timestamp_ns"}
	timestampSColumns  = []string{"timestamp_seconds", "Timestamp_seconds"}
)

// LoadStats reports what a load had to repair.
type LoadStats struct {
	Rows      int  // data rows read
	Repaired  int  // rows with at least one field replaced by a default
	Reordered bool // input was not already in timestamp order
}

// LoadCSV reads a local series from path.
func LoadCSV(path string) ([]models.Sample, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, LoadStats{}, fmt.Errorf("%w: ecg file %s", models.ErrMissingInput, path)
		}
		return nil, LoadStats{}, fmt.Errorf("opening ecg file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV reads a local series with a header row. Unparsable fields are
// replaced with zero and the row is kept. When timestamp_ns is missing or
// unparsable it is derived from timestamp_seconds. The result is sorted by
// timestamp, keeping input order for equal timestamps.
func ReadCSV(r io.Reader) ([]models.Sample, LoadStats, error) {
	var stats LoadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []models.Sample{}, stats, nil
		}
		return nil, stats, fmt.Errorf("reading csv header: %w", err)
	}
	cols := newColumnSet(header)

	samples := make([]models.Sample, 0, 1024)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				// a broken line is repaired like any other malformed row
				stats.Rows++
				stats.Repaired++
				samples = append(samples, models.Sample{})
				continue
			}
			return nil, stats, fmt.Errorf("reading csv: %w", err)
		}

		stats.Rows++
		s, repaired := parseRow(cols, rec)
		if repaired {
			stats.Repaired++
		}
		samples = append(samples, s)
	}

	if !sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].TimestampNs < samples[j].TimestampNs }) {
		stats.Reordered = true
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].TimestampNs < samples[j].TimestampNs })
	}

	return samples, stats, nil
}

type columnSet struct {
	sampleNum, analog, timestampNs, timestampS int
}

func newColumnSet(header []string) columnSet {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	find := func(names []string) int {
		for _, n := range names {
			if i, ok := pos[n]; ok {
				return i
			}
		}
		return -1
	}
	return columnSet{
		sampleNum:   find(sampleNumColumns),
		analog:      find(analogColumns),
		timestampNs: find(timestampNsColumns),
		timestampS:  find(timestampSColumns),
	}
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseFinite parses a float, rejecting NaN and infinities, which cannot be
// serialized to JSON.
func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", v)
	}
	return f, nil
}

func parseRow(cols columnSet, rec []string) (models.Sample, bool) {
	var s models.Sample
	repaired := false

	if v := field(rec, cols.sampleNum); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			n = 0
			repaired = true
		}
		s.Index = n
	} else {
		repaired = true
	}

	if v := field(rec, cols.analog); v != "" {
		f, err := parseFinite(v)
		if err != nil {
			f = 0
			repaired = true
		}
		s.Value = f
	} else {
		repaired = true
	}

	secText := field(rec, cols.timestampS)
	seconds, secErr := parseFinite(secText)
	hasSeconds := secText != "" && secErr == nil

	nsText := field(rec, cols.timestampNs)
	ns, nsErr := strconv.ParseInt(nsText, 10, 64)
	switch {
	case nsText != "" && nsErr == nil:
		s.TimestampNs = ns
	case hasSeconds:
		s.TimestampNs = units.SecondsToNanos(seconds)
		if nsText != "" {
			repaired = true
		}
	default:
		repaired = true
	}

	if hasSeconds {
		s.TimestampSeconds = seconds
	} else {
		if secText != "" {
			repaired = true
		}
		s.TimestampSeconds = float64(s.TimestampNs) / 1_000_000_000
	}

	return s, repaired
}
