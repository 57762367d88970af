package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// ErrSourceClosed is returned by a ValueSource with no more readings.
var ErrSourceClosed = errors.New("value source closed")

// ValueSource yields one analog reading per call.
type ValueSource interface {
	Read(ctx context.Context) (float64, error)
}

// Sink receives each stamped sample as it is acquired.
type Sink func(models.Sample) error

// Scan polls src at hz readings per second and hands every stamped sample to
// sink until ctx is cancelled or src is exhausted. Sample numbers start at 1.
// It returns the number of samples delivered.
func Scan(ctx context.Context, src ValueSource, hz float64, sink Sink) (int, error) {
	if hz <= 0 {
		return 0, fmt.Errorf("%w: sampling rate must be positive, got %v", models.ErrInvalidBounds, hz)
	}
	log := logger.GetLogger()

	period := time.Duration(float64(time.Second) / hz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("Acquisition stopped after %d samples", count)
			return count, nil
		case <-ticker.C:
		}

		v, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || errors.Is(err, context.Canceled) {
				log.Infof("Acquisition source finished after %d samples", count)
				return count, nil
			}
			return count, fmt.Errorf("reading sample %d: %w", count+1, err)
		}

		count++
		if err := sink(models.NewSample(count, v, time.Now().UnixNano())); err != nil {
			return count, fmt.Errorf("delivering sample %d: %w", count, err)
		}
	}
}

// LineSource reads one numeric value per line, the way a serial ADC bridge
// prints them. Lines that do not parse, or parse to NaN or an infinity, are
// skipped.
//
// The underlying reader is drained by a goroutine, so Read returns as soon as
// ctx is cancelled even while the reader is blocked. That goroutine exits when
// the reader reaches EOF or fails.
type LineSource struct {
	r       io.Reader
	once    sync.Once
	lines   chan string
	err     error // set before lines is closed
	Skipped int
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, lines: make(chan string)}
}

func (s *LineSource) start() {
	go func() {
		defer close(s.lines)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			s.lines <- sc.Text()
		}
		s.err = sc.Err()
	}()
}

func (s *LineSource) Read(ctx context.Context) (float64, error) {
	s.once.Do(s.start)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var (
			text string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case text, ok = <-s.lines:
		}
		if !ok {
			if s.err != nil {
				return 0, s.err
			}
			return 0, ErrSourceClosed
		}

		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			s.Skipped++
			continue
		}
		return v, nil
	}
}
