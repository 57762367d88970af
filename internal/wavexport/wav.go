// Package wavexport renders a trimmed series as 16-bit mono PCM so it can be
// reviewed in any audio or waveform tool.
package wavexport

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/EKGSync/pkg/models"
	"github.com/himanishpuri/EKGSync/pkg/utils"
)

const (
	bitDepth    = 16
	pcmFormat   = 1
	maxAmp      = math.MaxInt16
	defaultRate = 1000
)

// PCM scales values into the int16 range, centered on the midpoint of
// their min and max. A constant series maps to silence.
func PCM(values []float64) []int {
	out := make([]int, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := (hi - lo) / 2
	if span == 0 {
		return out
	}
	mid := lo + span
	for i, v := range values {
		out[i] = int(math.Round((v - mid) / span * maxAmp))
	}
	return out
}

// Write saves samples to path as WAV at the given rate. A non-positive rate
// falls back to 1 kHz.
func Write(path string, samples []models.Sample, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: no samples to export", models.ErrEmptyResult)
	}
	if sampleRate <= 0 {
		sampleRate = defaultRate
	}

	if err := utils.MakeDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav: %w", err)
	}
	defer f.Close()

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           PCM(values),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return nil
}
