package wavexport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

func TestPCMScaling(t *testing.T) {
	assert.Equal(t, []int{-math.MaxInt16, 0, math.MaxInt16}, PCM([]float64{-2, 0, 2}))
	assert.Equal(t, []int{-math.MaxInt16, math.MaxInt16}, PCM([]float64{10, 20}))
	assert.Equal(t, []int{0, 0}, PCM([]float64{3, 3}))
	assert.Empty(t, PCM(nil))
}

func TestWriteDecodes(t *testing.T) {
	samples := make([]models.Sample, 64)
	for i := range samples {
		samples[i] = models.NewSample(i+1, math.Sin(float64(i)/4), int64(i)*2_000_000)
	}

	path := filepath.Join(t.TempDir(), "nested", "ecg.wav")
	require.NoError(t, Write(path, samples, 500))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, uint32(500), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(1), dec.NumChans)
	require.Len(t, buf.Data, len(samples))

	want := PCM(func() []float64 {
		v := make([]float64, len(samples))
		for i, s := range samples {
			v[i] = s.Value
		}
		return v
	}())
	assert.Equal(t, want, buf.Data)
}

func TestWriteEmpty(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "x.wav"), nil, 100)
	assert.ErrorIs(t, err, models.ErrEmptyResult)
}
