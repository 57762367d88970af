package ekgsync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/EKGSync/internal/series"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

const ecgCSV = `sample_num,analog_value,timestamp_ns,timestamp_seconds
1,0.1,0,0
2,0.2,10000,0.00001
3,0.3,20000,0.00002
4,0.4,30000,0.00003
5,0.5,40000,0.00004
`

const refJSON = `{
  "UnixTimestampFirst": [0],
  "UnixTimestampLast": [25],
  "SignalsArterialVelocity_y": [1, 2, 3]
}`

type fixture struct {
	dir string
	ecg string
	ref string
	svc Service
}

func setup(t *testing.T, opts ...Option) fixture {
	t.Helper()
	dir := t.TempDir()

	ecg := filepath.Join(dir, "ecg.csv")
	require.NoError(t, os.WriteFile(ecg, []byte(ecgCSV), 0o644))
	ref := filepath.Join(dir, "holo.json")
	require.NoError(t, os.WriteFile(ref, []byte(refJSON), 0o644))

	opts = append([]Option{WithDBPath(filepath.Join(dir, "db", "test.sqlite3"))}, opts...)
	svc, err := NewService(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return fixture{dir: dir, ecg: ecg, ref: ref, svc: svc}
}

func TestAlignReferenceMode(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Align(context.Background(), AlignRequest{
		ECGPath:       f.ecg,
		ReferencePath: f.ref,
		Mode:          models.ModeReference,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.SampleCount)
	assert.Equal(t, 0, res.Report.StartIdx)
	assert.Equal(t, 2, res.Report.EndIdx)
	assert.Equal(t, filepath.Join(f.dir, "trimmed_ecg.csv"), res.Outputs.TrimmedCSV)
	assert.Equal(t, filepath.Join(f.dir, "holo_timeline.json"), res.Outputs.Timeline)
	assert.Empty(t, res.Outputs.Plot)

	samples, _, err := series.LoadCSV(res.Outputs.TrimmedCSV)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 3, samples[2].Index)

	info, err := os.ReadFile(res.Outputs.TrimInfo)
	require.NoError(t, err)
	assert.Contains(t, string(info), `"mode": "reference_anchored"`)
	assert.Contains(t, string(info), `"end_time_diff_ns": 5000`)

	var tl map[string]any
	raw, err := os.ReadFile(res.Outputs.Timeline)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &tl))
	assert.Equal(t, true, tl["meta"].(map[string]any)["has_absolute_unix_time"])

	run, err := f.svc.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusOK, run.Status)
	assert.Equal(t, int64(5000), run.EndDiffNs)
	assert.Equal(t, res.RecordingID, run.RecordingID)

	done, err := f.svc.HasRunForReference(f.ref)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAlignManualWithoutReference(t *testing.T) {
	f := setup(t, WithOutputDir(filepath.Join(t.TempDir(), "out")))

	res, err := f.svc.Align(context.Background(), AlignRequest{
		ECGPath:  f.ecg,
		Mode:     models.ModeManual,
		Start:    "30",
		End:      "0",
		Relative: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Report.StartIdx)
	assert.Equal(t, 3, res.Report.EndIdx)
	assert.Empty(t, res.Outputs.Timeline)
	assert.Nil(t, res.Report.HoloFirstNs)
	assert.True(t, strings.HasSuffix(res.Outputs.TrimmedCSV, filepath.Join("out", "trimmed_ecg.csv")))
}

func TestAlignExplicitOutputWithPreviews(t *testing.T) {
	f := setup(t, WithPlot(true), WithWAV(true))
	out := filepath.Join(f.dir, "custom", "cut.csv")

	res, err := f.svc.Align(context.Background(), AlignRequest{
		ECGPath:       f.ecg,
		ReferencePath: f.ref,
		Mode:          models.ModeReference,
		OutputPath:    out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, res.Outputs.TrimmedCSV)
	assert.Equal(t, filepath.Join(f.dir, "custom", "cut.json"), res.Outputs.TrimmedJSON)
	assert.Equal(t, filepath.Join(f.dir, "custom", "cut_trim_info.json"), res.Outputs.TrimInfo)
	assert.FileExists(t, res.Outputs.Plot)
	assert.FileExists(t, res.Outputs.WAV)
}

func TestAlignErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Align(ctx, AlignRequest{ECGPath: f.ecg, Mode: models.ModeReference})
	assert.ErrorIs(t, err, models.ErrMissingInput)

	_, err = f.svc.Align(ctx, AlignRequest{Mode: models.ModeManual, Start: "1", End: "2"})
	assert.ErrorIs(t, err, models.ErrMissingInput)

	_, err = f.svc.Align(ctx, AlignRequest{ECGPath: f.ecg, Mode: models.ModeManual, Start: "1"})
	assert.ErrorIs(t, err, models.ErrInvalidBounds)

	_, err = f.svc.Align(ctx, AlignRequest{ECGPath: filepath.Join(f.dir, "nope.csv"), ReferencePath: f.ref})
	assert.ErrorIs(t, err, models.ErrMissingInput)

	bad := filepath.Join(f.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"UnixTimestampFirst": 1}`), 0o644))
	_, err = f.svc.Align(ctx, AlignRequest{ECGPath: f.ecg, ReferencePath: bad})
	assert.ErrorIs(t, err, models.ErrMalformedRecord)

	// the failure is kept in the run history
	runs, err := f.svc.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Equal(t, bad, runs[0].ReferencePath)
}

func TestAlignBatch(t *testing.T) {
	f := setup(t)
	second := filepath.Join(f.dir, "holo2.yaml")
	require.NoError(t, os.WriteFile(second, []byte("UnixTimestampFirst: 10\nUnixTimestampLast: 40\n"), 0o644))
	missing := filepath.Join(f.dir, "missing.json")

	refs := []string{f.ref, missing, second}
	outcomes, err := f.svc.AlignBatch(context.Background(), f.ecg, refs, BatchOptions{Mode: models.ModeReference, SkipDone: true})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, filepath.Join(f.dir, "holo", "trimmed_ecg.csv"), outcomes[0].Result.Outputs.TrimmedCSV)

	assert.ErrorIs(t, outcomes[1].Err, models.ErrMissingInput)
	assert.Nil(t, outcomes[1].Result)

	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, 1, outcomes[2].Result.Report.StartIdx)
	assert.Equal(t, 4, outcomes[2].Result.Report.EndIdx)
	assert.Empty(t, outcomes[2].Result.Outputs.Timeline)

	// both good references share one recording
	assert.Equal(t, outcomes[0].Result.RecordingID, outcomes[2].Result.RecordingID)

	again, err := f.svc.AlignBatch(context.Background(), f.ecg, refs, BatchOptions{Mode: models.ModeReference, SkipDone: true})
	require.NoError(t, err)
	assert.True(t, again[0].Skipped)
	assert.False(t, again[1].Skipped)
	assert.Error(t, again[1].Err)
	assert.True(t, again[2].Skipped)

	recs, err := f.svc.ListRecordings()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestAlignBatchCancelled(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := f.svc.AlignBatch(ctx, f.ecg, []string{f.ref}, BatchOptions{Mode: models.ModeReference})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}

func TestAlignBatchNoReferences(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AlignBatch(context.Background(), f.ecg, nil, BatchOptions{})
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestExportTimeline(t *testing.T) {
	f := setup(t)

	payload, err := f.svc.ExportTimeline(context.Background(), f.ref, "")
	require.NoError(t, err)
	assert.Equal(t, 3, payload.Meta.Count)
	assert.Equal(t, []float64{0, 1.25e-5, 2.5e-5}, payload.TRelS)
	assert.FileExists(t, filepath.Join(f.dir, "holo_timeline.json"))

	noSignal := filepath.Join(f.dir, "bare.json")
	require.NoError(t, os.WriteFile(noSignal, []byte(`{"UnixTimestampFirst": 1, "UnixTimestampLast": 2}`), 0o644))
	_, err = f.svc.ExportTimeline(context.Background(), noSignal, "")
	assert.ErrorIs(t, err, models.ErrEmptyResult)
}

func TestInspect(t *testing.T) {
	f := setup(t)

	r, err := f.svc.Inspect(f.ecg)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Count)
	assert.InDelta(t, 0.01, r.MeanIntervalMs, 1e-12)
	assert.InDelta(t, 100_000, r.EffectiveHz, 1e-6)
}

func TestRunAndRecordingLifecycle(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Align(context.Background(), AlignRequest{ECGPath: f.ecg, ReferencePath: f.ref})
	require.NoError(t, err)

	_, err = f.svc.GetRun("does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.svc.DeleteRun(res.RunID))
	assert.ErrorIs(t, f.svc.DeleteRun(res.RunID), models.ErrNotFound)

	require.NoError(t, f.svc.DeleteRecording(res.RecordingID))
	assert.ErrorIs(t, f.svc.DeleteRecording(res.RecordingID), models.ErrNotFound)

	recs, err := f.svc.ListRecordings()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAlignWithNonFiniteReading(t *testing.T) {
	f := setup(t)
	ecg := filepath.Join(f.dir, "nan.csv")
	require.NoError(t, os.WriteFile(ecg, []byte("sample_num,analog_value,timestamp_ns\n1,1.0,1000\n2,nan,2000\n3,2.0,3000\n"), 0o644))

	res, err := f.svc.Align(context.Background(), AlignRequest{
		ECGPath: ecg,
		Mode:    models.ModeManual,
		Start:   "0",
		End:     "3",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SampleCount)
	assert.FileExists(t, res.Outputs.TrimmedJSON)

	run, err := f.svc.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusOK, run.Status)
}
