package ekgsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/himanishpuri/EKGSync/internal/plot"
	"github.com/himanishpuri/EKGSync/internal/quality"
	"github.com/himanishpuri/EKGSync/internal/reference"
	"github.com/himanishpuri/EKGSync/internal/report"
	"github.com/himanishpuri/EKGSync/internal/series"
	"github.com/himanishpuri/EKGSync/internal/timeline"
	"github.com/himanishpuri/EKGSync/internal/trim"
	"github.com/himanishpuri/EKGSync/internal/units"
	"github.com/himanishpuri/EKGSync/internal/wavexport"
	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
	"github.com/himanishpuri/EKGSync/pkg/utils"
)

// ekgService is the default implementation of the Service interface.
type ekgService struct {
	storage Storage
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("ekgsync")
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &ekgService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// loadedECG is a local series loaded once and shared read-only by every
// alignment against it.
type loadedECG struct {
	path        string
	engine      *trim.Engine
	recordingID string
}

// outputPlan holds the destination of every output; empty paths are skipped.
type outputPlan struct {
	csv, json, info, timeline, plot, wav string
}

// Align loads the ECG and reference, trims, writes the outputs and records
// the run.
func (s *ekgService) Align(ctx context.Context, req AlignRequest) (*AlignResult, error) {
	if req.ECGPath == "" {
		return nil, fmt.Errorf("%w: ecg path is required", models.ErrMissingInput)
	}
	if req.Mode == models.ModeReference && req.ReferencePath == "" {
		return nil, fmt.Errorf("%w: reference path is required in %s mode", models.ErrMissingInput, req.Mode)
	}
	treq, err := trimRequest(req.Mode, req.Start, req.End, req.Relative)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.log.Infof("Aligning %s (%s)", req.ECGPath, req.Mode)

	ecg, err := s.loadECG(req.ECGPath)
	if err != nil {
		return nil, err
	}

	var ref *models.ReferenceSeries
	if req.ReferencePath != "" {
		ref, err = s.loadReference(req.ReferencePath)
		if err != nil {
			s.recordFailure(ecg, req.ReferencePath, req.Mode, "", err)
			return nil, err
		}
	}

	plan := s.planOutputs(req.ECGPath, req.ReferencePath, req.OutputPath, "")
	return s.alignOne(ecg, req.ReferencePath, ref, treq, plan)
}

// AlignBatch aligns one ECG against every reference in refPaths. The ECG is
// loaded once. A failing reference is logged, recorded and skipped; ctx is
// checked before each reference and cancellation returns what completed.
func (s *ekgService) AlignBatch(ctx context.Context, ecgPath string, refPaths []string, opts BatchOptions) ([]BatchOutcome, error) {
	if len(refPaths) == 0 {
		return nil, fmt.Errorf("%w: no reference files", models.ErrMissingInput)
	}
	treq, err := trimRequest(opts.Mode, opts.Start, opts.End, opts.Relative)
	if err != nil {
		return nil, err
	}

	ecg, err := s.loadECG(ecgPath)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Batch: %d references against %s", len(refPaths), ecgPath)

	outcomes := make([]BatchOutcome, 0, len(refPaths))
	failed := 0
	for i, refPath := range refPaths {
		if err := ctx.Err(); err != nil {
			s.log.Warnf("Batch cancelled after %d of %d references", i, len(refPaths))
			return outcomes, err
		}

		out := BatchOutcome{ReferencePath: refPath}
		if opts.SkipDone {
			done, err := s.storage.HasRunForReference(refPath)
			if err != nil {
				s.log.Warnf("Could not check previous runs for %s: %v", refPath, err)
			} else if done {
				s.log.Debugf("Skipping %s: already aligned", refPath)
				out.Skipped = true
				outcomes = append(outcomes, out)
				continue
			}
		}

		ref, err := s.loadReference(refPath)
		if err == nil {
			plan := s.planOutputs(ecgPath, refPath, "", utils.StemName(refPath))
			out.Result, err = s.alignOne(ecg, refPath, ref, treq, plan)
		} else {
			s.recordFailure(ecg, refPath, opts.Mode, "", err)
		}
		if err != nil {
			failed++
			s.log.Errorf("Batch item %s failed: %v", refPath, err)
			out.Err = err
		}
		outcomes = append(outcomes, out)
	}

	s.log.Infof("Batch finished: %d ok, %d failed, %d total", len(outcomes)-failed, failed, len(refPaths))
	return outcomes, nil
}

// ExportTimeline writes the reference signal with its synthetic timeline.
// An empty outPath writes <reference stem>_timeline.json in the output
// directory, or next to the reference.
func (s *ekgService) ExportTimeline(ctx context.Context, refPath, outPath string) (*report.TimelinePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref, err := s.loadReference(refPath)
	if err != nil {
		return nil, err
	}
	payload, err := report.BuildTimelinePayload(ref.Signal, timeline.FromReference(*ref))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", refPath, err)
	}

	if outPath == "" {
		dir := s.config.OutputDir
		if dir == "" {
			dir = filepath.Dir(refPath)
		}
		outPath = filepath.Join(dir, utils.StemName(refPath)+"_timeline.json")
	}
	if err := report.SaveFile(outPath, func(w io.Writer) error { return report.WriteJSON(w, payload) }); err != nil {
		return nil, err
	}
	s.log.Infof("Timeline with %d points written to %s", payload.Meta.Count, outPath)
	return payload, nil
}

// Inspect reports the sampling quality of an ECG file.
func (s *ekgService) Inspect(ecgPath string) (*quality.Report, error) {
	samples, stats, err := series.LoadCSV(ecgPath)
	if err != nil {
		return nil, err
	}
	if stats.Repaired > 0 {
		s.log.Warnf("%s: repaired %d of %d rows", ecgPath, stats.Repaired, stats.Rows)
	}
	r := quality.Analyze(samples)
	return &r, nil
}

func (s *ekgService) ListRuns() ([]models.Run, error) {
	return s.storage.ListRuns("")
}

func (s *ekgService) GetRun(id string) (*models.Run, error) {
	return s.storage.GetRun(id)
}

func (s *ekgService) DeleteRun(id string) error {
	return s.storage.DeleteRun(id)
}

func (s *ekgService) ListRecordings() ([]models.Recording, error) {
	return s.storage.ListRecordings()
}

// DeleteRecording removes a recording and its runs. Output files stay on disk.
func (s *ekgService) DeleteRecording(id string) error {
	return s.storage.DeleteRecordingByID(id)
}

func (s *ekgService) HasRunForReference(path string) (bool, error) {
	return s.storage.HasRunForReference(path)
}

func (s *ekgService) Close() error {
	return s.storage.Close()
}

func trimRequest(mode models.TrimMode, start, end string, relative bool) (trim.Request, error) {
	switch mode {
	case models.ModeReference:
		return trim.ReferenceRequest(), nil
	case models.ModeManual:
		b, err := units.ParseManualBounds(start, end, relative)
		if err != nil {
			return trim.Request{}, err
		}
		return trim.Request{Mode: models.ModeManual, Manual: b}, nil
	default:
		return trim.Request{}, fmt.Errorf("%w: unknown trim mode %d", models.ErrInvalidBounds, int(mode))
	}
}

func (s *ekgService) loadECG(path string) (*loadedECG, error) {
	samples, stats, err := series.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if stats.Repaired > 0 {
		s.log.Warnf("%s: repaired %d of %d rows", path, stats.Repaired, stats.Rows)
	}
	if stats.Reordered {
		s.log.Warnf("%s: rows were out of timestamp order and have been sorted", path)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has no samples", models.ErrNoDataLoaded, path)
	}

	e := trim.NewEngine()
	e.LoadLocal(samples)

	recID, err := s.storage.RegisterRecording(path, len(samples), samples[0].TimestampNs, samples[len(samples)-1].TimestampNs)
	if err != nil {
		return nil, fmt.Errorf("failed to register recording: %w", err)
	}
	s.log.Debugf("Loaded %d samples from %s (recording %s)", len(samples), path, recID)

	return &loadedECG{path: path, engine: e, recordingID: recID}, nil
}

func (s *ekgService) loadReference(path string) (*models.ReferenceSeries, error) {
	var opts []reference.Option
	if s.config.SignalKey != "" {
		opts = append(opts, reference.WithSignalKey(s.config.SignalKey))
	}
	ref, err := reference.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	if !ref.HasSignal() {
		s.log.Debugf("%s has no secondary signal", path)
	}
	return ref, nil
}

// planOutputs names the outputs of one alignment. Without an explicit CSV
// path the trimmed file is trimmed_<ecg name> in the output directory (or
// next to the ECG), under subdir when given.
func (s *ekgService) planOutputs(ecgPath, refPath, csvPath, subdir string) outputPlan {
	if csvPath == "" {
		base := s.config.OutputDir
		if base == "" {
			base = filepath.Dir(ecgPath)
		}
		csvPath = utils.TrimmedOutputPath(filepath.Join(base, subdir, filepath.Base(ecgPath)))
	}

	dir := filepath.Dir(csvPath)
	stem := utils.StemName(csvPath)
	p := outputPlan{
		csv:  csvPath,
		json: filepath.Join(dir, stem+".json"),
		info: filepath.Join(dir, stem+"_trim_info.json"),
	}
	if p.json == p.csv {
		p.json = filepath.Join(dir, stem+"_samples.json")
	}
	if refPath != "" {
		p.timeline = filepath.Join(dir, utils.StemName(refPath)+"_timeline.json")
	}
	if s.config.Plot {
		p.plot = filepath.Join(dir, stem+".png")
	}
	if s.config.WAV {
		p.wav = filepath.Join(dir, stem+".wav")
	}
	return p
}

func (s *ekgService) alignOne(ecg *loadedECG, refPath string, ref *models.ReferenceSeries, treq trim.Request, plan outputPlan) (*AlignResult, error) {
	outDir := filepath.Dir(plan.csv)

	engine := ecg.engine
	if ref != nil {
		engine = ecg.engine.WithReference(*ref)
	}

	res, err := engine.Trim(treq)
	if err != nil {
		s.recordFailure(ecg, refPath, treq.Mode, outDir, err)
		return nil, fmt.Errorf("trim failed: %w", err)
	}

	rep, err := report.BuildTrimReport(res)
	if err != nil {
		s.recordFailure(ecg, refPath, treq.Mode, outDir, err)
		return nil, err
	}

	outs, err := s.writeOutputs(res, rep, ref, plan)
	if err != nil {
		s.recordFailure(ecg, refPath, treq.Mode, outDir, err)
		return nil, fmt.Errorf("writing outputs: %w", err)
	}

	repJSON, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	run := &models.Run{
		RecordingID:   ecg.recordingID,
		ReferencePath: refPath,
		Mode:          treq.Mode.String(),
		StartIdx:      res.StartIndex,
		EndIdx:        res.EndIndex,
		SampleCount:   len(res.Samples),
		StartDiffNs:   res.BoundaryDeltasNs[0],
		EndDiffNs:     res.BoundaryDeltasNs[1],
		OutputDir:     outDir,
		Status:        models.RunStatusOK,
		ReportJSON:    string(repJSON),
	}
	runID, err := s.storage.StoreRun(run)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	s.log.Infof("Trimmed %s to samples %d..%d (%d kept), run %s", ecg.path, res.StartIndex, res.EndIndex, len(res.Samples), runID)
	return &AlignResult{
		RunID:       runID,
		RecordingID: ecg.recordingID,
		Report:      rep,
		Outputs:     outs,
		SampleCount: len(res.Samples),
		Result:      res,
	}, nil
}

func (s *ekgService) writeOutputs(res *models.TrimResult, rep *report.TrimReport, ref *models.ReferenceSeries, plan outputPlan) (Outputs, error) {
	var outs Outputs

	if err := report.SaveFile(plan.csv, func(w io.Writer) error { return report.WriteTrimmedCSV(w, res.Samples) }); err != nil {
		return outs, err
	}
	outs.TrimmedCSV = plan.csv

	if err := report.SaveFile(plan.json, func(w io.Writer) error { return report.WriteTrimmedJSON(w, res.Samples) }); err != nil {
		return outs, err
	}
	outs.TrimmedJSON = plan.json

	if err := report.SaveFile(plan.info, func(w io.Writer) error { return report.WriteJSON(w, rep) }); err != nil {
		return outs, err
	}
	outs.TrimInfo = plan.info

	var (
		tl     models.SyntheticTimeline
		signal []float64
	)
	if ref != nil && ref.HasSignal() && plan.timeline != "" {
		tl = timeline.FromReference(*ref)
		payload, err := report.BuildTimelinePayload(ref.Signal, tl)
		if err != nil {
			return outs, err
		}
		if err := report.SaveFile(plan.timeline, func(w io.Writer) error { return report.WriteJSON(w, payload) }); err != nil {
			return outs, err
		}
		outs.Timeline = plan.timeline
		signal = ref.Signal
	}

	// plot and wav are previews; failing them does not fail the run
	if plan.plot != "" {
		title := fmt.Sprintf("%s (%s)", filepath.Base(plan.csv), rep.Mode)
		err := report.SaveFile(plan.plot, func(w io.Writer) error {
			return plot.Render(w, res.Samples, signal, tl, plot.Options{Title: title})
		})
		if err != nil {
			s.log.Warnf("Plot not written: %v", err)
		} else {
			outs.Plot = plan.plot
		}
	}

	if plan.wav != "" {
		rate := int(math.Round(quality.Analyze(res.Samples).EffectiveHz))
		if err := wavexport.Write(plan.wav, res.Samples, rate); err != nil {
			s.log.Warnf("WAV not written: %v", err)
		} else {
			outs.WAV = plan.wav
		}
	}

	return outs, nil
}

func (s *ekgService) recordFailure(ecg *loadedECG, refPath string, mode models.TrimMode, outDir string, cause error) {
	run := &models.Run{
		RecordingID:   ecg.recordingID,
		ReferencePath: refPath,
		Mode:          mode.String(),
		OutputDir:     outDir,
		Status:        models.RunStatusFailed,
		Error:         cause.Error(),
	}
	if _, err := s.storage.StoreRun(run); err != nil {
		s.log.Errorf("Failed to record failed run for %s: %v", refPath, err)
	}
}
