package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/himanishpuri/EKGSync/internal/config"
	"github.com/himanishpuri/EKGSync/internal/scheduler"
	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// batchJob is everything one batch pass needs.
type batchJob struct {
	ecg     string
	refs    func() ([]string, error)
	options ekgsync.BatchOptions
}

func handleBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Job file (YAML); replaces the positional arguments")
	manual := fs.Bool("manual", false, "Use manual bounds instead of the reference window")
	start := fs.String("start", "", "Manual start bound in integer microseconds")
	end := fs.String("end", "", "Manual end bound in integer microseconds")
	relative := fs.Bool("relative", false, "Manual bounds are relative to the first ECG sample")
	skipDone := fs.Bool("skip-done", false, "Skip references that already have a successful run")
	pos := parseArgs(fs, args)

	var job batchJob
	if *cfgPath != "" {
		job, _ = jobFromConfig(*cfgPath)
	} else {
		if len(pos) < 2 {
			fmt.Println("Usage: ekgsync batch <ecg.csv> <reference|glob>... [--manual --start <µs> --end <µs> --relative] [--skip-done]")
			os.Exit(1)
		}
		mode := models.ModeReference
		if *manual {
			mode = models.ModeManual
		}
		patterns := pos[1:]
		job = batchJob{
			ecg:  pos[0],
			refs: func() ([]string, error) { return expand(patterns) },
			options: ekgsync.BatchOptions{
				Mode:     mode,
				Start:    *start,
				End:      *end,
				Relative: *relative,
				SkipDone: *skipDone,
			},
		}
	}

	svc := mustService()
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBatch(ctx, svc, job); err != nil {
		fail("Batch failed", err)
	}
}

// handleWatch re-runs a job file on its cron schedule until interrupted.
// References that already have a successful run are skipped, so each new
// acquisition dropped into the watched folder is aligned once.
func handleWatch(args []string) {
	log := logger.GetLogger()
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "ekgsync.yaml", "Job file (YAML)")
	now := fs.Bool("now", false, "Run one pass immediately on start")
	parseArgs(fs, args)

	job, cfg := jobFromConfig(*cfgPath)

	svc := mustService()
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(ctx, func(ctx context.Context) error {
		return runBatch(ctx, svc, job)
	})
	if err := sched.Register(cfg.Schedule); err != nil {
		fail("Invalid schedule", err)
	}

	if *now {
		if err := sched.RunNow(); err != nil {
			log.Errorf("Initial pass failed: %v", err)
		}
	}

	sched.Start()
	fmt.Printf("👀 Watching %s on schedule %q (Ctrl-C to stop)\n", *cfgPath, cfg.Schedule)
	<-ctx.Done()
	sched.Stop()

	runs, skipped, lastErr := sched.Stats()
	fmt.Printf("\n🛑 Stopped after %d pass(es), %d skipped tick(s)\n", runs, skipped)
	if lastErr != nil {
		fmt.Printf("   Last pass error: %v\n", lastErr)
	}
}

func jobFromConfig(path string) (batchJob, *config.Config) {
	cfg, err := config.Load(path)
	if err != nil {
		fail("Failed to load job file", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("Invalid job file", err)
	}
	mode, _ := cfg.TrimMode()

	applyJobSettings(cfg, explicitFlags(flag.CommandLine))

	job := batchJob{
		ecg:  cfg.ECG,
		refs: cfg.ResolveReferences,
		options: ekgsync.BatchOptions{
			Mode:     mode,
			Start:    cfg.Manual.Start,
			End:      cfg.Manual.End,
			Relative: cfg.Manual.Relative,
			SkipDone: cfg.SkipDone,
		},
	}
	return job, cfg
}

// applyJobSettings copies the job file's storage and output settings into the
// globals. Flags given explicitly on the command line win.
func applyJobSettings(cfg *config.Config, explicit map[string]bool) {
	if !explicit["db"] && cfg.Database.SQLitePath != "" {
		dbPath = cfg.Database.SQLitePath
	}
	if !explicit["out"] && cfg.Output.Dir != "" {
		outputDir = cfg.Output.Dir
	}
	if !explicit["signal-key"] && cfg.SignalKey != "" {
		signalKey = cfg.SignalKey
	}
	withPlot = withPlot || cfg.Output.Plot
	withWAV = withWAV || cfg.Output.WAV
}

// explicitFlags reports the flags of fs that were set on the command line.
func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runBatch(ctx context.Context, svc ekgsync.Service, job batchJob) error {
	log := logger.GetLogger()

	refs, err := job.refs()
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		log.Infof("No reference files matched")
		return nil
	}

	fmt.Printf("🔧 Aligning %s against %d reference(s)...\n", job.ecg, len(refs))
	outcomes, err := svc.AlignBatch(ctx, job.ecg, refs, job.options)

	ok, failed, skipped := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Err != nil:
			failed++
			fmt.Printf("   ❌ %s: %v\n", filepath.Base(o.ReferencePath), o.Err)
		default:
			ok++
			fmt.Printf("   ✅ %s: %d samples -> %s\n", filepath.Base(o.ReferencePath), o.Result.SampleCount, filepath.Dir(o.Result.Outputs.TrimmedCSV))
		}
	}
	fmt.Printf("\n📊 %d aligned, %d failed, %d skipped\n", ok, failed, skipped)
	return err
}

// expand resolves glob patterns; plain paths are kept as given so missing
// files are reported per item.
func expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}
