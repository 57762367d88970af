package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
	"github.com/himanishpuri/EKGSync/pkg/utils"
)

func handleTrim(args []string) {
	fs := flag.NewFlagSet("trim", flag.ExitOnError)
	out := fs.String("o", "", "Trimmed CSV path (default: trimmed_<ecg name>)")
	pos := parseArgs(fs, args)

	if len(pos) != 2 {
		fmt.Println("Usage: ekgsync trim <ecg.csv> <reference> [--o <file.csv>]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔧 Trimming to the reference acquisition window...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.Align(ctx, ekgsync.AlignRequest{
		ECGPath:       pos[0],
		ReferencePath: pos[1],
		Mode:          models.ModeReference,
		OutputPath:    *out,
	})
	if err != nil {
		fail("Trim failed", err)
	}
	printAlignResult(res)
}

func handleCut(args []string) {
	fs := flag.NewFlagSet("cut", flag.ExitOnError)
	start := fs.String("start", "", "Start bound in integer microseconds (required)")
	end := fs.String("end", "", "End bound in integer microseconds (required)")
	relative := fs.Bool("relative", false, "Bounds are relative to the first ECG sample")
	ref := fs.String("reference", "", "Optional reference file for the timeline and plot outputs")
	out := fs.String("o", "", "Trimmed CSV path (default: trimmed_<ecg name>)")
	pos := parseArgs(fs, args)

	if len(pos) != 1 || *start == "" || *end == "" {
		fmt.Println("Usage: ekgsync cut <ecg.csv> --start <µs> --end <µs> [--relative] [--reference <file>] [--o <file.csv>]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("✂️  Cutting manual window...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.Align(ctx, ekgsync.AlignRequest{
		ECGPath:       pos[0],
		ReferencePath: *ref,
		Mode:          models.ModeManual,
		Start:         *start,
		End:           *end,
		Relative:      *relative,
		OutputPath:    *out,
	})
	if err != nil {
		fail("Cut failed", err)
	}
	printAlignResult(res)
}

func printAlignResult(res *ekgsync.AlignResult) {
	rep := res.Report
	fmt.Println("\n✅ Trim complete!")
	fmt.Printf("   Run:      %s\n", res.RunID)
	fmt.Printf("   Mode:     %s\n", rep.Mode)
	fmt.Printf("   Samples:  %s (indices %d..%d)\n", humanize.Comma(int64(res.SampleCount)), rep.StartIdx, rep.EndIdx)
	if rep.StartTimeDiffNs != nil && rep.EndTimeDiffNs != nil {
		fmt.Printf("   Boundary error: start %s ns, end %s ns\n", humanize.Comma(*rep.StartTimeDiffNs), humanize.Comma(*rep.EndTimeDiffNs))
	}
	if rep.ResolvedStartAbsS != nil && rep.ResolvedEndAbsS != nil {
		fmt.Printf("   Window:   %.6f s .. %.6f s\n", *rep.ResolvedStartAbsS, *rep.ResolvedEndAbsS)
	}

	fmt.Println("\n📁 Outputs:")
	for _, path := range []string{
		res.Outputs.TrimmedCSV, res.Outputs.TrimmedJSON, res.Outputs.TrimInfo,
		res.Outputs.Timeline, res.Outputs.Plot, res.Outputs.WAV,
	} {
		if path == "" {
			continue
		}
		fmt.Printf("   %s (%s)\n", path, humanize.Bytes(uint64(utils.FileSize(path))))
	}
}

func handleTimeline(args []string) {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	out := fs.String("o", "", "Timeline JSON path (default: <reference>_timeline.json)")
	pos := parseArgs(fs, args)

	if len(pos) != 1 {
		fmt.Println("Usage: ekgsync timeline <reference> [--o <file.json>]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	payload, err := svc.ExportTimeline(context.Background(), pos[0], *out)
	if err != nil {
		if errors.Is(err, models.ErrEmptyResult) {
			fmt.Println("📭 The reference has no secondary signal to export")
			os.Exit(1)
		}
		fail("Timeline export failed", err)
	}

	fmt.Printf("\n✅ Exported %s points\n", humanize.Comma(int64(payload.Meta.Count)))
	if n := len(payload.TRelS); n > 0 {
		fmt.Printf("   Duration:      %.6f s\n", payload.TRelS[n-1])
	}
	fmt.Printf("   Absolute time: %v\n", payload.Meta.HasAbsoluteUnixTime)
}

func handleInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	pos := parseArgs(fs, args)
	if len(pos) != 1 {
		fmt.Println("Usage: ekgsync inspect <ecg.csv>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	r, err := svc.Inspect(pos[0])
	if err != nil {
		fail("Inspect failed", err)
	}

	fmt.Printf("\n🔍 %s\n\n", pos[0])
	fmt.Printf("   Samples:        %s\n", humanize.Comma(int64(r.Count)))
	if r.Count < 2 {
		fmt.Println("   Not enough samples for timing statistics")
		return
	}
	fmt.Printf("   Duration:       %.3f s\n", r.DurationS)
	fmt.Printf("   Effective rate: %s\n", humanize.SIWithDigits(r.EffectiveHz, 2, "Hz"))
	fmt.Printf("   Mean interval:  %.3f ms (jitter %.3f ms)\n", r.MeanIntervalMs, r.JitterMs)
	fmt.Printf("   Largest gap:    %.3f ms\n", r.MaxGapMs)
	if r.DominantHz > 0 {
		fmt.Printf("   Dominant freq:  %.2f Hz (%.0f bpm)\n", r.DominantHz, r.BPM())
	}
	fmt.Printf("   Starts:         %s\n", time.Unix(0, r.FirstNs).UTC().Format(time.RFC3339Nano))
}

func handleRuns(args []string) {
	log := logger.GetLogger()
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	pos := parseArgs(fs, args)

	svc := mustService()
	defer svc.Close()

	if len(pos) == 1 {
		run, err := svc.GetRun(pos[0])
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				fmt.Printf("❌ Run not found (ID: %s)\n", pos[0])
				os.Exit(1)
			}
			fail("Failed to get run", err)
		}
		printRun(1, *run)
		if run.ReportJSON != "" {
			var pretty map[string]any
			if json.Unmarshal([]byte(run.ReportJSON), &pretty) == nil {
				b, _ := json.MarshalIndent(pretty, "   ", "  ")
				fmt.Printf("   Report: %s\n", b)
			}
		}
		return
	}

	runs, err := svc.ListRuns()
	if err != nil {
		fail("Failed to list runs", err)
	}
	if len(runs) == 0 {
		fmt.Println("\n📭 No runs recorded")
		return
	}

	fmt.Printf("\n📚 Found %d run(s):\n\n", len(runs))
	for i, run := range runs {
		printRun(i+1, run)
	}
	log.Debugf("Listed %d runs", len(runs))
}

func printRun(n int, run models.Run) {
	icon := "✅"
	if run.Status != models.RunStatusOK {
		icon = "❌"
	}
	fmt.Printf("%d. %s %s (%s)\n", n, icon, run.ID, humanize.Time(run.CreatedAt))
	if run.ReferencePath != "" {
		fmt.Printf("   Reference: %s\n", run.ReferencePath)
	}
	fmt.Printf("   Mode: %s\n", run.Mode)
	if run.Status == models.RunStatusOK {
		fmt.Printf("   Kept %s samples (%d..%d), boundary error %s / %s ns\n",
			humanize.Comma(int64(run.SampleCount)), run.StartIdx, run.EndIdx,
			humanize.Comma(run.StartDiffNs), humanize.Comma(run.EndDiffNs))
		fmt.Printf("   Output: %s\n", run.OutputDir)
	} else {
		fmt.Printf("   Error: %s\n", run.Error)
	}
	fmt.Println()
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) != 2 {
		fmt.Println("Usage: ekgsync delete run|recording <id>")
		os.Exit(1)
	}
	kind, id := args[0], args[1]

	svc := mustService()
	defer svc.Close()

	var err error
	switch kind {
	case "run":
		err = svc.DeleteRun(id)
	case "recording":
		err = svc.DeleteRecording(id)
	default:
		fmt.Printf("❌ Unknown kind %q, expected run or recording\n", kind)
		os.Exit(1)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			fmt.Printf("❌ %s not found (ID: %s)\n", kind, id)
			os.Exit(1)
		}
		fail("Delete failed", err)
	}

	fmt.Printf("\n✅ Deleted %s %s\n", kind, id)
	log.Infof("Deleted %s ID=%s", kind, id)
}
