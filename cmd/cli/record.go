package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/EKGSync/internal/acquire"
	"github.com/himanishpuri/EKGSync/internal/report"
	"github.com/himanishpuri/EKGSync/pkg/logger"
	"github.com/himanishpuri/EKGSync/pkg/models"
)

// handleRecord stamps analog readings from a line-oriented source (a serial
// bridge piped to stdin, or a file) and writes them as an ECG CSV.
func handleRecord(args []string) {
	log := logger.GetLogger()
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	out := fs.String("o", "", "Output CSV path (required)")
	hz := fs.Float64("hz", 250, "Sampling rate in readings per second")
	input := fs.String("input", "-", "Source of one reading per line; - for stdin")
	parseArgs(fs, args)

	if *out == "" {
		fmt.Println("Usage: ekgsync record --o <file.csv> [--hz 250] [--input <file>|-]")
		os.Exit(1)
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fail("Failed to open input", err)
		}
		defer f.Close()
		r = f
	}
	src := acquire.NewLineSource(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🎙️  Recording at %s Hz to %s (Ctrl-C to stop)\n", humanize.Ftoa(*hz), *out)

	var n int
	err := report.SaveFile(*out, func(w io.Writer) error {
		sw, err := report.NewSampleWriter(w)
		if err != nil {
			return err
		}
		n, err = acquire.Scan(ctx, src, *hz, func(s models.Sample) error {
			return sw.Write(s)
		})
		if err != nil {
			return err
		}
		return sw.Flush()
	})
	if err != nil {
		fail("Recording failed", err)
	}

	if src.Skipped > 0 {
		log.Warnf("Skipped %d unparsable lines", src.Skipped)
	}
	fmt.Printf("\n✅ Recorded %s samples to %s\n", humanize.Comma(int64(n)), *out)
}
