package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/EKGSync/internal/reference"
	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/logger"
)

// Global flags
var (
	dbPath    string
	outputDir string
	signalKey string
	withPlot  bool
	withWAV   bool
)

func registerGlobalFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("EKGSYNC_DB_PATH", "ekgsync.sqlite3"), "Path to the SQLite run history")
	flag.StringVar(&outputDir, "out", getEnvOrDefault("EKGSYNC_OUTPUT_DIR", ""), "Output directory (default: next to the ECG file)")
	flag.StringVar(&signalKey, "signal-key", getEnvOrDefault("EKGSYNC_SIGNAL_KEY", ""), "Reference dataset holding the secondary signal")
	flag.BoolVar(&withPlot, "plot", false, "Also write a PNG plot of every trimmed file")
	flag.BoolVar(&withWAV, "wav", false, "Also write a WAV rendering of every trimmed file")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates an EKGSync service with the global options
func createService() (ekgsync.Service, error) {
	return ekgsync.NewService(
		ekgsync.WithDBPath(dbPath),
		ekgsync.WithOutputDir(outputDir),
		ekgsync.WithSignalKey(signalKey),
		ekgsync.WithPlot(withPlot),
		ekgsync.WithWAV(withWAV),
	)
}

// mustService creates the service or exits
func mustService() ekgsync.Service {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	return svc
}

func fail(msg string, err error) {
	fmt.Printf("❌ %s: %v\n", msg, err)
	logger.GetLogger().Errorf("%s: %v", msg, err)
	os.Exit(1)
}

func main() {
	// .env is optional; real environment variables win
	envErr := godotenv.Load()

	registerGlobalFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	if envErr == nil {
		log.Debugf("Loaded environment variables from .env file")
	}

	if flag.NArg() < 1 {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "trim":
		handleTrim(args)
	case "cut":
		handleCut(args)
	case "timeline":
		handleTimeline(args)
	case "batch":
		handleBatch(args)
	case "watch":
		handleWatch(args)
	case "inspect":
		handleInspect(args)
	case "record":
		handleRecord(args)
	case "runs":
		handleRuns(args)
	case "delete":
		handleDelete(args)
	case "help", "-h", "--help":
		printBanner()
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// parseArgs parses fs from args, allowing flags before, between and after
// positional arguments, and returns the positional ones.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func printBanner() {
	banner := `
 _____ _  ______ ____
| ____| |/ / ___/ ___| _   _ _ __   ___
|  _| | ' / |  _\___ \| | | | '_ \ / __|
| |___| . \ |_| |___) | |_| | | | | (__
|_____|_|\_\____|____/ \__, |_| |_|\___|
                       |___/
      ECG / reference alignment tool
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("EKGSync - align ECG recordings with reference acquisitions")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>          SQLite run history (env: EKGSYNC_DB_PATH, default: ekgsync.sqlite3)")
	fmt.Println("  --out <dir>          Output directory (env: EKGSYNC_OUTPUT_DIR, default: next to the ECG)")
	fmt.Println("  --signal-key <name>  Reference signal dataset (env: EKGSYNC_SIGNAL_KEY, default: SignalsArterialVelocity_y)")
	fmt.Println("  --plot               Write a PNG plot next to every trimmed file")
	fmt.Println("  --wav                Write a WAV rendering next to every trimmed file")
	fmt.Println("\nUsage:")
	fmt.Println("  ekgsync [global-options] trim <ecg.csv> <reference> [--o <file.csv>]")
	fmt.Println("  ekgsync [global-options] cut <ecg.csv> --start <µs> --end <µs> [--relative] [--reference <file>] [--o <file.csv>]")
	fmt.Println("  ekgsync [global-options] timeline <reference> [--o <file.json>]")
	fmt.Println("  ekgsync [global-options] batch <ecg.csv> <reference|glob>... [--manual --start <µs> --end <µs> --relative] [--skip-done]")
	fmt.Println("  ekgsync [global-options] batch --config <job.yaml>")
	fmt.Println("  ekgsync [global-options] watch --config <job.yaml> [--now]")
	fmt.Println("  ekgsync [global-options] inspect <ecg.csv>")
	fmt.Println("  ekgsync [global-options] record --o <file.csv> [--hz 250] [--input <file>|-]")
	fmt.Println("  ekgsync [global-options] runs [<run_id>]")
	fmt.Println("  ekgsync [global-options] delete run|recording <id>")
	fmt.Println("\nReference files:")
	fmt.Println("  JSON or YAML objects with UnixTimestampFirst, UnixTimestampLast (microseconds)")
	fmt.Println("  and an optional signal array. HDF5 acquisitions must be exported first:")
	fmt.Println("  " + reference.HDF5ExportHint)
	fmt.Println("\nExamples:")
	fmt.Println("  # Trim an ECG to a reference acquisition window")
	fmt.Println("  ekgsync --plot trim ecg.csv holo.json")
	fmt.Println()
	fmt.Println("  # Keep 1 s to 3.5 s after the ECG start")
	fmt.Println("  ekgsync cut ecg.csv --start 1000000 --end 3500000 --relative")
	fmt.Println()
	fmt.Println("  # Align one ECG against every reference in a folder")
	fmt.Println("  ekgsync --out results batch ecg.csv 'refs/*.json'")
}
