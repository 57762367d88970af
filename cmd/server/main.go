//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/EKGSync/pkg/ekgsync"
	"github.com/himanishpuri/EKGSync/pkg/logger"
)

var (
	port           int
	dbPath         string
	uploadDir      string
	signalKey      string
	withPlot       bool
	allowedOrigins string
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("EKGSYNC_DB_PATH", "ekgsync.sqlite3"), "Path to SQLite database")
	flag.StringVar(&uploadDir, "uploads", getEnvOrDefault("EKGSYNC_UPLOAD_DIR", filepath.Join(os.TempDir(), "ekgsync")), "Directory for uploaded files and their outputs")
	flag.StringVar(&signalKey, "signal-key", getEnvOrDefault("EKGSYNC_SIGNAL_KEY", ""), "Reference dataset holding the secondary signal")
	flag.BoolVar(&withPlot, "plot", false, "Also write a PNG plot for every alignment")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envErr := godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	if envErr == nil {
		log.Debugf("Loaded environment variables from .env file")
	}

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}

	service, err := ekgsync.NewService(
		ekgsync.WithDBPath(dbPath),
		ekgsync.WithSignalKey(signalKey),
		ekgsync.WithPlot(withPlot),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		UploadDir:      uploadDir,
		AllowedOrigins: origins,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, config)
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Server failed: %v", err)
		return
	}
}
