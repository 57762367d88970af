package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/EKGSync/internal/units"
	"github.com/himanishpuri/EKGSync/pkg/models"
	"github.com/himanishpuri/EKGSync/pkg/utils"
)

// Config describes a batch alignment job.
type Config struct {
	ECG        string   `yaml:"ecg"`
	References []string `yaml:"references"` // file paths or glob patterns
	Mode       string   `yaml:"mode"`
	Manual     struct {
		Start    string `yaml:"start"` // microseconds
		End      string `yaml:"end"`
		Relative bool   `yaml:"relative"`
	} `yaml:"manual"`
	SignalKey string `yaml:"signal_key"`
	Output    struct {
		Dir  string `yaml:"dir"`
		Plot bool   `yaml:"plot"`
		WAV  bool   `yaml:"wav"`
	} `yaml:"output"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Schedule string `yaml:"schedule"`
	// SkipDone leaves references alone once they have a recorded run.
	SkipDone bool `yaml:"skip_done"`
}

// Load reads a job file, then applies environment variable overrides and
// defaults. A missing file yields a config built from env and defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{SkipDone: true}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("EKGSYNC_DB_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("EKGSYNC_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("EKGSYNC_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := os.Getenv("EKGSYNC_SIGNAL_KEY"); v != "" {
		cfg.SignalKey = v
	}
	if v := os.Getenv("EKGSYNC_PLOT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Output.Plot = b
		}
	}

	// Defaults
	if cfg.Mode == "" {
		cfg.Mode = "reference"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "ekgsync.sqlite3"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 */5 * * * *"
	}

	return cfg, nil
}

// Validate checks that the job can run.
func (c *Config) Validate() error {
	if c.ECG == "" {
		return fmt.Errorf("ecg is required")
	}
	if len(c.References) == 0 {
		return fmt.Errorf("references must list at least one file or pattern")
	}
	for _, pattern := range c.References {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("references: bad pattern %q: %w", pattern, err)
		}
	}
	mode, err := c.TrimMode()
	if err != nil {
		return err
	}
	if mode == models.ModeManual {
		if _, err := c.ManualBounds(); err != nil {
			return err
		}
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

// TrimMode maps the mode field to a models.TrimMode.
func (c *Config) TrimMode() (models.TrimMode, error) {
	switch c.Mode {
	case "reference", models.ModeReference.String():
		return models.ModeReference, nil
	case "manual", models.ModeManual.String():
		return models.ModeManual, nil
	}
	return 0, fmt.Errorf("mode must be \"reference\" or \"manual\", got %q", c.Mode)
}

// ManualBounds parses the manual section.
func (c *Config) ManualBounds() (models.ManualBounds, error) {
	return units.ParseManualBounds(c.Manual.Start, c.Manual.End, c.Manual.Relative)
}

// ResolveReferences expands the reference patterns into a sorted, de-duplicated
// list of existing files.
func (c *Config) ResolveReferences() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range c.References {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !utils.FileExists(m) {
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
