package ekgsync

type Config struct {
	DBPath    string
	OutputDir string // empty writes next to the ECG file
	SignalKey string
	Plot      bool
	WAV       bool
	Logger    Logger
	Storage   Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

// WithSignalKey selects the reference dataset holding the secondary signal.
func WithSignalKey(key string) Option {
	return func(c *Config) {
		c.SignalKey = key
	}
}

// WithPlot enables the combined PNG next to every trimmed file.
func WithPlot(enabled bool) Option {
	return func(c *Config) {
		c.Plot = enabled
	}
}

// WithWAV enables a 16-bit WAV rendering of every trimmed file.
func WithWAV(enabled bool) Option {
	return func(c *Config) {
		c.WAV = enabled
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath: "ekgsync.sqlite3",
	}
}
