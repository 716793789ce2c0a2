package model

import "time"

// Config is the full application configuration.
type Config struct {
	Notes     NotesConfig     `yaml:"notes"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Detection DetectionConfig `yaml:"detection"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Output    OutputConfig    `yaml:"output"`
}

// NotesConfig locates the note store.
type NotesConfig struct {
	Path string `yaml:"path"`
}

// OracleConfig configures the external reasoning service.
type OracleConfig struct {
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"-"` // from OPENAI_API_KEY, never written to disk
	BaseURL   string        `yaml:"base_url,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// DetectionConfig bounds the per-patient analysis fan-out.
type DetectionConfig struct {
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CacheConfig controls the alert cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Notes: NotesConfig{
			Path: "data/synthetic_notes.json",
		},
		Oracle: OracleConfig{
			Model:     "gpt-4o-mini",
			Timeout:   30 * time.Second,
			MaxTokens: 4000,
		},
		Detection: DetectionConfig{
			Concurrency:       4,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxAge:  30 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Output: OutputConfig{
			Verbose: false,
		},
	}
}
