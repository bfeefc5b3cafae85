// Package config loads runtime settings from a TOML file with environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// SupportedFormats are the yt-dlp --audio-format values a job may request.
// Raw aac is left out because ADTS streams cannot carry tags.
var SupportedFormats = []string{"mp3", "m4a", "opus", "flac", "wav", "vorbis"}

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server" json:"server"`
	Paths    PathsConfig    `toml:"paths" json:"paths"`
	Audio    AudioConfig    `toml:"audio" json:"audio"`
	Metadata MetadataConfig `toml:"metadata" json:"metadata"`
	Lyrics   LyricsConfig   `toml:"lyrics" json:"lyrics"`
	Jobs     JobsConfig     `toml:"jobs" json:"jobs"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host        string   `toml:"host" json:"host"`
	Port        int      `toml:"port" json:"port"`
	CORSOrigins []string `toml:"cors_origins" json:"corsOrigins"`
	GinMode     string   `toml:"gin_mode" json:"ginMode"`
}

// PathsConfig contains filesystem locations
type PathsConfig struct {
	LibraryDir string `toml:"library_dir" json:"libraryDir"`
	TempDir    string `toml:"temp_dir" json:"tempDir"`
	IndexPath  string `toml:"index_path" json:"indexPath"`
}

// AudioConfig contains yt-dlp audio extraction settings
type AudioConfig struct {
	Format       string `toml:"format" json:"format"`
	Quality      string `toml:"quality" json:"quality"`
	SkipExisting bool   `toml:"skip_existing" json:"skipExisting"`
}

// MetadataConfig contains settings for the YouTube Music metadata proxy
type MetadataConfig struct {
	ProxyURL    string  `toml:"proxy_url" json:"proxyUrl"`
	RateLimit   float64 `toml:"rate_limit" json:"rateLimit"`
	CookiesFile string  `toml:"cookies_file" json:"-"`
}

// LyricsConfig controls .lrc sidecar downloads from lrclib
type LyricsConfig struct {
	Enabled   bool    `toml:"enabled" json:"enabled"`
	URL       string  `toml:"url" json:"url"`
	RateLimit float64 `toml:"rate_limit" json:"rateLimit"`
}

// JobsConfig contains job store limits
type JobsConfig struct {
	MaxJobs    int      `toml:"max_jobs" json:"maxJobs"`
	MaxLogs    int      `toml:"max_logs" json:"maxLogs"`
	JobTimeout Duration `toml:"job_timeout" json:"jobTimeout"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level       string `toml:"level" json:"level"`
	BufferLines int    `toml:"buffer_lines" json:"bufferLines"`
}

// Duration decodes TOML strings such as "30m" into a time.Duration
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DefaultConfig returns a Config built from the embedded example file
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// LoadConfig reads a TOML file on top of the defaults and then applies
// environment overrides. An empty or missing path yields defaults plus env.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the rest of the program depends on
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Paths.LibraryDir == "" {
		return fmt.Errorf("paths.library_dir must be set")
	}
	if c.Jobs.MaxJobs < 1 {
		return fmt.Errorf("jobs.max_jobs must be at least 1")
	}
	if c.Jobs.MaxLogs < 1 {
		return fmt.Errorf("jobs.max_logs must be at least 1")
	}
	switch c.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("invalid gin_mode %q", c.Server.GinMode)
	}
	if !slices.Contains(SupportedFormats, c.Audio.Format) {
		return fmt.Errorf("unsupported audio format %q", c.Audio.Format)
	}
	return nil
}

// CreateConfigFile writes the embedded example config to path
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
