// Package config loads the gateway's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	// Listen is the TCP address the Gemini server connects to.
	Listen string `yaml:"listen"`
	// GeminiBaseURL prefixes every generated local link.
	GeminiBaseURL string `yaml:"gemini_base_url"`

	Upstream Upstream `yaml:"upstream"`
	Cache    Cache    `yaml:"cache"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

type Upstream struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type Cache struct {
	Backend       string        `yaml:"backend"`
	Dir           string        `yaml:"dir"`
	SQLitePath    string        `yaml:"sqlite_path"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Server struct {
	MaxConnections  int           `yaml:"max_connections"`
	MaxRequestBytes int           `yaml:"max_request_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	// FrameIdle ends a request whose last argument is complete once no more
	// data arrives for this long.
	FrameIdle time.Duration `yaml:"frame_idle"`
}

type Log struct {
	Level       string `yaml:"level"`
	FailureFile string `yaml:"failure_file"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:        "127.0.0.1:5555",
		GeminiBaseURL: "gemini://127.0.0.1",
		Upstream: Upstream{
			BaseURL:   "https://www.tagesschau.de/api2",
			Timeout:   30 * time.Second,
			UserAgent: "gemini-tagesschau-mirror",
		},
		Cache: Cache{
			Backend:       BackendFile,
			Dir:           "cache",
			SQLitePath:    "cache.db",
			TTL:           1800 * time.Second,
			SweepInterval: 6 * time.Hour,
		},
		Server: Server{
			MaxConnections:  64,
			MaxRequestBytes: 4096,
			ReadTimeout:     10 * time.Second,
			FrameIdle:       100 * time.Millisecond,
		},
		Log: Log{
			Level:       "info",
			FailureFile: "failure.log",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the gateway cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache.sweep_interval must be positive"))
	}
	if c.Server.MaxConnections <= 0 {
		errs = append(errs, errors.New("server.max_connections must be positive"))
	}
	if c.Server.MaxRequestBytes <= 0 {
		errs = append(errs, errors.New("server.max_request_bytes must be positive"))
	}
	return errors.Join(errs...)
}
