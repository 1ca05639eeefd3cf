// Package config loads the crash helper's settings: built-in defaults, then
// an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "MOZ_CRASHHELPER_CONFIG"
	EnvDumper       = "MOZ_CRASHHELPER_DUMPER"
	EnvReportDir    = "MOZ_CRASHHELPER_REPORT_DIR"
	EnvMaxMalformed = "MOZ_CRASHHELPER_MAX_MALFORMED"
	EnvLogLevel     = "MOZ_CRASHHELPER_LOG_LEVEL"
)

type Config struct {
	// Dumper is the external minidump writer, run as
	// `<dumper> [DumperArgs...] <pid> <tid>` with the minidump on its
	// standard output. Empty disables dumping.
	Dumper        string        `yaml:"dumper"`
	DumperArgs    []string      `yaml:"dumper_args"`
	DumperTimeout time.Duration `yaml:"dumper_timeout"`

	// ReportDir is used until a client sends SetCrashReportPath.
	ReportDir string `yaml:"report_dir"`

	// MaxMalformed malformed headers are tolerated per connector in a
	// burst, refilled at one per MalformedRefill.
	MaxMalformed    int           `yaml:"max_malformed"`
	MalformedRefill time.Duration `yaml:"malformed_refill"`

	LogLevel string `yaml:"log_level"`

	// ConnectTimeout bounds how long a client keeps retrying to reach a
	// freshly spawned helper.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DumperTimeout:   30 * time.Second,
		ReportDir:       os.TempDir(),
		MaxMalformed:    8,
		MalformedRefill: time.Second,
		LogLevel:        "info",
		ConnectTimeout:  5 * time.Second,
	}
}

// Load builds the configuration from the defaults, the file named by
// MOZ_CRASHHELPER_CONFIG if set, and the environment.
func Load() (Config, error) {
	return load(os.Getenv(EnvConfigPath), os.LookupEnv)
}

// LoadFile is like Load with an explicit file path. A missing file is not an
// error.
func LoadFile(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDumper); ok {
		c.Dumper = v
	}
	if v, ok := lookup(EnvReportDir); ok && v != "" {
		c.ReportDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvMaxMalformed); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxMalformed, v, err)
		}
		c.MaxMalformed = n
	}
	return nil
}

// Validate rejects settings the helper cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxMalformed < 1 {
		errs = append(errs, fmt.Errorf("max_malformed must be at least 1, got %d", c.MaxMalformed))
	}
	if c.MalformedRefill <= 0 {
		errs = append(errs, fmt.Errorf("malformed_refill must be positive, got %s", c.MalformedRefill))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.DumperTimeout < 0 {
		errs = append(errs, fmt.Errorf("dumper_timeout must not be negative, got %s", c.DumperTimeout))
	}
	if c.ReportDir == "" {
		errs = append(errs, errors.New("report_dir must not be empty"))
	}
	return errors.Join(errs...)
}
