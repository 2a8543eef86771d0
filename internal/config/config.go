// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/vinayprograms/tracenav/internal/event"
)

// DefaultFile is the config file LoadDefault looks for.
const DefaultFile = "tracenav.toml"

// Source kinds.
const (
	SourceDir    = "dir"
	SourcePebble = "pebble"
	SourceNATS   = "nats"
)

// Config represents the tracenav configuration.
type Config struct {
	Source  SourceConfig  `toml:"source"`
	Packing PackingConfig `toml:"packing"`
	Load    LoadConfig    `toml:"load"`
	Logging LoggingConfig `toml:"logging"`
	State   StateConfig   `toml:"state"`
}

// SourceConfig selects where trace data comes from.
type SourceConfig struct {
	Kind    string `toml:"kind"`     // dir (default), pebble or nats
	Path    string `toml:"path"`     // Store directory for dir and pebble
	NATSURL string `toml:"nats_url"` // Server for nats, and for serve
	Subject string `toml:"subject"`  // Request subject prefix
	Timeout string `toml:"timeout"`  // Request timeout (default "10s")
}

// PackingConfig must match the recorder that produced the traces.
type PackingConfig struct {
	Scheme   string `toml:"scheme"`    // bits (default) or radix
	LineBits uint   `toml:"line_bits"` // bits: low bits holding the line number
	Base     int64  `toml:"base"`      // radix: symbol = class*base + line
}

// LoadConfig controls trace loading.
type LoadConfig struct {
	ValidateSymbols bool `toml:"validate_symbols"`
}

// StateConfig locates per-user navigation state.
type StateConfig struct {
	Dir string `toml:"dir"` // Where step --resume checkpoints live
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`  // logrus level name
	Format string `toml:"format"` // text or json
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:    SourceDir,
			Path:    "~/.local/share/tracenav",
			Subject: "tracenav.traces",
			Timeout: "10s",
		},
		Packing: PackingConfig{
			Scheme:   event.SchemeBits,
			LineBits: event.DefaultLineBits,
		},
		Load: LoadConfig{
			ValidateSymbols: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		State: StateConfig{
			Dir: "~/.local/state/tracenav",
		},
	}
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from tracenav.toml in the current
// directory, falling back to defaults when there is none.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return LoadFile(path)
}

// ApplyEnv overrides settings from TRACENAV_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"TRACENAV_SOURCE_KIND":    &c.Source.Kind,
		"TRACENAV_SOURCE_PATH":    &c.Source.Path,
		"TRACENAV_NATS_URL":       &c.Source.NATSURL,
		"TRACENAV_SUBJECT":        &c.Source.Subject,
		"TRACENAV_TIMEOUT":        &c.Source.Timeout,
		"TRACENAV_PACKING_SCHEME": &c.Packing.Scheme,
		"TRACENAV_LOG_LEVEL":      &c.Logging.Level,
		"TRACENAV_LOG_FORMAT":     &c.Logging.Format,
		"TRACENAV_STATE_DIR":      &c.State.Dir,
	}
	for env, field := range strs {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv("TRACENAV_PACKING_LINE_BITS"); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid TRACENAV_PACKING_LINE_BITS: %w", err)
		}
		c.Packing.LineBits = uint(n)
	}
	if v, ok := os.LookupEnv("TRACENAV_PACKING_BASE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TRACENAV_PACKING_BASE: %w", err)
		}
		c.Packing.Base = n
	}
	if v, ok := os.LookupEnv("TRACENAV_VALIDATE_SYMBOLS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRACENAV_VALIDATE_SYMBOLS: %w", err)
		}
		c.Load.ValidateSymbols = b
	}
	return nil
}

// Validate checks the settings that are not checked where they are used.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceDir, SourcePebble:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for %s sources", c.Source.Kind)
		}
	case SourceNATS:
		if c.Source.NATSURL == "" {
			return fmt.Errorf("source.nats_url is required for nats sources")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.PackingScheme(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Timeout returns the parsed source timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.Source.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Source.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid source.timeout: %w", err)
	}
	return d, nil
}

// PackingScheme builds the configured packing.
func (c *Config) PackingScheme() (event.Packing, error) {
	return event.NewPacking(c.Packing.Scheme, c.Packing.LineBits, c.Packing.Base)
}

// StorePath returns the source path with a leading ~ expanded.
func (c *Config) StorePath() string {
	return ExpandPath(c.Source.Path)
}

// StateDir returns the checkpoint directory with a leading ~ expanded.
func (c *Config) StateDir() string {
	return ExpandPath(c.State.Dir)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Logger builds a logger writing to w.
func (c *Config) Logger(w io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	if c.Logging.Level != "" {
		level, err := logrus.ParseLevel(c.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid logging.level: %w", err)
		}
		logger.SetLevel(level)
	}
	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger, nil
}
