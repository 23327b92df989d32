package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is prepended to every environment override (DREAMLOOP_INPUT_DIR, ...).
const EnvPrefix = "DREAMLOOP_"

// Paths contains the mailbox directories and the process state directory.
type Paths struct {
	InputDir  string `toml:"input_dir" env:"INPUT_DIR"`
	OutputDir string `toml:"output_dir" env:"OUTPUT_DIR"`
	StateDir  string `toml:"state_dir" env:"STATE_DIR"`
}

// Ingest contains settings for the directory polling loop.
type Ingest struct {
	ImageMarker         string `toml:"image_marker" env:"IMAGE_MARKER"`
	FailureDelaySeconds int    `toml:"failure_delay_seconds" env:"FAILURE_DELAY_SECONDS"`
	IdleIntervalMillis  int    `toml:"idle_interval_ms" env:"IDLE_INTERVAL_MS"`
	JPEGQuality         int    `toml:"jpeg_quality" env:"JPEG_QUALITY"`
	Watch               bool   `toml:"watch" env:"WATCH"`
}

// Transform selects and configures the external image transformation.
type Transform struct {
	Mode           string   `toml:"mode" env:"TRANSFORM_MODE"`
	Command        string   `toml:"command" env:"TRANSFORM_COMMAND"`
	Args           []string `toml:"args" env:"TRANSFORM_ARGS"`
	TimeoutSeconds int      `toml:"timeout_seconds" env:"TRANSFORM_TIMEOUT_SECONDS"`
}

// Frames contains settings for the looping frame server.
type Frames struct {
	RefreshIntervalSeconds int     `toml:"refresh_interval_seconds" env:"FRAMES_REFRESH_INTERVAL_SECONDS"`
	FPS                    float64 `toml:"fps" env:"FRAMES_FPS"`
	Bind                   string  `toml:"bind" env:"FRAMES_BIND"`
}

// Journal controls the SQLite outcome history.
type Journal struct {
	Enabled       bool `toml:"enabled" env:"JOURNAL_ENABLED"`
	RetentionDays int  `toml:"retention_days" env:"JOURNAL_RETENTION_DAYS"`
}

// Metrics controls the ingest process metrics listener.
type Metrics struct {
	Bind string `toml:"bind" env:"METRICS_BIND"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" env:"LOG_FORMAT"`
	Level         string `toml:"level" env:"LOG_LEVEL"`
	RetentionDays int    `toml:"retention_days" env:"LOG_RETENTION_DAYS"`
}

// Config encapsulates all configuration values for dreamloop.
//
// Configuration sections by subsystem:
//   - Paths: input/output mailboxes and the state directory
//   - Ingest: polling loop cadence, failure delay, output encoding
//   - Transform: external dream command or passthrough
//   - Frames: frame server refresh cadence and HTTP bind address
//   - Journal: SQLite outcome history
//   - Metrics: prometheus listener for the ingest process
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Ingest    Ingest    `toml:"ingest"`
	Transform Transform `toml:"transform"`
	Frames    Frames    `toml:"frames"`
	Journal   Journal   `toml:"journal"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dreamloop/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file so DREAMLOOP_* variables always win.
// The returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dreamloop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the mailbox and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.StateDir, c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogDir is where per-run log files are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// JournalPath is the SQLite outcome history location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath is the flock file guarding a single ingest process.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "dreamloop.lock")
}

// PIDPath is the heartbeat file holding the running ingest process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "dreamloop.pid")
}

// FailureDelay is the fixed pause after a failed item.
func (c *Config) FailureDelay() time.Duration {
	return time.Duration(c.Ingest.FailureDelaySeconds) * time.Second
}

// IdleInterval is how long the ingest loop waits after a scan found no work.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Ingest.IdleIntervalMillis) * time.Millisecond
}

// TransformTimeout bounds a single external transformation run.
func (c *Config) TransformTimeout() time.Duration {
	return time.Duration(c.Transform.TimeoutSeconds) * time.Second
}

// RefreshInterval is the minimum time between frame server rescans.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Frames.RefreshIntervalSeconds) * time.Second
}

// FrameInterval is the pause between frames pulled for HTTP clients.
func (c *Config) FrameInterval() time.Duration {
	if c.Frames.FPS <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.Frames.FPS)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
