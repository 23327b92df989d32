package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.InputDir == "" {
		return errors.New("paths.input_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	// Outputs keep their input filename, so a shared directory would feed results back in.
	if filepath.Clean(c.Paths.InputDir) == filepath.Clean(c.Paths.OutputDir) {
		return fmt.Errorf("paths.input_dir and paths.output_dir must differ (both %s)", c.Paths.InputDir)
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.ImageMarker == "" {
		return errors.New("ingest.image_marker must be set")
	}
	if c.Ingest.FailureDelaySeconds < 0 {
		return errors.New("ingest.failure_delay_seconds must be >= 0")
	}
	if c.Ingest.IdleIntervalMillis <= 0 {
		return errors.New("ingest.idle_interval_ms must be positive")
	}
	if c.Ingest.JPEGQuality < 1 || c.Ingest.JPEGQuality > 100 {
		return errors.New("ingest.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateTransform() error {
	switch c.Transform.Mode {
	case TransformModePassthrough:
		return nil
	case TransformModeCommand:
	default:
		return fmt.Errorf("transform.mode: unsupported value %q (use %q or %q)", c.Transform.Mode, TransformModeCommand, TransformModePassthrough)
	}
	if c.Transform.Command == "" {
		return errors.New("transform.command must be set when transform.mode is \"command\"")
	}
	joined := strings.Join(c.Transform.Args, " ")
	if !strings.Contains(joined, PlaceholderInput) || !strings.Contains(joined, PlaceholderOutput) {
		return fmt.Errorf("transform.args must reference both %s and %s", PlaceholderInput, PlaceholderOutput)
	}
	if c.Transform.TimeoutSeconds <= 0 {
		return errors.New("transform.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateFrames() error {
	if c.Frames.RefreshIntervalSeconds < 0 {
		return errors.New("frames.refresh_interval_seconds must be >= 0")
	}
	if c.Frames.FPS <= 0 {
		return errors.New("frames.fps must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
