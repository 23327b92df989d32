package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeTransform()
	c.normalizeFrames()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		c.Paths.InputDir = defaultInputDir
	}
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

// The marker is matched as a raw substring, so only surrounding whitespace is trimmed.
func (c *Config) normalizeIngest() {
	c.Ingest.ImageMarker = strings.TrimSpace(c.Ingest.ImageMarker)
	if c.Ingest.ImageMarker == "" {
		c.Ingest.ImageMarker = defaultImageMarker
	}
	if c.Ingest.JPEGQuality == 0 {
		c.Ingest.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeTransform() {
	c.Transform.Mode = strings.ToLower(strings.TrimSpace(c.Transform.Mode))
	if c.Transform.Mode == "" {
		c.Transform.Mode = defaultTransformMode
	}
	c.Transform.Command = strings.TrimSpace(c.Transform.Command)
	args := make([]string, 0, len(c.Transform.Args))
	for _, arg := range c.Transform.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	if len(args) == 0 {
		args = []string{PlaceholderInput, PlaceholderOutput}
	}
	c.Transform.Args = args
	if c.Transform.TimeoutSeconds == 0 {
		c.Transform.TimeoutSeconds = defaultTransformTimeout
	}
}

func (c *Config) normalizeFrames() {
	c.Frames.Bind = strings.TrimSpace(c.Frames.Bind)
	if c.Frames.Bind == "" {
		c.Frames.Bind = defaultFramesBind
	}
	if c.Frames.FPS == 0 {
		c.Frames.FPS = defaultFramesFPS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
