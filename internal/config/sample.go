package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrSampleExists is returned by WriteSample when the target exists and
// overwrite is false.
var ErrSampleExists = errors.New("config file already exists")

// SampleOptions fills in the sample's mailbox and transform settings. Empty
// fields keep the sample's placeholder values.
type SampleOptions struct {
	InputDir  string
	OutputDir string
	Mode      string
	Command   string
}

// RenderSample returns the commented sample configuration with opts applied.
func RenderSample(opts SampleOptions) (string, error) {
	if opts.Mode != "" && opts.Mode != TransformModeCommand && opts.Mode != TransformModePassthrough {
		return "", fmt.Errorf("transform mode must be %q or %q, got %q", TransformModeCommand, TransformModePassthrough, opts.Mode)
	}
	overrides := map[string]string{
		"paths.input_dir":   opts.InputDir,
		"paths.output_dir":  opts.OutputDir,
		"transform.mode":    opts.Mode,
		"transform.command": opts.Command,
	}

	lines := strings.Split(sampleConfig, "\n")
	section := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.Trim(trimmed, "[]")
			continue
		}
		key, _, ok := strings.Cut(trimmed, "=")
		if !ok || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if value := overrides[section+"."+strings.TrimSpace(key)]; value != "" {
			lines[i] = strings.TrimSpace(key) + " = " + strconv.Quote(value)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// WriteSample renders the sample with opts and writes it to path. Without
// overwrite an existing file is left untouched and ErrSampleExists returned.
func WriteSample(path string, opts SampleOptions, overwrite bool) error {
	rendered, err := RenderSample(opts)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w at %s", ErrSampleExists, path)
	}
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	if _, err := f.WriteString(rendered); err != nil {
		_ = f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close config file: %w", err)
	}
	return nil
}
