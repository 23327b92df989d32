package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dreamloop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The mailboxes exist on return and the transform defaults to passthrough so
// tests never shell out unless they opt in.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "input")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Ingest.FailureDelaySeconds = 0
	cfgVal.Ingest.IdleIntervalMillis = 10
	cfgVal.Transform.Mode = config.TransformModePassthrough
	cfgVal.Frames.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.InputDir, cfgVal.Paths.OutputDir, cfgVal.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return builder.cfg
}

// WithMarker overrides the image marker substring.
func WithMarker(marker string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.ImageMarker = marker
	}
}

// WithTransformCommand switches the config to command mode.
func WithTransformCommand(command string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transform.Mode = config.TransformModeCommand
		b.cfg.Transform.Command = command
		if len(args) > 0 {
			b.cfg.Transform.Args = args
		}
	}
}

// WithJournalDisabled turns off the SQLite journal.
func WithJournalDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}
