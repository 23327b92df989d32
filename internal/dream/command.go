package dream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dreamloop/internal/config"
	"dreamloop/internal/imaging"
)

const maxStderrBytes = 2048

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures a CommandTransformer.
type Option func(*CommandTransformer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *CommandTransformer) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTempDir sets the parent directory for per-call scratch directories.
func WithTempDir(dir string) Option {
	return func(c *CommandTransformer) {
		c.tempDir = strings.TrimSpace(dir)
	}
}

// CommandTransformer runs an external program per image. The argument list
// must reference both config.PlaceholderInput and config.PlaceholderOutput;
// they are replaced with PNG paths for the source and the result.
type CommandTransformer struct {
	binary  string
	args    []string
	timeout time.Duration
	tempDir string
	exec    Executor
}

// NewCommand constructs a CommandTransformer.
func NewCommand(binary string, args []string, timeout time.Duration, opts ...Option) (*CommandTransformer, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("dream: transform command required")
	}
	if !containsPlaceholder(args, config.PlaceholderInput) || !containsPlaceholder(args, config.PlaceholderOutput) {
		return nil, fmt.Errorf("dream: args must reference %s and %s", config.PlaceholderInput, config.PlaceholderOutput)
	}
	c := &CommandTransformer{
		binary:  binary,
		args:    append([]string(nil), args...),
		timeout: timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Binary returns the configured command name.
func (c *CommandTransformer) Binary() string {
	return c.binary
}

// Transform writes in to a temp PNG, runs the command, and decodes its output.
func (c *CommandTransformer) Transform(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(c.tempDir, "dreamloop-transform-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.png")
	outputPath := filepath.Join(workDir, "output.png")
	if err := writePNG(inputPath, in); err != nil {
		return nil, err
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.exec.Run(runCtx, c.binary, expandArgs(c.args, inputPath, outputPath)); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s timed out after %s: %w", c.binary, c.timeout, err)
		}
		return nil, fmt.Errorf("%s: %w", c.binary, err)
	}

	file, err := os.Open(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%s produced no output: %w", c.binary, err)
	}
	defer file.Close()
	out, _, err := imaging.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s output: %w", c.binary, err)
	}
	return out, nil
}

func writePNG(path string, p *imaging.Pixels) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transform input: %w", err)
	}
	if err := imaging.Encode(file, p, imaging.FormatPNG, 0); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func containsPlaceholder(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

func expandArgs(args []string, inputPath, outputPath string) []string {
	replacer := strings.NewReplacer(config.PlaceholderInput, inputPath, config.PlaceholderOutput, outputPath)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := tail(stderr.String(), maxStderrBytes); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
		return err
	}
	return nil
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "…" + s[len(s)-limit:]
}
