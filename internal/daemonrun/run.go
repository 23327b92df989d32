package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dreamloop/internal/config"
	"dreamloop/internal/daemon"
	"dreamloop/internal/deps"
	"dreamloop/internal/dream"
	"dreamloop/internal/frames"
	"dreamloop/internal/ingest"
	"dreamloop/internal/journal"
	"dreamloop/internal/logging"
	"dreamloop/internal/metrics"
	"dreamloop/internal/stream"
)

// Options configures the ingest process.
type Options struct {
	// MetricsBind overrides metrics.bind when non-empty.
	MetricsBind string
}

// ServeOptions configures the frame server process.
type ServeOptions struct {
	// Bind overrides frames.bind when non-empty.
	Bind string
	// FPS overrides frames.fps when positive.
	FPS float64
}

// Ingest runs the ingest loop under the daemon until SIGINT/SIGTERM or until
// the loop exits with an environment failure.
func Ingest(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := processLogger(cfg, "ingest")
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	ctx := logging.WithRunID(signalCtx, runID)
	logDependencySnapshot(ctx, logger, cfg)

	transformer, err := dream.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("configure transform: %w", err)
	}

	collectors := metrics.New()
	observers := []ingest.Observer{collectors}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.JournalPath())
		if err != nil {
			logging.WarnWithContext(ctx, logger, "journal unavailable; outcomes will not be recorded", "journal_open_failed",
				logging.Error(err),
				logging.String("path", cfg.JournalPath()),
				logging.String(logging.FieldErrorHint, "check permissions on the state directory or set journal.enabled = false"),
				logging.String(logging.FieldImpact, "dreamloop history shows nothing for this run"),
			)
		} else {
			defer store.Close()
			pruneJournal(ctx, logger, store, cfg.Journal.RetentionDays)
			observers = append(observers, store.Observer(ctx, runID, logger))
		}
	}

	loop, err := ingest.New(ingest.Options{
		InputDir:     cfg.Paths.InputDir,
		OutputDir:    cfg.Paths.OutputDir,
		Marker:       cfg.Ingest.ImageMarker,
		FailureDelay: cfg.FailureDelay(),
		IdleInterval: cfg.IdleInterval(),
		JPEGQuality:  cfg.Ingest.JPEGQuality,
		Watch:        cfg.Ingest.Watch,
	}, transformer, logger, observers...)
	if err != nil {
		return fmt.Errorf("create ingest loop: %w", err)
	}

	d, err := daemon.New(cfg, loop, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	bind := strings.TrimSpace(cfg.Metrics.Bind)
	if override := strings.TrimSpace(opts.MetricsBind); override != "" {
		bind = override
	}
	if bind != "" {
		go func() {
			if err := collectors.Serve(ctx, bind, d.StatusHandler(), logger); err != nil {
				logging.WarnWithContext(ctx, logger, "metrics server stopped", "metrics_failed",
					logging.Error(err),
					logging.String("bind", bind),
					logging.String(logging.FieldErrorHint, "choose a free address for metrics.bind"),
					logging.String(logging.FieldImpact, "ingest metrics are not exported"),
				)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("dreamloop ingest shutting down", logging.String(logging.FieldEventType, "shutdown"))
		return nil
	case <-d.Done():
		if err := d.Err(); err != nil {
			return fmt.Errorf("ingest loop: %w", err)
		}
		return nil
	}
}

// Serve runs the frame server and its HTTP endpoint until SIGINT/SIGTERM.
func Serve(cmdCtx context.Context, cfg *config.Config, opts ServeOptions) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := processLogger(cfg, "serve")
	if err != nil {
		return err
	}

	collectors := metrics.New()
	server, err := frames.New(cfg.Paths.OutputDir, frames.Options{
		Marker:          cfg.Ingest.ImageMarker,
		RefreshInterval: cfg.RefreshInterval(),
		Logger:          logger,
		Observer:        collectors,
	})
	if err != nil {
		return fmt.Errorf("create frame server: %w", err)
	}

	interval := cfg.FrameInterval()
	if opts.FPS > 0 {
		interval = time.Duration(float64(time.Second) / opts.FPS)
	}
	bind := strings.TrimSpace(cfg.Frames.Bind)
	if override := strings.TrimSpace(opts.Bind); override != "" {
		bind = override
	}
	if bind == "" {
		return errors.New("frames.bind is empty")
	}

	broadcaster := stream.NewBroadcaster(server, interval, logger)
	go broadcaster.Run(ctx)

	return stream.Serve(ctx, bind, stream.NewHandler(broadcaster, collectors, logger), logger)
}

func pruneJournal(ctx context.Context, logger *slog.Logger, store *journal.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		logging.WarnWithContext(ctx, logger, "journal prune failed; old outcomes remain", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check journal.db permissions in the state directory"),
			logging.String(logging.FieldImpact, "journal keeps growing until a prune succeeds"),
		)
		return
	}
	if removed > 0 {
		logger.InfoContext(ctx, "journal pruned",
			logging.Int64("removed", removed),
			logging.Int("retention_days", retentionDays),
			logging.String(logging.FieldEventType, "journal_pruned"),
		)
	}
}

func processLogger(cfg *config.Config, name string) (*slog.Logger, error) {
	logger, logPath, err := logging.NewFromConfig(cfg, name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogDir(), name, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", name, err)
	}
	logging.RunLogs{Dir: cfg.LogDir(), Process: name, Current: logPath}.Prune(logger, cfg.Logging.RetentionDays, time.Now())
	return logger, nil
}

// ensureCurrentLogPointer points <logDir>/<name>.log at the current run log.
func ensureCurrentLogPointer(logDir, name, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, name+".log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transform_mode", cfg.Transform.Mode),
		logging.String("input_dir", cfg.Paths.InputDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.String("image_marker", cfg.Ingest.ImageMarker),
		logging.Bool("journal_enabled", cfg.Journal.Enabled),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		attrs = append(attrs,
			logging.String("transform_command", status.Command),
			logging.Bool("transform_available", status.Available),
		)
		if !status.Available {
			logging.WarnWithContext(ctx, logger, "transform command not found", "dependency_missing",
				logging.String("command", status.Command),
				logging.String(logging.FieldErrorHint, "install the command or set transform.command"),
				logging.String(logging.FieldImpact, "every image fails with a transform error until it resolves"),
			)
		}
	}
	logger.InfoContext(ctx, "dependency snapshot", logging.Args(attrs...)...)
}
