package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dreamloop/internal/dream"
	"dreamloop/internal/fileutil"
	"dreamloop/internal/imaging"
	"dreamloop/internal/logging"
)

const (
	defaultFailureDelay = 2 * time.Second
	defaultIdleInterval = 250 * time.Millisecond
)

// Options configures a Loop.
type Options struct {
	InputDir     string
	OutputDir    string
	Marker       string
	FailureDelay time.Duration
	IdleInterval time.Duration
	JPEGQuality  int
	// Watch wakes the idle wait early on filesystem events in InputDir.
	Watch bool
	// Processed seeds the set of already-handled names; nil starts empty.
	Processed *ProcessedSet
}

// ScanResult counts what one pass over the input directory did.
type ScanResult struct {
	Listed    int
	Processed int
	Failed    int
	Skipped   int
}

// Loop converts input images to output images until its context ends.
type Loop struct {
	opts        Options
	transformer dream.Transformer
	logger      *slog.Logger
	observers   observers
	processed   *ProcessedSet
	now         func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New validates opts and builds a Loop.
func New(opts Options, transformer dream.Transformer, logger *slog.Logger, obs ...Observer) (*Loop, error) {
	opts.InputDir = strings.TrimSpace(opts.InputDir)
	opts.OutputDir = strings.TrimSpace(opts.OutputDir)
	if opts.InputDir == "" || opts.OutputDir == "" {
		return nil, errors.New("ingest: input and output directories required")
	}
	if filepath.Clean(opts.InputDir) == filepath.Clean(opts.OutputDir) {
		return nil, errors.New("ingest: input and output directories must differ")
	}
	if opts.Marker == "" {
		return nil, errors.New("ingest: image marker required")
	}
	if transformer == nil {
		return nil, errors.New("ingest: transformer required")
	}
	if opts.FailureDelay < 0 {
		opts.FailureDelay = defaultFailureDelay
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imaging.DefaultJPEGQuality
	}
	processed := opts.Processed
	if processed == nil {
		processed = NewProcessedSet()
	}

	filtered := make(observers, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}

	return &Loop{
		opts:        opts,
		transformer: transformer,
		logger:      logging.NewComponentLogger(logger, "ingest"),
		observers:   filtered,
		processed:   processed,
		now:         time.Now,
	}, nil
}

// Processed exposes the run's processed-name set.
func (l *Loop) Processed() *ProcessedSet {
	return l.processed
}

// Stats returns a snapshot of the run statistics.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run scans until ctx is cancelled. Only a failure to list the input
// directory ends it early.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.stats.StartedAt = l.now()
	l.mu.Unlock()

	var wake <-chan struct{}
	if l.opts.Watch {
		wake = l.watch(ctx)
	}

	l.logger.Info("ingest loop started",
		logging.String("input_dir", l.opts.InputDir),
		logging.String("output_dir", l.opts.OutputDir),
		logging.String("marker", l.opts.Marker),
		logging.Bool("watch", wake != nil),
		logging.String(logging.FieldEventType, "ingest_started"),
	)
	defer l.logger.Info("ingest loop stopped",
		logging.Int("processed", l.processed.Len()),
		logging.String(logging.FieldEventType, "ingest_stopped"),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}
		result, err := l.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if result.Processed > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.opts.IdleInterval):
		case <-wake:
		}
	}
}

// Scan makes one pass over the input directory, processing every qualifying
// item not yet in the processed set. Per-item failures are absorbed; the
// returned error covers listing failures and cancellation.
func (l *Loop) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	names, err := fileutil.ListMatching(l.opts.InputDir, l.opts.Marker)
	if err != nil {
		return result, fmt.Errorf("list input directory %s: %w", l.opts.InputDir, err)
	}
	result.Listed = len(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if l.processed.Has(name) {
			result.Skipped++
			continue
		}
		itemCtx := logging.WithItem(ctx, name)
		if err := l.process(itemCtx, name); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			l.fail(itemCtx, name, err)
			if err := sleepCtx(ctx, l.opts.FailureDelay); err != nil {
				return result, err
			}
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (l *Loop) process(ctx context.Context, name string) error {
	started := l.now()
	inputPath := filepath.Join(l.opts.InputDir, name)

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return Wrap(ErrIO, "read", name, err)
	}
	pixels, _, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return Wrap(ErrDecode, "decode", name, err)
	}
	dreamed, err := l.transformer.Transform(ctx, pixels)
	if err != nil {
		return Wrap(ErrTransform, "transform", name, err)
	}
	if err := dreamed.Validate(); err != nil {
		return Wrap(ErrTransform, "transform", name, err)
	}

	var encoded bytes.Buffer
	if err := imaging.Encode(&encoded, dreamed, imaging.FormatForName(name), l.opts.JPEGQuality); err != nil {
		return Wrap(ErrIO, "encode", name, err)
	}
	outputPath := filepath.Join(l.opts.OutputDir, name)
	if err := fileutil.WriteFileAtomic(outputPath, encoded.Bytes(), 0o644, l.opts.Marker); err != nil {
		return Wrap(ErrIO, "write", name, err)
	}

	l.processed.Add(name)

	leftover := false
	if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		leftover = true
		logging.WarnWithContext(ctx, l.logger, "input removal failed; file stays but will not be reprocessed", "input_remove_failed",
			logging.Error(Wrap(ErrIO, "remove", name, err)),
			logging.String(logging.FieldErrorKind, KindIO),
			logging.String(logging.FieldErrorHint, "check write permission on the input directory"),
			logging.String(logging.FieldImpact, "input file remains until removed by hand"),
		)
	}

	duration := l.now().Sub(started)
	l.mu.Lock()
	l.stats.recordSuccess(name, duration, l.now())
	if leftover {
		l.stats.LeftoverInputs++
	}
	stats := l.stats
	l.mu.Unlock()

	l.observers.processed(name, duration)
	l.logger.InfoContext(ctx, "item processed",
		logging.Duration("duration", duration),
		logging.Duration("average", stats.AverageDuration),
		logging.Int("processed", stats.Processed),
		logging.String(logging.FieldEventType, "item_processed"),
	)
	return nil
}

func (l *Loop) fail(ctx context.Context, name string, err error) {
	l.mu.Lock()
	l.stats.recordFailure(name, err)
	l.mu.Unlock()

	l.observers.failed(name, err)
	logging.ErrorWithContext(ctx, l.logger, "item failed; will retry on a later scan", "item_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, Kind(err)),
		logging.String(logging.FieldErrorHint, hintFor(err)),
		logging.Duration("retry_delay", l.opts.FailureDelay),
	)
}

func hintFor(err error) string {
	switch Kind(err) {
	case KindDecode:
		return "input is not a readable image; replace or delete it"
	case KindTransform:
		return "check the transform command and its stderr"
	case KindIO:
		return "check permissions and free space on the mailbox directories"
	default:
		return "check logs for details"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
