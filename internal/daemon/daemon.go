package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dreamloop/internal/config"
	"dreamloop/internal/ingest"
	"dreamloop/internal/logging"
)

// ErrAlreadyRunning reports that another process holds the state directory lock.
var ErrAlreadyRunning = errors.New("another dreamloop ingest instance is already running")

// Loop is the work the daemon supervises.
type Loop interface {
	Run(ctx context.Context) error
	Stats() ingest.Stats
}

// Daemon supervises one ingest loop and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	loop   Loop
	logger *slog.Logger

	lockPath string
	pidPath  string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running   bool         `json:"running"`
	PID       int          `json:"pid"`
	StartedAt time.Time    `json:"started_at"`
	LockPath  string       `json:"lock_path"`
	PIDPath   string       `json:"pid_path"`
	Ingest    ingest.Stats `json:"ingest"`
	LastError string       `json:"last_error,omitempty"`
}

// New constructs a daemon for loop.
func New(cfg *config.Config, loop Loop, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || loop == nil {
		return nil, errors.New("daemon requires config and ingest loop")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		loop:     loop,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		pidPath:  cfg.PIDPath(),
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, writes the PID file and launches the loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.runErr = nil
	d.started = time.Now()
	d.running.Store(true)

	go d.run(runCtx, d.done)

	d.logger.Info("dreamloop ingest started",
		logging.String("lock", d.lockPath),
		logging.String("pid_file", d.pidPath),
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	if err := d.loop.Run(ctx); err != nil {
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		logging.ErrorWithContext(ctx, d.logger, "ingest loop exited", "daemon_loop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the input directory exists and is readable"),
		)
	}
}

// Done is closed when the loop goroutine exits, either after Stop or because
// the loop hit an environment failure. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error the loop exited with, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the loop, waits for it, and releases the PID file and lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	<-done

	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(context.Background(), d.logger, "failed to remove pid file", "pid_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale pid file remains until the next start"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(context.Background(), d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report the lock as held"),
		)
	}
	d.running.Store(false)
	d.logger.Info("dreamloop ingest stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	started := d.started
	lastErr := ""
	if d.runErr != nil {
		lastErr = d.runErr.Error()
	}
	d.mu.Unlock()

	status := Status{
		Running:   d.running.Load(),
		StartedAt: started,
		LockPath:  d.lockPath,
		PIDPath:   d.pidPath,
		Ingest:    d.loop.Stats(),
		LastError: lastErr,
	}
	if pid, err := ReadPID(d.pidPath); err == nil {
		status.PID = pid
	}
	return status
}

// LockHeld reports whether another process holds the ingest lock at path.
// A missing lock file means no ingest process has started there.
func LockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock %s: %w", path, err)
	}
	if !ok {
		return true, nil
	}
	if err := probe.Unlock(); err != nil {
		return false, fmt.Errorf("release lock probe %s: %w", path, err)
	}
	return false, nil
}

// StatusHandler serves Status as JSON.
func (d *Daemon) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Status()); err != nil {
			d.logger.Debug("status encode failed", logging.Error(err))
		}
	})
}

// ReadPID parses the PID file at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
