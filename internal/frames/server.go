package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dreamloop/internal/fileutil"
	"dreamloop/internal/logging"
)

// ErrNoFrame means the output directory holds no matching images yet.
var ErrNoFrame = errors.New("no frame available")

const defaultEmptyRescan = time.Second

// Observer is notified as frames are served and the loop is rebuilt.
type Observer interface {
	FrameServed(name string)
	LoopRefreshed(loopLength int)
}

// Options configures a Server.
type Options struct {
	Marker string
	// RefreshInterval is the minimum time between rescans triggered by a
	// completed pass. Zero rescans after every pass.
	RefreshInterval time.Duration
	// EmptyRescan rate-limits rescans while the loop is empty.
	EmptyRescan time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
	Observer    Observer
}

// Snapshot describes the server state for status endpoints.
type Snapshot struct {
	Dir         string    `json:"dir"`
	LoopLength  int       `json:"loop_length"`
	CycleLength int       `json:"cycle_length"`
	Position    int       `json:"position"`
	Refreshes   int       `json:"refreshes"`
	LastRefresh time.Time `json:"last_refresh"`
	StartedAt   time.Time `json:"started_at"`
}

// Server hands out frames from the output directory in ping-pong order.
type Server struct {
	dir         string
	opts        Options
	logger      *slog.Logger
	cycle       *Cycle
	loopLength  int
	startedAt   time.Time
	lastRefresh time.Time
	lastScan    time.Time
	refreshes   int
}

// New scans dir once and returns a Server positioned at the first frame.
func New(dir string, opts Options) (*Server, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("frames: directory required")
	}
	if opts.Marker == "" {
		return nil, errors.New("frames: image marker required")
	}
	if opts.RefreshInterval < 0 {
		opts.RefreshInterval = 0
	}
	if opts.EmptyRescan <= 0 {
		opts.EmptyRescan = defaultEmptyRescan
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		dir:    dir,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "frames"),
		cycle:  NewCycle(nil),
	}
	s.startedAt = opts.Clock()
	if err := s.Update(); err != nil {
		return nil, err
	}
	return s, nil
}

// Update rescans the directory and restarts the cycle from its first frame.
func (s *Server) Update() error {
	// Failed attempts count too, so an unreadable directory stays rate limited.
	s.lastScan = s.opts.Clock()
	names, err := fileutil.ListMatching(s.dir, s.opts.Marker)
	if err != nil {
		return fmt.Errorf("scan output directory %s: %w", s.dir, err)
	}
	frames := make([]Frame, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			// Removed between listing and read; it will be missing from this pass.
			s.logger.Debug("frame unreadable; skipped", logging.String("name", name), logging.Error(err))
			continue
		}
		frames = append(frames, Frame{Name: name, Data: data})
	}

	s.cycle = NewCycle(frames)
	s.loopLength = len(frames)
	s.lastRefresh = s.opts.Clock()
	s.refreshes++

	s.logger.Info("loop updated",
		logging.Int("loop_length", s.loopLength),
		logging.String(logging.FieldEventType, "loop_updated"),
	)
	if s.opts.Observer != nil {
		s.opts.Observer.LoopRefreshed(s.loopLength)
	}
	return nil
}

// Frame returns the next frame's bytes. An empty loop yields ErrNoFrame after
// at most one rate-limited rescan.
func (s *Server) Frame() ([]byte, error) {
	if s.cycle.Len() == 0 {
		if s.opts.Clock().Sub(s.lastScan) < s.opts.EmptyRescan {
			return nil, ErrNoFrame
		}
		if err := s.Update(); err != nil {
			return nil, err
		}
	}

	frame, ok := s.cycle.Next()
	if !ok {
		return nil, ErrNoFrame
	}
	if s.opts.Observer != nil {
		s.opts.Observer.FrameServed(frame.Name)
	}

	if s.cycle.Wrapped() && s.opts.Clock().Sub(s.lastScan) >= s.opts.RefreshInterval {
		if err := s.Update(); err != nil {
			logging.WarnWithContext(context.Background(), s.logger, "loop refresh failed; replaying previous frames", "loop_refresh_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the output directory exists and is readable"),
				logging.String(logging.FieldImpact, "new frames are not shown until a rescan succeeds"),
			)
		}
	}
	return frame.Data, nil
}

// LoopLength is the number of frames in the current snapshot.
func (s *Server) LoopLength() int {
	return s.loopLength
}

// Snapshot reports the current state.
func (s *Server) Snapshot() Snapshot {
	return Snapshot{
		Dir:         s.dir,
		LoopLength:  s.loopLength,
		CycleLength: s.cycle.Len(),
		Position:    s.cycle.Position(),
		Refreshes:   s.refreshes,
		LastRefresh: s.lastRefresh,
		StartedAt:   s.startedAt,
	}
}
