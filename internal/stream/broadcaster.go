package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dreamloop/internal/frames"
	"dreamloop/internal/logging"
)

// Source yields frames. Implementations need not be safe for concurrent use;
// the Broadcaster calls them from a single goroutine.
type Source interface {
	Frame() ([]byte, error)
	Snapshot() frames.Snapshot
}

// Status is the broadcaster view served on /api/status.
type Status struct {
	Loop        frames.Snapshot `json:"loop"`
	Subscribers int             `json:"subscribers"`
	Dropped     uint64          `json:"dropped"`
	HasFrame    bool            `json:"has_frame"`
	LatestAt    time.Time       `json:"latest_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Interval    string          `json:"interval"`
}

// Broadcaster pulls frames at a fixed interval and distributes them.
type Broadcaster struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	latest   []byte
	latestAt time.Time
	loop     frames.Snapshot
	lastErr  string
	dropped  uint64
	subs     map[chan []byte]struct{}
}

// NewBroadcaster builds a Broadcaster pulling from source every interval.
func NewBroadcaster(source Source, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		source:   source,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "stream"),
		loop:     source.Snapshot(),
		subs:     make(map[chan []byte]struct{}),
	}
}

// Run pumps frames until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Pump()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Pump()
		}
	}
}

// Pump pulls one frame from the source and delivers it. Subscribers whose
// buffer is still full miss the frame.
func (b *Broadcaster) Pump() {
	data, err := b.source.Frame()
	snapshot := b.source.Snapshot()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loop = snapshot
	switch {
	case errors.Is(err, frames.ErrNoFrame):
		b.latest = nil
		b.lastErr = ""
		return
	case err != nil:
		if b.lastErr != err.Error() {
			logging.WarnWithContext(context.Background(), b.logger, "frame pull failed; keeping last frame", "frame_pull_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the output directory"),
				logging.String(logging.FieldImpact, "clients keep seeing the previous frame"),
			)
		}
		b.lastErr = err.Error()
		return
	}

	b.latest = data
	b.latestAt = time.Now()
	b.lastErr = ""
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
			b.dropped++
		}
	}
}

// Subscribe registers a frame channel. The returned func unregisters it.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

// Latest returns the most recent frame, if any.
func (b *Broadcaster) Latest() ([]byte, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return nil, time.Time{}, false
	}
	return b.latest, b.latestAt, true
}

// Status reports the broadcaster and loop state.
func (b *Broadcaster) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		Loop:        b.loop,
		Subscribers: len(b.subs),
		Dropped:     b.dropped,
		HasFrame:    b.latest != nil,
		LatestAt:    b.latestAt,
		LastError:   b.lastErr,
		Interval:    b.interval.String(),
	}
}
