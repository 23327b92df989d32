package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dreamloop/internal/ingest"
	"dreamloop/internal/logging"
)

// IngestObserver records ingest outcomes into the journal. Write failures are
// logged and otherwise ignored so history never stalls processing.
//
// A retried item that keeps failing the same way is recorded once; a new
// failure kind or message, or a success, is recorded again.
type IngestObserver struct {
	ctx    context.Context
	store  *Store
	runID  string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	failures map[string]string
}

// Observer adapts the store to ingest.Observer for one run.
func (s *Store) Observer(ctx context.Context, runID string, logger *slog.Logger) *IngestObserver {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IngestObserver{
		ctx:      ctx,
		store:    s,
		runID:    runID,
		logger:   logging.NewComponentLogger(logger, "journal"),
		now:      time.Now,
		failures: make(map[string]string),
	}
}

var _ ingest.Observer = (*IngestObserver)(nil)

func (o *IngestObserver) ItemProcessed(name string, duration time.Duration) {
	o.mu.Lock()
	delete(o.failures, name)
	o.mu.Unlock()
	o.record(Outcome{
		RunID:      o.runID,
		Name:       name,
		Status:     StatusProcessed,
		Duration:   duration,
		RecordedAt: o.now(),
	})
}

func (o *IngestObserver) ItemFailed(name string, err error) {
	outcome := Outcome{
		RunID:      o.runID,
		Name:       name,
		Status:     StatusFailed,
		ErrorKind:  ingest.Kind(err),
		RecordedAt: o.now(),
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	signature := outcome.ErrorKind + "\x00" + outcome.Error
	o.mu.Lock()
	previous, seen := o.failures[name]
	o.failures[name] = signature
	o.mu.Unlock()
	if seen && previous == signature {
		return
	}
	o.record(outcome)
}

func (o *IngestObserver) record(outcome Outcome) {
	// Detached so a cancelled run still records its final outcome.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), 5*time.Second)
	defer cancel()
	if err := o.store.Record(ctx, outcome); err != nil {
		logging.WarnWithContext(ctx, o.logger, "journal write failed; outcome not persisted", "journal_write_failed",
			logging.String(logging.FieldItem, outcome.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir free space and journal.db permissions"),
			logging.String(logging.FieldImpact, "history is incomplete; processing continues"),
		)
	}
}
