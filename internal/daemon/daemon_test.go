package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"dreamloop/internal/daemon"
	"dreamloop/internal/dream"
	"dreamloop/internal/ingest"
	"dreamloop/internal/logging"
	"dreamloop/internal/testsupport"
)

type blockingLoop struct {
	started chan struct{}
	err     error
}

func (l *blockingLoop) Run(ctx context.Context) error {
	close(l.started)
	if l.err != nil {
		return l.err
	}
	<-ctx.Done()
	return nil
}

func (l *blockingLoop) Stats() ingest.Stats { return ingest.Stats{Processed: 3} }

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	loop := &blockingLoop{started: make(chan struct{})}
	d, err := daemon.New(cfg, loop, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-loop.started:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not start")
	}

	status := d.Status()
	if !status.Running || status.PID != os.Getpid() || status.Ingest.Processed != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon stopped")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, err=%v", err)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, &blockingLoop{started: make(chan struct{})}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, &blockingLoop{started: make(chan struct{})}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("expected lock released after Stop, got %v", err)
	}
	second.Stop()
}

func TestLoopFailureClosesDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	loop := &blockingLoop{started: make(chan struct{}), err: errors.New("input directory vanished")}
	d, err := daemon.New(cfg, loop, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("expected Done to close after loop failure")
	}
	if d.Err() == nil || d.Status().LastError == "" {
		t.Fatal("expected loop error recorded")
	}
}

func TestDaemonRunsRealIngestLoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	loop, err := ingest.New(ingest.Options{
		InputDir:     cfg.Paths.InputDir,
		OutputDir:    cfg.Paths.OutputDir,
		Marker:       cfg.Ingest.ImageMarker,
		IdleInterval: 10 * time.Millisecond,
	}, dream.Passthrough{}, nil)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	d, err := daemon.New(cfg, loop, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	testsupport.WriteImage(t, cfg.Paths.InputDir, "one.jpg", 1, 2, 3)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for d.Status().Ingest.Processed == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for ingest")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLockHeldTracksRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if held, err := daemon.LockHeld(cfg.LockPath()); err != nil || held {
		t.Fatalf("expected no holder before start, held=%v err=%v", held, err)
	}

	loop := &blockingLoop{started: make(chan struct{})}
	d, err := daemon.New(cfg, loop, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if held, err := daemon.LockHeld(cfg.LockPath()); err != nil || !held {
		t.Fatalf("expected lock held while running, held=%v err=%v", held, err)
	}

	d.Stop()
	if held, err := daemon.LockHeld(cfg.LockPath()); err != nil || held {
		t.Fatalf("expected lock free after stop, held=%v err=%v", held, err)
	}
}

func TestStatusHandlerEncodesIngestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	loop := &blockingLoop{started: make(chan struct{})}
	d, err := daemon.New(cfg, loop, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec := httptest.NewRecorder()
	d.StatusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var got daemon.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !got.Running || got.PID != os.Getpid() || got.Ingest.Processed != 3 {
		t.Fatalf("unexpected status %+v", got)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"last_processed_at"`)) {
		t.Fatalf("status body lacks last_processed_at: %s", rec.Body.String())
	}
}
