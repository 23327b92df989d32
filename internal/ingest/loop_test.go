package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dreamloop/internal/dream"
	"dreamloop/internal/imaging"
	"dreamloop/internal/ingest"
	"dreamloop/internal/logging"
	"dreamloop/internal/testsupport"
)

type recordingObserver struct {
	mu        sync.Mutex
	processed []string
	failed    []string
	kinds     []string
}

func (r *recordingObserver) ItemProcessed(name string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, name)
}

func (r *recordingObserver) ItemFailed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, name)
	r.kinds = append(r.kinds, ingest.Kind(err))
}

func (r *recordingObserver) snapshot() (processed, failed, kinds []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.processed...), append([]string(nil), r.failed...), append([]string(nil), r.kinds...)
}

type loopFixture struct {
	input  string
	output string
	loop   *ingest.Loop
	obs    *recordingObserver
}

func newLoop(t *testing.T, transformer dream.Transformer) *loopFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	obs := &recordingObserver{}
	loop, err := ingest.New(ingest.Options{
		InputDir:     cfg.Paths.InputDir,
		OutputDir:    cfg.Paths.OutputDir,
		Marker:       cfg.Ingest.ImageMarker,
		FailureDelay: 0,
		IdleInterval: 10 * time.Millisecond,
	}, transformer, logging.NewNop(), obs)
	if err != nil {
		t.Fatalf("ingest.New returned error: %v", err)
	}
	return &loopFixture{input: cfg.Paths.InputDir, output: cfg.Paths.OutputDir, loop: loop, obs: obs}
}

func invert() dream.Transformer {
	return dream.TransformerFunc(func(_ context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
		out := in.Clone()
		for i := range out.Data {
			out.Data[i] = 255 - out.Data[i]
		}
		return out, nil
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestScanProcessesNewItem(t *testing.T) {
	fx := newLoop(t, invert())
	testsupport.WriteImage(t, fx.input, "cat.jpg", 250, 250, 250)

	result, err := fx.loop.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("unexpected scan result: %+v", result)
	}
	if exists(filepath.Join(fx.input, "cat.jpg")) {
		t.Fatal("expected input removed after processing")
	}
	if !fx.loop.Processed().Has("cat.jpg") {
		t.Fatal("expected name in processed set")
	}

	data, err := os.ReadFile(filepath.Join(fx.output, "cat.jpg"))
	if err != nil {
		t.Fatalf("expected output written: %v", err)
	}
	pixels, format, err := imaging.Decode(bytes.NewReader(data))
	if err != nil || format != "jpeg" {
		t.Fatalf("expected jpeg output, format=%q err=%v", format, err)
	}
	if r, _, _ := pixels.At(0, 0); r > 20 {
		t.Fatalf("expected inverted pixel, got red=%v", r)
	}

	processed, failed, _ := fx.obs.snapshot()
	if len(processed) != 1 || len(failed) != 0 {
		t.Fatalf("unexpected observer calls processed=%v failed=%v", processed, failed)
	}
	if stats := fx.loop.Stats(); stats.Processed != 1 || stats.AverageDuration != stats.TotalDuration {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestScanLeavesUndecodableItemForRetry(t *testing.T) {
	fx := newLoop(t, invert())
	bad := filepath.Join(fx.input, "broken.jpg")
	testsupport.WriteFile(t, bad, 64)

	for attempt := 1; attempt <= 2; attempt++ {
		result, err := fx.loop.Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan returned error: %v", err)
		}
		if result.Failed != 1 || result.Processed != 0 {
			t.Fatalf("attempt %d: unexpected scan result %+v", attempt, result)
		}
	}
	if !exists(bad) {
		t.Fatal("expected failed input to remain")
	}
	if fx.loop.Processed().Has("broken.jpg") {
		t.Fatal("failed item must not enter processed set")
	}
	if exists(filepath.Join(fx.output, "broken.jpg")) {
		t.Fatal("failed item must not produce output")
	}
	_, failed, kinds := fx.obs.snapshot()
	if len(failed) != 2 || kinds[0] != ingest.KindDecode {
		t.Fatalf("expected two decode failures, got %v %v", failed, kinds)
	}
	if stats := fx.loop.Stats(); stats.Failed != 2 || stats.LastError == "" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTransformFailureRetriedUntilItSucceeds(t *testing.T) {
	var calls int
	transformer := dream.TransformerFunc(func(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("gpu busy")
		}
		return in.Clone(), nil
	})
	fx := newLoop(t, transformer)
	testsupport.WriteImage(t, fx.input, "dog.jpg", 100, 100, 100)

	first, err := fx.loop.Scan(context.Background())
	if err != nil || first.Failed != 1 {
		t.Fatalf("expected failed first scan, got %+v err=%v", first, err)
	}
	_, _, kinds := fx.obs.snapshot()
	if len(kinds) != 1 || kinds[0] != ingest.KindTransform {
		t.Fatalf("expected transform failure kind, got %v", kinds)
	}

	second, err := fx.loop.Scan(context.Background())
	if err != nil || second.Processed != 1 {
		t.Fatalf("expected retry to succeed, got %+v err=%v", second, err)
	}
	if exists(filepath.Join(fx.input, "dog.jpg")) || !exists(filepath.Join(fx.output, "dog.jpg")) {
		t.Fatal("expected item moved to output after retry")
	}
}

func TestMalformedTransformOutputIsTransformFailure(t *testing.T) {
	transformer := dream.TransformerFunc(func(_ context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
		out := in.Clone()
		out.Data = out.Data[:len(out.Data)-1]
		return out, nil
	})
	fx := newLoop(t, transformer)
	testsupport.WriteImage(t, fx.input, "owl.jpg", 10, 20, 30)

	result, err := fx.loop.Scan(context.Background())
	if err != nil || result.Failed != 1 {
		t.Fatalf("expected one failure, got %+v err=%v", result, err)
	}
	_, _, kinds := fx.obs.snapshot()
	if len(kinds) != 1 || kinds[0] != ingest.KindTransform {
		t.Fatalf("expected transform failure kind, got %v", kinds)
	}
	if !exists(filepath.Join(fx.input, "owl.jpg")) || exists(filepath.Join(fx.output, "owl.jpg")) {
		t.Fatal("expected input kept and no output after malformed transform result")
	}
}

func TestProcessedNameIsNeverReprocessed(t *testing.T) {
	var calls int
	transformer := dream.TransformerFunc(func(_ context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
		calls++
		return in.Clone(), nil
	})
	fx := newLoop(t, transformer)
	testsupport.WriteImage(t, fx.input, "a.jpg", 10, 10, 10)
	if _, err := fx.loop.Scan(context.Background()); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(fx.output, "a.jpg"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	testsupport.WriteImage(t, fx.input, "a.jpg", 200, 200, 200)
	result, err := fx.loop.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if result.Skipped != 1 || result.Processed != 0 {
		t.Fatalf("expected reappearing name skipped, got %+v", result)
	}
	if calls != 1 {
		t.Fatalf("expected a single transform call, got %d", calls)
	}
	if !exists(filepath.Join(fx.input, "a.jpg")) {
		t.Fatal("expected new content left untouched in input")
	}
	after, err := os.ReadFile(filepath.Join(fx.output, "a.jpg"))
	if err != nil || !bytes.Equal(before, after) {
		t.Fatalf("expected output unchanged, err=%v", err)
	}
}

func TestMarkerIsSubstringMatch(t *testing.T) {
	fx := newLoop(t, invert())
	testsupport.WriteImage(t, fx.input, "x.jpg.bak", 10, 10, 10)
	testsupport.WriteImage(t, fx.input, "y.png", 10, 10, 10)

	result, err := fx.loop.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if result.Listed != 1 || result.Processed != 1 {
		t.Fatalf("unexpected scan result: %+v", result)
	}
	if !exists(filepath.Join(fx.output, "x.jpg.bak")) {
		t.Fatal("expected substring match processed")
	}
	if !exists(filepath.Join(fx.input, "y.png")) {
		t.Fatal("expected non-matching file untouched")
	}
}

func TestPNGInputKeepsPNGOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMarker(".png"))
	loop, err := ingest.New(ingest.Options{
		InputDir:  cfg.Paths.InputDir,
		OutputDir: cfg.Paths.OutputDir,
		Marker:    cfg.Ingest.ImageMarker,
	}, dream.Passthrough{}, nil)
	if err != nil {
		t.Fatalf("ingest.New returned error: %v", err)
	}
	testsupport.WriteImage(t, cfg.Paths.InputDir, "z.png", 1, 2, 3)
	if _, err := loop.Scan(context.Background()); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "z.png"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	pixels, format, err := imaging.Decode(bytes.NewReader(data))
	if err != nil || format != "png" {
		t.Fatalf("expected png output, format=%q err=%v", format, err)
	}
	if r, g, b := pixels.At(1, 1); r != 1 || g != 2 || b != 3 {
		t.Fatalf("expected lossless passthrough, got (%v,%v,%v)", r, g, b)
	}
}

func TestScanFailsWhenInputDirMissing(t *testing.T) {
	fx := newLoop(t, invert())
	if err := os.RemoveAll(fx.input); err != nil {
		t.Fatalf("remove input: %v", err)
	}
	if _, err := fx.loop.Scan(context.Background()); err == nil {
		t.Fatal("expected listing error")
	}
	if err := fx.loop.Run(context.Background()); err == nil {
		t.Fatal("expected Run to surface listing error")
	}
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	fx := newLoop(t, invert())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fx.loop.Run(ctx) }()

	testsupport.WriteImage(t, fx.input, "late.jpg", 50, 50, 50)
	deadline := time.Now().Add(5 * time.Second)
	for !fx.loop.Processed().Has("late.jpg") {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for item to be processed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if !exists(filepath.Join(fx.output, "late.jpg")) {
		t.Fatal("expected output for late item")
	}
}

func TestCancelDuringFailureDelay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	loop, err := ingest.New(ingest.Options{
		InputDir:     cfg.Paths.InputDir,
		OutputDir:    cfg.Paths.OutputDir,
		Marker:       ".jpg",
		FailureDelay: time.Hour,
	}, dream.Passthrough{}, logging.NewNop())
	if err != nil {
		t.Fatalf("ingest.New returned error: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InputDir, "bad.jpg"), 8)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := loop.Scan(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("failure delay ignored cancellation")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		opts ingest.Options
		tr   dream.Transformer
	}{
		{name: "missing dirs", opts: ingest.Options{Marker: ".jpg"}, tr: dream.Passthrough{}},
		{name: "same dirs", opts: ingest.Options{InputDir: dir, OutputDir: dir, Marker: ".jpg"}, tr: dream.Passthrough{}},
		{name: "empty marker", opts: ingest.Options{InputDir: dir, OutputDir: dir + "/out"}, tr: dream.Passthrough{}},
		{name: "nil transformer", opts: ingest.Options{InputDir: dir, OutputDir: dir + "/out", Marker: ".jpg"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingest.New(tc.opts, tc.tr, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRemoveFailureKeepsNameProcessed(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	fx := newLoop(t, invert())
	testsupport.WriteImage(t, fx.input, "stuck.jpg", 10, 10, 10)
	if err := os.Chmod(fx.input, 0o555); err != nil {
		t.Fatalf("chmod input: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(fx.input, 0o755) })

	result, err := fx.loop.Scan(context.Background())
	if err != nil || result.Processed != 1 {
		t.Fatalf("expected item processed, got %+v err=%v", result, err)
	}
	if !exists(filepath.Join(fx.input, "stuck.jpg")) {
		t.Fatal("expected leftover input to remain")
	}
	if stats := fx.loop.Stats(); stats.LeftoverInputs != 1 {
		t.Fatalf("expected leftover reported, got %+v", stats)
	}
	again, err := fx.loop.Scan(context.Background())
	if err != nil || again.Skipped != 1 {
		t.Fatalf("expected leftover skipped on rescan, got %+v err=%v", again, err)
	}
}
