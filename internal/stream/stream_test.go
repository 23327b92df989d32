package stream_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamloop/internal/frames"
	"dreamloop/internal/logging"
	"dreamloop/internal/metrics"
	"dreamloop/internal/stream"
)

type scriptedSource struct {
	frames [][]byte
	err    error
	pos    int
}

func (s *scriptedSource) Frame() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.frames) == 0 {
		return nil, frames.ErrNoFrame
	}
	data := s.frames[s.pos%len(s.frames)]
	s.pos++
	return data, nil
}

func (s *scriptedSource) Snapshot() frames.Snapshot {
	return frames.Snapshot{LoopLength: len(s.frames), CycleLength: 2 * len(s.frames), Position: s.pos}
}

func jpegish(tag string) []byte {
	return append([]byte{0xff, 0xd8, 0xff, 0xe0}, []byte(tag)...)
}

func TestFrameEndpointReturns503WithoutFrames(t *testing.T) {
	b := stream.NewBroadcaster(&scriptedSource{}, time.Second, logging.NewNop())
	b.Pump()
	h := stream.NewHandler(b, nil, logging.NewNop())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/frame.jpg", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestFrameEndpointServesLatest(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{jpegish("A"), jpegish("B")}}
	b := stream.NewBroadcaster(src, time.Second, logging.NewNop())
	b.Pump()
	b.Pump()
	h := stream.NewHandler(b, nil, logging.NewNop())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/frame.jpg", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, jpegish("B"), rr.Body.Bytes())
}

func TestStatusEndpoint(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{jpegish("A")}}
	b := stream.NewBroadcaster(src, 500*time.Millisecond, logging.NewNop())
	b.Pump()
	h := stream.NewHandler(b, nil, logging.NewNop())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status stream.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.HasFrame)
	assert.Equal(t, 1, status.Loop.LoopLength)
	assert.Equal(t, "500ms", status.Interval)
	assert.Empty(t, status.LastError)
}

func TestPumpKeepsLastFrameOnError(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{jpegish("A")}}
	b := stream.NewBroadcaster(src, time.Second, logging.NewNop())
	b.Pump()
	src.err = errors.New("disk gone")
	b.Pump()

	data, _, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, jpegish("A"), data)
	assert.Equal(t, "disk gone", b.Status().LastError)
}

func TestSlowSubscriberDropsFrames(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{jpegish("A"), jpegish("B"), jpegish("C")}}
	b := stream.NewBroadcaster(src, time.Second, logging.NewNop())
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Pump()
	b.Pump()
	b.Pump()

	assert.Equal(t, jpegish("A"), <-ch)
	assert.Equal(t, uint64(2), b.Status().Dropped)
	unsubscribe()
	assert.Equal(t, 0, b.Status().Subscribers)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	m := metrics.New()
	m.FrameServed("a.jpg")
	b := stream.NewBroadcaster(&scriptedSource{}, time.Second, nil)
	h := stream.NewHandler(b, m, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dreamloop_frames_served_total 1")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rr.Body.String(), `src="/stream.mjpg"`)
}

func TestMJPEGStreamDeliversParts(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{jpegish("A"), jpegish("B")}}
	b := stream.NewBroadcaster(src, 20*time.Millisecond, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(stream.NewHandler(b, nil, logging.NewNop()))
	defer srv.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/stream.mjpg", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	boundaries := 0
	for boundaries < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "--frame" {
			boundaries++
		}
	}
	reqCancel()
}

func TestServeShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	bind := listener.Addr().String()
	require.NoError(t, listener.Close())

	src := &scriptedSource{frames: [][]byte{jpegish("A")}}
	b := stream.NewBroadcaster(src, time.Second, nil)
	b.Pump()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Serve(ctx, bind, stream.NewHandler(b, nil, nil), nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + bind + "/healthz")
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestBroadcasterOverFrameServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), jpegish("A"), 0o644))
	server, err := frames.New(dir, frames.Options{Marker: ".jpg"})
	require.NoError(t, err)

	b := stream.NewBroadcaster(server, time.Second, nil)
	b.Pump()
	data, _, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, jpegish("A"), data)
	assert.Equal(t, 1, b.Status().Loop.LoopLength)
}
