package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dreamloop/internal/logging"
	"dreamloop/internal/metrics"
)

const boundary = "frame"

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8" /><title>dreamloop</title></head>
<body style="margin:0;background:#000;display:flex;align-items:center;justify-content:center;height:100vh">
<img src="/stream.mjpg" alt="dreamloop" style="max-width:100%;max-height:100%" />
</body>
</html>
`

type handler struct {
	broadcaster *Broadcaster
	metrics     *metrics.Collectors
	logger      *slog.Logger
}

// NewHandler builds the HTTP surface. m may be nil to omit /metrics.
func NewHandler(b *Broadcaster, m *metrics.Collectors, logger *slog.Logger) http.Handler {
	h := &handler{broadcaster: b, metrics: m, logger: logging.NewComponentLogger(logger, "http")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", h.index)
	r.Get("/stream.mjpg", h.stream)
	r.Get("/frame.jpg", h.frame)
	r.Get("/api/status", h.status)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

func (h *handler) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (h *handler) frame(w http.ResponseWriter, _ *http.Request) {
	data, _, ok := h.broadcaster.Latest()
	if !ok {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.broadcaster.Status()); err != nil {
		h.logger.Debug("status encode failed", logging.Error(err))
	}
}

func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	frames, unsubscribe := h.broadcaster.Subscribe()
	defer unsubscribe()
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
		defer h.metrics.StreamClients.Dec()
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if data, _, ok := h.broadcaster.Latest(); ok {
		if err := writePart(w, data); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-frames:
			if err := writePart(w, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", boundary, http.DetectContentType(data), len(data))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// Serve listens on bind until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, bind string, h http.Handler, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "http")
	srv := &http.Server{
		Addr:              bind,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		// Request contexts end with ctx so open MJPEG streams return on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("frame server listening",
			logging.String("bind", bind),
			logging.String(logging.FieldEventType, "http_started"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", bind, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	logger.Info("frame server stopped", logging.String(logging.FieldEventType, "http_stopped"))
	return nil
}
