package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dreamloop/internal/frames"
	"dreamloop/internal/ingest"
	"dreamloop/internal/logging"
)

// Collectors owns a private registry with every dreamloop series.
type Collectors struct {
	registry *prometheus.Registry

	ItemsProcessed prometheus.Counter
	ItemFailures   *prometheus.CounterVec
	ItemDuration   prometheus.Histogram
	FramesServed   prometheus.Counter
	LoopLength     prometheus.Gauge
	LoopRefreshes  prometheus.Counter
	StreamClients  prometheus.Gauge
}

// New registers the dreamloop collectors plus Go and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		ItemsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dreamloop_items_processed_total",
			Help: "Input images transformed and written to the output directory",
		}),
		ItemFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamloop_item_failures_total",
			Help: "Failed processing attempts, by failure kind",
		}, []string{"kind"}),
		ItemDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dreamloop_item_duration_seconds",
			Help:    "Time to process one input image end to end",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
		FramesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dreamloop_frames_served_total",
			Help: "Frames handed out by the frame server",
		}),
		LoopLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dreamloop_loop_length",
			Help: "Frames in the current ping-pong snapshot",
		}),
		LoopRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "dreamloop_loop_refreshes_total",
			Help: "Output directory rescans performed by the frame server",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dreamloop_stream_clients",
			Help: "Connected MJPEG stream clients",
		}),
	}
}

var (
	_ ingest.Observer = (*Collectors)(nil)
	_ frames.Observer = (*Collectors)(nil)
)

func (c *Collectors) ItemProcessed(_ string, duration time.Duration) {
	c.ItemsProcessed.Inc()
	c.ItemDuration.Observe(duration.Seconds())
}

func (c *Collectors) ItemFailed(_ string, err error) {
	kind := ingest.Kind(err)
	if kind == "" {
		kind = "unknown"
	}
	c.ItemFailures.WithLabelValues(kind).Inc()
}

func (c *Collectors) FrameServed(string) {
	c.FramesServed.Inc()
}

func (c *Collectors) LoopRefreshed(loopLength int) {
	c.LoopRefreshes.Inc()
	c.LoopLength.Set(float64(loopLength))
}

// Handler exposes the registry in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Mux routes /metrics and /healthz, plus /status when status is non-nil.
func (c *Collectors) Mux(status http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", c.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if status != nil {
		mux.Handle("GET /status", status)
	}
	return mux
}

// Serve runs a standalone listener for Mux(status) until ctx ends.
func (c *Collectors) Serve(ctx context.Context, bind string, status http.Handler, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "metrics")
	srv := &http.Server{
		Addr:              bind,
		Handler:           c.Mux(status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting",
			logging.String("bind", bind),
			logging.String(logging.FieldEventType, "metrics_started"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
