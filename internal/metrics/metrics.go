// Package metrics exposes Prometheus instrumentation for the capture pipeline.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "csi"

// Metrics holds the recorder's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	LinesRead      prometheus.Counter
	BytesRead      prometheus.Counter
	FramesAccepted prometheus.Counter
	FramesRejected *prometheus.CounterVec // Label: reason
	LiveDropped    prometheus.Counter
	Snapshots      prometheus.Counter
	SinkErrors     prometheus.Counter
	WorkerState    prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Complete text lines read from the serial device",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_bytes_read_total",
			Help:      "Bytes read from the serial device",
		}),
		FramesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_accepted_total",
			Help:      "CSI frames parsed and written to the table",
		}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Discarded payload tokens and frames by reason",
		}, []string{"reason"}),
		LiveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_samples_dropped_total",
			Help:      "Live samples dropped because the consumer was not keeping up",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heatmap_snapshots_total",
			Help:      "Heatmap snapshots published to the live view",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Frames the external sink failed to record",
		}),
		WorkerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Recording worker state (0 idle, 1 configuring, 2 capturing, 3 completed, 4 failed)",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.LinesRead,
		m.BytesRead,
		m.FramesAccepted,
		m.FramesRejected,
		m.LiveDropped,
		m.Snapshots,
		m.SinkErrors,
		m.WorkerState,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background. The returned server
// should be shut down by the caller.
func (m *Metrics) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	return srv
}
