// Package metrics exports watcher counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error kinds used as the file_errors_total label.
const (
	KindUnreadable = "unreadable"
	KindWrite      = "write"
	KindName       = "name"
	KindState      = "state"
)

// Registry holds all watcher metrics. A nil *Registry is valid and records
// nothing.
type Registry struct {
	reg *prometheus.Registry

	cycles        prometheus.Counter
	filesTracked  prometheus.Gauge
	versions      prometheus.Counter
	fileErrors    *prometheus.CounterVec
	backupBytes   prometheus.Counter
	cycleDuration prometheus.Histogram
}

// NewRegistry creates a registry with its own Prometheus collector set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "autobackup_poll_cycles_total",
			Help: "Completed poll cycles",
		}),
		filesTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "autobackup_files_tracked",
			Help: "Files currently held in the registry",
		}),
		versions: f.NewCounter(prometheus.CounterOpts{
			Name: "autobackup_versions_total",
			Help: "Backups written for confirmed content changes",
		}),
		fileErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autobackup_file_errors_total",
			Help: "Per-file failures by kind",
		}, []string{"kind"}),
		backupBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "autobackup_backup_bytes_total",
			Help: "Bytes copied into backup artifacts",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "autobackup_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// RecordCycle records one finished poll cycle.
func (r *Registry) RecordCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// SetTracked sets the number of tracked files.
func (r *Registry) SetTracked(n int) {
	if r == nil {
		return
	}
	r.filesTracked.Set(float64(n))
}

// RecordVersion records a written backup of size bytes.
func (r *Registry) RecordVersion(size int64) {
	if r == nil {
		return
	}
	r.versions.Inc()
	r.backupBytes.Add(float64(size))
}

// RecordFileError counts a per-file failure.
func (r *Registry) RecordFileError(kind string) {
	if r == nil {
		return
	}
	r.fileErrors.WithLabelValues(kind).Inc()
}

// Gatherer exposes the underlying collectors.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
// The returned channel yields the server's terminal error, if any.
func (r *Registry) Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr(), done, nil
}
