// Package metrics exposes the §6 Prometheus surface: jobs_total,
// jobs_duration_seconds, queue depth and per-executor in-flight/pool
// size gauges. It is the "external collaborator" that scrapes the
// orchestrator core's counters — the core packages record into these
// metrics but never decide whether metrics are enabled; that decision
// is cmd/orchestratord's (§6 metrics_enabled).
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "jobs_total",
		Help:      "Total Executions completed, by terminal status and job kind.",
	}, []string{"status", "job_type"})

	JobsDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "jobs_duration_seconds",
		Help:      "Execution duration in seconds, by job kind.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job_type"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "queue_depth",
		Help:      "Number of Jobs currently buffered in the Queue.",
	})

	ExecutorInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "executor_in_flight",
		Help:      "Number of Jobs currently running, by executor kind.",
	}, []string{"job_type"})

	ExecutorPoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "executor_pool_size",
		Help:      "Configured pool size, by executor kind (Cooperative/Thread/Process).",
	}, []string{"job_type"})

	RecoverySweepRescued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "recovery_sweep_rescued",
		Help:      "Number of RUNNING Executions reconciled by the most recent startup RecoverySweep.",
	})
)

// Register registers every collector above against reg. Call once at
// startup, after reg is constructed and before NewServer starts
// serving /metrics.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		JobsTotal,
		JobsDurationSeconds,
		QueueDepth,
		ExecutorInFlight,
		ExecutorPoolSize,
		RecoverySweepRescued,
	)
}

// ObserveExecution records one completed Execution's outcome and
// duration (§6 "Metrics").
func ObserveExecution(status, jobType string, durationSeconds float64) {
	JobsTotal.WithLabelValues(status, jobType).Inc()
	JobsDurationSeconds.WithLabelValues(jobType).Observe(durationSeconds)
}

// NewServer builds the /metrics HTTP server (§6 metrics_host,
// metrics_port). reg is used both to register collectors and to serve
// them, so tests can spin up an isolated registry per server.
func NewServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// Shutdown is a small convenience wrapper so callers don't need to
// import net/http just to stop the metrics server gracefully.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
