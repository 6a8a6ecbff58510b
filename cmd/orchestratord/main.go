// Command orchestratord is the long-running orchestrator process: it
// loads configuration, opens the store, runs the recovery sweep,
// starts the scheduler and the queue-draining workers, and serves the
// Prometheus/health endpoints, until an interrupt or SIGTERM arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskforge/orchestrator/config"
	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/executor"
	_ "github.com/taskforge/orchestrator/internal/handlers"
	"github.com/taskforge/orchestrator/internal/health"
	"github.com/taskforge/orchestrator/internal/metrics"
	"github.com/taskforge/orchestrator/internal/obslog"
	"github.com/taskforge/orchestrator/internal/orchestrator"
	"github.com/taskforge/orchestrator/internal/queue"
	"github.com/taskforge/orchestrator/internal/registry"
	"github.com/taskforge/orchestrator/internal/scheduler"
	"github.com/taskforge/orchestrator/internal/store"
)

func main() {
	// A Process-executor worker is a re-exec of this same binary
	// (internal/executor/processpool.go); it must never fall through
	// to the rest of main.
	if executor.IsWorkerProcess() {
		if err := executor.RunWorker(registry.Default()); err != nil {
			log.Fatalf("worker: %v", err)
		}
		return
	}

	cfg, err := config.Load(os.Getenv("ORCHESTRATOR_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := obslog.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(2)
	}
	defer s.Close()

	processPoolSize := cfg.ProcessPoolSize
	if processPoolSize <= 0 {
		processPoolSize = runtime.NumCPU()
	}
	processPool, err := executor.NewProcessPool(processPoolSize, "")
	if err != nil {
		logger.Error("start process pool", "error", err)
		os.Exit(2)
	}

	router := executor.NewRouter(map[domain.Kind]executor.Executor{
		domain.KindInline:      executor.NewInline(),
		domain.KindCooperative: executor.NewCooperative(cfg.MaxAsyncConcurrent),
		domain.KindThread:      executor.NewThreadPool(cfg.ThreadPoolSize),
		domain.KindProcess:     processPool,
	})

	metrics.ExecutorPoolSize.WithLabelValues(string(domain.KindCooperative)).Set(float64(cfg.MaxAsyncConcurrent))
	metrics.ExecutorPoolSize.WithLabelValues(string(domain.KindThread)).Set(float64(cfg.ThreadPoolSize))
	metrics.ExecutorPoolSize.WithLabelValues(string(domain.KindProcess)).Set(float64(processPoolSize))

	q := queue.New(0)
	sched := scheduler.New(s, q, time.Duration(cfg.SchedulerTickSeconds)*time.Second, logger)

	orc := orchestrator.New(orchestrator.Config{
		Store:                 s,
		Queue:                 q,
		Router:                router,
		Registry:              registry.Default(),
		Scheduler:             sched,
		Logger:                logger,
		RetryBase:             cfg.RetryBackoffBase,
		RetryInitialDelay:     time.Second,
		RetryMaxDelay:         time.Duration(cfg.RetryBackoffMax) * time.Second,
		DefaultMaxRetries:     cfg.DefaultMaxRetries,
		DefaultTimeoutSeconds: cfg.DefaultTimeout,
		WorkerCount:           runtime.NumCPU(),
	})

	if err := orc.Start(ctx); err != nil {
		logger.Error("start orchestrator", "error", err)
		os.Exit(2)
	}

	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		metrics.Register(reg)
		checker := health.NewChecker(s, logger, reg)
		metricsSrv = metrics.NewServer(fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort), reg)
		mux := metricsSrv.Handler.(*http.ServeMux)
		mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
			writeHealth(w, checker.Liveness(r.Context()))
		})
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			writeHealth(w, checker.Readiness(r.Context()))
		})

		go func() {
			logger.Info("metrics server started", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	logger.Info("orchestrator started")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		if err := metrics.Shutdown(shutdownCtx, metricsSrv); err != nil {
			logger.Error("metrics server shutdown", "error", err)
		}
	}
	if err := orc.Stop(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown", "error", err)
	}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintf(w, `{"status":%q}`, result.Status)
}
