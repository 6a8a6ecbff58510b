// Command orchestratorctl is the CLI front-end described in §6: start
// the server, submit one-off runs, bind schedules, and inspect
// Execution history — a thin client over the same internal packages
// orchestratord embeds, talking to the same SQLite file directly
// rather than over a network API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

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

// exit codes per §6: 0 success, 1 user error, 2 internal failure.
const (
	exitOK       = 0
	exitUserErr  = 1
	exitInternal = 2
)

var configPath string

func main() {
	// buildOrchestrator's ProcessPool re-execs this same binary as its
	// workers (internal/executor/processpool.go); a worker serves jobs
	// and never runs the CLI.
	if executor.IsWorkerProcess() {
		if err := executor.RunWorker(registry.Default()); err != nil {
			fmt.Fprintln(os.Stderr, "worker:", err)
			os.Exit(exitInternal)
		}
		return
	}

	_ = godotenv.Load() // dev convenience; absent .env is not an error

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor distinguishes user errors (bad flags, validation) from
// internal failures (store, executor) so the process exits 1 vs 2.
func exitCodeFor(err error) int {
	var uerr *userError
	if ok := asUserError(err, &uerr); ok {
		return exitUserErr
	}
	return exitInternal
}

type userError struct{ err error }

func (e *userError) Error() string { return e.err.Error() }
func (e *userError) Unwrap() error  { return e.err }

func newUserError(format string, args ...any) error {
	return &userError{err: fmt.Errorf(format, args...)}
}

func asUserError(err error, target **userError) bool {
	for err != nil {
		if ue, ok := err.(*userError); ok {
			*target = ue
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orchestratorctl",
		Short:         "Control the taskforge job orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file overlay")
	cmd.AddCommand(newStartCmd(), newRunCmd(), newScheduleCmd(), newListCmd(), newStatusCmd())
	return cmd
}

// buildOrchestrator wires the same components orchestratord does, for
// one-shot CLI invocations against the same database file.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, store.Store, error) {
	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	processPoolSize := cfg.ProcessPoolSize
	if processPoolSize <= 0 {
		processPoolSize = runtime.NumCPU()
	}
	processPool, err := executor.NewProcessPool(processPoolSize, "")
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	router := executor.NewRouter(map[domain.Kind]executor.Executor{
		domain.KindInline:      executor.NewInline(),
		domain.KindCooperative: executor.NewCooperative(cfg.MaxAsyncConcurrent),
		domain.KindThread:      executor.NewThreadPool(cfg.ThreadPoolSize),
		domain.KindProcess:     processPool,
	})

	q := queue.New(0)
	logger := obslog.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
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
	return orc, s, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the orchestrator server and metrics endpoint in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return newUserError("config: %w", err)
			}
			orc, s, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := orc.Start(ctx); err != nil {
				return err
			}

			var metricsSrv interface{ Shutdown(context.Context) error }
			if cfg.MetricsEnabled {
				reg := prometheus.NewRegistry()
				metrics.Register(reg)
				checker := health.NewChecker(s, obslog.New(cfg.LogFormat, cfg.LogLevel, os.Stderr), reg)
				_ = checker
				srv := metrics.NewServer(fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort), reg)
				metricsSrv = srv
				go func() { _ = srv.ListenAndServe() }()
			}

			fmt.Fprintln(cmd.OutOrStdout(), "orchestrator running — press Ctrl+C to stop")
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return orc.Stop(shutdownCtx)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		name           string
		argsJSON       string
		kwargsJSON     string
		jobType        string
		retries        int
		timeoutSeconds int
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "run <function_ref>",
		Short: "Register a Job and execute it once, synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fnRef := args[0]

			var argList []any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &argList); err != nil {
					return newUserError("--args must be a JSON array: %w", err)
				}
			}
			var kwargs map[string]any
			if kwargsJSON != "" {
				if err := json.Unmarshal([]byte(kwargsJSON), &kwargs); err != nil {
					return newUserError("--kwargs must be a JSON object: %w", err)
				}
			}

			kind := domain.Kind(jobType)
			if !kind.Valid() {
				return newUserError("invalid --type %q: must be one of INLINE, COOPERATIVE, THREAD, PROCESS", jobType)
			}

			cfg, err := loadConfig()
			if err != nil {
				return newUserError("config: %w", err)
			}
			orc, s, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if name == "" {
				name = fmt.Sprintf("%s-%d", fnRef, time.Now().UnixNano())
			}

			ctx := cmd.Context()
			job, err := orc.AddJob(ctx, orchestrator.AddJobParams{
				FunctionRef:    fnRef,
				Name:           name,
				Args:           argList,
				Kwargs:         kwargs,
				Kind:           kind,
				MaxRetries:     &retries,
				TimeoutSeconds: &timeoutSeconds,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return newUserError("%w", err)
			}

			exec, err := orc.Execute(ctx, job)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %d (%s): %s\n", job.ID, job.Name, exec.Status)
			if exec.Result != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", exec.Result)
			}
			if exec.ErrorMessage != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", exec.ErrorMessage)
			}
			if exec.Status != domain.StatusSuccess {
				return newUserError("job did not succeed: %s", exec.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name (default: derived from function_ref)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON array of positional arguments")
	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "JSON object of keyword arguments")
	cmd.Flags().StringVar(&jobType, "type", string(domain.KindInline), "executor kind: INLINE, COOPERATIVE, THREAD, PROCESS")
	cmd.Flags().IntVar(&retries, "retries", 0, "max retries after the first attempt")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "timeout in seconds (0 = none)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "optional idempotency key")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var (
		name           string
		argsJSON       string
		kwargsJSON     string
		jobType        string
		retries        int
		timeoutSeconds int
		enabled        bool
	)

	cmd := &cobra.Command{
		Use:   "schedule <function_ref> <cron_expression>",
		Short: "Register a Job and bind a cron schedule to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fnRef, cronExpr := args[0], args[1]

			var argList []any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &argList); err != nil {
					return newUserError("--args must be a JSON array: %w", err)
				}
			}
			var kwargs map[string]any
			if kwargsJSON != "" {
				if err := json.Unmarshal([]byte(kwargsJSON), &kwargs); err != nil {
					return newUserError("--kwargs must be a JSON object: %w", err)
				}
			}

			kind := domain.Kind(jobType)
			if !kind.Valid() {
				return newUserError("invalid --type %q", jobType)
			}

			cfg, err := loadConfig()
			if err != nil {
				return newUserError("config: %w", err)
			}
			orc, s, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if name == "" {
				name = fmt.Sprintf("%s-%d", fnRef, time.Now().UnixNano())
			}

			ctx := cmd.Context()
			job, err := orc.AddJob(ctx, orchestrator.AddJobParams{
				FunctionRef:    fnRef,
				Name:           name,
				Args:           argList,
				Kwargs:         kwargs,
				Kind:           kind,
				MaxRetries:     &retries,
				TimeoutSeconds: &timeoutSeconds,
			})
			if err != nil {
				return newUserError("%w", err)
			}

			scheduleID, err := orc.Schedule(ctx, job.ID, cronExpr, nil, enabled)
			if err != nil {
				return newUserError("%w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schedule %d bound to job %d (%s), cron %q\n", scheduleID, job.ID, job.Name, cronExpr)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name (default: derived from function_ref)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON array of positional arguments")
	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "JSON object of keyword arguments")
	cmd.Flags().StringVar(&jobType, "type", string(domain.KindInline), "executor kind")
	cmd.Flags().IntVar(&retries, "retries", 0, "max retries after the first attempt")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "timeout in seconds (0 = none)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the schedule is active immediately")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		status string
		limit  int
		jobID  int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent Executions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return newUserError("config: %w", err)
			}
			s, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			filter := domain.ExecutionFilter{JobID: jobID, Status: domain.Status(status)}
			execs, err := s.ListExecutions(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Job", "Attempt", "Status", "Started", "Duration(s)"})
			table.SetBorder(false)
			for _, e := range execs {
				duration := ""
				if e.DurationSeconds != nil {
					duration = fmt.Sprintf("%.3f", *e.DurationSeconds)
				}
				table.Append([]string{
					fmt.Sprintf("%d", e.ID),
					fmt.Sprintf("%d", e.JobID),
					fmt.Sprintf("%d", e.Attempt),
					string(e.Status),
					e.StartedAt.Format(time.RFC3339),
					duration,
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, RUNNING, SUCCESS, FAILED, TIMEOUT)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to return")
	cmd.Flags().Int64Var(&jobID, "job-id", 0, "filter by job id (0 = any)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report store reachability and the orchestrator's configured limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return newUserError("config: %w", err)
			}
			s, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			checker := health.NewChecker(s, obslog.New(cfg.LogFormat, cfg.LogLevel, os.Stderr), prometheus.NewRegistry())
			result := checker.Readiness(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "store:                %s\n", result.Checks["store"].Status)
			fmt.Fprintf(cmd.OutOrStdout(), "database_url:         %s\n", cfg.DatabaseURL)
			fmt.Fprintf(cmd.OutOrStdout(), "max_async_concurrent: %d\n", cfg.MaxAsyncConcurrent)
			fmt.Fprintf(cmd.OutOrStdout(), "thread_pool_size:     %d\n", cfg.ThreadPoolSize)
			fmt.Fprintf(cmd.OutOrStdout(), "process_pool_size:    %d\n", cfg.ProcessPoolSize)
			fmt.Fprintf(cmd.OutOrStdout(), "scheduler_tick:       %ds\n", cfg.SchedulerTickSeconds)

			if result.Status != "up" {
				return fmt.Errorf("store unreachable")
			}
			return nil
		},
	}
}
