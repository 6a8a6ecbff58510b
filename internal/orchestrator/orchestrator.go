// Package orchestrator implements the §4.J Orchestrator facade: it
// wires the Store, Queue, ExecutorRouter, IdempotencyGuard, RetryPolicy,
// function Registry, Scheduler and RecoverySweep together behind three
// public operations — AddJob, Execute, Schedule — plus the Store
// pass-throughs and the Start/Stop lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/cron"
	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/executor"
	"github.com/taskforge/orchestrator/internal/idempotency"
	"github.com/taskforge/orchestrator/internal/metrics"
	"github.com/taskforge/orchestrator/internal/queue"
	"github.com/taskforge/orchestrator/internal/recovery"
	"github.com/taskforge/orchestrator/internal/registry"
	"github.com/taskforge/orchestrator/internal/retry"
	"github.com/taskforge/orchestrator/internal/scheduler"
	"github.com/taskforge/orchestrator/internal/store"
)

// Config configures an Orchestrator. Store, Queue, Router, Registry and
// Scheduler are mandatory; the rest fall back to sane defaults.
type Config struct {
	Store     store.Store
	Queue     *queue.Queue
	Router    *executor.Router
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger

	RetryBase         float64       // must be > 1.0
	RetryInitialDelay time.Duration // must be > 0
	RetryMaxDelay     time.Duration

	DefaultMaxRetries     int
	DefaultTimeoutSeconds int

	// WorkerCount is the number of goroutines draining the Queue that
	// the Scheduler (§4.F step 4) and any other producer push onto.
	// Each drained Job is run through the same Execute path a direct
	// caller would use.
	WorkerCount int
}

// Orchestrator binds components A-I behind the facade described in
// §4.J. It is safe for concurrent use: AddJob, Execute and Schedule may
// all be called concurrently from multiple callers (§5).
type Orchestrator struct {
	store     store.Store
	queue     *queue.Queue
	router    *executor.Router
	registry  *registry.Registry
	guard     *idempotency.Guard
	scheduler *scheduler.Scheduler
	logger    *slog.Logger

	retryBase         float64
	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration

	defaultMaxRetries     int
	defaultTimeoutSeconds int

	workerCount int
	workerWG    sync.WaitGroup
	workerQuit  chan struct{}
	startMu     sync.Mutex
	running     bool
}

// New constructs an Orchestrator. It does not start the Scheduler or
// the Queue-draining workers — call Start for that.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryBase := cfg.RetryBase
	if retryBase <= 1.0 {
		retryBase = 2.0
	}
	retryInitialDelay := cfg.RetryInitialDelay
	if retryInitialDelay <= 0 {
		retryInitialDelay = time.Second
	}
	retryMaxDelay := cfg.RetryMaxDelay
	if retryMaxDelay <= 0 {
		retryMaxDelay = 5 * time.Minute
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Orchestrator{
		store:                 cfg.Store,
		queue:                 cfg.Queue,
		router:                cfg.Router,
		registry:              cfg.Registry,
		guard:                 idempotency.New(cfg.Store),
		scheduler:             cfg.Scheduler,
		logger:                logger.With("component", "orchestrator"),
		retryBase:             retryBase,
		retryInitialDelay:     retryInitialDelay,
		retryMaxDelay:         retryMaxDelay,
		defaultMaxRetries:     cfg.DefaultMaxRetries,
		defaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		workerCount:           workerCount,
	}
}

// AddJobParams are the arguments to AddJob. MaxRetries and
// TimeoutSeconds are pointers so "omitted" (use the configured
// default, §6 default_max_retries/default_timeout) is distinguishable
// from an explicit zero.
type AddJobParams struct {
	FunctionRef    string
	Name           string
	Args           []any
	Kwargs         map[string]any
	Kind           domain.Kind
	MaxRetries     *int
	TimeoutSeconds *int
	IdempotencyKey string
}

// AddJob persists a new Job definition and returns it with its
// assigned id (§4.J).
func (o *Orchestrator) AddJob(ctx context.Context, p AddJobParams) (*domain.Job, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, p.Kind)
	}

	maxRetries := o.defaultMaxRetries
	if p.MaxRetries != nil {
		maxRetries = *p.MaxRetries
	}
	timeoutSeconds := o.defaultTimeoutSeconds
	if p.TimeoutSeconds != nil {
		timeoutSeconds = *p.TimeoutSeconds
	}

	// §9 open question (1): this implementation refuses INLINE jobs
	// that carry a timeout rather than silently ignoring it, since an
	// inline call cannot be pre-empted from the outside.
	if p.Kind == domain.KindInline && timeoutSeconds > 0 {
		return nil, domain.ErrInlineTimeoutUnsupported
	}

	now := time.Now().UTC()
	job := &domain.Job{
		Name:           p.Name,
		FunctionRef:    p.FunctionRef,
		Args:           p.Args,
		Kwargs:         p.Kwargs,
		Kind:           p.Kind,
		MaxRetries:     maxRetries,
		TimeoutSeconds: timeoutSeconds,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	id, err := o.store.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}
	job.ID = id
	return job, nil
}

// Schedule binds a time trigger to an existing Job. Exactly one of
// cronExpr or runAt must be set (§4.J, §3 Schedule invariant).
func (o *Orchestrator) Schedule(ctx context.Context, jobID int64, cronExpr string, runAt *time.Time, enabled bool) (int64, error) {
	hasCron := cronExpr != ""
	hasRunAt := runAt != nil
	if hasCron == hasRunAt {
		return 0, domain.ErrInvalidScheduleSpec
	}
	if hasCron && !cron.IsValid(cronExpr) {
		return 0, domain.ErrInvalidCronExpression
	}

	sch := &domain.Schedule{
		JobID:          jobID,
		CronExpression: cronExpr,
		RunAt:          runAt,
		Enabled:        enabled,
		CreatedAt:      time.Now().UTC(),
	}
	return o.store.CreateSchedule(ctx, sch)
}

// GetJob, ListExecutions and ListSchedules are direct Store
// pass-throughs (§4.J).
func (o *Orchestrator) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	return o.store.GetJob(ctx, id)
}

func (o *Orchestrator) ListExecutions(ctx context.Context, filter domain.ExecutionFilter, limit int) ([]*domain.Execution, error) {
	return o.store.ListExecutions(ctx, filter, limit)
}

func (o *Orchestrator) ListSchedules(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.Schedule, error) {
	return o.store.ListSchedules(ctx, filter)
}

// Execute runs job to completion, including retries, and returns the
// Execution reflecting the final attempt (§4.J): insert PENDING, mark
// RUNNING, route through IdempotencyGuard -> ExecutorRouter ->
// RetryPolicy, persist terminal state.
//
// The returned error is non-nil only for infrastructure failures —
// StoreFailure, ExecutorClosed, Cancelled (§7); user-function and
// registry-lookup failures are always captured into the returned
// Execution's FAILED/TIMEOUT fields instead.
func (o *Orchestrator) Execute(ctx context.Context, job *domain.Job) (*domain.Execution, error) {
	if job.IdempotencyKey != "" {
		prior, err := o.guard.Check(ctx, job.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return o.shortCircuit(ctx, job, prior)
		}
	}

	policy := retry.Policy{
		MaxRetries:   job.MaxRetries,
		Base:         o.retryBase,
		InitialDelay: o.retryInitialDelay,
		MaxDelay:     o.retryMaxDelay,
	}

	var (
		lastExec *domain.Execution
		infraErr error
	)
	// An infrastructure failure cancels retryCtx, so ExecuteWithRetry
	// returns at its backoff sleep instead of starting another attempt.
	retryCtx, cancelRetry := context.WithCancel(ctx)
	defer cancelRetry()
	_, _, retryErr := retry.ExecuteWithRetry(retryCtx, policy, func(ctx context.Context, attempt int) executor.Result {
		exec, res, err := o.runAttempt(ctx, job, attempt)
		lastExec = exec
		infraErr = err
		if err != nil {
			cancelRetry()
		}
		return res
	})

	if infraErr != nil {
		return lastExec, infraErr
	}
	if retryErr != nil {
		// ExecuteWithRetry only returns a non-nil error when ctx was
		// cancelled during the backoff sleep (§4.G).
		return lastExec, fmt.Errorf("%w: %v", domain.ErrCancelled, retryErr)
	}
	return lastExec, nil
}

// runAttempt executes one attempt: it creates the PENDING row, marks
// it RUNNING, looks the function up in the registry, dispatches
// through the Router, and persists the terminal outcome. The returned
// error is set only for Store or Router infrastructure failures,
// which abort the retry loop entirely (Execute cancels the retry
// context, so no further attempt is started).
func (o *Orchestrator) runAttempt(ctx context.Context, job *domain.Job, attempt int) (*domain.Execution, executor.Result, error) {
	execID, err := o.store.CreateExecution(ctx, job.ID, attempt)
	if err != nil {
		return nil, executor.Result{}, err
	}

	if _, err := o.store.UpdateExecution(ctx, &domain.Execution{ID: execID, Status: domain.StatusRunning}); err != nil {
		return nil, executor.Result{}, err
	}

	fn, lookupErr := o.registry.Lookup(job.FunctionRef)
	if lookupErr != nil {
		// UnregisteredFunction is surfaced as a FAILED Execution,
		// never as a Go error (§7).
		res := executor.Result{Status: domain.StatusFailed, Error: lookupErr.Error()}
		o.persistTerminal(ctx, execID, res)
		o.observeMetrics(job, res)
		exec, err := o.store.GetExecution(ctx, execID)
		return exec, res, err
	}

	res, dispatchErr := o.router.Execute(ctx, job, fn)
	if dispatchErr != nil {
		// ExecutorClosed / UnknownJobKind: infrastructure failures,
		// surfaced to the caller (§7). Still persist a FAILED row so
		// the attempt is accounted for.
		o.persistTerminal(ctx, execID, executor.Result{Status: domain.StatusFailed, Error: dispatchErr.Error()})
		exec, _ := o.store.GetExecution(ctx, execID)
		return exec, res, dispatchErr
	}

	o.persistTerminal(ctx, execID, res)
	o.observeMetrics(job, res)
	exec, err := o.store.GetExecution(ctx, execID)
	if err != nil {
		return nil, res, err
	}
	return exec, res, nil
}

func (o *Orchestrator) persistTerminal(ctx context.Context, execID int64, res executor.Result) {
	now := time.Now().UTC()
	duration := res.DurationSeconds
	exec := &domain.Execution{
		ID:              execID,
		Status:          res.Status,
		CompletedAt:     &now,
		DurationSeconds: &duration,
		Result:          res.Result,
		ErrorMessage:    res.Error,
		Traceback:       res.Traceback,
	}
	if _, err := o.store.UpdateExecution(ctx, exec); err != nil {
		o.logger.Error("persist terminal execution", "execution_id", execID, "error", err)
	}
}

// shortCircuit implements the IdempotencyGuard path (§4.H): a new
// Execution row is still created for auditability, but it is stamped
// SUCCESS with the prior result/duration instead of invoking the
// function again.
func (o *Orchestrator) shortCircuit(ctx context.Context, job *domain.Job, prior *domain.Execution) (*domain.Execution, error) {
	execID, err := o.store.CreateExecution(ctx, job.ID, 1)
	if err != nil {
		return nil, err
	}

	synth := idempotency.Synthesize(prior, job.ID, 1)
	completedAt := synth.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}

	update := &domain.Execution{
		ID:              execID,
		Status:          domain.StatusSuccess,
		CompletedAt:     completedAt,
		DurationSeconds: synth.DurationSeconds,
		Result:          synth.Result,
	}
	if _, err := o.store.UpdateExecution(ctx, update); err != nil {
		return nil, err
	}

	o.observeMetrics(job, executor.Result{Status: domain.StatusSuccess, DurationSeconds: durationOrZero(synth.DurationSeconds)})
	return o.store.GetExecution(ctx, execID)
}

func durationOrZero(d *float64) float64 {
	if d == nil {
		return 0
	}
	return *d
}

func (o *Orchestrator) observeMetrics(job *domain.Job, res executor.Result) {
	metrics.ObserveExecution(string(res.Status), string(job.Kind), res.DurationSeconds)
}

// Start runs the RecoverySweep, then starts the worker loop that
// drains the Queue and the Scheduler (§4.J, §4.I). Start must be
// called before any Job pushed by the Scheduler will actually run;
// direct calls to Execute work regardless.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.running {
		return nil
	}

	rescued, err := recovery.Sweep(ctx, o.store)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	metrics.RecoverySweepRescued.Set(float64(rescued))
	if rescued > 0 {
		o.logger.Warn("recovery sweep rescued orphaned executions", "count", rescued)
	}

	o.workerQuit = make(chan struct{})
	for i := 0; i < o.workerCount; i++ {
		o.workerWG.Add(1)
		go o.drainQueue(ctx)
	}

	o.scheduler.Start(ctx)
	o.running = true
	return nil
}

// drainQueue is the worker loop (§2 "Queue/Scheduler -> Router"): it
// pops Jobs the Scheduler (or any other producer) pushed and runs them
// through the same Execute path a direct caller would use.
func (o *Orchestrator) drainQueue(ctx context.Context) {
	defer o.workerWG.Done()
	for {
		select {
		case <-o.workerQuit:
			return
		default:
		}

		job := o.queue.Pop(time.Second)
		metrics.QueueDepth.Set(float64(o.queue.Len()))
		if job == nil {
			continue
		}

		if _, err := o.Execute(ctx, job); err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				continue
			}
			o.logger.Error("execute queued job", "job_id", job.ID, "error", err)
		}
	}
}

// Stop stops the Scheduler, waits for queue-draining workers to
// return, and shuts the ExecutorRouter down (§4.J). Already-running
// Executions continue to completion and are persisted (§5); Stop does
// not cancel them.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if !o.running {
		return nil
	}

	o.scheduler.Stop()
	close(o.workerQuit)
	o.workerWG.Wait()
	o.running = false

	return o.router.Shutdown(ctx)
}
