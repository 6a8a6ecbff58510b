package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// processWorkerEnvVar marks a re-exec'd invocation of this same binary as
// a Process executor worker rather than the orchestrator itself. A
// cmd/orchestratord main() checks IsWorkerProcess() before doing
// anything else and, if true, calls RunWorker and exits.
const processWorkerEnvVar = "TASKFORGE_PROCESS_WORKER"

// IsWorkerProcess reports whether this process was re-exec'd by a
// ProcessPool to serve as one of its workers.
func IsWorkerProcess() bool {
	return os.Getenv(processWorkerEnvVar) == "1"
}

// ipcRequest/ipcResponse are the JSON lines exchanged over a worker's
// stdin/stdout (§3 "args/kwargs are JSON-encodable" already commits the
// domain model to this encoding, so the Process executor just uses it
// directly rather than adopting a separate wire format).
type ipcRequest struct {
	FunctionRef string         `json:"function_ref"`
	Args        []any          `json:"args"`
	Kwargs      map[string]any `json:"kwargs"`
}

type ipcResponse struct {
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
}

// processTask is one unit of work handed from Execute to a pool worker.
type processTask struct {
	job      *domain.Job
	resultCh chan Result
	killed   chan struct{} // closed by Execute when it gives up waiting
}

type processWorker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

func (w *processWorker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.stdin.Close()
	_ = w.cmd.Wait()
}

// ProcessPool runs each submitted job in a dedicated OS process — a
// re-exec of the same binary started with processWorkerEnvVar set
// (§4.C "Process"). Unlike the other three executors it can genuinely
// reclaim a timed-out or cancelled call by killing the subprocess,
// rather than merely abandoning a goroutine.
//
// FunctionRef is resolved inside the worker subprocess against
// registry.Default(); the Handler argument passed into Execute is
// ignored — see the note on registry.Default for why a spawned OS
// process can't receive a handler any other way.
type ProcessPool struct {
	execPath   string
	workerArgs []string

	tasks  chan processTask
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewProcessPool starts poolSize workers, each a fresh re-exec of
// execPath (os.Executable() if empty) with workerArgs appended. A
// worker that dies — crash, kill-on-timeout — is respawned
// automatically until Shutdown.
func NewProcessPool(poolSize int, execPath string, workerArgs ...string) (*ProcessPool, error) {
	if poolSize <= 0 {
		poolSize = 3
	}
	if execPath == "" {
		resolved, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("process pool: resolve executable: %w", err)
		}
		execPath = resolved
	}

	pp := &ProcessPool{
		execPath:   execPath,
		workerArgs: workerArgs,
		tasks:      make(chan processTask),
		quit:       make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		pp.wg.Add(1)
		go pp.run()
	}
	return pp, nil
}

func (p *ProcessPool) spawn() (*processWorker, error) {
	cmd := exec.Command(p.execPath, p.workerArgs...)
	cmd.Env = append(os.Environ(), processWorkerEnvVar+"=1")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processWorker{
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		dec:   json.NewDecoder(stdout),
	}, nil
}

// run is one pool slot's lifetime: spawn a worker, serve tasks through
// it until it dies or the pool is shut down, then (unless shutting
// down) spawn its replacement.
func (p *ProcessPool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		default:
		}

		w, err := p.spawn()
		if err != nil {
			select {
			case <-p.quit:
				return
			case <-time.After(time.Second):
				continue
			}
		}
		p.serve(w)
	}
}

func (p *ProcessPool) serve(w *processWorker) {
	for {
		select {
		case <-p.quit:
			w.kill()
			return
		case t := <-p.tasks:
			res, alive := p.runOne(w, t)
			select {
			case t.resultCh <- res:
			default:
			}
			if !alive {
				w.kill()
				return
			}
		}
	}
}

func (p *ProcessPool) runOne(w *processWorker, t processTask) (Result, bool) {
	start := time.Now()
	req := ipcRequest{FunctionRef: t.job.FunctionRef, Args: t.job.Args, Kwargs: t.job.Kwargs}
	if err := w.enc.Encode(&req); err != nil {
		return Result{
			Status:          domain.StatusFailed,
			Error:           fmt.Sprintf("write to worker: %v", err),
			DurationSeconds: time.Since(start).Seconds(),
		}, false
	}

	type decoded struct {
		resp ipcResponse
		err  error
	}
	done := make(chan decoded, 1)
	go func() {
		var resp ipcResponse
		err := w.dec.Decode(&resp)
		done <- decoded{resp, err}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			return Result{
				Status:          domain.StatusFailed,
				Error:           fmt.Sprintf("read from worker: %v", d.err),
				DurationSeconds: time.Since(start).Seconds(),
			}, false
		}
		return resultFromIPC(d.resp, time.Since(start)), true
	case <-t.killed:
		// Execute already gave up (timeout or cancellation). The
		// worker process is killed by the caller; drain its pending
		// reply in the background so this goroutine doesn't leak.
		go func() { <-done }()
		return Result{}, false
	}
}

func resultFromIPC(resp ipcResponse, elapsed time.Duration) Result {
	return Result{
		Status:          domain.Status(resp.Status),
		Result:          resp.Result,
		Error:           resp.Error,
		Traceback:       resp.Traceback,
		DurationSeconds: elapsed.Seconds(),
	}
}

func (p *ProcessPool) Execute(ctx context.Context, job *domain.Job, _ registry.Handler) (Result, error) {
	if p.closed.Load() {
		return Result{}, domain.ErrExecutorClosed
	}

	t := processTask{job: job, resultCh: make(chan Result, 1), killed: make(chan struct{})}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return Result{}, domain.ErrCancelled
	}

	if job.TimeoutSeconds <= 0 {
		select {
		case res := <-t.resultCh:
			return res, nil
		case <-ctx.Done():
			close(t.killed)
			return Result{}, domain.ErrCancelled
		}
	}

	start := time.Now()
	timer := time.NewTimer(time.Duration(job.TimeoutSeconds) * time.Second)
	defer timer.Stop()
	select {
	case res := <-t.resultCh:
		return res, nil
	case <-timer.C:
		close(t.killed)
		return timeoutResult(job, time.Since(start)), nil
	case <-ctx.Done():
		close(t.killed)
		return Result{}, domain.ErrCancelled
	}
}

// Shutdown stops accepting new work, kills any worker processes not
// already mid-task, and waits — bounded by ctx — for in-flight tasks
// to finish or be reclaimed.
func (p *ProcessPool) Shutdown(ctx context.Context) error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.quit)
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunWorker is the Process executor subprocess entrypoint. It is never
// called by ProcessPool directly — a re-exec'd binary detects
// IsWorkerProcess() in main() and calls this instead of starting the
// orchestrator. It serves one ipcRequest per line from stdin and
// writes one ipcResponse per line to stdout until stdin closes (the
// pool killing this process or shutting down).
func RunWorker(reg *registry.Registry) error {
	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	for {
		var req ipcRequest
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		fn, lookupErr := reg.Lookup(req.FunctionRef)
		var resp ipcResponse
		if lookupErr != nil {
			resp = ipcResponse{Status: string(domain.StatusFailed), Error: lookupErr.Error()}
		} else {
			job := &domain.Job{FunctionRef: req.FunctionRef, Args: req.Args, Kwargs: req.Kwargs}
			res := call(context.Background(), job, fn)
			resp = ipcResponse{
				Status:    string(res.Status),
				Result:    res.Result,
				Error:     res.Error,
				Traceback: res.Traceback,
			}
		}

		if err := enc.Encode(&resp); err != nil {
			return err
		}
	}
}
