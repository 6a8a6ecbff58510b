package executor

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// TestMain lets this test binary re-exec itself as a Process executor
// worker — NewProcessPool resolves execPath via os.Executable() when
// given an empty string, which during `go test` is this very binary.
// That mirrors exactly how orchestratord re-execs itself in
// production; see IsWorkerProcess/RunWorker in processpool.go.
func TestMain(m *testing.M) {
	if IsWorkerProcess() {
		reg := registry.Default()
		reg.Register("echo", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
			return map[string]any{"args": args, "kwargs": kwargs}, nil
		})
		reg.Register("boom", func(context.Context, []any, map[string]any) (any, error) {
			return nil, errors.New("boom")
		})
		reg.Register("sleep", func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
		if err := RunWorker(reg); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestProcessPool_Execute_Success(t *testing.T) {
	pp, err := NewProcessPool(1, "")
	require.NoError(t, err)
	defer pp.Shutdown(context.Background())

	job := &domain.Job{FunctionRef: "echo", Args: []any{1, 2}}
	res, err := pp.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.JSONEq(t, `{"args":[1,2],"kwargs":null}`, string(res.Result))
}

func TestProcessPool_Execute_FunctionError(t *testing.T) {
	pp, err := NewProcessPool(1, "")
	require.NoError(t, err)
	defer pp.Shutdown(context.Background())

	job := &domain.Job{FunctionRef: "boom"}
	res, err := pp.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "boom", res.Error)
}

func TestProcessPool_Execute_UnregisteredFunction(t *testing.T) {
	pp, err := NewProcessPool(1, "")
	require.NoError(t, err)
	defer pp.Shutdown(context.Background())

	job := &domain.Job{FunctionRef: "does.not.exist"}
	res, err := pp.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "not registered")
}

func TestProcessPool_Execute_TimeoutKillsWorker(t *testing.T) {
	pp, err := NewProcessPool(1, "")
	require.NoError(t, err)
	defer pp.Shutdown(context.Background())

	job := &domain.Job{FunctionRef: "sleep", TimeoutSeconds: 1}
	res, err := pp.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTimeout, res.Status)

	// The pool must respawn a fresh worker process after the kill.
	res2, err := pp.Execute(context.Background(), &domain.Job{FunctionRef: "echo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res2.Status)
}

func TestProcessPool_Shutdown_RejectsFurtherWork(t *testing.T) {
	pp, err := NewProcessPool(1, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pp.Shutdown(ctx))

	_, err = pp.Execute(context.Background(), &domain.Job{FunctionRef: "echo"}, nil)
	assert.ErrorIs(t, err, domain.ErrExecutorClosed)
}
