package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
)

func TestThreadPool_Execute_Success(t *testing.T) {
	tp := NewThreadPool(2)
	job := &domain.Job{FunctionRef: "echo"}
	fn := func(context.Context, []any, map[string]any) (any, error) {
		return "ok", nil
	}

	res, err := tp.Execute(context.Background(), job, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
}

func TestThreadPool_Execute_Timeout(t *testing.T) {
	tp := NewThreadPool(1)
	job := &domain.Job{FunctionRef: "slow", TimeoutSeconds: 1}
	fn := func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res, err := tp.Execute(context.Background(), job, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTimeout, res.Status)
}

func TestThreadPool_Execute_Cancelled(t *testing.T) {
	tp := NewThreadPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tp.Execute(ctx, &domain.Job{}, func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestThreadPool_Shutdown(t *testing.T) {
	tp := NewThreadPool(2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tp.Shutdown(ctx))

	_, err := tp.Execute(context.Background(), &domain.Job{}, func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrExecutorClosed)
}
