package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
)

func TestInline_Execute_Success(t *testing.T) {
	e := NewInline()
	job := &domain.Job{FunctionRef: "add"}
	fn := func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return len(args), nil
	}

	res, err := e.Execute(context.Background(), job, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.JSONEq(t, "0", string(res.Result))
}

func TestInline_Execute_FunctionError(t *testing.T) {
	e := NewInline()
	job := &domain.Job{FunctionRef: "fails"}
	fn := func(_ context.Context, _ []any, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	}

	res, err := e.Execute(context.Background(), job, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "boom", res.Error)
}

func TestInline_Execute_Panic(t *testing.T) {
	e := NewInline()
	job := &domain.Job{FunctionRef: "panics"}
	fn := func(_ context.Context, _ []any, _ map[string]any) (any, error) {
		panic("kaboom")
	}

	res, err := e.Execute(context.Background(), job, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "kaboom")
	assert.NotEmpty(t, res.Traceback)
}

func TestInline_Execute_AfterShutdown(t *testing.T) {
	e := NewInline()
	require.NoError(t, e.Shutdown(context.Background()))

	_, err := e.Execute(context.Background(), &domain.Job{}, func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrExecutorClosed)
}
