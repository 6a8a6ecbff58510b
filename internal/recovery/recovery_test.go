package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/store"
)

func TestSweep_MarksRunningExecutionsFailed(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	jobID, err := s.CreateJob(ctx, &domain.Job{Name: "j", FunctionRef: "pkg.fn", Kind: domain.KindInline})
	require.NoError(t, err)

	execID, err := s.CreateExecution(ctx, jobID, 1)
	require.NoError(t, err)
	ok, err := s.UpdateExecution(ctx, &domain.Execution{ID: execID, Status: domain.StatusRunning})
	require.NoError(t, err)
	require.True(t, ok)

	pendingID, err := s.CreateExecution(ctx, jobID, 1)
	require.NoError(t, err)

	n, err := Sweep(ctx, s)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	running, err := s.GetExecution(ctx, execID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, running.Status)
	require.Equal(t, "orphaned by restart", running.ErrorMessage)
	require.NotNil(t, running.CompletedAt)

	stillPending, err := s.GetExecution(ctx, pendingID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stillPending.Status)
}

func TestSweep_NoRunningExecutions(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := Sweep(ctx, s)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
