package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
)

func TestRouter_Execute_DispatchesByKind(t *testing.T) {
	inline := NewInline()
	coop := NewCooperative(2)
	r := NewRouter(map[domain.Kind]Executor{
		domain.KindInline:      inline,
		domain.KindCooperative: coop,
	})

	fn := func(context.Context, []any, map[string]any) (any, error) { return "ok", nil }

	res, err := r.Execute(context.Background(), &domain.Job{Kind: domain.KindInline}, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)

	res, err = r.Execute(context.Background(), &domain.Job{Kind: domain.KindCooperative}, fn)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, res.Status)
}

func TestRouter_Execute_UnknownKind(t *testing.T) {
	r := NewRouter(map[domain.Kind]Executor{domain.KindInline: NewInline()})
	_, err := r.Execute(context.Background(), &domain.Job{Kind: domain.Kind("BOGUS")}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownJobKind)
}

func TestRouter_Shutdown_ShutsDownEachExecutorOnce(t *testing.T) {
	shared := NewInline()
	calls := 0
	wrapped := shutdownCounter{Executor: shared, calls: &calls}
	r := NewRouter(map[domain.Kind]Executor{
		domain.KindInline:      wrapped,
		domain.KindCooperative: wrapped,
	})

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

type shutdownCounter struct {
	Executor
	calls *int
}

func (s shutdownCounter) Shutdown(ctx context.Context) error {
	*s.calls++
	return s.Executor.Shutdown(ctx)
}
