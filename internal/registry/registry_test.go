package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

func TestLookup_Unregistered(t *testing.T) {
	r := registry.New()
	_, err := r.Lookup("math.add")
	require.ErrorIs(t, err, domain.ErrUnregisteredFunction)
}

func TestRegisterAndLookup(t *testing.T) {
	r := registry.New()
	r.Register("math.add", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	})

	fn, err := r.Lookup("math.add")
	require.NoError(t, err)

	result, err := fn(context.Background(), []any{2.0, 3.0}, nil)
	require.NoError(t, err)
	require.Equal(t, 5.0, result)
}

func TestRegister_OverwritesPriorBinding(t *testing.T) {
	r := registry.New()
	r.Register("f", func(context.Context, []any, map[string]any) (any, error) { return 1, nil })
	r.Register("f", func(context.Context, []any, map[string]any) (any, error) { return 2, nil })

	fn, err := r.Lookup("f")
	require.NoError(t, err)
	v, err := fn(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}
