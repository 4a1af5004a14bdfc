package uow

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/metrics"
)

func TestFactory_RequiresExecutionContext(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.factory.NewUnitOfWork(context.Background(), NewUsecase("x"))
	assert.True(t, IsIllegalState(err))
}

func TestFactory_NoActiveUnitOfWork(t *testing.T) {
	env := newTestEnv(t)
	ctx, _ := newContext(t)

	_, err := env.factory.CurrentUnitOfWork(ctx)
	assert.True(t, IsNoActiveUnitOfWork(err))
	assert.False(t, env.factory.IsUnitOfWorkActive(ctx))

	_, err = env.factory.CurrentUnitOfWork(context.Background())
	assert.True(t, IsNoActiveUnitOfWork(err))
}

func TestFactory_NestedUnitsStack(t *testing.T) {
	env := newTestEnv(t)
	ctx, ec := newContext(t)

	outer := env.open(t, ctx, "outer")
	inner := env.open(t, ctx, "inner")
	assert.Equal(t, 2, ec.Len())

	cur, err := env.factory.CurrentUnitOfWork(ctx)
	require.NoError(t, err)
	assert.Same(t, inner, cur)

	require.NoError(t, inner.Complete(ctx))
	cur, err = env.factory.CurrentUnitOfWork(ctx)
	require.NoError(t, err)
	assert.Same(t, outer, cur)

	outer.Discard(ctx)
	assert.False(t, env.factory.IsUnitOfWorkActive(ctx))
}

func TestFactory_ExecutionContextsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx1, _ := newContext(t)
	ctx2, _ := newContext(t)

	u1 := env.open(t, ctx1, "one")
	assert.False(t, env.factory.IsUnitOfWorkActive(ctx2))
	cur, err := env.factory.CurrentUnitOfWork(ctx1)
	require.NoError(t, err)
	assert.Same(t, u1, cur)
}

func TestUnitOfWork_PauseResume(t *testing.T) {
	env := newTestEnv(t)
	ctx, ec := newContext(t)

	outer := env.open(t, ctx, "outer")
	require.NoError(t, outer.Pause())
	assert.True(t, outer.IsPaused())
	assert.True(t, outer.IsOpen())
	assert.False(t, env.factory.IsUnitOfWorkActive(ctx))

	side := env.open(t, ctx, "side")
	cur, err := env.factory.CurrentUnitOfWork(ctx)
	require.NoError(t, err)
	assert.Same(t, side, cur)
	require.NoError(t, side.Complete(ctx))

	require.NoError(t, outer.Resume())
	cur, err = env.factory.CurrentUnitOfWork(ctx)
	require.NoError(t, err)
	assert.Same(t, outer, cur)
	assert.Equal(t, 1, ec.Len())
}

func TestUnitOfWork_PauseResumeMisuse(t *testing.T) {
	env := newTestEnv(t)
	ctx, _ := newContext(t)

	u := env.open(t, ctx, "u")
	assert.True(t, IsIllegalState(u.Resume()), "resume of a running unit")
	require.NoError(t, u.Pause())
	assert.True(t, IsIllegalState(u.Pause()), "double pause")
	assert.True(t, IsIllegalState(u.Complete(ctx)), "complete while paused")
	require.NoError(t, u.Resume())
	require.NoError(t, u.Complete(ctx))
	assert.True(t, IsIllegalState(u.Pause()))
}

func TestUnitOfWork_PruneOnPause(t *testing.T) {
	env := newTestEnv(t, WithDefaultOptions(Options{PruneOnPause: true}))
	env.seed(t, "Account", "acc-1", nil)
	env.seed(t, "Account", "acc-2", nil)
	ctx, _ := newContext(t)

	u := env.open(t, ctx, "long")
	first, err := u.Get(ctx, "Account", "acc-1")
	require.NoError(t, err)
	changed, err := u.Get(ctx, "Account", "acc-2")
	require.NoError(t, err)
	require.NoError(t, changed.Set("balance", int64(1)))
	_, err = u.NewEntity(ctx, "Account", "acc-3")
	require.NoError(t, err)

	require.NoError(t, u.Pause())
	assert.Equal(t, 2, u.Cache().Len())
	assert.False(t, u.Cache().Contains("acc-1"))
	require.NoError(t, u.Resume())

	reloaded, err := u.Get(ctx, "Account", "acc-1")
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	again, err := u.Get(ctx, "Account", "acc-2")
	require.NoError(t, err)
	assert.Same(t, changed, again)
}

func TestUnitOfWork_UsecaseOptionsOverrideDefaults(t *testing.T) {
	env := newTestEnv(t, WithDefaultOptions(Options{PruneOnPause: true}))
	env.seed(t, "Account", "acc-1", nil)
	ctx, _ := newContext(t)

	u, err := env.factory.NewUnitOfWork(ctx, NewUsecase("keep").WithOptions(Options{}))
	require.NoError(t, err)
	_, err = u.Get(ctx, "Account", "acc-1")
	require.NoError(t, err)
	require.NoError(t, u.Pause())
	assert.True(t, u.Cache().Contains(entity.Reference("acc-1")))
}

func TestExecutionContext_Drain(t *testing.T) {
	env := newTestEnv(t)
	ctx, ec := WithExecutionContext(context.Background())

	var order []string
	after := func(name string) Callback {
		return CallbackFuncs{After: func(_ context.Context, _ *UnitOfWork, s State) error {
			order = append(order, name+":"+string(s))
			return nil
		}}
	}

	a := env.open(t, ctx, "a")
	a.AddCallback(after("a"))
	require.NoError(t, a.Pause())
	b := env.open(t, ctx, "b")
	b.AddCallback(after("b"))
	done := env.open(t, ctx, "done")
	require.NoError(t, done.Complete(ctx))

	assert.Equal(t, 2, ec.Drain(ctx))
	assert.Equal(t, StateDiscarded, a.State())
	assert.Equal(t, StateDiscarded, b.State())
	assert.Equal(t, []string{"b:DISCARDED", "a:DISCARDED"}, order)
	assert.Zero(t, ec.Len())
	assert.Zero(t, ec.Drain(ctx))
}

func TestFactory_ReportsMetrics(t *testing.T) {
	rec := &countingRecorder{}
	env := newTestEnv(t, WithMetrics(rec))
	env.seed(t, "Account", "acc-1", nil)
	ctx, _ := newContext(t)

	u := env.open(t, ctx, "conflict")
	e, err := u.Get(ctx, "Account", "acc-1")
	require.NoError(t, err)
	require.NoError(t, e.Set("balance", int64(1)))
	env.store.ConflictNext(1)
	require.Error(t, u.Complete(ctx))
	u.Discard(ctx)

	discarded := env.open(t, ctx, "discard")
	discarded.Discard(ctx)

	assert.Equal(t, map[string]int{"seed": 1, "conflict": 1, "discard": 1}, rec.started)
	assert.Equal(t, map[string]int{
		"seed/completed":    1,
		"conflict/failed":   1,
		"discard/discarded": 1,
	}, rec.finished)
	assert.Equal(t, map[string]int{"conflict": 1}, rec.conflicts)
}

func TestFactory_PrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg, "test")
	require.NoError(t, err)

	env := newTestEnv(t, WithMetrics(rec))
	ctx, _ := newContext(t)
	u := env.open(t, ctx, "create")
	_, err = u.NewEntity(ctx, "Account", "acc-1")
	require.NoError(t, err)
	require.NoError(t, u.Complete(ctx))

	expected := `
# HELP test_unitofwork_finished_total Units of work finished, by outcome.
# TYPE test_unitofwork_finished_total counter
test_unitofwork_finished_total{outcome="completed",usecase="create"} 1
# HELP test_unitofwork_open Units of work currently open.
# TYPE test_unitofwork_open gauge
test_unitofwork_open 0
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"test_unitofwork_finished_total", "test_unitofwork_open"))
}
