package uow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore/mapstore"
	"github.com/roach88/polygene/internal/identity"
	"github.com/roach88/polygene/internal/metrics"
	"github.com/roach88/polygene/internal/testutil"
)

type testEnv struct {
	factory *Factory
	backing *mapstore.Store
	store   *testutil.RecordingStore
	clock   *testutil.DeterministicClock
}

func newTestEnv(t *testing.T, opts ...FactoryOption) *testEnv {
	t.Helper()
	backing := mapstore.NewMemory()
	env := &testEnv{
		backing: backing,
		store:   testutil.NewRecordingStore(backing),
		clock:   testutil.NewDeterministicClock(testutil.Epoch, time.Second),
	}
	base := []FactoryOption{
		WithClock(env.clock),
		WithUnitIDGenerator(identity.NewSequence("uow")),
		WithIdentityGenerator(identity.NewSequence("")),
	}
	env.factory = NewFactory(env.store, append(base, opts...)...)
	return env
}

func newContext(t *testing.T) (context.Context, *ExecutionContext) {
	t.Helper()
	ctx, ec := WithExecutionContext(context.Background())
	t.Cleanup(func() { ec.Drain(context.Background()) })
	return ctx, ec
}

func (env *testEnv) open(t *testing.T, ctx context.Context, usecase string) *UnitOfWork {
	t.Helper()
	u, err := env.factory.NewUnitOfWork(ctx, NewUsecase(usecase))
	require.NoError(t, err)
	return u
}

// seed persists an entity through its own unit of work.
func (env *testEnv) seed(t *testing.T, typeName string, ref entity.Reference, props map[string]any) {
	t.Helper()
	ctx, _ := newContext(t)
	u := env.open(t, ctx, "seed")
	e, err := u.NewEntity(ctx, typeName, ref)
	require.NoError(t, err)
	for k, v := range props {
		require.NoError(t, e.Set(k, v))
	}
	require.NoError(t, u.Complete(ctx))
	env.store.Reset()
}

type recordingCallback struct {
	events    *[]string
	name      string
	beforeErr error
	afterErr  error
}

func (c recordingCallback) BeforeCompletion(ctx context.Context, u *UnitOfWork) error {
	*c.events = append(*c.events, c.name+":before")
	return c.beforeErr
}

func (c recordingCallback) AfterCompletion(ctx context.Context, u *UnitOfWork, state State) error {
	*c.events = append(*c.events, c.name+":after:"+string(state))
	return c.afterErr
}

type countingRecorder struct {
	mu        sync.Mutex
	started   map[string]int
	finished  map[string]int
	conflicts map[string]int
	retries   map[string]int
}

func bump(m *map[string]int, key string) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key]++
}

func (r *countingRecorder) Started(usecase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.started, usecase)
}

func (r *countingRecorder) Finished(usecase string, outcome metrics.Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.finished, usecase+"/"+string(outcome))
}

func (r *countingRecorder) Conflict(usecase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.conflicts, usecase)
}

func (r *countingRecorder) Retry(usecase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.retries, usecase)
}
