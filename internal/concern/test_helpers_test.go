package concern

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roach88/polygene/internal/entitystore/mapstore"
	"github.com/roach88/polygene/internal/identity"
	"github.com/roach88/polygene/internal/metrics"
	"github.com/roach88/polygene/internal/testutil"
	"github.com/roach88/polygene/internal/uow"
)

type testEnv struct {
	factory *uow.Factory
	store   *testutil.RecordingStore
	retries *retryCounter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   testutil.NewRecordingStore(mapstore.NewMemory()),
		retries: &retryCounter{},
	}
	env.factory = uow.NewFactory(env.store,
		uow.WithClock(testutil.NewDeterministicClock(testutil.Epoch, time.Second)),
		uow.WithUnitIDGenerator(identity.NewSequence("uow")),
		uow.WithMetrics(env.retries),
	)
	return env
}

func newContext(t *testing.T) context.Context {
	t.Helper()
	ctx, ec := uow.WithExecutionContext(context.Background())
	t.Cleanup(func() { ec.Drain(context.Background()) })
	return ctx
}

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type retryCounter struct {
	metrics.Nop
	mu sync.Mutex
	n  int
}

func (r *retryCounter) Retry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
}

func (r *retryCounter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
