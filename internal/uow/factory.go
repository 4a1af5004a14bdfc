package uow

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/identity"
	"github.com/roach88/polygene/internal/metrics"
)

// Clock supplies the time a unit of work is created at.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Factory creates units of work and tracks the current one per execution
// context. A Factory is safe for concurrent use; the units it creates are
// not.
type Factory struct {
	store    entitystore.EntityStore
	routes   map[string]entitystore.EntityStore
	ranks    map[entitystore.EntityStore]int
	types    *entity.TypeRegistry
	ids      identity.Generator
	unitIDs  identity.Generator
	clock    Clock
	metrics  metrics.Recorder
	logger   *slog.Logger
	defaults Options
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRoute stores entities of typeName in store instead of the default.
// Completion prepares the default store first, then routed stores in the
// order they were first routed to.
func WithRoute(typeName string, store entitystore.EntityStore) FactoryOption {
	return func(f *Factory) {
		f.routes[typeName] = store
		if _, ok := f.ranks[store]; !ok {
			f.ranks[store] = len(f.ranks)
		}
	}
}

// WithTypes sets the registry used for type compatibility checks on Get.
func WithTypes(types *entity.TypeRegistry) FactoryOption {
	return func(f *Factory) { f.types = types }
}

// WithIdentityGenerator sets the generator for entities created without a
// reference (default UUIDv7).
func WithIdentityGenerator(g identity.Generator) FactoryOption {
	return func(f *Factory) { f.ids = g }
}

// WithUnitIDGenerator sets the generator for unit-of-work IDs (default UUIDv7).
func WithUnitIDGenerator(g identity.Generator) FactoryOption {
	return func(f *Factory) { f.unitIDs = g }
}

// WithClock sets the clock that stamps CurrentTime.
func WithClock(c Clock) FactoryOption {
	return func(f *Factory) { f.clock = c }
}

// WithMetrics sets the metrics recorder (default metrics.Nop).
func WithMetrics(r metrics.Recorder) FactoryOption {
	return func(f *Factory) { f.metrics = r }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithDefaultOptions sets the options used by usecases that carry none.
func WithDefaultOptions(opts Options) FactoryOption {
	return func(f *Factory) { f.defaults = opts }
}

// NewFactory creates a factory whose default store is store.
func NewFactory(store entitystore.EntityStore, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:   store,
		routes:  make(map[string]entitystore.EntityStore),
		ranks:   map[entitystore.EntityStore]int{store: 0},
		ids:     identity.UUIDv7{},
		unitIDs: identity.UUIDv7{},
		clock:   SystemClock{},
		metrics: metrics.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Metrics returns the factory's recorder.
func (f *Factory) Metrics() metrics.Recorder { return f.metrics }

// Logger returns the factory's logger.
func (f *Factory) Logger() *slog.Logger { return f.logger }

// storeFor routes typeName to its store.
func (f *Factory) storeFor(typeName string) entitystore.EntityStore {
	if s, ok := f.routes[typeName]; ok {
		return s
	}
	return f.store
}

// rank orders stores for completion. Every unit prepares its stores in this
// one order, so units spanning the same stores cannot wait on each other in
// a cycle.
func (f *Factory) rank(store entitystore.EntityStore) int {
	if r, ok := f.ranks[store]; ok {
		return r
	}
	return len(f.ranks)
}

// NewUnitOfWork creates an ACTIVE unit and makes it current in ctx's
// execution context. ctx must carry one (see WithExecutionContext).
func (f *Factory) NewUnitOfWork(ctx context.Context, usecase Usecase) (*UnitOfWork, error) {
	ec, ok := FromContext(ctx)
	if !ok {
		return nil, illegalState(usecase.name(), "context carries no execution context")
	}
	opts := f.defaults
	if usecase.Options != nil {
		opts = *usecase.Options
	}
	u := &UnitOfWork{
		id:          f.unitIDs.Generate("UnitOfWork"),
		factory:     f,
		ec:          ec,
		usecase:     usecase,
		opts:        opts,
		state:       StateActive,
		cache:       NewInstanceCache(),
		meta:        newMetaInfo(),
		currentTime: f.clock.Now(),
	}
	u.logger = f.logger.With("uow", u.id, "usecase", usecase.name())
	ec.track(u)
	ec.push(u)
	f.metrics.Started(usecase.name())
	u.logger.Debug("unit of work started", "depth", ec.Len())
	return u, nil
}

// CurrentUnitOfWork returns the top of ctx's stack.
func (f *Factory) CurrentUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	if ec, ok := FromContext(ctx); ok {
		if u, ok := ec.Current(); ok {
			return u, nil
		}
	}
	return nil, newError(ErrCodeNoActiveUnitOfWork, "", "no active unit of work")
}

// IsUnitOfWorkActive reports whether ctx's current unit of work still
// accepts operations. A FAILED unit stays current until it is discarded but
// is not active.
func (f *Factory) IsUnitOfWorkActive(ctx context.Context) bool {
	u, err := f.CurrentUnitOfWork(ctx)
	return err == nil && u.IsOpen()
}
