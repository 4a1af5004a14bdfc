package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/entitystore/mapstore"
	"github.com/roach88/polygene/internal/identity"
	"github.com/roach88/polygene/internal/testutil"
	"github.com/roach88/polygene/internal/uow"
)

// Outcomes produced by the harness itself rather than by a unit of work.
const (
	OutcomeError     = "ERROR"
	OutcomeNoHandle  = "NO_HANDLE"
	OutcomeMismatch  = "MISMATCH"
	outcomeNotFound  = "NOT_FOUND"
	outcomeExists    = "ALREADY_EXISTS"
	outcomeIOFailure = "IO_ERROR"
)

// Harness executes one scenario. Each run gets a fresh in-memory store,
// a deterministic clock and sequential identities.
type Harness struct {
	scenario *Scenario
	factory  *uow.Factory
	backing  *mapstore.Store
	store    *testutil.RecordingStore
	base     context.Context
	contexts map[string]context.Context
	execs    []*uow.ExecutionContext
	units    map[string]*uow.UnitOfWork
	unitCtx  map[string]context.Context
	names    map[*uow.UnitOfWork]string
	handles  map[string]map[string]*entity.Entity
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Persist the setup entities through a unit of work
//  2. Execute flow steps, tracing each step and the store calls it caused
//  3. Evaluate assertions against the store and the units
//  4. Discard units left open
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backing := mapstore.NewMemory(mapstore.WithLogger(logger))
	rec := testutil.NewRecordingStore(backing)

	types := entity.NewTypeRegistry()
	for _, t := range scenario.Types {
		types.Register(entity.Type{Name: t.Name, Extends: t.Extends})
	}

	h := &Harness{
		scenario: scenario,
		factory: uow.NewFactory(rec,
			uow.WithTypes(types),
			uow.WithClock(testutil.NewDeterministicClock(time.Time{}, time.Millisecond)),
			uow.WithIdentityGenerator(identity.NewSequence("")),
			uow.WithUnitIDGenerator(identity.NewSequence("uow")),
			uow.WithLogger(logger),
		),
		backing:  backing,
		store:    rec,
		base:     ctx,
		contexts: make(map[string]context.Context),
		units:    make(map[string]*uow.UnitOfWork),
		unitCtx:  make(map[string]context.Context),
		names:    make(map[*uow.UnitOfWork]string),
		handles:  make(map[string]map[string]*entity.Entity),
		result:   NewResult(),
	}
	defer h.drain()

	if err := h.executeSetup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	rec.Reset()

	for i, step := range scenario.Flow {
		h.executeStep(i, step)
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			h.result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return h.result, nil
}

// executeSetup persists the setup entities in one unit of work.
func (h *Harness) executeSetup(ctx context.Context) error {
	if len(h.scenario.Setup) == 0 {
		return nil
	}
	sctx, ec := uow.WithExecutionContext(ctx)
	defer ec.Drain(sctx)

	u, err := h.factory.NewUnitOfWork(sctx, uow.NewUsecase("setup"))
	if err != nil {
		return err
	}
	for i, se := range h.scenario.Setup {
		ref, err := entity.NewReference(se.Ref)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		e, err := u.NewEntity(sctx, se.Type, ref)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if err := setProperties(e, se.Properties); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return u.Complete(sctx)
}

// executeStep applies one step and appends it, followed by the store calls
// it caused, to the trace.
func (h *Harness) executeStep(i int, step Step) {
	before := len(h.store.Events())
	outcome := h.apply(step)

	h.result.add(TraceEvent{
		Kind:    KindStep,
		Op:      step.Op,
		Unit:    step.Unit,
		Ref:     step.Ref,
		Outcome: outcome,
	})
	for _, se := range h.store.Events()[before:] {
		h.result.add(TraceEvent{
			Kind:    KindStore,
			Op:      se.Op,
			Refs:    se.Refs,
			New:     se.New,
			Loaded:  se.Loaded,
			Removed: se.Removed,
			Outcome: storeOutcome(se.Err),
		})
	}

	want := step.Expect
	if want == "" {
		want = OutcomeOK
	}
	if outcome != want {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected %s, got %s", i, step.Op, want, outcome))
	}
}

func (h *Harness) apply(step Step) string {
	switch step.Op {
	case OpOpen:
		return outcomeOf(h.open(step))
	case OpConflict:
		h.store.ConflictNext(step.Count)
		return OutcomeOK
	case OpCurrent:
		return h.current(step)
	}

	u, ok := h.units[step.Unit]
	if !ok {
		return OutcomeError
	}
	ctx := h.unitCtx[step.Unit]
	switch step.Op {
	case OpNew:
		var ref entity.Reference
		if step.Ref != "" {
			r, err := entity.NewReference(step.Ref)
			if err != nil {
				return OutcomeError
			}
			ref = r
		}
		e, err := u.NewEntity(ctx, step.Type, ref)
		if err != nil {
			return outcomeOf(err)
		}
		h.handles[step.Unit][e.Reference().String()] = e
		return outcomeOf(setProperties(e, step.Properties))
	case OpGet:
		ref, err := entity.NewReference(step.Ref)
		if err != nil {
			return OutcomeError
		}
		e, err := u.Get(ctx, step.Type, ref)
		if err != nil {
			return outcomeOf(err)
		}
		h.handles[step.Unit][step.Ref] = e
		return OutcomeOK
	case OpSet:
		e, ok := h.handles[step.Unit][step.Ref]
		if !ok {
			return OutcomeNoHandle
		}
		return outcomeOf(setProperties(e, step.Properties))
	case OpRemove:
		e, ok := h.handles[step.Unit][step.Ref]
		if !ok {
			return OutcomeNoHandle
		}
		return outcomeOf(u.Remove(ctx, e))
	case OpComplete:
		return outcomeOf(u.Complete(ctx))
	case OpDiscard:
		u.Discard(ctx)
		return OutcomeOK
	case OpPause:
		return outcomeOf(u.Pause())
	case OpResume:
		return outcomeOf(u.Resume())
	}
	return OutcomeError
}

func (h *Harness) open(step Step) error {
	ctx := h.context(step.Context)
	usecase := step.Usecase
	if usecase == "" {
		usecase = step.Unit
	}
	uc := uow.NewUsecase(usecase)
	if step.PruneOnPause {
		uc = uc.WithOptions(uow.Options{PruneOnPause: true})
	}
	u, err := h.factory.NewUnitOfWork(ctx, uc)
	if err != nil {
		return err
	}
	h.units[step.Unit] = u
	h.unitCtx[step.Unit] = ctx
	h.names[u] = step.Unit
	h.handles[step.Unit] = make(map[string]*entity.Entity)
	return nil
}

// current compares the current unit of an execution context with step.Unit;
// an empty Unit expects no current unit.
func (h *Harness) current(step Step) string {
	var name string
	if u, err := h.factory.CurrentUnitOfWork(h.context(step.Context)); err == nil {
		name = h.names[u]
	}
	if name != step.Unit {
		return OutcomeMismatch
	}
	return OutcomeOK
}

// context returns the execution context registered under name.
func (h *Harness) context(name string) context.Context {
	if name == "" {
		name = DefaultContext
	}
	if ctx, ok := h.contexts[name]; ok {
		return ctx
	}
	ctx, ec := uow.WithExecutionContext(h.base)
	h.contexts[name] = ctx
	h.execs = append(h.execs, ec)
	return ctx
}

func (h *Harness) drain() {
	for _, ec := range h.execs {
		ec.Drain(h.base)
	}
}

// setProperties applies props in key order.
func setProperties(e *entity.Entity, props map[string]any) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.Set(k, props[k]); err != nil {
			return err
		}
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := uow.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

func storeOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case entitystore.IsConcurrentModification(err):
		return string(uow.ErrCodeConcurrentModification)
	case errors.Is(err, entitystore.ErrEntityNotFound):
		return outcomeNotFound
	case errors.Is(err, entitystore.ErrEntityAlreadyExists):
		return outcomeExists
	default:
		return outcomeIOFailure
	}
}
