package uow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/metrics"
)

// UnitOfWork is one transaction over the entity stores. It is confined to
// the execution context that created it and not safe for concurrent use.
type UnitOfWork struct {
	id          string
	factory     *Factory
	ec          *ExecutionContext
	usecase     Usecase
	opts        Options
	state       State
	paused      bool
	cache       *InstanceCache
	callbacks   []registeredCallback
	nextID      CallbackID
	meta        *MetaInfo
	currentTime time.Time
	logger      *slog.Logger
}

// ID returns the generated identity of the unit.
func (u *UnitOfWork) ID() string { return u.id }

// Usecase returns the usecase the unit was created for.
func (u *UnitOfWork) Usecase() Usecase { return u.usecase }

// CurrentTime is the creation time, stamped on every entity the unit writes.
func (u *UnitOfWork) CurrentTime() time.Time { return u.currentTime }

// State returns the lifecycle state.
func (u *UnitOfWork) State() State { return u.state }

// IsOpen reports whether the unit still accepts entity operations.
func (u *UnitOfWork) IsOpen() bool { return u.state == StateActive }

// IsPaused reports whether the unit is paused.
func (u *UnitOfWork) IsPaused() bool { return u.paused }

// MetaInfo returns the typed metadata of the unit; see SetMeta and Meta.
func (u *UnitOfWork) MetaInfo() *MetaInfo { return u.meta }

// Cache exposes the instance cache.
func (u *UnitOfWork) Cache() *InstanceCache { return u.cache }

func (u *UnitOfWork) String() string {
	return fmt.Sprintf("UnitOfWork[%s %s %s]", u.id, u.usecase.name(), u.state)
}

func (u *UnitOfWork) checkActive(op string) error {
	if u.state != StateActive {
		return illegalState(u.usecase.name(), "%s on %s unit of work", op, u.state)
	}
	return nil
}

// NewEntity creates a NEW entity of typeName. An empty ref is generated.
func (u *UnitOfWork) NewEntity(ctx context.Context, typeName string, ref entity.Reference) (*entity.Entity, error) {
	if err := u.checkActive("new entity"); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		generated, err := entity.NewReference(u.factory.ids.Generate(typeName))
		if err != nil {
			return nil, illegalState(u.usecase.name(), "identity generator: %v", err)
		}
		ref = generated
	}
	if u.cache.Contains(ref) {
		return nil, newError(ErrCodeIdentityCollision, u.usecase.name(), "reference already used in unit of work", ref)
	}

	store := u.factory.storeFor(typeName)
	st, err := store.NewEntityState(ctx, ref, typeName, u.currentTime)
	if err != nil {
		e := storeError(u.usecase.name(), "new entity", err)
		if e.Code == ErrCodeIdentityCollision {
			e.References = []entity.Reference{ref}
		}
		return nil, e
	}
	e := entity.NewEntity(typeName, st)
	if err := u.cache.Put(e, store); err != nil {
		return nil, err
	}
	u.logger.Debug("entity created", "ref", ref, "type", typeName)
	return e, nil
}

// Get returns the entity for ref as typeName, loading it on first access.
// Within one unit, every Get of a reference returns the same *entity.Entity.
func (u *UnitOfWork) Get(ctx context.Context, typeName string, ref entity.Reference) (*entity.Entity, error) {
	if err := u.checkActive("get"); err != nil {
		return nil, err
	}
	if u.cache.IsRemoved(ref) {
		return nil, newError(ErrCodeNoSuchEntity, u.usecase.name(), "entity removed in this unit of work", ref)
	}
	if e, ok := u.cache.Get(ref); ok {
		if !u.factory.types.Assignable(e.State().Type(), typeName) {
			return nil, u.typeMismatch(ref, e.State().Type(), typeName)
		}
		return e, nil
	}

	store := u.factory.storeFor(typeName)
	st, err := store.EntityState(ctx, ref)
	if err != nil {
		e := storeError(u.usecase.name(), "get", err)
		e.References = []entity.Reference{ref}
		return nil, e
	}
	if !u.factory.types.Assignable(st.Type(), typeName) {
		return nil, u.typeMismatch(ref, st.Type(), typeName)
	}
	e := entity.NewEntity(typeName, st)
	if err := u.cache.Put(e, store); err != nil {
		return nil, err
	}
	u.logger.Debug("entity loaded", "ref", ref, "type", st.Type(), "version", st.Version())
	return e, nil
}

func (u *UnitOfWork) typeMismatch(ref entity.Reference, stored, requested string) *Error {
	return newError(ErrCodeEntityTypeMismatch, u.usecase.name(),
		fmt.Sprintf("stored type %s is not assignable to %s", stored, requested), ref)
}

// Remove removes e. An entity created in this unit is simply forgotten.
func (u *UnitOfWork) Remove(ctx context.Context, e *entity.Entity) error {
	if err := u.checkActive("remove"); err != nil {
		return err
	}
	ref := e.Reference()
	if u.cache.IsRemoved(ref) {
		return newError(ErrCodeNoSuchEntity, u.usecase.name(), "entity already removed", ref)
	}
	cached, ok := u.cache.Get(ref)
	if !ok || cached != e {
		return illegalState(u.usecase.name(), "entity %s does not belong to this unit of work", ref)
	}
	u.cache.Remove(ref)
	u.logger.Debug("entity removed", "ref", ref)
	return nil
}

// AddCallback registers cb and returns its handle.
func (u *UnitOfWork) AddCallback(cb Callback) CallbackID {
	u.nextID++
	u.callbacks = append(u.callbacks, registeredCallback{id: u.nextID, cb: cb})
	return u.nextID
}

// RemoveCallback unregisters a callback, reporting whether it was present.
func (u *UnitOfWork) RemoveCallback(id CallbackID) bool {
	for i, rc := range u.callbacks {
		if rc.id == id {
			u.callbacks = append(u.callbacks[:i], u.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// Complete writes the unit to its stores:
//
//  1. beforeCompletion callbacks run in order; an error fails the unit
//  2. NEW and UPDATED states are stamped with CurrentTime
//  3. each store with something to write prepares its batch, in the
//     factory's store order; any failure cancels every prepared batch and
//     fails the unit
//  4. every prepared batch commits
//  5. afterCompletion callbacks run with COMPLETED or FAILED
//
// A completed unit leaves the execution context. A failed unit stays until
// it is discarded; retry with a new unit.
func (u *UnitOfWork) Complete(ctx context.Context) error {
	if err := u.checkActive("complete"); err != nil {
		return err
	}
	if u.paused {
		return illegalState(u.usecase.name(), "complete on paused unit of work")
	}
	u.state = StateCompleting

	for _, rc := range u.snapshotCallbacks() {
		if err := u.runBefore(ctx, rc.cb); err != nil {
			return u.fail(ctx, &Error{
				Code:    ErrCodeCallbackFailed,
				Message: "beforeCompletion callback failed",
				Usecase: u.usecase.name(),
				Err:     err,
			})
		}
	}

	for _, e := range u.cache.Entities() {
		if st := e.State(); st.IsModified() {
			st.SetLastModified(u.currentTime)
		}
	}

	var prepared []entitystore.StateCommitter
	cancelAll := func() {
		for i := len(prepared) - 1; i >= 0; i-- {
			if err := prepared[i].Cancel(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, entitystore.ErrCommitterClosed) {
				u.logger.Warn("cancel failed", "error", err)
			}
		}
	}
	batches := u.cache.Partition()
	sort.SliceStable(batches, func(i, j int) bool {
		return u.factory.rank(batches[i].Store) < u.factory.rank(batches[j].Store)
	})
	for _, b := range batches {
		if !b.Writes() {
			continue
		}
		c, err := b.Store.Prepare(ctx, b.New, b.Loaded, b.Removed)
		if err != nil {
			cancelAll()
			return u.fail(ctx, storeError(u.usecase.name(), "prepare", err))
		}
		prepared = append(prepared, c)
	}

	for i, c := range prepared {
		if err := c.Commit(ctx); err != nil {
			// Stores already committed stay committed.
			for _, rest := range prepared[i+1:] {
				if err := rest.Cancel(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, entitystore.ErrCommitterClosed) {
					u.logger.Warn("cancel failed", "error", err)
				}
			}
			return u.fail(ctx, storeError(u.usecase.name(), "commit", err))
		}
	}

	u.state = StateCompleted
	u.ec.finish(u)
	u.factory.metrics.Finished(u.usecase.name(), metrics.OutcomeCompleted, u.factory.clock.Now().Sub(u.currentTime))
	u.logger.Debug("unit of work completed", "stores", len(prepared))
	u.runAfter(ctx, StateCompleted)
	return nil
}

func (u *UnitOfWork) fail(ctx context.Context, err *Error) error {
	u.state = StateFailed
	if err.Code == ErrCodeConcurrentModification {
		u.factory.metrics.Conflict(u.usecase.name())
	}
	u.factory.metrics.Finished(u.usecase.name(), metrics.OutcomeFailed, u.factory.clock.Now().Sub(u.currentTime))
	u.logger.Debug("unit of work failed", "code", err.Code, "error", err)
	u.runAfter(ctx, StateFailed)
	return err
}

// Discard ends the unit without writing anything. It is safe to call in a
// defer: on a COMPLETED or DISCARDED unit it does nothing, and a FAILED
// unit is moved to DISCARDED without running callbacks again.
func (u *UnitOfWork) Discard(ctx context.Context) {
	switch u.state {
	case StateActive:
		u.state = StateDiscarded
		u.paused = false
		u.ec.finish(u)
		u.factory.metrics.Finished(u.usecase.name(), metrics.OutcomeDiscarded, u.factory.clock.Now().Sub(u.currentTime))
		u.logger.Debug("unit of work discarded")
		u.runAfter(ctx, StateDiscarded)
	case StateFailed:
		u.state = StateDiscarded
		u.paused = false
		u.ec.finish(u)
		u.logger.Debug("failed unit of work discarded")
	case StateCompleting:
		u.logger.Warn("discard ignored while completing")
	}
}

// Pause takes the unit off the execution context so that its parent (or no
// unit) becomes current. With PruneOnPause, unmodified loaded entities are
// evicted from the cache.
func (u *UnitOfWork) Pause() error {
	if err := u.checkActive("pause"); err != nil {
		return err
	}
	if u.paused {
		return illegalState(u.usecase.name(), "unit of work is already paused")
	}
	u.paused = true
	u.ec.remove(u)
	if u.opts.PruneOnPause {
		n := u.cache.Prune()
		u.logger.Debug("unit of work paused", "pruned", n)
		return nil
	}
	u.logger.Debug("unit of work paused")
	return nil
}

// Resume makes a paused unit current again.
func (u *UnitOfWork) Resume() error {
	if err := u.checkActive("resume"); err != nil {
		return err
	}
	if !u.paused {
		return illegalState(u.usecase.name(), "unit of work is not paused")
	}
	u.paused = false
	u.ec.push(u)
	u.logger.Debug("unit of work resumed")
	return nil
}

func (u *UnitOfWork) snapshotCallbacks() []registeredCallback {
	return append([]registeredCallback(nil), u.callbacks...)
}

func (u *UnitOfWork) runBefore(ctx context.Context, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("beforeCompletion panic: %v", r)
		}
	}()
	return cb.BeforeCompletion(ctx, u)
}

func (u *UnitOfWork) runAfter(ctx context.Context, state State) {
	for _, rc := range u.snapshotCallbacks() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					u.logger.Warn("afterCompletion callback panicked", "state", state, "panic", r)
				}
			}()
			if err := rc.cb.AfterCompletion(ctx, u, state); err != nil {
				u.logger.Warn("afterCompletion callback failed", "state", state, "error", err)
			}
		}()
	}
}
