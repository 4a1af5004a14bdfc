// Package uow implements the unit of work: a transaction boundary over one or
// more entity stores.
//
// # Lifecycle
//
// A Factory creates units of work inside an ExecutionContext carried by a
// context.Context. The newest unit is the current one; nested units stack on
// top of their parent:
//
//	ctx, ec := uow.WithExecutionContext(ctx)
//	defer ec.Drain(ctx)
//
//	u, err := factory.NewUnitOfWork(ctx, uow.NewUsecase("transfer"))
//	if err != nil {
//		return err
//	}
//	defer u.Discard(ctx)
//
//	acc, err := u.Get(ctx, "Account", "acc-1")
//	...
//	return u.Complete(ctx)
//
// A unit moves ACTIVE → COMPLETING → COMPLETED or FAILED, or ACTIVE →
// DISCARDED. A FAILED unit can only be discarded. Discard is a no-op on a
// finished unit, so it is safe to defer.
//
// # Instance cache
//
// Every entity a unit creates or loads is cached by reference. Get returns
// the same *entity.Entity for a reference for the lifetime of the unit, so
// all mutations land on one state. Removing an entity created in the same
// unit forgets it; removing a loaded entity leaves a tombstone that is
// written as a removal on completion.
//
// # Completion
//
// Complete partitions the cache by store and asks each store to prepare its
// batch of NEW, LOADED/UPDATED and REMOVED states. Stores check the version
// each state was loaded at; a mismatch is CONCURRENT_MODIFICATION naming the
// stale references. Any prepare failure cancels every batch already prepared.
// Only when all stores prepared does any of them commit.
//
// A concurrent modification is not retried here. Retry with a new unit of
// work, for example through package concern.
//
// # Pause and resume
//
// Pause takes a unit off the execution context so work outside it can run in
// a different unit; Resume puts it back on top. With Options.PruneOnPause a
// paused unit drops its unmodified loaded entities.
package uow
