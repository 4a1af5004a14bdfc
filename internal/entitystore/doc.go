// Package entitystore defines the persistence port a unit of work completes
// against, and the pieces shared by its implementations.
//
// A store hands out NEW states (NewEntityState) and LOADED states
// (EntityState), and finalizes a unit of work in two phases:
//
//	committer, err := store.Prepare(ctx, newStates, loadedStates, removedStates)
//	if err != nil { ... }          // nothing changed
//	err = committer.Commit(ctx)    // or committer.Cancel(ctx)
//
// # Optimistic concurrency
//
// Prepare compares the version of every loaded state and every removed
// state with the persisted version. Any mismatch, or any loaded entity
// that has since disappeared, fails the whole batch with a
// *ConcurrentModificationError naming every offending reference. A NEW state
// whose reference was created by someone else in the meantime is reported the
// same way.
//
// Prepare may hold locks until Commit or Cancel. Implementations decide the
// granularity; overlapping prepares either serialize or one of them fails the
// version check.
//
// # Versions
//
// NEW states are written at version 1. UPDATED states are written at
// version+1. LOADED states that were not modified are only validated.
//
// # Records and codecs
//
// Record is the serialized form of a state shared by all stores. JSONCodec
// produces canonical JSON (sorted keys, NFC strings) and MsgpackCodec
// produces compact binary records; both decode property values back into the
// normalized shapes defined by package entity.
package entitystore
