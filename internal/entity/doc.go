// Package entity defines the in-memory representation of persisted entities.
//
// An entity is identified by a Reference and carried through a unit of work as
// a State: one version of its data, with a status that tracks how the unit of
// work has touched it.
//
// # Status transitions
//
//   - NEW: created in the current unit of work, not yet persisted
//   - LOADED: read from a store, unmodified
//   - UPDATED: LOADED state that has been mutated at least once
//   - REMOVED: terminal for the unit of work; mutations fail with ErrStateRemoved
//
// A NEW state stays NEW when mutated. Versions are int64 tokens owned by the
// store; a NEW state carries version 0 and is persisted at version 1.
//
// # Values
//
// Property values are normalized when set so that the value read back from
// any store compares equal to the value written: integers become int64,
// float32 becomes float64, slices become []any and maps become map[string]any.
//
// Entity is the typed handle wrapping a State. It is the only thing callers
// of the unit of work hold; the State behind it is owned by the unit of work.
package entity
