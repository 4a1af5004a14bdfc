package entitystore

import (
	"context"

	"github.com/roach88/polygene/internal/entity"
)

// VersionLookup returns the persisted version of ref and whether it exists.
type VersionLookup func(ctx context.Context, ref entity.Reference) (version int64, exists bool, err error)

// CheckVersions applies the optimistic concurrency rules to a prepared batch:
// NEW references must not exist, loaded and removed states must still be at
// the version they were loaded with. All conflicts are collected before
// returning a single *ConcurrentModificationError. Lookup failures are
// returned as they are.
func CheckVersions(ctx context.Context, lookup VersionLookup, newStates, loadedStates, removedStates []*entity.State) error {
	var conflicts []entity.Reference
	for _, st := range newStates {
		_, exists, err := lookup(ctx, st.Reference())
		if err != nil {
			return err
		}
		if exists {
			conflicts = append(conflicts, st.Reference())
		}
	}
	for _, group := range [][]*entity.State{loadedStates, removedStates} {
		for _, st := range group {
			version, exists, err := lookup(ctx, st.Reference())
			if err != nil {
				return err
			}
			if !exists || version != st.Version() {
				conflicts = append(conflicts, st.Reference())
			}
		}
	}
	if len(conflicts) > 0 {
		return NewConcurrentModificationError(conflicts...)
	}
	return nil
}

// References lists the references touched by a batch, in batch order.
func References(groups ...[]*entity.State) []entity.Reference {
	var refs []entity.Reference
	for _, group := range groups {
		for _, st := range group {
			refs = append(refs, st.Reference())
		}
	}
	return refs
}

// Modified returns the loaded states that must be written (UPDATED).
func Modified(loadedStates []*entity.State) []*entity.State {
	var out []*entity.State
	for _, st := range loadedStates {
		if st.Status() == entity.StatusUpdated {
			out = append(out, st)
		}
	}
	return out
}
