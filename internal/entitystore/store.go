package entitystore

import (
	"context"
	"time"

	"github.com/roach88/polygene/internal/entity"
)

// EntityStore is the persistence port consumed by the unit of work.
// Implementations must be safe for concurrent use by many units of work.
type EntityStore interface {
	// NewEntityState returns a NEW state for ref, or ErrEntityAlreadyExists
	// if ref is already persisted.
	NewEntityState(ctx context.Context, ref entity.Reference, typeName string, now time.Time) (*entity.State, error)

	// EntityState returns a LOADED state carrying the persisted version, or
	// ErrEntityNotFound.
	EntityState(ctx context.Context, ref entity.Reference) (*entity.State, error)

	// Prepare validates the batch and returns a committer. Nothing is durable
	// until Commit is called on it. Removed entities are passed as their
	// states so that their loaded versions are checked like any other.
	Prepare(ctx context.Context, newStates, loadedStates, removedStates []*entity.State) (StateCommitter, error)
}

// StateCommitter finalizes one prepared batch. Exactly one of Commit or
// Cancel takes effect; later calls return ErrCommitterClosed.
type StateCommitter interface {
	Commit(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Lister is implemented by stores that can enumerate their entities.
type Lister interface {
	EntityStates(ctx context.Context, fn func(*entity.State) error) error
}

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}
