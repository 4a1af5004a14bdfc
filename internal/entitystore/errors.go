package entitystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/polygene/internal/entity"
)

var (
	// ErrEntityNotFound is returned when a reference is not persisted.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityAlreadyExists is returned by NewEntityState for a persisted reference.
	ErrEntityAlreadyExists = errors.New("entity already exists")

	// ErrCommitterClosed is returned by a committer that already committed or cancelled.
	ErrCommitterClosed = errors.New("state committer already closed")
)

// ConcurrentModificationError reports references whose persisted version
// advanced (or that vanished) after they were loaded.
type ConcurrentModificationError struct {
	References []entity.Reference
}

func (e *ConcurrentModificationError) Error() string {
	refs := make([]string, len(e.References))
	for i, ref := range e.References {
		refs[i] = ref.String()
	}
	return fmt.Sprintf("concurrent modification of [%s]", strings.Join(refs, ", "))
}

// NewConcurrentModificationError sorts and de-duplicates refs.
func NewConcurrentModificationError(refs ...entity.Reference) *ConcurrentModificationError {
	seen := make(map[entity.Reference]bool, len(refs))
	unique := make([]entity.Reference, 0, len(refs))
	for _, ref := range refs {
		if !seen[ref] {
			seen[ref] = true
			unique = append(unique, ref)
		}
	}
	entity.SortReferences(unique)
	return &ConcurrentModificationError{References: unique}
}

// StoreError wraps a transport or storage failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("entity store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapIO wraps err as a StoreError unless it is nil or already a store error.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsConcurrentModification reports whether err carries a version conflict.
// Uses errors.As to handle wrapped errors.
func IsConcurrentModification(err error) bool {
	var cme *ConcurrentModificationError
	return errors.As(err, &cme)
}

// ConflictingReferences returns the references named by a conflict in err.
func ConflictingReferences(err error) []entity.Reference {
	var cme *ConcurrentModificationError
	if errors.As(err, &cme) {
		return append([]entity.Reference(nil), cme.References...)
	}
	return nil
}

// IsIOError reports whether err is a store transport failure.
func IsIOError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
