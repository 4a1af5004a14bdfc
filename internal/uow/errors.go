package uow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// Error is the error type returned by units of work and the factory.
//
// Codes:
//   - IDENTITY_COLLISION: a new entity's reference is already in use
//   - NO_SUCH_ENTITY: the reference is absent or removed in this unit
//   - ENTITY_TYPE_MISMATCH: the stored type cannot serve the requested type
//   - CONCURRENT_MODIFICATION: the store rejected completion on a version check
//   - IO_ERROR: the store failed
//   - ILLEGAL_STATE: the API was used out of order
//   - ENTITY_ALREADY_REGISTERED: a cache entry would be overwritten
//   - CALLBACK_FAILED: a beforeCompletion callback aborted completion
//   - NO_ACTIVE_UNIT_OF_WORK: the execution context has no current unit
//
// Only CONCURRENT_MODIFICATION is worth retrying, and only with a new unit.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// References names the entities involved, sorted.
	References []entity.Reference

	// Usecase is the usecase of the unit of work that failed.
	Usecase string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes unit-of-work errors.
type ErrorCode string

const (
	ErrCodeIdentityCollision       ErrorCode = "IDENTITY_COLLISION"
	ErrCodeNoSuchEntity            ErrorCode = "NO_SUCH_ENTITY"
	ErrCodeEntityTypeMismatch      ErrorCode = "ENTITY_TYPE_MISMATCH"
	ErrCodeConcurrentModification  ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeIOError                 ErrorCode = "IO_ERROR"
	ErrCodeIllegalState            ErrorCode = "ILLEGAL_STATE"
	ErrCodeEntityAlreadyRegistered ErrorCode = "ENTITY_ALREADY_REGISTERED"
	ErrCodeCallbackFailed          ErrorCode = "CALLBACK_FAILED"
	ErrCodeNoActiveUnitOfWork      ErrorCode = "NO_ACTIVE_UNIT_OF_WORK"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.References) > 0 {
		refs := make([]string, len(e.References))
		for i, ref := range e.References {
			refs[i] = ref.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(refs, ", "))
	}
	if e.Usecase != "" {
		fmt.Fprintf(&b, " (usecase=%s)", e.Usecase)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, usecase, msg string, refs ...entity.Reference) *Error {
	return &Error{Code: code, Message: msg, Usecase: usecase, References: refs}
}

func illegalState(usecase, format string, args ...any) *Error {
	return newError(ErrCodeIllegalState, usecase, fmt.Sprintf(format, args...))
}

// storeError maps an entity store failure onto an Error.
func storeError(usecase, op string, err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	e := &Error{Usecase: usecase, Err: err}
	switch {
	case entitystore.IsConcurrentModification(err):
		e.Code = ErrCodeConcurrentModification
		e.Message = op + " rejected by concurrent modification"
		e.References = entitystore.ConflictingReferences(err)
	case errors.Is(err, entitystore.ErrEntityNotFound):
		e.Code = ErrCodeNoSuchEntity
		e.Message = op + ": entity not found"
	case errors.Is(err, entitystore.ErrEntityAlreadyExists):
		e.Code = ErrCodeIdentityCollision
		e.Message = op + ": entity already exists"
	default:
		e.Code = ErrCodeIOError
		e.Message = op + " failed"
	}
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsConcurrentModification reports whether err is a retryable version
// conflict, either from a unit of work or straight from a store.
func IsConcurrentModification(err error) bool {
	return hasCode(err, ErrCodeConcurrentModification) || entitystore.IsConcurrentModification(err)
}

// IsIdentityCollision reports whether err is an IDENTITY_COLLISION error.
func IsIdentityCollision(err error) bool {
	return hasCode(err, ErrCodeIdentityCollision)
}

// IsNoSuchEntity reports whether err is a NO_SUCH_ENTITY error.
func IsNoSuchEntity(err error) bool {
	return hasCode(err, ErrCodeNoSuchEntity)
}

// IsEntityTypeMismatch reports whether err is an ENTITY_TYPE_MISMATCH error.
func IsEntityTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeEntityTypeMismatch)
}

// IsIOError reports whether err is an IO_ERROR error.
func IsIOError(err error) bool {
	return hasCode(err, ErrCodeIOError)
}

// IsIllegalState reports whether err is an ILLEGAL_STATE error.
func IsIllegalState(err error) bool {
	return hasCode(err, ErrCodeIllegalState)
}

// IsCallbackFailed reports whether err is a CALLBACK_FAILED error.
func IsCallbackFailed(err error) bool {
	return hasCode(err, ErrCodeCallbackFailed)
}

// IsNoActiveUnitOfWork reports whether err is a NO_ACTIVE_UNIT_OF_WORK error.
func IsNoActiveUnitOfWork(err error) bool {
	return hasCode(err, ErrCodeNoActiveUnitOfWork)
}

// IsEntityAlreadyRegistered reports whether err is an ENTITY_ALREADY_REGISTERED error.
func IsEntityAlreadyRegistered(err error) bool {
	return hasCode(err, ErrCodeEntityAlreadyRegistered)
}
