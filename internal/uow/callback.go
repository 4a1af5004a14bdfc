package uow

import "context"

// Callback observes the completion of a unit of work.
//
// BeforeCompletion runs in registration order at the start of Complete; an
// error aborts completion and fails the unit. AfterCompletion runs once the
// unit reaches COMPLETED, FAILED or DISCARDED; its errors and panics are
// logged and swallowed.
type Callback interface {
	BeforeCompletion(ctx context.Context, u *UnitOfWork) error
	AfterCompletion(ctx context.Context, u *UnitOfWork, state State) error
}

// CallbackFuncs adapts functions into a Callback. Nil fields are skipped.
type CallbackFuncs struct {
	Before func(ctx context.Context, u *UnitOfWork) error
	After  func(ctx context.Context, u *UnitOfWork, state State) error
}

func (f CallbackFuncs) BeforeCompletion(ctx context.Context, u *UnitOfWork) error {
	if f.Before == nil {
		return nil
	}
	return f.Before(ctx, u)
}

func (f CallbackFuncs) AfterCompletion(ctx context.Context, u *UnitOfWork, state State) error {
	if f.After == nil {
		return nil
	}
	return f.After(ctx, u, state)
}

// CallbackID identifies a registered callback for RemoveCallback.
type CallbackID int

type registeredCallback struct {
	id CallbackID
	cb Callback
}
