package uow

import (
	"context"
	"sync"
)

// ExecutionContext is the stack of units of work opened in one logical
// execution context (a request, a job). The top of the stack is the current
// unit. Nested units push on top; completing or discarding a unit takes it
// off, making its parent current again.
//
// An ExecutionContext belongs to one execution context. The mutex only keeps
// accidental sharing from corrupting the stack.
type ExecutionContext struct {
	mu    sync.Mutex
	stack []*UnitOfWork
	open  []*UnitOfWork // every unfinished unit, paused ones included
}

type ctxKey struct{}

// NewExecutionContext creates an empty stack.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{}
}

// WithExecutionContext returns ctx carrying a fresh execution context, and
// that context so the caller can Drain it at the boundary.
func WithExecutionContext(ctx context.Context) (context.Context, *ExecutionContext) {
	ec := NewExecutionContext()
	return context.WithValue(ctx, ctxKey{}, ec), ec
}

// ContextWith returns ctx carrying ec.
func ContextWith(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ec)
}

// FromContext returns the execution context carried by ctx.
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(ctxKey{}).(*ExecutionContext)
	return ec, ok && ec != nil
}

// Current returns the top of the stack.
func (ec *ExecutionContext) Current() (*UnitOfWork, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if len(ec.stack) == 0 {
		return nil, false
	}
	return ec.stack[len(ec.stack)-1], true
}

// Len returns the stack depth.
func (ec *ExecutionContext) Len() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.stack)
}

// track registers a new unit as open.
func (ec *ExecutionContext) track(u *UnitOfWork) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.open = append(ec.open, u)
}

// finish forgets u entirely once it can no longer be discarded.
func (ec *ExecutionContext) finish(u *UnitOfWork) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stack = without(ec.stack, u)
	ec.open = without(ec.open, u)
}

func without(units []*UnitOfWork, u *UnitOfWork) []*UnitOfWork {
	for i := len(units) - 1; i >= 0; i-- {
		if units[i] == u {
			return append(units[:i], units[i+1:]...)
		}
	}
	return units
}

func (ec *ExecutionContext) push(u *UnitOfWork) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stack = append(ec.stack, u)
}

// remove takes u off the stack wherever it sits.
func (ec *ExecutionContext) remove(u *UnitOfWork) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stack = without(ec.stack, u)
}

// Drain discards every unit opened in this context that has not finished,
// paused units included, newest first. It returns how many there were.
// Call it at the end of the execution context.
func (ec *ExecutionContext) Drain(ctx context.Context) int {
	ec.mu.Lock()
	open := append([]*UnitOfWork(nil), ec.open...)
	ec.mu.Unlock()

	for i := len(open) - 1; i >= 0; i-- {
		open[i].Discard(ctx)
		ec.finish(open[i])
	}
	return len(open)
}
