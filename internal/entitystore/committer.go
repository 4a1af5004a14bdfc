package entitystore

import (
	"context"
	"sync"
)

// CommitterFuncs adapts a pair of functions into a StateCommitter.
// Wrap it with Once to get the close-once contract.
type CommitterFuncs struct {
	CommitFunc func(ctx context.Context) error
	CancelFunc func(ctx context.Context) error
}

func (c CommitterFuncs) Commit(ctx context.Context) error {
	if c.CommitFunc == nil {
		return nil
	}
	return c.CommitFunc(ctx)
}

func (c CommitterFuncs) Cancel(ctx context.Context) error {
	if c.CancelFunc == nil {
		return nil
	}
	return c.CancelFunc(ctx)
}

// Once wraps c so that only the first Commit or Cancel reaches it.
func Once(c StateCommitter) StateCommitter {
	return &onceCommitter{inner: c}
}

type onceCommitter struct {
	mu     sync.Mutex
	inner  StateCommitter
	closed bool
}

func (o *onceCommitter) Commit(ctx context.Context) error {
	if !o.close() {
		return ErrCommitterClosed
	}
	return o.inner.Commit(ctx)
}

func (o *onceCommitter) Cancel(ctx context.Context) error {
	if !o.close() {
		return ErrCommitterClosed
	}
	return o.inner.Cancel(ctx)
}

func (o *onceCommitter) close() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.closed = true
	return true
}

// Noop is the committer for an empty batch.
func Noop() StateCommitter {
	return Once(CommitterFuncs{})
}
