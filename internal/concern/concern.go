package concern

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/polygene/internal/uow"
)

// Operation is business logic run inside a unit of work.
type Operation func(ctx context.Context, u *uow.UnitOfWork) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits on a timer, returning ctx.Err() if ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes op under policy using factory's units of work.
//
// When Run opens the unit itself it completes it after op returns. If
// completion fails with a concurrent modification the unit is discarded and
// op is re-run in a new unit, up to Retry.MaxRetries times; after that the
// last conflict is returned unchanged. Other completion errors are returned
// after discarding the failed unit. An error from op itself is returned
// as is, discarding the unit when DiscardOn matches.
func Run(ctx context.Context, factory *uow.Factory, policy Policy, op Operation) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	policy = policy.Normalize()

	switch policy.Propagation {
	case PropagationMandatory:
		u, err := factory.CurrentUnitOfWork(ctx)
		if err == nil && !u.IsOpen() {
			err = fmt.Errorf("current unit of work is %s", u.State())
		}
		if err != nil {
			return &uow.Error{
				Code:    uow.ErrCodeIllegalState,
				Message: "mandatory propagation requires an active unit of work",
				Usecase: policy.Usecase.Name,
				Err:     err,
			}
		}
		return op(ctx, u)
	case PropagationRequired:
		// A failed unit stays current until discarded; it cannot be joined.
		if u, err := factory.CurrentUnitOfWork(ctx); err == nil && u.IsOpen() {
			return op(ctx, u)
		}
	}
	return runNew(ctx, factory, policy, op)
}

// Wrap binds op to factory and policy, for callers that compose operations.
func Wrap(factory *uow.Factory, policy Policy, op Operation) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Run(ctx, factory, policy, op)
	}
}

func runNew(ctx context.Context, factory *uow.Factory, policy Policy, op Operation) error {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	usecase := policy.Usecase
	name := usecase.Name
	if name == "" {
		name = uow.DefaultUsecaseName
	}
	logger := factory.Logger().With("usecase", name)

	for attempt := 0; ; attempt++ {
		conflict, err := attemptOnce(ctx, factory, policy, op)
		if err == nil || !conflict {
			return err
		}
		if attempt >= policy.Retry.MaxRetries {
			logger.Debug("retries exhausted", "attempts", attempt+1, "error", err)
			return err
		}
		delay := policy.Retry.Delay(attempt)
		logger.Debug("retrying after concurrent modification", "attempt", attempt+1, "delay", delay, "error", err)
		factory.Metrics().Retry(name)
		if serr := sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

// attemptOnce runs op in a new unit of work and completes it. conflict
// reports a concurrent modification raised by Complete; the same error
// returned by op is not retried.
func attemptOnce(ctx context.Context, factory *uow.Factory, policy Policy, op Operation) (conflict bool, err error) {
	u, err := factory.NewUnitOfWork(ctx, policy.Usecase)
	if err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			u.Discard(ctx)
			panic(r)
		}
	}()

	if err := op(ctx, u); err != nil {
		if policy.discards(err) {
			u.Discard(ctx)
		}
		return false, err
	}
	if err := u.Complete(ctx); err != nil {
		u.Discard(ctx)
		return uow.IsConcurrentModification(err), err
	}
	return false, nil
}
