// Package concern wraps business operations in units of work.
//
// Run applies a Policy around an operation: it decides from the propagation
// mode whether to reuse the current unit of work or open a new one, completes
// the units it opens, and re-runs the operation in a fresh unit when
// completion is rejected by a concurrent modification.
//
//	err := concern.Run(ctx, factory, concern.DefaultPolicy("transfer"),
//		func(ctx context.Context, u *uow.UnitOfWork) error {
//			from, err := u.Get(ctx, "Account", "acc-1")
//			if err != nil {
//				return err
//			}
//			return from.Set("balance", from.IntProperty("balance")-10)
//		})
//
// The operation must be safe to run more than once: every attempt starts
// from a fresh unit of work and reloads what it reads.
package concern
