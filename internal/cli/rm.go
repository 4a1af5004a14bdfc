package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polygene/internal/concern"
	"github.com/roach88/polygene/internal/uow"
)

// RemoveOptions holds flags for the rm command.
type RemoveOptions struct {
	*RootOptions
	Type string
}

// RemoveResult reports a removed entity.
type RemoveResult struct {
	Ref     string `json:"ref"`
	Removed bool   `json:"removed"`
}

func (r RemoveResult) String() string {
	return fmt.Sprintf("removed %s", r.Ref)
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rm <ref>",
		Short: "Remove an entity",
		Long: `Remove an entity in a unit of work.

The removal is checked against the version the unit loaded, so an entity
changed concurrently is not removed blindly.

Examples:
  polygene rm acc-1
  polygene rm acc-1 --type Account`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				return runRemove(ctx, s, f, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "entity type to load as")

	return cmd
}

func runRemove(ctx context.Context, s *session, f *OutputFormatter, opts *RemoveOptions, refArg string) error {
	ref, err := parseReference(refArg)
	if err != nil {
		return f.Fail(CodeArgs, err)
	}
	typeName := opts.Type
	if typeName == "" {
		if typeName, err = s.peekType(ctx, refArg); err != nil {
			return f.Fail(CodeStore, err)
		}
	}

	err = concern.Run(ctx, s.factory, s.cfg.Policy("cli.rm"), func(ctx context.Context, u *uow.UnitOfWork) error {
		e, err := u.Get(ctx, typeName, ref)
		if err != nil {
			return err
		}
		return u.Remove(ctx, e)
	})
	if err != nil {
		return f.Fail(CodeStore, err)
	}
	return f.Success(RemoveResult{Ref: ref.String(), Removed: true})
}
