package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/polygene/internal/uow"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Type string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <ref>",
		Short: "Show one entity",
		Long: `Load an entity in a read-only unit of work and print it.

Without --type the stored type is used. With --type the stored type must be
assignable to it.

Examples:
  polygene get acc-1 --config polygene.yaml
  polygene get acc-1 --type Account --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				return runGet(ctx, s, f, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "entity type to load as")

	return cmd
}

func runGet(ctx context.Context, s *session, f *OutputFormatter, opts *GetOptions, refArg string) error {
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

	u, err := s.factory.NewUnitOfWork(ctx, uow.NewUsecase("cli.get"))
	if err != nil {
		return f.Fail(CodeStore, err)
	}
	defer u.Discard(ctx)

	e, err := u.Get(ctx, typeName, ref)
	if err != nil {
		return f.Fail(CodeStore, err)
	}
	return f.Success(newEntityView(e.State()))
}
