package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Type string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored entities",
		Long: `List the entities of the configured store, sorted by reference.

Stores that cannot enumerate their entities report E_UNSUPPORTED.

Examples:
  polygene list
  polygene list --type Account --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				return runList(ctx, s, f, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "only list entities stored with this type")

	return cmd
}

func runList(ctx context.Context, s *session, f *OutputFormatter, opts *ListOptions) error {
	lister, ok := s.store.(entitystore.Lister)
	if !ok {
		return f.Fail(CodeUnsupported, fmt.Errorf("store driver %q cannot list entities", s.cfg.Store.Driver))
	}

	views := []EntityView{}
	err := lister.EntityStates(ctx, func(st *entity.State) error {
		if opts.Type != "" && st.Type() != opts.Type {
			return nil
		}
		views = append(views, newEntityView(st))
		return nil
	})
	if err != nil {
		return f.Fail(CodeStore, err)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Ref < views[j].Ref })

	return f.Success(EntityList{Entities: views, Total: len(views)})
}
