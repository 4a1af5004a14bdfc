package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/polygene/internal/concern"
	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/uow"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Type  string
	Set   []string // name=value, value parsed as YAML
	Assoc []string // name=ref
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <ref>",
		Short: "Create or update an entity",
		Long: `Create or update an entity in a unit of work.

The entity is created when it does not exist. Values are parsed as YAML, so
10 is an integer, true a boolean and [a, b] a list. Concurrent modifications
are retried according to the configured retry policy.

Examples:
  polygene put acc-1 --type Account --set balance=10 --set owner=alice
  polygene put acc-1 --type Account --assoc customer=cust-7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				return runPut(ctx, s, f, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "entity type (required)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "set a property (name=value)")
	cmd.Flags().StringArrayVar(&opts.Assoc, "assoc", nil, "set an association (name=ref)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runPut(ctx context.Context, s *session, f *OutputFormatter, opts *PutOptions, refArg string) error {
	ref, err := parseReference(refArg)
	if err != nil {
		return f.Fail(CodeArgs, err)
	}
	props, err := parseProperties(opts.Set)
	if err != nil {
		return f.Fail(CodeArgs, err)
	}
	assocs, err := parseAssociations(opts.Assoc)
	if err != nil {
		return f.Fail(CodeArgs, err)
	}

	err = concern.Run(ctx, s.factory, s.cfg.Policy("cli.put"), func(ctx context.Context, u *uow.UnitOfWork) error {
		e, err := u.Get(ctx, opts.Type, ref)
		if uow.IsNoSuchEntity(err) {
			e, err = u.NewEntity(ctx, opts.Type, ref)
		}
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(props) {
			if err := e.Set(name, props[name]); err != nil {
				return err
			}
		}
		for _, name := range sortedKeys(assocs) {
			if err := e.State().SetAssociation(name, assocs[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return f.Fail(CodeStore, err)
	}

	st, err := s.store.EntityState(ctx, ref)
	if err != nil {
		return f.Fail(CodeStore, err)
	}
	return f.Success(newEntityView(st))
}

// parseProperties parses name=value pairs, decoding each value as YAML.
func parseProperties(pairs []string) (map[string]any, error) {
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, err := splitPair(pair)
		if err != nil {
			return nil, err
		}
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("--set %s: %w", name, err)
		}
		keepTimestampsAsStrings(&doc)
		var v any
		if doc.Kind != 0 {
			if err := doc.Decode(&v); err != nil {
				return nil, fmt.Errorf("--set %s: %w", name, err)
			}
		}
		props[name] = v
	}
	return props, nil
}

// keepTimestampsAsStrings retags timestamp scalars as strings; dates are
// not a property value type.
func keepTimestampsAsStrings(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		keepTimestampsAsStrings(c)
	}
}

// parseAssociations parses name=ref pairs.
func parseAssociations(pairs []string) (map[string]entity.Reference, error) {
	assocs := make(map[string]entity.Reference, len(pairs))
	for _, pair := range pairs {
		name, raw, err := splitPair(pair)
		if err != nil {
			return nil, err
		}
		ref, err := parseReference(raw)
		if err != nil {
			return nil, fmt.Errorf("--assoc %s: %w", name, err)
		}
		assocs[name] = ref
	}
	return assocs, nil
}

func splitPair(pair string) (string, string, error) {
	name, value, ok := strings.Cut(pair, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", pair)
	}
	return strings.TrimSpace(name), value, nil
}
