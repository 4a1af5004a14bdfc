package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/polygene/internal/entity"
)

// EntityView is the printable form of one entity.
type EntityView struct {
	Ref               string                       `json:"ref"`
	Type              string                       `json:"type"`
	Version           int64                        `json:"version"`
	LastModified      time.Time                    `json:"last_modified"`
	Properties        map[string]any               `json:"properties,omitempty"`
	Associations      map[string]string            `json:"associations,omitempty"`
	ManyAssociations  map[string][]string          `json:"many_associations,omitempty"`
	NamedAssociations map[string]map[string]string `json:"named_associations,omitempty"`
}

func newEntityView(st *entity.State) EntityView {
	snap := st.Snapshot()
	v := EntityView{
		Ref:          snap.Reference.String(),
		Type:         snap.Type,
		Version:      snap.Version,
		LastModified: snap.LastModified.UTC(),
	}
	if len(snap.Properties) > 0 {
		v.Properties = snap.Properties
	}
	for name, ref := range snap.Associations {
		if v.Associations == nil {
			v.Associations = make(map[string]string)
		}
		v.Associations[name] = ref.String()
	}
	for name, refs := range snap.ManyAssociations {
		if v.ManyAssociations == nil {
			v.ManyAssociations = make(map[string][]string)
		}
		v.ManyAssociations[name] = refStrings(refs)
	}
	for name, named := range snap.NamedAssociations {
		if v.NamedAssociations == nil {
			v.NamedAssociations = make(map[string]map[string]string)
		}
		m := make(map[string]string, len(named))
		for key, ref := range named {
			m[key] = ref.String()
		}
		v.NamedAssociations[name] = m
	}
	return v
}

// String renders the view for text output, one field per line.
func (v EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s v%d", v.Ref, v.Type, v.Version)
	for _, name := range sortedKeys(v.Properties) {
		fmt.Fprintf(&b, "\n  %s = %v", name, v.Properties[name])
	}
	for _, name := range sortedKeys(v.Associations) {
		fmt.Fprintf(&b, "\n  %s -> %s", name, v.Associations[name])
	}
	for _, name := range sortedKeys(v.ManyAssociations) {
		fmt.Fprintf(&b, "\n  %s -> [%s]", name, strings.Join(v.ManyAssociations[name], ", "))
	}
	for _, name := range sortedKeys(v.NamedAssociations) {
		named := v.NamedAssociations[name]
		pairs := make([]string, 0, len(named))
		for _, key := range sortedKeys(named) {
			pairs = append(pairs, key+": "+named[key])
		}
		fmt.Fprintf(&b, "\n  %s -> {%s}", name, strings.Join(pairs, ", "))
	}
	return b.String()
}

// EntityList is the printable result of list.
type EntityList struct {
	Entities []EntityView `json:"entities"`
	Total    int          `json:"total"`
}

func (l EntityList) String() string {
	if l.Total == 0 {
		return "No entities found."
	}
	lines := make([]string, len(l.Entities))
	for i, v := range l.Entities {
		lines[i] = fmt.Sprintf("%s %s v%d", v.Ref, v.Type, v.Version)
	}
	return strings.Join(lines, "\n") + fmt.Sprintf("\n%d entities", l.Total)
}

func refStrings(refs []entity.Reference) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.String()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseReference validates a reference given on the command line.
func parseReference(s string) (entity.Reference, error) {
	ref, err := entity.NewReference(s)
	if err != nil {
		return "", fmt.Errorf("reference %q: %w", s, err)
	}
	return ref, nil
}
