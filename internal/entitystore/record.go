package entitystore

import (
	"fmt"
	"time"

	"github.com/roach88/polygene/internal/entity"
)

// Record is the serialized form of one entity version.
type Record struct {
	Reference         string                       `json:"reference" msgpack:"reference"`
	Type              string                       `json:"type" msgpack:"type"`
	Version           int64                        `json:"version" msgpack:"version"`
	Modified          int64                        `json:"modified" msgpack:"modified"` // unix milliseconds
	Properties        map[string]any               `json:"properties" msgpack:"properties"`
	Associations      map[string]string            `json:"associations" msgpack:"associations"`
	ManyAssociations  map[string][]string          `json:"many_associations" msgpack:"many_associations"`
	NamedAssociations map[string]map[string]string `json:"named_associations" msgpack:"named_associations"`
}

// NewRecord captures st as it will be persisted at version.
func NewRecord(st *entity.State, version int64) Record {
	snap := st.Snapshot()
	rec := Record{
		Reference:         snap.Reference.String(),
		Type:              snap.Type,
		Version:           version,
		Modified:          snap.LastModified.UnixMilli(),
		Properties:        snap.Properties,
		Associations:      make(map[string]string, len(snap.Associations)),
		ManyAssociations:  make(map[string][]string, len(snap.ManyAssociations)),
		NamedAssociations: make(map[string]map[string]string, len(snap.NamedAssociations)),
	}
	for name, ref := range snap.Associations {
		rec.Associations[name] = ref.String()
	}
	for name, refs := range snap.ManyAssociations {
		ids := make([]string, len(refs))
		for i, ref := range refs {
			ids[i] = ref.String()
		}
		rec.ManyAssociations[name] = ids
	}
	for name, m := range snap.NamedAssociations {
		ids := make(map[string]string, len(m))
		for k, ref := range m {
			ids[k] = ref.String()
		}
		rec.NamedAssociations[name] = ids
	}
	return rec
}

// NextVersion returns the version st is written at on commit.
func NextVersion(st *entity.State) int64 {
	if st.Status() == entity.StatusNew {
		return 1
	}
	return st.Version() + 1
}

// State rebuilds a LOADED state from the record.
func (r Record) State() (*entity.State, error) {
	ref, err := entity.NewReference(r.Reference)
	if err != nil {
		return nil, fmt.Errorf("record reference: %w", err)
	}
	snap := entity.Snapshot{
		Reference:         ref,
		Type:              r.Type,
		Version:           r.Version,
		LastModified:      time.UnixMilli(r.Modified).UTC(),
		Properties:        r.Properties,
		Associations:      make(map[string]entity.Reference, len(r.Associations)),
		ManyAssociations:  make(map[string][]entity.Reference, len(r.ManyAssociations)),
		NamedAssociations: make(map[string]map[string]entity.Reference, len(r.NamedAssociations)),
	}
	for name, id := range r.Associations {
		snap.Associations[name] = entity.Reference(id)
	}
	for name, ids := range r.ManyAssociations {
		refs := make([]entity.Reference, len(ids))
		for i, id := range ids {
			refs[i] = entity.Reference(id)
		}
		snap.ManyAssociations[name] = refs
	}
	for name, m := range r.NamedAssociations {
		refs := make(map[string]entity.Reference, len(m))
		for k, id := range m {
			refs[k] = entity.Reference(id)
		}
		snap.NamedAssociations[name] = refs
	}
	return entity.LoadedState(snap)
}

func (r Record) canonicalMap() map[string]any {
	assocs := make(map[string]any, len(r.Associations))
	for k, v := range r.Associations {
		assocs[k] = v
	}
	many := make(map[string]any, len(r.ManyAssociations))
	for k, ids := range r.ManyAssociations {
		arr := make([]any, len(ids))
		for i, id := range ids {
			arr[i] = id
		}
		many[k] = arr
	}
	named := make(map[string]any, len(r.NamedAssociations))
	for k, m := range r.NamedAssociations {
		obj := make(map[string]any, len(m))
		for nk, id := range m {
			obj[nk] = id
		}
		named[k] = obj
	}
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{
		"reference":          r.Reference,
		"type":               r.Type,
		"version":            r.Version,
		"modified":           r.Modified,
		"properties":         props,
		"associations":       assocs,
		"many_associations":  many,
		"named_associations": named,
	}
}
