package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrStateRemoved is returned when mutating a REMOVED state.
var ErrStateRemoved = errors.New("entity state has been removed")

// Snapshot is the plain data of one entity version, used by stores to build
// LOADED states and to persist NEW/UPDATED ones.
type Snapshot struct {
	Reference         Reference
	Type              string
	Version           int64
	LastModified      time.Time
	Properties        map[string]any
	Associations      map[string]Reference
	ManyAssociations  map[string][]Reference
	NamedAssociations map[string]map[string]Reference
}

// State is one version of one entity's data, owned by a single unit of work.
// It is not safe for concurrent use.
type State struct {
	ref          Reference
	typeName     string
	version      int64
	lastModified time.Time
	status       Status
	properties   map[string]any
	assocs       map[string]Reference
	many         map[string][]Reference
	named        map[string]map[string]Reference
}

// NewState creates a NEW state at version 0.
func NewState(ref Reference, typeName string, now time.Time) *State {
	return &State{
		ref:          ref,
		typeName:     typeName,
		lastModified: now,
		status:       StatusNew,
		properties:   make(map[string]any),
		assocs:       make(map[string]Reference),
		many:         make(map[string][]Reference),
		named:        make(map[string]map[string]Reference),
	}
}

// LoadedState creates a LOADED state from persisted data. Property values are
// normalized; the snapshot is copied.
func LoadedState(s Snapshot) (*State, error) {
	st := NewState(s.Reference, s.Type, s.LastModified)
	st.status = StatusLoaded
	st.version = s.Version
	for name, v := range s.Properties {
		n, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		st.properties[name] = n
	}
	for name, ref := range s.Associations {
		st.assocs[name] = ref
	}
	for name, refs := range s.ManyAssociations {
		st.many[name] = append([]Reference(nil), refs...)
	}
	for name, m := range s.NamedAssociations {
		cp := make(map[string]Reference, len(m))
		for k, ref := range m {
			cp[k] = ref
		}
		st.named[name] = cp
	}
	return st, nil
}

func (s *State) Reference() Reference    { return s.ref }
func (s *State) Type() string            { return s.typeName }
func (s *State) Version() int64          { return s.version }
func (s *State) LastModified() time.Time { return s.lastModified }
func (s *State) Status() Status          { return s.status }

// IsModified reports whether the state must be written at commit.
func (s *State) IsModified() bool {
	return s.status == StatusNew || s.status == StatusUpdated
}

// SetLastModified stamps the modification time without touching status.
func (s *State) SetLastModified(t time.Time) {
	s.lastModified = t
}

// Remove marks the state REMOVED. It is terminal.
func (s *State) Remove() {
	s.status = StatusRemoved
}

func (s *State) touch() error {
	switch s.status {
	case StatusRemoved:
		return fmt.Errorf("%w: %s", ErrStateRemoved, s.ref)
	case StatusLoaded:
		s.status = StatusUpdated
	}
	return nil
}

// Property returns a copy of the named property value.
func (s *State) Property(name string) (any, bool) {
	v, ok := s.properties[name]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// PropertyNames returns the names of all set properties.
func (s *State) PropertyNames() []string {
	names := make([]string, 0, len(s.properties))
	for name := range s.properties {
		names = append(names, name)
	}
	return names
}

// SetProperty normalizes and stores v under name.
func (s *State) SetProperty(name string, v any) error {
	n, err := NormalizeValue(v)
	if err != nil {
		return fmt.Errorf("property %q: %w", name, err)
	}
	if err := s.touch(); err != nil {
		return err
	}
	s.properties[name] = n
	return nil
}

// Association returns the referenced entity, if set.
func (s *State) Association(name string) (Reference, bool) {
	ref, ok := s.assocs[name]
	return ref, ok
}

func (s *State) SetAssociation(name string, ref Reference) error {
	if ref.IsZero() {
		return s.ClearAssociation(name)
	}
	if err := s.touch(); err != nil {
		return err
	}
	s.assocs[name] = ref
	return nil
}

func (s *State) ClearAssociation(name string) error {
	if err := s.touch(); err != nil {
		return err
	}
	delete(s.assocs, name)
	return nil
}

// ManyAssociation returns a copy of the ordered reference list.
func (s *State) ManyAssociation(name string) []Reference {
	return append([]Reference(nil), s.many[name]...)
}

// AddManyAssociation inserts ref at index (appending when index is out of
// range). It returns false without modifying the state if ref is present.
func (s *State) AddManyAssociation(name string, ref Reference, index int) (bool, error) {
	if s.status == StatusRemoved {
		return false, fmt.Errorf("%w: %s", ErrStateRemoved, s.ref)
	}
	refs := s.many[name]
	for _, existing := range refs {
		if existing == ref {
			return false, nil
		}
	}
	if err := s.touch(); err != nil {
		return false, err
	}
	if index < 0 || index >= len(refs) {
		s.many[name] = append(refs, ref)
		return true, nil
	}
	refs = append(refs, "")
	copy(refs[index+1:], refs[index:])
	refs[index] = ref
	s.many[name] = refs
	return true, nil
}

// RemoveManyAssociation removes ref, reporting whether it was present.
func (s *State) RemoveManyAssociation(name string, ref Reference) (bool, error) {
	if s.status == StatusRemoved {
		return false, fmt.Errorf("%w: %s", ErrStateRemoved, s.ref)
	}
	refs := s.many[name]
	for i, existing := range refs {
		if existing != ref {
			continue
		}
		if err := s.touch(); err != nil {
			return false, err
		}
		s.many[name] = append(refs[:i:i], refs[i+1:]...)
		return true, nil
	}
	return false, nil
}

// NamedAssociation returns a copy of the named reference map.
func (s *State) NamedAssociation(name string) map[string]Reference {
	out := make(map[string]Reference, len(s.named[name]))
	for k, ref := range s.named[name] {
		out[k] = ref
	}
	return out
}

func (s *State) PutNamedAssociation(name, key string, ref Reference) error {
	if err := s.touch(); err != nil {
		return err
	}
	m, ok := s.named[name]
	if !ok {
		m = make(map[string]Reference)
		s.named[name] = m
	}
	m[key] = ref
	return nil
}

// RemoveNamedAssociation removes key, reporting whether it was present.
func (s *State) RemoveNamedAssociation(name, key string) (bool, error) {
	if s.status == StatusRemoved {
		return false, fmt.Errorf("%w: %s", ErrStateRemoved, s.ref)
	}
	if _, ok := s.named[name][key]; !ok {
		return false, nil
	}
	if err := s.touch(); err != nil {
		return false, err
	}
	delete(s.named[name], key)
	return true, nil
}

// Snapshot returns a deep copy of the state's data.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Reference:         s.ref,
		Type:              s.typeName,
		Version:           s.version,
		LastModified:      s.lastModified,
		Properties:        make(map[string]any, len(s.properties)),
		Associations:      make(map[string]Reference, len(s.assocs)),
		ManyAssociations:  make(map[string][]Reference, len(s.many)),
		NamedAssociations: make(map[string]map[string]Reference, len(s.named)),
	}
	for name, v := range s.properties {
		snap.Properties[name] = cloneValue(v)
	}
	for name, ref := range s.assocs {
		snap.Associations[name] = ref
	}
	for name, refs := range s.many {
		snap.ManyAssociations[name] = append([]Reference(nil), refs...)
	}
	for name := range s.named {
		snap.NamedAssociations[name] = s.NamedAssociation(name)
	}
	return snap
}

func (s *State) String() string {
	return fmt.Sprintf("%s[%s v%d %s]", s.typeName, s.ref, s.version, s.status)
}
