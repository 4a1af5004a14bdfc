package entity

import "fmt"

// Entity is the typed handle a unit of work hands out for one State.
// Within one unit of work there is exactly one Entity per Reference.
type Entity struct {
	typeName string
	state    *State
}

// NewEntity wraps state as an instance of typeName.
func NewEntity(typeName string, state *State) *Entity {
	return &Entity{typeName: typeName, state: state}
}

func (e *Entity) Reference() Reference { return e.state.Reference() }

// Type returns the type the entity was requested or created as.
func (e *Entity) Type() string { return e.typeName }

// State returns the backing state.
func (e *Entity) State() *State { return e.state }

// Get returns the raw property value.
func (e *Entity) Get(name string) (any, bool) {
	return e.state.Property(name)
}

// Set stores a property value.
func (e *Entity) Set(name string, v any) error {
	return e.state.SetProperty(name, v)
}

// StringProperty returns a string property; missing or mistyped values yield "".
func (e *Entity) StringProperty(name string) string {
	v, _ := e.state.Property(name)
	s, _ := v.(string)
	return s
}

// IntProperty returns an integer property; missing or mistyped values yield 0.
func (e *Entity) IntProperty(name string) int64 {
	v, _ := e.state.Property(name)
	n, _ := v.(int64)
	return n
}

// BoolProperty returns a boolean property; missing or mistyped values yield false.
func (e *Entity) BoolProperty(name string) bool {
	v, _ := e.state.Property(name)
	b, _ := v.(bool)
	return b
}

// Associate sets a single-valued association.
func (e *Entity) Associate(name string, target *Entity) error {
	if target == nil {
		return e.state.ClearAssociation(name)
	}
	return e.state.SetAssociation(name, target.Reference())
}

func (e *Entity) GoString() string {
	return fmt.Sprintf("entity.Entity{%s}", e.state)
}
