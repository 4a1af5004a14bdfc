package entity

import "sync"

// Type describes an entity type and the types it can stand in for.
type Type struct {
	Name    string
	Extends []string
}

// TypeRegistry answers assignability questions between entity type names.
// It is safe for concurrent use; registration normally happens at startup.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewTypeRegistry creates a registry holding the given types.
func NewTypeRegistry(types ...Type) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]Type)}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a type.
func (r *TypeRegistry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = Type{Name: t.Name, Extends: append([]string(nil), t.Extends...)}
}

// Lookup returns the registered type.
func (r *TypeRegistry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Assignable reports whether a state stored as stored may be handed out as
// requested. The relation is reflexive and follows Extends transitively.
// A nil registry knows only the reflexive case.
func (r *TypeRegistry) Assignable(stored, requested string) bool {
	if stored == requested {
		return true
	}
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{stored: true}
	queue := []string{stored}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, parent := range r.types[name].Extends {
			if parent == requested {
				return true
			}
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false
}
