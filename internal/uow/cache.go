package uow

import (
	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// InstanceCache maps references to the entities of one unit of work. It keeps
// one handle per reference, remembers which store each came from, and keeps
// removed LOADED/UPDATED entities as tombstones until completion.
//
// It is confined to its unit of work and not safe for concurrent use.
type InstanceCache struct {
	entries map[entity.Reference]*cacheEntry
	order   []entity.Reference
}

type cacheEntry struct {
	entity *entity.Entity
	store  entitystore.EntityStore
}

func (e *cacheEntry) removed() bool {
	return e.entity.State().Status() == entity.StatusRemoved
}

// Batch is the share of a unit of work that one store must prepare.
type Batch struct {
	Store   entitystore.EntityStore
	New     []*entity.State
	Loaded  []*entity.State
	Removed []*entity.State
}

// Writes reports whether the batch changes anything in its store.
func (b Batch) Writes() bool {
	return len(b.New) > 0 || len(b.Removed) > 0 || len(entitystore.Modified(b.Loaded)) > 0
}

// NewInstanceCache creates an empty cache.
func NewInstanceCache() *InstanceCache {
	return &InstanceCache{entries: make(map[entity.Reference]*cacheEntry)}
}

// Get returns the live entity for ref. Tombstones are misses.
func (c *InstanceCache) Get(ref entity.Reference) (*entity.Entity, bool) {
	e, ok := c.entries[ref]
	if !ok || e.removed() {
		return nil, false
	}
	return e.entity, true
}

// IsRemoved reports whether ref is tombstoned in this cache.
func (c *InstanceCache) IsRemoved(ref entity.Reference) bool {
	e, ok := c.entries[ref]
	return ok && e.removed()
}

// Contains reports whether ref has any entry, live or tombstoned.
func (c *InstanceCache) Contains(ref entity.Reference) bool {
	_, ok := c.entries[ref]
	return ok
}

// StoreOf returns the store the entity for ref came from.
func (c *InstanceCache) StoreOf(ref entity.Reference) (entitystore.EntityStore, bool) {
	e, ok := c.entries[ref]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Put registers e, loaded from or created in store. Overwriting any entry,
// including a tombstone, is ENTITY_ALREADY_REGISTERED.
func (c *InstanceCache) Put(e *entity.Entity, store entitystore.EntityStore) error {
	ref := e.Reference()
	if _, ok := c.entries[ref]; ok {
		return newError(ErrCodeEntityAlreadyRegistered, "", "entity already registered in unit of work", ref)
	}
	c.entries[ref] = &cacheEntry{entity: e, store: store}
	c.order = append(c.order, ref)
	return nil
}

// Remove marks ref removed. A NEW entity is evicted outright so it never
// reaches its store; others become tombstones. It reports whether ref was live.
func (c *InstanceCache) Remove(ref entity.Reference) bool {
	e, ok := c.entries[ref]
	if !ok || e.removed() {
		return false
	}
	st := e.entity.State()
	if st.Status() == entity.StatusNew {
		c.evict(ref)
		return true
	}
	st.Remove()
	return true
}

func (c *InstanceCache) evict(ref entity.Reference) {
	delete(c.entries, ref)
	for i, r := range c.order {
		if r == ref {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Prune evicts LOADED entities that were not modified and reports how many.
func (c *InstanceCache) Prune() int {
	var pruned []entity.Reference
	for _, ref := range c.order {
		if c.entries[ref].entity.State().Status() == entity.StatusLoaded {
			pruned = append(pruned, ref)
		}
	}
	for _, ref := range pruned {
		c.evict(ref)
	}
	return len(pruned)
}

// Len returns the number of entries, tombstones included.
func (c *InstanceCache) Len() int {
	return len(c.order)
}

// Entities returns the live entities in registration order.
func (c *InstanceCache) Entities() []*entity.Entity {
	out := make([]*entity.Entity, 0, len(c.order))
	for _, ref := range c.order {
		if e := c.entries[ref]; !e.removed() {
			out = append(out, e.entity)
		}
	}
	return out
}

// Partition splits the entries into one batch per store by status. Batches
// and the states inside them follow registration order.
func (c *InstanceCache) Partition() []Batch {
	var batches []Batch
	index := make(map[entitystore.EntityStore]int)
	for _, ref := range c.order {
		e := c.entries[ref]
		i, ok := index[e.store]
		if !ok {
			i = len(batches)
			index[e.store] = i
			batches = append(batches, Batch{Store: e.store})
		}
		st := e.entity.State()
		switch st.Status() {
		case entity.StatusNew:
			batches[i].New = append(batches[i].New, st)
		case entity.StatusLoaded, entity.StatusUpdated:
			batches[i].Loaded = append(batches[i].Loaded, st)
		case entity.StatusRemoved:
			batches[i].Removed = append(batches[i].Removed, st)
		}
	}
	return batches
}
