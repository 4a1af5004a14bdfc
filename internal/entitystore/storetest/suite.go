// Package storetest holds the behaviour every entity store must share. Store
// packages run it from their own tests against their backends.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// Factory returns an empty store. The suite calls it once per subtest.
type Factory func(t *testing.T) entitystore.EntityStore

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("NewEntityRoundTrip", func(t *testing.T) { testNewEntityRoundTrip(t, newStore(t)) })
	t.Run("UpdateIncrementsVersion", func(t *testing.T) { testUpdateIncrementsVersion(t, newStore(t)) })
	t.Run("UnmodifiedNotWritten", func(t *testing.T) { testUnmodifiedNotWritten(t, newStore(t)) })
	t.Run("ConcurrentUpdate", func(t *testing.T) { testConcurrentUpdate(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, newStore(t)) })
	t.Run("RemoveAfterConcurrentUpdate", func(t *testing.T) { testRemoveAfterConcurrentUpdate(t, newStore(t)) })
	t.Run("CancelDiscardsBatch", func(t *testing.T) { testCancelDiscardsBatch(t, newStore(t)) })
	t.Run("CommitterClosesOnce", func(t *testing.T) { testCommitterClosesOnce(t, newStore(t)) })
	t.Run("Associations", func(t *testing.T) { testAssociations(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
}

// Create persists a NEW entity with props and returns its loaded state.
func Create(t *testing.T, store entitystore.EntityStore, ref, typeName string, props map[string]any) *entity.State {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewEntityState(ctx, entity.MustReference(ref), typeName, epoch)
	require.NoError(t, err)
	for k, v := range props {
		require.NoError(t, st.SetProperty(k, v))
	}
	c, err := store.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
	return Load(t, store, ref)
}

// Load reads ref and fails the test if it is missing.
func Load(t *testing.T, store entitystore.EntityStore, ref string) *entity.State {
	t.Helper()
	st, err := store.EntityState(context.Background(), entity.MustReference(ref))
	require.NoError(t, err)
	return st
}

func testNewEntityRoundTrip(t *testing.T, store entitystore.EntityStore) {
	loaded := Create(t, store, "order/1", "Order", map[string]any{
		"name":     "widget",
		"quantity": 42,
		"price":    9.5,
		"active":   true,
		"tags":     []any{"a", "b"},
		"meta":     map[string]any{"k": "v", "n": 1},
	})

	assert.Equal(t, entity.StatusLoaded, loaded.Status())
	assert.Equal(t, int64(1), loaded.Version())
	assert.Equal(t, "Order", loaded.Type())
	assert.True(t, epoch.Equal(loaded.LastModified()))

	v, _ := loaded.Property("name")
	assert.Equal(t, "widget", v)
	v, _ = loaded.Property("quantity")
	assert.Equal(t, int64(42), v)
	v, _ = loaded.Property("price")
	assert.Equal(t, 9.5, v)
	v, _ = loaded.Property("active")
	assert.Equal(t, true, v)
	v, _ = loaded.Property("tags")
	assert.Equal(t, []any{"a", "b"}, v)
	v, _ = loaded.Property("meta")
	assert.Equal(t, map[string]any{"k": "v", "n": int64(1)}, v)
}

func testUpdateIncrementsVersion(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st := Create(t, store, "a", "Thing", map[string]any{"n": 1})
	require.NoError(t, st.SetProperty("n", 2))
	require.Equal(t, entity.StatusUpdated, st.Status())

	c, err := store.Prepare(ctx, nil, []*entity.State{st}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	reloaded := Load(t, store, "a")
	assert.Equal(t, int64(2), reloaded.Version())
	v, _ := reloaded.Property("n")
	assert.Equal(t, int64(2), v)
}

func testUnmodifiedNotWritten(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st := Create(t, store, "a", "Thing", nil)

	c, err := store.Prepare(ctx, nil, []*entity.State{st}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	assert.Equal(t, int64(1), Load(t, store, "a").Version())
}

func testConcurrentUpdate(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	Create(t, store, "a", "Thing", map[string]any{"n": 1})
	Create(t, store, "b", "Thing", nil)

	first := Load(t, store, "a")
	second := Load(t, store, "a")
	other := Load(t, store, "b")

	require.NoError(t, first.SetProperty("n", 2))
	c, err := store.Prepare(ctx, nil, []*entity.State{first}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	require.NoError(t, second.SetProperty("n", 3))
	_, err = store.Prepare(ctx, nil, []*entity.State{other, second}, nil)
	require.Error(t, err)
	assert.True(t, entitystore.IsConcurrentModification(err))
	assert.Equal(t, []entity.Reference{"a"}, entitystore.ConflictingReferences(err))

	v, _ := Load(t, store, "a").Property("n")
	assert.Equal(t, int64(2), v)

	// The rejected batch released its locks.
	c, err = store.Prepare(ctx, nil, []*entity.State{other}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx))
}

func testConcurrentCreate(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	pending, err := store.NewEntityState(ctx, "a", "Thing", epoch)
	require.NoError(t, err)

	Create(t, store, "a", "Thing", nil)

	_, err = store.NewEntityState(ctx, "a", "Thing", epoch)
	assert.True(t, errors.Is(err, entitystore.ErrEntityAlreadyExists))

	_, err = store.Prepare(ctx, []*entity.State{pending}, nil, nil)
	assert.True(t, entitystore.IsConcurrentModification(err))
}

func testRemove(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st := Create(t, store, "a", "Thing", nil)
	st.Remove()

	c, err := store.Prepare(ctx, nil, nil, []*entity.State{st})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	_, err = store.EntityState(ctx, "a")
	assert.True(t, errors.Is(err, entitystore.ErrEntityNotFound))
}

func testRemoveAfterConcurrentUpdate(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	Create(t, store, "a", "Thing", map[string]any{"n": 1})
	stale := Load(t, store, "a")
	fresh := Load(t, store, "a")

	require.NoError(t, fresh.SetProperty("n", 2))
	c, err := store.Prepare(ctx, nil, []*entity.State{fresh}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	stale.Remove()
	_, err = store.Prepare(ctx, nil, nil, []*entity.State{stale})
	assert.True(t, entitystore.IsConcurrentModification(err))
	assert.Equal(t, int64(2), Load(t, store, "a").Version())
}

func testCancelDiscardsBatch(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st, err := store.NewEntityState(ctx, "a", "Thing", epoch)
	require.NoError(t, err)

	c, err := store.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx))

	_, err = store.EntityState(ctx, "a")
	assert.True(t, errors.Is(err, entitystore.ErrEntityNotFound))

	// Locks are released: the same batch prepares again.
	c, err = store.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
	assert.Equal(t, int64(1), Load(t, store, "a").Version())
}

func testCommitterClosesOnce(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st, err := store.NewEntityState(ctx, "a", "Thing", epoch)
	require.NoError(t, err)

	c, err := store.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
	assert.ErrorIs(t, c.Commit(ctx), entitystore.ErrCommitterClosed)
	assert.ErrorIs(t, c.Cancel(ctx), entitystore.ErrCommitterClosed)
}

func testAssociations(t *testing.T, store entitystore.EntityStore) {
	ctx := context.Background()
	st, err := store.NewEntityState(ctx, "order", "Order", epoch)
	require.NoError(t, err)
	require.NoError(t, st.SetAssociation("customer", "cust-1"))
	_, err = st.AddManyAssociation("lines", "line-2", 0)
	require.NoError(t, err)
	_, err = st.AddManyAssociation("lines", "line-1", 0)
	require.NoError(t, err)
	require.NoError(t, st.PutNamedAssociation("addresses", "billing", "addr-1"))

	c, err := store.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	loaded := Load(t, store, "order")
	ref, ok := loaded.Association("customer")
	assert.True(t, ok)
	assert.Equal(t, entity.Reference("cust-1"), ref)
	assert.Equal(t, []entity.Reference{"line-1", "line-2"}, loaded.ManyAssociation("lines"))
	assert.Equal(t, map[string]entity.Reference{"billing": "addr-1"}, loaded.NamedAssociation("addresses"))
}

func testNotFound(t *testing.T, store entitystore.EntityStore) {
	_, err := store.EntityState(context.Background(), "missing")
	assert.True(t, errors.Is(err, entitystore.ErrEntityNotFound))
	assert.False(t, entitystore.IsIOError(err))
}

func testList(t *testing.T, store entitystore.EntityStore) {
	lister, ok := store.(entitystore.Lister)
	if !ok {
		t.Skip("store does not list")
	}
	Create(t, store, "b", "Thing", nil)
	Create(t, store, "a", "Thing", nil)

	var refs []entity.Reference
	require.NoError(t, lister.EntityStates(context.Background(), func(st *entity.State) error {
		refs = append(refs, st.Reference())
		return nil
	}))
	assert.Equal(t, []entity.Reference{"a", "b"}, refs)
}
