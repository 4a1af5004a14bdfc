package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func loaded(t *testing.T, props map[string]any) *State {
	t.Helper()
	st, err := LoadedState(Snapshot{
		Reference:    "a",
		Type:         "Thing",
		Version:      3,
		LastModified: testTime,
		Properties:   props,
	})
	require.NoError(t, err)
	return st
}

func TestNewState_Defaults(t *testing.T) {
	st := NewState("a", "Thing", testTime)

	assert.Equal(t, StatusNew, st.Status())
	assert.Equal(t, int64(0), st.Version())
	assert.True(t, st.IsModified())
	assert.Equal(t, testTime, st.LastModified())
}

func TestState_NewStaysNewWhenMutated(t *testing.T) {
	st := NewState("a", "Thing", testTime)
	require.NoError(t, st.SetProperty("n", 1))
	assert.Equal(t, StatusNew, st.Status())
}

func TestState_LoadedBecomesUpdated(t *testing.T) {
	st := loaded(t, map[string]any{"n": int64(1)})
	assert.Equal(t, StatusLoaded, st.Status())
	assert.False(t, st.IsModified())

	require.NoError(t, st.SetProperty("n", 2))
	assert.Equal(t, StatusUpdated, st.Status())
	assert.True(t, st.IsModified())
	assert.Equal(t, int64(3), st.Version(), "version only moves on commit")
}

func TestState_ReadsDoNotMarkUpdated(t *testing.T) {
	st := loaded(t, map[string]any{"n": int64(1)})
	_, _ = st.Property("n")
	_, _ = st.Association("x")
	_ = st.ManyAssociation("x")
	_ = st.NamedAssociation("x")
	_, err := st.RemoveManyAssociation("x", "missing")
	require.NoError(t, err)
	_, err = st.RemoveNamedAssociation("x", "missing")
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, st.Status())
}

func TestState_RemovedRejectsMutation(t *testing.T) {
	st := loaded(t, nil)
	st.Remove()
	assert.Equal(t, StatusRemoved, st.Status())

	assert.True(t, errors.Is(st.SetProperty("n", 1), ErrStateRemoved))
	assert.True(t, errors.Is(st.SetAssociation("x", "b"), ErrStateRemoved))
	_, err := st.AddManyAssociation("x", "b", 0)
	assert.True(t, errors.Is(err, ErrStateRemoved))
	assert.True(t, errors.Is(st.PutNamedAssociation("x", "k", "b"), ErrStateRemoved))
}

func TestState_PropertyReturnsCopy(t *testing.T) {
	st := NewState("a", "Thing", testTime)
	require.NoError(t, st.SetProperty("tags", []string{"x"}))

	v, ok := st.Property("tags")
	require.True(t, ok)
	v.([]any)[0] = "mutated"

	v, _ = st.Property("tags")
	assert.Equal(t, []any{"x"}, v)
}

func TestState_SetPropertyRejectsUnsupported(t *testing.T) {
	st := loaded(t, nil)
	err := st.SetProperty("ch", make(chan int))
	assert.True(t, errors.Is(err, ErrUnsupportedValue))
	assert.Equal(t, StatusLoaded, st.Status(), "failed set leaves state untouched")
}

func TestState_Associations(t *testing.T) {
	st := NewState("a", "Thing", testTime)
	require.NoError(t, st.SetAssociation("owner", "b"))
	ref, ok := st.Association("owner")
	assert.True(t, ok)
	assert.Equal(t, Reference("b"), ref)

	require.NoError(t, st.SetAssociation("owner", ""))
	_, ok = st.Association("owner")
	assert.False(t, ok, "zero reference clears")
}

func TestState_ManyAssociationOrderAndDuplicates(t *testing.T) {
	st := NewState("a", "Thing", testTime)
	for _, ref := range []Reference{"x", "y"} {
		added, err := st.AddManyAssociation("items", ref, -1)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := st.AddManyAssociation("items", "w", 0)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = st.AddManyAssociation("items", "x", 0)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []Reference{"w", "x", "y"}, st.ManyAssociation("items"))

	removed, err := st.RemoveManyAssociation("items", "x")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []Reference{"w", "y"}, st.ManyAssociation("items"))
}

func TestState_NamedAssociations(t *testing.T) {
	st := loaded(t, nil)
	require.NoError(t, st.PutNamedAssociation("addr", "home", "h1"))
	assert.Equal(t, StatusUpdated, st.Status())
	assert.Equal(t, map[string]Reference{"home": "h1"}, st.NamedAssociation("addr"))

	removed, err := st.RemoveNamedAssociation("addr", "home")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, st.NamedAssociation("addr"))
}

func TestState_SnapshotIsDeepCopy(t *testing.T) {
	st := NewState("a", "Thing", testTime)
	require.NoError(t, st.SetProperty("m", map[string]any{"k": 1}))
	_, err := st.AddManyAssociation("items", "x", -1)
	require.NoError(t, err)

	snap := st.Snapshot()
	snap.Properties["m"].(map[string]any)["k"] = int64(99)
	snap.ManyAssociations["items"][0] = "changed"

	v, _ := st.Property("m")
	assert.Equal(t, map[string]any{"k": int64(1)}, v)
	assert.Equal(t, []Reference{"x"}, st.ManyAssociation("items"))
}

func TestLoadedState_NormalizesValues(t *testing.T) {
	st := loaded(t, map[string]any{"n": uint64(7), "f": float32(1.5)})
	n, _ := st.Property("n")
	f, _ := st.Property("f")
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 1.5, f)
}
