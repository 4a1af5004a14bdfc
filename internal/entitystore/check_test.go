package entitystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entity"
)

func lookupFrom(versions map[entity.Reference]int64) VersionLookup {
	return func(_ context.Context, ref entity.Reference) (int64, bool, error) {
		v, ok := versions[ref]
		return v, ok, nil
	}
}

func loadedAt(t *testing.T, ref entity.Reference, version int64) *entity.State {
	t.Helper()
	st, err := entity.LoadedState(entity.Snapshot{Reference: ref, Type: "T", Version: version})
	require.NoError(t, err)
	return st
}

func TestCheckVersions_CollectsAllConflicts(t *testing.T) {
	lookup := lookupFrom(map[entity.Reference]int64{"exists": 1, "a": 2, "b": 1, "r": 5})

	newStates := []*entity.State{entity.NewState("exists", "T", time.Now()), entity.NewState("fresh", "T", time.Now())}
	loadedStates := []*entity.State{loadedAt(t, "b", 1), loadedAt(t, "a", 1), loadedAt(t, "gone", 1)}
	removed := loadedAt(t, "r", 4)
	removed.Remove()

	err := CheckVersions(context.Background(), lookup, newStates, loadedStates, []*entity.State{removed})
	require.Error(t, err)
	assert.True(t, IsConcurrentModification(err))
	assert.Equal(t, []entity.Reference{"a", "exists", "gone", "r"}, ConflictingReferences(err))
}

func TestCheckVersions_OK(t *testing.T) {
	lookup := lookupFrom(map[entity.Reference]int64{"a": 2})
	err := CheckVersions(context.Background(), lookup, nil, []*entity.State{loadedAt(t, "a", 2)}, nil)
	assert.NoError(t, err)
}

func TestCheckVersions_LookupError(t *testing.T) {
	boom := errors.New("boom")
	lookup := func(context.Context, entity.Reference) (int64, bool, error) { return 0, false, boom }
	err := CheckVersions(context.Background(), lookup, nil, []*entity.State{loadedAt(t, "a", 1)}, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsConcurrentModification(err))
}

func TestModified(t *testing.T) {
	clean := loadedAt(t, "a", 1)
	dirty := loadedAt(t, "b", 1)
	require.NoError(t, dirty.SetProperty("x", 1))
	assert.Equal(t, []*entity.State{dirty}, Modified([]*entity.State{clean, dirty}))
}

func TestOnce(t *testing.T) {
	ctx := context.Background()
	commits := 0
	c := Once(CommitterFuncs{CommitFunc: func(context.Context) error { commits++; return nil }})

	require.NoError(t, c.Commit(ctx))
	assert.ErrorIs(t, c.Commit(ctx), ErrCommitterClosed)
	assert.ErrorIs(t, c.Cancel(ctx), ErrCommitterClosed)
	assert.Equal(t, 1, commits)
}

func TestErrors(t *testing.T) {
	cme := NewConcurrentModificationError("b", "a", "b")
	assert.Equal(t, []entity.Reference{"a", "b"}, cme.References)
	assert.Equal(t, "concurrent modification of [a, b]", cme.Error())

	io := WrapIO("get a", errors.New("disk"))
	assert.True(t, IsIOError(io))
	assert.Same(t, io, WrapIO("outer", io))
	assert.Nil(t, WrapIO("x", nil))
}
