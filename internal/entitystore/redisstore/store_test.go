package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/entitystore/storetest"
)

// newTestStore connects to POLYGENE_REDIS_ADDR under a unique key prefix.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	addr := os.Getenv("POLYGENE_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLYGENE_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "polygene-test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return New(client, append([]Option{WithPrefix(prefix)}, opts...)...)
}

func TestStore_Redis(t *testing.T) {
	storetest.Run(t, func(t *testing.T) entitystore.EntityStore {
		return newTestStore(t)
	})
}

func TestStore_LockContentionIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	storetest.Create(t, s, "a", "Thing", map[string]any{"n": 1})

	first := storetest.Load(t, s, "a")
	second := storetest.Load(t, s, "a")
	require.NoError(t, first.SetProperty("n", 2))
	require.NoError(t, second.SetProperty("n", 3))

	c, err := s.Prepare(ctx, nil, []*entity.State{first}, nil)
	require.NoError(t, err)

	_, err = s.Prepare(ctx, nil, []*entity.State{second}, nil)
	assert.True(t, entitystore.IsConcurrentModification(err))
	assert.Equal(t, []entity.Reference{"a"}, entitystore.ConflictingReferences(err))

	require.NoError(t, c.Commit(ctx))

	n, err := s.client.Exists(ctx, s.lockKey("a")).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "commit releases the lock")
}

func TestStore_ExpiredLockNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithLockTTL(50*time.Millisecond))

	st, err := s.NewEntityState(ctx, "a", "Thing", time.Now())
	require.NoError(t, err)
	c, err := s.Prepare(ctx, []*entity.State{st}, nil, nil)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.client.Set(ctx, s.lockKey("a"), "other-owner", time.Minute).Err())

	require.NoError(t, c.Cancel(ctx))

	owner, err := s.client.Get(ctx, s.lockKey("a")).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-owner", owner)
}
