package mapstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Map_PrefixAndEscaping(t *testing.T) {
	ctx := context.Background()
	m, fake := newFakeS3Map(t, "entities/")

	require.NoError(t, m.Put(ctx, "order/1", []byte{0x0d, 0x0a, 0x00, 0xff}))
	assert.Equal(t, []string{"entities/order%2F1"}, fake.keys())

	data, err := m.Get(ctx, "order/1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0d, 0x0a, 0x00, 0xff}, data)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"order/1"}, keys)
}

func TestS3Map_GetMissing(t *testing.T) {
	m, _ := newFakeS3Map(t, "")

	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestS3Map_Delete(t *testing.T) {
	ctx := context.Background()
	m, fake := newFakeS3Map(t, "")

	require.NoError(t, m.Put(ctx, "a", []byte("1")))
	require.NoError(t, m.Delete(ctx, "a"))
	assert.Empty(t, fake.keys())
	require.NoError(t, m.Delete(ctx, "a"))
}

func TestNewS3Map_RequiresBucket(t *testing.T) {
	_, err := NewS3Map(context.Background(), S3Config{})
	assert.Error(t, err)
}
