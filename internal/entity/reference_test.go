package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReference_NFC(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	a, err := NewReference(decomposed)
	require.NoError(t, err)
	b, err := NewReference(composed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewReference_RejectsBlank(t *testing.T) {
	for _, s := range []string{"", "   ", "\t\n"} {
		_, err := NewReference(s)
		assert.True(t, errors.Is(err, ErrInvalidReference), "%q", s)
	}
}

func TestMustReference_Panics(t *testing.T) {
	assert.Panics(t, func() { MustReference("") })
}

func TestSortReferences(t *testing.T) {
	refs := []Reference{"c", "a", "b"}
	SortReferences(refs)
	assert.Equal(t, []Reference{"a", "b", "c"}, refs)
}
