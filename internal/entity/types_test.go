package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeRegistry_Assignable(t *testing.T) {
	r := NewTypeRegistry(
		Type{Name: "Customer", Extends: []string{"Party"}},
		Type{Name: "Party", Extends: []string{"Identity"}},
		Type{Name: "Order"},
	)

	assert.True(t, r.Assignable("Customer", "Customer"))
	assert.True(t, r.Assignable("Customer", "Party"))
	assert.True(t, r.Assignable("Customer", "Identity"), "transitive")
	assert.False(t, r.Assignable("Party", "Customer"))
	assert.False(t, r.Assignable("Order", "Party"))
	assert.True(t, r.Assignable("Unknown", "Unknown"))
	assert.False(t, r.Assignable("Unknown", "Party"))
}

func TestTypeRegistry_Cycles(t *testing.T) {
	r := NewTypeRegistry(
		Type{Name: "A", Extends: []string{"B"}},
		Type{Name: "B", Extends: []string{"A"}},
	)
	assert.True(t, r.Assignable("A", "B"))
	assert.False(t, r.Assignable("A", "C"))
}

func TestTypeRegistry_Nil(t *testing.T) {
	var r *TypeRegistry
	assert.True(t, r.Assignable("A", "A"))
	assert.False(t, r.Assignable("A", "B"))
}

func TestEntity_TypedAccessors(t *testing.T) {
	e := NewEntity("Thing", NewState("a", "Thing", testTime))
	assert.NoError(t, e.Set("name", "n"))
	assert.NoError(t, e.Set("count", 3))
	assert.NoError(t, e.Set("on", true))

	assert.Equal(t, "n", e.StringProperty("name"))
	assert.Equal(t, int64(3), e.IntProperty("count"))
	assert.True(t, e.BoolProperty("on"))
	assert.Equal(t, "", e.StringProperty("count"))
	assert.Equal(t, Reference("a"), e.Reference())

	other := NewEntity("Thing", NewState("b", "Thing", testTime))
	assert.NoError(t, e.Associate("friend", other))
	ref, ok := e.State().Association("friend")
	assert.True(t, ok)
	assert.Equal(t, Reference("b"), ref)
	assert.NoError(t, e.Associate("friend", nil))
	_, ok = e.State().Association("friend")
	assert.False(t, ok)
}
