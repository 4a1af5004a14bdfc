package uow

import "reflect"

// MetaInfo holds one value per Go type for the lifetime of a unit of work:
// the principal, an event buffer, anything callbacks and concerns share.
type MetaInfo struct {
	values map[reflect.Type]any
}

func newMetaInfo() *MetaInfo {
	return &MetaInfo{values: make(map[reflect.Type]any)}
}

// Len returns the number of stored values.
func (m *MetaInfo) Len() int {
	return len(m.values)
}

// SetMeta stores v as the unit's value of type T, replacing any previous one.
func SetMeta[T any](u *UnitOfWork, v T) {
	u.meta.values[reflect.TypeOf((*T)(nil)).Elem()] = v
}

// Meta returns the unit's value of type T.
func Meta[T any](u *UnitOfWork) (T, bool) {
	v, ok := u.meta.values[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// DeleteMeta removes the unit's value of type T.
func DeleteMeta[T any](u *UnitOfWork) {
	delete(u.meta.values, reflect.TypeOf((*T)(nil)).Elem())
}
