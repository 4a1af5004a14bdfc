package entity

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidReference is returned for empty or whitespace-only identities.
var ErrInvalidReference = errors.New("invalid entity reference")

// Reference is the stable identity of one entity across stores.
//
// References are NFC-normalized on construction so that visually identical
// identities typed with different Unicode compositions name the same entity.
type Reference string

// NewReference validates and normalizes an identity string.
func NewReference(identity string) (Reference, error) {
	if strings.TrimSpace(identity) == "" {
		return "", ErrInvalidReference
	}
	return Reference(norm.NFC.String(identity)), nil
}

// MustReference is NewReference for literals in tests and fixtures.
func MustReference(identity string) Reference {
	ref, err := NewReference(identity)
	if err != nil {
		panic(err)
	}
	return ref
}

// String returns the identity value.
func (r Reference) String() string {
	return string(r)
}

// IsZero reports whether r is the empty reference.
func (r Reference) IsZero() bool {
	return r == ""
}

// SortReferences sorts refs in place in ascending identity order.
func SortReferences(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
}
