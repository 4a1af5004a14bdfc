// Package identity generates entity and unit-of-work identities.
package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces identities for new entities and units of work.
type Generator interface {
	Generate(typeName string) string
}

// UUIDv7 generates time-sortable UUIDv7 identities.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identities sort
// by creation time, which keeps store listings and traces in creation order.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a hyphenated UUIDv7. The type name is ignored.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identities for testing.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
//
// Example:
//
//	gen := identity.NewFixed("order-1", "order-2")
//	gen.Generate("Order") // "order-1"
//	gen.Generate("Order") // "order-2"
//	gen.Generate("Order") // panic: all identities exhausted
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined identity.
//
// Panics if all identities have been consumed, which catches tests that
// create more entities than they planned for.
func (g *Fixed) Generate(string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("identity.Fixed: all identities exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Sequence generates "<prefix>-<n>" identities counting from 1. It is the
// deterministic generator used by scenario runs.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequence creates a sequence; an empty prefix uses the type name.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix, next: 1}
}

func (g *Sequence) Generate(typeName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	prefix := g.prefix
	if prefix == "" {
		prefix = typeName
	}
	id := fmt.Sprintf("%s-%d", prefix, g.next)
	g.next++
	return id
}
