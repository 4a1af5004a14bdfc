package mapstore

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

const stripeCount = 64

// stripes is a fixed set of mutexes indexed by reference hash.
type stripes struct {
	mu [stripeCount]sync.Mutex
}

func stripeOf(ref entity.Reference) int {
	return int(xxhash.Sum64String(ref.String()) % stripeCount)
}

// lock acquires the stripes covering refs in ascending order and returns
// the function that releases them. It never waits: a stripe held by another
// prepared batch fails the whole batch with a concurrent modification on
// the references hashed to it, releasing what was already taken.
func (s *stripes) lock(refs []entity.Reference) (func(), error) {
	byStripe := make(map[int][]entity.Reference, len(refs))
	idx := make([]int, 0, len(refs))
	for _, ref := range refs {
		i := stripeOf(ref)
		if _, ok := byStripe[i]; !ok {
			idx = append(idx, i)
		}
		byStripe[i] = append(byStripe[i], ref)
	}
	sort.Ints(idx)

	release := func(held []int) {
		for j := len(held) - 1; j >= 0; j-- {
			s.mu[held[j]].Unlock()
		}
	}
	for n, i := range idx {
		if !s.mu[i].TryLock() {
			release(idx[:n])
			return nil, entitystore.NewConcurrentModificationError(byStripe[i]...)
		}
	}
	return func() { release(idx) }, nil
}
