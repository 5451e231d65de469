package trade

import (
	"sort"
	"sync"
)

// book is a ticket-keyed collection shared by the three registries.
// Reads take the read lock so snapshots can be taken while strategies hold
// the engine busy; all writes are funneled through the matching engine.
type book[T any] struct {
	mu   sync.RWMutex
	recs map[int64]T
}

func newBook[T any]() book[T] {
	return book[T]{recs: make(map[int64]T)}
}

// Get returns the record for ticket, ok=false on a miss.
func (b *book[T]) Get(ticket int64) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.recs[ticket]
	return rec, ok
}

// Set stores or replaces the record for ticket.
func (b *book[T]) Set(ticket int64, rec T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recs[ticket] = rec
}

// Delete removes the record for ticket, reporting whether it existed.
func (b *book[T]) Delete(ticket int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.recs[ticket]
	delete(b.recs, ticket)
	return ok
}

// Len returns the number of records.
func (b *book[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.recs)
}

// Tickets returns all keys in ascending order.
func (b *book[T]) Tickets() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedKeys(b.recs)
}

// Values returns all records ordered by ticket.
func (b *book[T]) Values() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, 0, len(b.recs))
	for _, ticket := range sortedKeys(b.recs) {
		out = append(out, b.recs[ticket])
	}
	return out
}

// Snapshot returns a copy of the underlying map for serialization.
func (b *book[T]) Snapshot() map[int64]T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int64]T, len(b.recs))
	for k, v := range b.recs {
		out[k] = v
	}
	return out
}

// restore replaces the contents wholesale.
func (b *book[T]) restore(recs map[int64]T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recs = make(map[int64]T, len(recs))
	for k, v := range recs {
		b.recs[k] = v
	}
}

func sortedKeys[T any](m map[int64]T) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
