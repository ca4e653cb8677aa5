// Package dedup provides a best-effort in-memory ledger of already-applied
// events. It protects against redelivery of the same notification within one
// process lifetime; cross-restart exactly-once remains the notification
// system's responsibility, since the engine keeps no persistent local state.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// falsePositiveRate of the per-generation bloom filter. A false positive only
// costs an exact map lookup, never a wrongly suppressed event.
const falsePositiveRate = 0.001

// generation pairs a bloom filter with the exact key set backing it. The
// filter answers the common "definitely new" case without touching the map;
// the map makes the final call so suppression is never based on a bloom
// false positive alone.
type generation struct {
	filter *bloom.BloomFilter
	keys   map[string]struct{}
}

func newGeneration(capacity int) *generation {
	return &generation{
		filter: bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		keys:   make(map[string]struct{}, capacity),
	}
}

func (g *generation) seen(key string) bool {
	if !g.filter.TestString(key) {
		return false
	}
	_, ok := g.keys[key]
	return ok
}

// Ledger remembers event keys with bounded memory. Keys are kept in two
// generations; once the current generation fills up it becomes the previous
// one and the oldest keys are forgotten. A key is therefore remembered for
// at least maxEntries and at most 2*maxEntries insertions.
type Ledger struct {
	mu         sync.Mutex
	maxEntries int
	current    *generation
	previous   *generation
}

// NewLedger creates a ledger holding up to 2*maxEntries keys.
func NewLedger(maxEntries int) *Ledger {
	if maxEntries <= 0 {
		maxEntries = 1 << 16
	}
	return &Ledger{
		maxEntries: maxEntries,
		current:    newGeneration(maxEntries),
	}
}

// Seen reports whether the key was marked and not yet aged out.
func (l *Ledger) Seen(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current.seen(key) {
		return true
	}
	return l.previous != nil && l.previous.seen(key)
}

// Mark records the key, rotating generations when the current one is full.
func (l *Ledger) Mark(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.current.keys) >= l.maxEntries {
		l.previous = l.current
		l.current = newGeneration(l.maxEntries)
	}
	l.current.filter.AddString(key)
	l.current.keys[key] = struct{}{}
}
