package increco

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// boundedLRU tracks recency order for a memoized function's keys without
// owning the values themselves (those live in the function's own sync.Map
// of atomic memo pointers) — it is purely an eviction-order oracle. This
// mirrors statemanager/manager.go's "bounded map with a capacity policy"
// shape, but replaces its linear oldest-start-time scan with
// golang-lru/v2/simplelru's O(1) ordered eviction, since a strict LRU
// policy (not "oldest created") is required.
//
// Keys belonging to memos whose inputs are Untracked are never admitted to
// the tracked LRU at all (Function.storeMemo removes them if an earlier memo
// for the key was admitted): such memos cannot be cheaply recomputed (there
// is no dependency to re-check), so capacity pressure must never evict them.
type boundedLRU[K comparable] struct {
	mu       sync.Mutex
	capacity int
	inner    *lru.LRU[K, struct{}]
	onEvict  func(K)
}

func newBoundedLRU[K comparable](capacity int, onEvict func(K)) *boundedLRU[K] {
	b := &boundedLRU[K]{capacity: capacity, onEvict: onEvict}
	if capacity <= 0 {
		return b
	}
	inner, err := lru.NewLRU[K, struct{}](capacity, func(key K, _ struct{}) {
		if b.onEvict != nil {
			b.onEvict(key)
		}
	})
	if err != nil {
		// capacity was validated > 0 above; NewLRU only fails for size <= 0.
		panic(err)
	}
	b.inner = inner
	return b
}

// touch records key as most recently used. If the memo for key is
// Untracked, the caller must not call touch at all — untracked memos are
// tracked only in the sync.Map, never in the LRU, so they are structurally
// immune to eviction.
func (b *boundedLRU[K]) touch(key K) {
	if b.inner == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Add(key, struct{}{})
}

func (b *boundedLRU[K]) remove(key K) {
	if b.inner == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Remove(key)
}

func (b *boundedLRU[K]) len() int {
	if b.inner == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Len()
}
