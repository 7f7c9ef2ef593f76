package increco

import "testing"

func TestBoundedLRUEvictsOldest(t *testing.T) {
	var evicted []int
	b := newBoundedLRU[int](2, func(k int) { evicted = append(evicted, k) })

	b.touch(1)
	b.touch(2)
	b.touch(3) // should evict 1

	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("expected key 1 evicted, got %v", evicted)
	}
	if b.len() != 2 {
		t.Fatalf("expected len 2, got %d", b.len())
	}
}

func TestBoundedLRUUnbounded(t *testing.T) {
	var evicted []int
	b := newBoundedLRU[int](0, func(k int) { evicted = append(evicted, k) })
	for i := 0; i < 100; i++ {
		b.touch(i)
	}
	if len(evicted) != 0 {
		t.Fatalf("capacity 0 must mean unbounded, got %d evictions", len(evicted))
	}
}
