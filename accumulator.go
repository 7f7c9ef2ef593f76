package increco

import "sync"

// accumulatedItem stamps one pushed value with the revision and reduced
// durability its producing query had reached at the moment of the push, so
// a consumer reading the accumulated set depends on that stamp rather than
// unconditionally on "now."
type accumulatedItem[T any] struct {
	value      T
	durability Durability
	changedAt  Revision
}

// Accumulator collects values of type T pushed by queries during a single
// traversal (e.g. diagnostics emitted while computing some other value),
// keyed by the producing query so a later query revalidation can find and
// replace its own contributions rather than appending duplicates.
type Accumulator[T any] struct {
	index IngredientIndex

	mu         sync.RWMutex
	items      map[DatabaseKeyIndex][]accumulatedItem[T]
	producedAt map[DatabaseKeyIndex]Revision
}

// NewAccumulator registers a new accumulator ingredient on db.
func NewAccumulator[T any](db *Database) *Accumulator[T] {
	a := &Accumulator[T]{
		items:      make(map[DatabaseKeyIndex][]accumulatedItem[T]),
		producedAt: make(map[DatabaseKeyIndex]Revision),
	}
	a.index = db.storage.register(a)
	return a
}

func (a *Accumulator[T]) IngredientIndex() IngredientIndex { return a.index }

// Push appends value to the set produced by the query currently at the top
// of rt's stack. Panics if called outside any active query, since an
// accumulated value with no producer could never be invalidated correctly.
// A producer only ever (re-)executes once per revision (Function.Fetch
// memoizes everything else), so the first push of a new revision discards
// whatever that producer pushed in an earlier revision instead of piling
// up duplicates alongside the fresh contributions.
func (a *Accumulator[T]) Push(rt *Runtime, value T) {
	frame := rt.topFrame()
	if frame == nil {
		panic("increco: Accumulator.Push called outside an active query")
	}
	now := rt.currentRevision()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.producedAt[frame.key] != now {
		a.producedAt[frame.key] = now
		a.items[frame.key] = nil
	}
	a.items[frame.key] = append(a.items[frame.key], accumulatedItem[T]{
		value:      value,
		durability: frame.durability,
		changedAt:  frame.changedAt,
	})
}

// AccumulatedBy returns every value pushed by producer's most recent
// execution, recording a read dependency on that query's output against
// rt's active frame so the accumulator's consumer gets invalidated when
// producer re-executes and changes what it pushed. The reported durability
// and changed_at are reduced across the pushed items exactly the way a
// query's own reads are reduced, rather than always stamped "now."
func (a *Accumulator[T]) AccumulatedBy(rt *Runtime, producer DatabaseKeyIndex) []T {
	rt.BlockOnCancellation(nil)

	a.mu.RLock()
	items := a.items[producer]
	changedAt := R0
	durability := MaxConst
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.value
		if it.changedAt > changedAt {
			changedAt = it.changedAt
		}
		if it.durability < durability {
			durability = it.durability
		}
	}
	a.mu.RUnlock()

	dep := NewDependencyIndex(a.index, producer.Key)
	rt.reportTracked(dep, durability, changedAt)
	return out
}

// clearProducer drops everything producer has previously pushed. It is
// called from RemoveStaleOutput; Push clears a producer's earlier-revision
// items on its own.
func (a *Accumulator[T]) clearProducer(producer DatabaseKeyIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, producer)
	delete(a.producedAt, producer)
}

func (a *Accumulator[T]) MaybeChangedAfter(rt *Runtime, id Id, after Revision) bool {
	return false
}

func (a *Accumulator[T]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}

func (a *Accumulator[T]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id) {
	a.clearProducer(producer)
}

func (a *Accumulator[T]) Reset(at Revision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = make(map[DatabaseKeyIndex][]accumulatedItem[T])
	a.producedAt = make(map[DatabaseKeyIndex]Revision)
}
