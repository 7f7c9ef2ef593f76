package increco

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Function is a memoized function ingredient: given a key K, it produces a
// value V by calling the configured Execute closure, and remembers that
// value across revisions until one of its recorded dependencies changes.
//
// The memo table is a sync.Map of K -> *atomic.Pointer[Memo[V]] so reading
// a published memo never takes a lock, and publishing a freshly computed
// memo is one atomic pointer swap — no reader ever observes a half-written
// Memo. In-flight computation is coordinated by a separate mutex-guarded
// map of claims with a condition variable per key, generalizing
// registry/registry.go's RWMutex-guarded map idiom to support "wait for the
// other goroutine computing this key to finish."
type Function[K comparable, V any] struct {
	index IngredientIndex
	db    *Database

	execute func(db *Database, key K) V

	// shouldBackdate decides, after recomputing a verified-stale memo,
	// whether the new value is equal to the old one; if so the memo's
	// changed_at is backdated to the old value's changed_at instead of the
	// current revision, so dependents that only changed transitively don't
	// re-execute. Defaults to reflect.DeepEqual; NoEq() installs a function
	// that always returns false (every recomputation counts as a change).
	shouldBackdate func(old, new V) bool

	cycleStrategy CycleRecoveryStrategy
	cycleFallback func(key K) V

	memos  sync.Map // K -> *atomic.Pointer[Memo[V]]
	claims sync.Map // K -> *claim
	lru    *boundedLRU[K]
}

type claim struct {
	mu      sync.Mutex
	cond    *sync.Cond
	runtime string
	done    bool
}

// NewFunction registers a new memoized function ingredient on db, executing
// execute to (re)compute a value for any key not already cached and valid.
func NewFunction[K comparable, V any](db *Database, execute func(db *Database, key K) V) *Function[K, V] {
	f := &Function[K, V]{
		db:             db,
		execute:        execute,
		shouldBackdate: defaultEq[V],
		cycleStrategy:  CyclePanic,
	}
	f.lru = newBoundedLRU[K](db.config.DefaultLRUCapacity, f.evict)
	f.index = db.storage.register(f)
	return f
}

// NoEq disables backdating: every recomputation is treated as a genuine
// change, even if the new value happens to equal the old one.
func (f *Function[K, V]) NoEq() *Function[K, V] {
	f.shouldBackdate = func(_, _ V) bool { return false }
	return f
}

// SetLRUCapacity overrides the database-wide default LRU capacity for this
// function. Zero means unbounded.
func (f *Function[K, V]) SetLRUCapacity(capacity int) *Function[K, V] {
	f.lru = newBoundedLRU[K](capacity, f.evict)
	return f
}

// WithCycleFallback configures this function to resolve cycles it
// participates in by invoking fallback(key) instead of propagating the
// cycle panic to an outer caller.
func (f *Function[K, V]) WithCycleFallback(fallback func(key K) V) *Function[K, V] {
	f.cycleStrategy = CycleFallback
	f.cycleFallback = fallback
	return f
}

func (f *Function[K, V]) IngredientIndex() IngredientIndex { return f.index }

func (f *Function[K, V]) databaseKey(key K) DatabaseKeyIndex {
	return DatabaseKeyIndex{Ingredient: f.index, Key: Id(hashKey(key))}
}

func (f *Function[K, V]) loadMemo(key K) *Memo[V] {
	v, ok := f.memos.Load(key)
	if !ok {
		return nil
	}
	return v.(*atomic.Pointer[Memo[V]]).Load()
}

func (f *Function[K, V]) storeMemo(key K, memo *Memo[V]) {
	ptrAny, _ := f.memos.LoadOrStore(key, &atomic.Pointer[Memo[V]]{})
	ptr := ptrAny.(*atomic.Pointer[Memo[V]])
	ptr.Store(memo)
	if memo.Revisions.kind != inputsUntracked {
		f.lru.touch(key)
	} else {
		f.lru.remove(key)
	}
}

func (f *Function[K, V]) evict(key K) {
	// LRU eviction never special-cases "might still be wanted" (Open
	// Question #2): capacity is a hard budget. Untracked memos were never
	// admitted to the LRU in the first place, so they can't reach here.
	f.memos.Delete(key)
}

// Fetch returns the up-to-date value for key, computing or reusing a memo
// as needed. It is the sole entry point a Database consumer calls; the
// verify/execute/backdate machinery below is invisible to callers.
func (f *Function[K, V]) Fetch(rt *Runtime, key K) V {
	rt.BlockOnCancellation(f.db.sink)

	dbKey := f.databaseKey(key)

	if participants, cyclic := rt.cycleFor(dbKey); cyclic {
		return f.resolveCycle(key, participants)
	}

	memo := f.loadMemo(key)
	if memo != nil {
		current := rt.currentRevision()
		if memo.VerifiedAt() == current {
			f.recordDependency(rt, key, memo)
			return memo.Value
		}
		if f.verifyMemo(rt, key, memo) {
			f.recordDependency(rt, key, memo)
			return memo.Value
		}
	}

	return f.executeCatchingCycles(rt, key, dbKey, memo)
}

// resolveCycle is reached from Fetch when this function's own key is already
// somewhere on the active query stack. A function with CycleFallback
// configured supplies its own fallback value for itself; otherwise the cycle
// starts unwinding as a panic toward the nearest ancestor that does declare
// one (see executeCatchingCycles), or to the top-level caller if none does.
func (f *Function[K, V]) resolveCycle(key K, participants []DatabaseKeyIndex) V {
	if f.cycleStrategy == CycleFallback && f.cycleFallback != nil {
		return f.cycleFallback(key)
	}
	panic(&cyclePanic{participants: participants})
}

// executeCatchingCycles runs executeAndStore, recovering a cycle panic that
// unwinds up through this function's own frame: if this function declared a
// fallback, it resolves the cycle for its own key here rather than letting
// the panic continue past it, matching the source's description of Cycle
// recovery being intercepted "at each memoized call site."
func (f *Function[K, V]) executeCatchingCycles(rt *Runtime, key K, dbKey DatabaseKeyIndex, oldMemo *Memo[V]) (value V) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cp, ok := r.(*cyclePanic)
		if !ok {
			panic(r)
		}
		if f.cycleStrategy != CycleFallback || f.cycleFallback == nil {
			panic(cp)
		}
		value = f.cycleFallback(key)
	}()
	return f.executeAndStore(rt, key, dbKey, oldMemo)
}

// recordDependency folds a read of this memo into the caller's active
// query frame (the top of the stack).
func (f *Function[K, V]) recordDependency(rt *Runtime, key K, memo *Memo[V]) {
	switch memo.Revisions.kind {
	case inputsUntracked:
		rt.reportUntracked()
	default:
		dep := NewDependencyIndex(f.index, Id(hashKey(key)))
		rt.reportTracked(dep, memo.Revisions.durability, memo.Revisions.changedAt)
	}
}

// verifyMemo attempts "shallow" verification first (no durability level at
// or above the memo's own has changed since it was last verified), and
// falls back to "deep" verification (actually asking each dependency
// ingredient via MaybeChangedAfter, which may itself recurse into
// recomputation) only if shallow verification can't settle the question.
func (f *Function[K, V]) verifyMemo(rt *Runtime, key K, memo *Memo[V]) bool {
	if memo.Revisions.kind == inputsUntracked {
		return false
	}

	current := rt.currentRevision()

	if memo.Revisions.kind == inputsNoInputs {
		memo.SetVerifiedAt(current)
		return true
	}

	for d := DurabilityLow; d < durabilityCount; d++ {
		if d < memo.Revisions.durability {
			continue
		}
		if f.db.storage.clock.lastChangedAt(d) > memo.VerifiedAt() {
			// something at or above this memo's durability changed since
			// it was last verified; fall through to deep verification.
			return f.verifyDeep(rt, key, memo)
		}
	}

	memo.SetVerifiedAt(current)
	if f.db.sink != nil {
		f.db.sink(DidValidateMemoizedValue{Key: f.databaseKey(key)})
	}
	return true
}

func (f *Function[K, V]) verifyDeep(rt *Runtime, key K, memo *Memo[V]) bool {
	for _, dep := range memo.Revisions.inputs {
		ing := f.db.storage.ingredientFor(dep.Ingredient)
		if ing == nil {
			return false
		}
		if ing.MaybeChangedAfter(rt, dep.Key, memo.VerifiedAt()) {
			return false
		}
	}
	memo.SetVerifiedAt(rt.currentRevision())
	if f.db.sink != nil {
		f.db.sink(DidValidateMemoizedValue{Key: f.databaseKey(key)})
	}
	return true
}

// executeAndStore runs the claim protocol (wait for a concurrent caller
// already computing this key rather than duplicating the work), executes
// the function body, applies backdating, and publishes the new memo.
func (f *Function[K, V]) executeAndStore(rt *Runtime, key K, dbKey DatabaseKeyIndex, oldMemo *Memo[V]) V {
	c, mine := f.acquireClaim(rt, key, dbKey)
	if !mine {
		// another goroutine finished computing it while we waited; read
		// the now-published memo.
		if memo := f.loadMemo(key); memo != nil {
			f.recordDependency(rt, key, memo)
			return memo.Value
		}
	}
	defer f.releaseClaim(key, c)

	if f.db.sink != nil {
		f.db.sink(WillExecute{Key: dbKey})
	}

	frame, pop := rt.pushQuery(dbKey, f.cycleStrategy)
	var value V
	func() {
		defer pop()
		value = f.execute(f.db, key)
	}()
	// pop() only removes frame from the stack slice; the struct itself,
	// and everything addRead recorded into it, is still valid here.
	revisions := frame.revisions()

	if oldMemo != nil && f.shouldBackdate(oldMemo.Value, value) {
		revisions.changedAt = oldMemo.Revisions.changedAt
	}

	memo := &Memo[V]{Value: value, Revisions: revisions}
	memo.SetVerifiedAt(rt.currentRevision())
	f.storeMemo(key, memo)
	f.recordDependency(rt, key, memo)
	return value
}

func (f *Function[K, V]) acquireClaim(rt *Runtime, key K, dbKey DatabaseKeyIndex) (*claim, bool) {
	newClaim := &claim{runtime: rt.ID()}
	newClaim.cond = sync.NewCond(&newClaim.mu)

	actual, loaded := f.claims.LoadOrStore(key, newClaim)
	c := actual.(*claim)
	if !loaded {
		return c, true
	}

	if f.db.sink != nil {
		f.db.sink(WillBlockOn{RuntimeID: rt.ID(), Other: dbKey})
	}
	c.mu.Lock()
	for !c.done {
		c.cond.Wait()
	}
	c.mu.Unlock()
	return c, false
}

func (f *Function[K, V]) releaseClaim(key K, c *claim) {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	c.cond.Broadcast()
	f.claims.Delete(key)
}

func (f *Function[K, V]) MaybeChangedAfter(rt *Runtime, id Id, after Revision) bool {
	// id is the hashed key; we cannot recover the original K from it, so
	// MaybeChangedAfter for Function ingredients is only ever invoked via
	// the DependencyIndex path which carries the same hashed Id this
	// ingredient produced for recordDependency — so a straight map scan
	// keyed by hash is sufficient for verification purposes.
	var changed bool
	f.memos.Range(func(k, v any) bool {
		if Id(hashKey(k)) != id {
			return true
		}
		key := k.(K)
		memo := v.(*atomic.Pointer[Memo[V]]).Load()
		if memo == nil {
			changed = true
			return false
		}
		if rt.currentRevision() != memo.VerifiedAt() && !f.verifyMemo(rt, key, memo) {
			// Verification alone couldn't settle it — recompute so a
			// recomputation that lands on the same value can still
			// backdate, instead of this dependency unconditionally
			// reporting "changed" just because shallow/deep verification
			// didn't confirm it unchanged.
			dbKey := f.databaseKey(key)
			f.executeCatchingCycles(rt, key, dbKey, memo)
			memo = f.loadMemo(key)
		}
		changed = memo.Revisions.changedAt > after
		return false
	})
	return changed
}

func (f *Function[K, V]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}
func (f *Function[K, V]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id)    {}

func (f *Function[K, V]) Reset(at Revision) {
	f.memos.Range(func(k, _ any) bool { f.memos.Delete(k); return true })
	f.claims.Range(func(k, _ any) bool { f.claims.Delete(k); return true })
}

func defaultEq[V any](old, new V) bool {
	return reflect.DeepEqual(old, new)
}
