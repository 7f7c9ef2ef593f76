package increco

import "sync"

// Interned deduplicates values of type D, handing back a stable Id for each
// distinct value. Ids are never reused for a different value until an
// explicit Reset, and Data(id) remains valid until the next Reset —
// matching the source's "safety: the returned reference is valid until
// reset, which requires &mut Jars" contract: Go's ordinary
// exclusive-pointer-access discipline (Reset is to be called only with
// exclusive access, e.g. inside Database.SetInput's fn) stands in for
// Rust's borrow checker here. resetAt tracks the most recent bulk reset so a memo that interned a
// value can be invalidated if the table was reset since it last verified.
type Interned[D comparable] struct {
	index IngredientIndex

	mu      sync.RWMutex
	byValue map[D]Id
	byID    []D
	resetAt Revision
}

// NewInterned registers a new interning ingredient on db.
func NewInterned[D comparable](db *Database) *Interned[D] {
	in := &Interned[D]{byValue: make(map[D]Id)}
	in.index = db.storage.register(in)
	return in
}

func (in *Interned[D]) IngredientIndex() IngredientIndex { return in.index }

// Intern returns the stable Id for value, assigning a new one on first
// sight, and reports a read on the table key so a memo that interns a value
// depends on this table not having been reset since.
func (in *Interned[D]) Intern(rt *Runtime, value D) Id {
	rt.BlockOnCancellation(nil)

	in.mu.RLock()
	if id, ok := in.byValue[value]; ok {
		resetAt := in.resetAt
		in.mu.RUnlock()
		in.reportRead(rt, resetAt)
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	if id, ok := in.byValue[value]; ok {
		resetAt := in.resetAt
		in.mu.Unlock()
		in.reportRead(rt, resetAt)
		return id
	}
	id := Id(len(in.byID))
	in.byID = append(in.byID, value)
	in.byValue[value] = id
	resetAt := in.resetAt
	in.mu.Unlock()

	in.reportRead(rt, resetAt)
	return id
}

func (in *Interned[D]) reportRead(rt *Runtime, resetAt Revision) {
	dep := NewUnkeyedDependencyIndex(in.index)
	rt.reportTracked(dep, DurabilityHigh, resetAt)
}

// Data returns the value interned under id. Panics if id is out of range,
// matching the source's "interned Ids are always valid for the lifetime of
// the ingredient" invariant — an out-of-range id is a caller bug, not a
// recoverable condition.
func (in *Interned[D]) Data(id Id) D {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.byID[int(id)]
}

// MaybeChangedAfter reports whether the table was reset after `after`: an
// individual interned entry never changes identity on its own, so the only
// way this table invalidates a dependent memo is a bulk Reset.
func (in *Interned[D]) MaybeChangedAfter(rt *Runtime, key Id, after Revision) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return after < in.resetAt
}

func (in *Interned[D]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}
func (in *Interned[D]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id)    {}

// Reset drops every interned value and Id mapping and stamps resetAt with
// newRevision. Must only be called from within Database.SetInput's
// exclusive callback.
func (in *Interned[D]) Reset(newRevision Revision) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.byValue = make(map[D]Id)
	in.byID = nil
	in.resetAt = newRevision
}
