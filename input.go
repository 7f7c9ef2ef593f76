package increco

import "sync"

type inputSlot[V any] struct {
	value      V
	changedAt  Revision
	durability Durability
}

// Inputs is the base-case ingredient: values set directly by the host
// rather than derived by a memoized function. Set is only legal from
// within Database.SetInput's exclusive callback, matching the source's
// "only legal from &mut db" rule.
type Inputs[K comparable, V any] struct {
	index      IngredientIndex
	durability Durability

	mu   sync.RWMutex
	vals map[K]*inputSlot[V]
	db   *Database
}

// NewInputs registers a new input ingredient on db with the given default
// durability (used by every Set call; SetWithDurability overrides it for
// that one write only).
func NewInputs[K comparable, V any](db *Database, durability Durability) *Inputs[K, V] {
	in := &Inputs[K, V]{
		vals:       make(map[K]*inputSlot[V]),
		durability: durability,
		db:         db,
	}
	in.index = db.storage.register(in)
	return in
}

func (in *Inputs[K, V]) IngredientIndex() IngredientIndex { return in.index }

// Get fetches the current value for key, recording a read dependency
// against rt's active query (if any). Panics if key was never Set — an
// input ingredient has no notion of a default value, matching the source's
// "reading an unset input is a programmer error" stance.
func (in *Inputs[K, V]) Get(rt *Runtime, key K) V {
	rt.BlockOnCancellation(in.db.sink)
	in.mu.RLock()
	slot, ok := in.vals[key]
	in.mu.RUnlock()
	if !ok {
		panic("increco: read of unset input")
	}
	dep := NewDependencyIndex(in.index, Id(hashKey(key)))
	rt.reportTracked(dep, slot.durability, slot.changedAt)
	return slot.value
}

// Set writes value for key at the ingredient's default durability. Must be
// called from within Database.SetInput's exclusive callback; the caller
// supplies the revision the write is happening at (via the enclosing
// SetInput) so this method itself does not touch the clock.
func (in *Inputs[K, V]) Set(rt *Runtime, key K, value V) error {
	return in.SetWithDurability(rt, key, value, in.durability)
}

// SetWithDurability writes value for key at an explicit durability,
// overriding the ingredient default for this one key.
func (in *Inputs[K, V]) SetWithDurability(rt *Runtime, key K, value V, durability Durability) error {
	now := rt.currentRevision()

	in.mu.Lock()
	defer in.mu.Unlock()

	existing, ok := in.vals[key]
	if ok && existing.changedAt > now {
		return ErrIllegalUpdate
	}

	changedAt := now
	if in.db.sink != nil {
		in.db.sink(WillChangeInputValue{
			Key:        DatabaseKeyIndex{Ingredient: in.index, Key: Id(hashKey(key))},
			Durability: durability,
			ChangedAt:  changedAt,
		})
	}

	in.vals[key] = &inputSlot[V]{value: value, changedAt: changedAt, durability: durability}
	return nil
}

// MaybeChangedAfter reports whether key's value changed after the given
// revision — a direct read of the stamped changedAt, no recomputation
// possible since inputs have no execute function.
func (in *Inputs[K, V]) MaybeChangedAfter(rt *Runtime, id Id, after Revision) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for key, slot := range in.vals {
		if Id(hashKey(key)) == id {
			return slot.changedAt > after
		}
	}
	return false
}

func (in *Inputs[K, V]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}
func (in *Inputs[K, V]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id)    {}

func (in *Inputs[K, V]) Reset(at Revision) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.vals = make(map[K]*inputSlot[V])
}
