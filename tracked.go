package increco

import (
	"reflect"
	"sync"
)

// KeyStruct identifies one tracked-struct instance: which query created it,
// a hash of its id-fields, and a disambiguator distinguishing multiple
// instances the same query creates with the same id-fields in one
// execution (e.g. a loop that tracks one struct per iteration using the
// same key fields).
type KeyStruct struct {
	Creator       DatabaseKeyIndex
	Hash          uint64
	Disambiguator uint32
}

// fieldKey identifies one field of one tracked-struct instance, the unit
// the companion fieldIngredient hands out dependencies for.
type fieldKey struct {
	ID    Id
	Field int
}

func fieldKeyId(id Id, fieldIndex int) Id {
	return Id(hashKey(fieldKey{ID: id, Field: fieldIndex}))
}

type trackedEntry[Fields any] struct {
	id             Id
	fields         Fields
	createdAt      Revision
	updatedAt      Revision
	fieldChangedAt []Revision
}

// fieldIngredient is the companion per-field ingredient spec.md §4.4
// describes: a reader that only touches one field of a tracked struct
// depends on just that field's own changed_at, not the struct's overall
// updatedAt, so a sibling field changing doesn't force its recomputation.
// It shares TrackedStructs' storage rather than owning any of its own.
type fieldIngredient[Fields any] struct {
	index IngredientIndex
	owner *TrackedStructs[Fields]
}

func (f *fieldIngredient[Fields]) IngredientIndex() IngredientIndex { return f.index }

func (f *fieldIngredient[Fields]) MaybeChangedAfter(rt *Runtime, key Id, after Revision) bool {
	return f.owner.fieldMaybeChangedAfter(key, after)
}

func (f *fieldIngredient[Fields]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}
func (f *fieldIngredient[Fields]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id)    {}
func (f *fieldIngredient[Fields]) Reset(at Revision)                                        {}

// TrackedStructs is the ingredient backing one tracked-struct type: it
// assigns a stable Id to each (creator, id-fields) pair, re-using the same
// Id across revisions as long as the creating query still creates a
// matching instance, and deletes instances the creator stops producing.
type TrackedStructs[Fields any] struct {
	index      IngredientIndex
	fieldIndex IngredientIndex
	db         *Database

	mu               sync.RWMutex
	byKey            map[KeyStruct]Id
	byID             map[Id]*trackedEntry[Fields]
	nextID           uint32
	disambiguator    map[DatabaseKeyIndex]map[uint64]uint32
	disambigRevision map[DatabaseKeyIndex]Revision
}

// NewTrackedStructs registers a new tracked-struct ingredient, and its
// companion field ingredient, on db.
func NewTrackedStructs[Fields any](db *Database) *TrackedStructs[Fields] {
	t := &TrackedStructs[Fields]{
		db:               db,
		byKey:            make(map[KeyStruct]Id),
		byID:             make(map[Id]*trackedEntry[Fields]),
		disambiguator:    make(map[DatabaseKeyIndex]map[uint64]uint32),
		disambigRevision: make(map[DatabaseKeyIndex]Revision),
	}
	t.index = db.storage.register(t)
	fi := &fieldIngredient[Fields]{owner: t}
	fi.index = db.storage.register(fi)
	t.fieldIndex = fi.index
	return t
}

func (t *TrackedStructs[Fields]) IngredientIndex() IngredientIndex { return t.index }

// nextDisambiguator returns the next unused disambiguator for (creator,
// idFieldHash) within the creator's current execution, so a query that
// tracks several structs sharing id-field values in one pass gets distinct
// identities for each. A creator only ever (re-)executes once per
// revision (Function.Fetch memoizes everything else), so the counters are
// reset automatically the first time a given creator is seen at a new
// revision, rather than requiring callers to call a separate reset method.
func (t *TrackedStructs[Fields]) nextDisambiguator(creator DatabaseKeyIndex, currentRevision Revision, idFieldHash uint64) uint32 {
	if t.disambigRevision[creator] != currentRevision {
		t.disambigRevision[creator] = currentRevision
		delete(t.disambiguator, creator)
	}
	perCreator, ok := t.disambiguator[creator]
	if !ok {
		perCreator = make(map[uint64]uint32)
		t.disambiguator[creator] = perCreator
	}
	d := perCreator[idFieldHash]
	perCreator[idFieldHash] = d + 1
	return d
}

// New creates or re-uses a tracked-struct instance for the query at the top
// of rt's stack, keyed by idFields. Calling it twice in the same execution
// with the same idFields yields two distinct instances (disambiguated),
// matching the source's per-call disambiguation rule; calling it again in a
// later revision with the same idFields from the same creator re-uses the
// same Id. Fields are compared one at a time against the previous values:
// only the fields that actually changed get a fresh changed_at, and if none
// did, the instance's overall updatedAt doesn't advance either (the
// struct-level analogue of Function's backdating).
func (t *TrackedStructs[Fields]) New(rt *Runtime, idFields any, fields Fields) Id {
	frame := rt.topFrame()
	if frame == nil {
		panic("increco: TrackedStructs.New called outside an active query")
	}
	creator := frame.key
	idHash := hashKey(idFields)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := rt.currentRevision()
	disambiguator := t.nextDisambiguator(creator, now, idHash)
	key := KeyStruct{Creator: creator, Hash: idHash, Disambiguator: disambiguator}
	if id, ok := t.byKey[key]; ok {
		entry := t.byID[id]
		if updateFields(entry, fields, now) {
			entry.updatedAt = now
		}
		return id
	}

	numFields := reflect.ValueOf(fields).NumField()
	fieldChangedAt := make([]Revision, numFields)
	for i := range fieldChangedAt {
		fieldChangedAt[i] = now
	}

	id := Id(t.nextID)
	t.nextID++
	t.byKey[key] = id
	t.byID[id] = &trackedEntry[Fields]{
		id:             id,
		fields:         fields,
		createdAt:      now,
		updatedAt:      now,
		fieldChangedAt: fieldChangedAt,
	}
	return id
}

// updateFields overwrites entry.fields with newFields, advancing the
// changed_at of only the fields whose value actually differs. Returns
// whether any field changed.
func updateFields[Fields any](entry *trackedEntry[Fields], newFields Fields, now Revision) bool {
	oldVal := reflect.ValueOf(entry.fields)
	newVal := reflect.ValueOf(newFields)
	anyChanged := false
	for i := 0; i < newVal.NumField(); i++ {
		if !reflect.DeepEqual(oldVal.Field(i).Interface(), newVal.Field(i).Interface()) {
			entry.fieldChangedAt[i] = now
			anyChanged = true
		}
	}
	entry.fields = newFields
	return anyChanged
}

// Fields returns the current field values for id, recording a read
// dependency against rt's active frame. Returns ErrStructExpired if id is
// unknown (deleted, or never created).
func (t *TrackedStructs[Fields]) Fields(rt *Runtime, id Id) (Fields, error) {
	rt.BlockOnCancellation(nil)
	t.mu.RLock()
	entry, ok := t.byID[id]
	t.mu.RUnlock()
	if !ok {
		var zero Fields
		return zero, ErrStructExpired
	}
	dep := NewDependencyIndex(t.index, id)
	rt.reportTracked(dep, DurabilityLow, entry.updatedAt)
	return entry.fields, nil
}

// Field returns the current value of a single field (by struct field
// index), recording a read dependency against only that field's companion
// ingredient entry rather than the whole struct — so a caller reading one
// field isn't invalidated when a sibling field changes but this one
// doesn't. Returns ErrStructExpired if id is unknown.
func (t *TrackedStructs[Fields]) Field(rt *Runtime, id Id, fieldIndex int) (any, error) {
	rt.BlockOnCancellation(nil)
	t.mu.RLock()
	entry, ok := t.byID[id]
	if !ok {
		t.mu.RUnlock()
		return nil, ErrStructExpired
	}
	if fieldIndex < 0 || fieldIndex >= len(entry.fieldChangedAt) {
		t.mu.RUnlock()
		panic("increco: tracked-struct field index out of range")
	}
	changedAt := entry.fieldChangedAt[fieldIndex]
	value := reflect.ValueOf(entry.fields).Field(fieldIndex).Interface()
	t.mu.RUnlock()

	dep := NewDependencyIndex(t.fieldIndex, fieldKeyId(id, fieldIndex))
	rt.reportTracked(dep, DurabilityLow, changedAt)
	return value, nil
}

func (t *TrackedStructs[Fields]) fieldMaybeChangedAfter(key Id, after Revision) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, entry := range t.byID {
		for i, changedAt := range entry.fieldChangedAt {
			if fieldKeyId(id, i) == key {
				return changedAt > after
			}
		}
	}
	// the field's owning struct is gone: treat it as changed.
	return true
}

// DeleteStaleInstances removes every instance created by creator that the
// creator did not produce (via New) in its execution at currentExecution,
// i.e. instances the creator stopped producing this time around. Called
// after a creator re-executes, from within the same revision.
func (t *TrackedStructs[Fields]) DeleteStaleInstances(creator DatabaseKeyIndex, currentExecution Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// produced[h] is how many instances with id-field hash h the creator
	// made in currentExecution, i.e. disambiguators 0..produced[h]-1.
	var produced map[uint64]uint32
	if t.disambigRevision[creator] == currentExecution {
		produced = t.disambiguator[creator]
	}
	for key, id := range t.byKey {
		if key.Creator != creator {
			continue
		}
		entry := t.byID[id]
		if entry != nil && key.Disambiguator >= produced[key.Hash] {
			delete(t.byKey, key)
			delete(t.byID, id)
			if t.db.sink != nil {
				t.db.sink(DidDiscard{Key: DatabaseKeyIndex{Ingredient: t.index, Key: id}})
			}
		}
	}
}

func (t *TrackedStructs[Fields]) MaybeChangedAfter(rt *Runtime, id Id, after Revision) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.byID[id]
	if !ok {
		return true
	}
	return entry.updatedAt > after
}

// MarkValidatedOutput is a no-op here: New already records, through the
// creator's per-revision disambiguator counters, every instance the creator
// re-touches, which is the only signal DeleteStaleInstances needs.
func (t *TrackedStructs[Fields]) MarkValidatedOutput(producer DatabaseKeyIndex, output Id) {}

func (t *TrackedStructs[Fields]) RemoveStaleOutput(producer DatabaseKeyIndex, output Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.byID[output]; ok {
		for key, id := range t.byKey {
			if id == entry.id {
				delete(t.byKey, key)
				break
			}
		}
		delete(t.byID, output)
	}
}

func (t *TrackedStructs[Fields]) Reset(at Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[KeyStruct]Id)
	t.byID = make(map[Id]*trackedEntry[Fields])
	t.disambiguator = make(map[DatabaseKeyIndex]map[uint64]uint32)
	t.disambigRevision = make(map[DatabaseKeyIndex]Revision)
}
