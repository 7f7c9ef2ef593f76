package increco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelloInput covers the base case: an Inputs ingredient feeding a
// Function, across two revisions.
func TestHelloInput(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	greeting := NewInputs[string, string](db, DurabilityLow)
	var calls int
	hello := NewFunction[string, string](db, func(db *Database, name string) string {
		calls++
		return "hello, " + greeting.Get(db.Runtime(), name)
	})

	db.SetInput(DurabilityLow, func() {
		require.NoError(t, greeting.Set(db.Runtime(), "world", "world"))
	})

	rt := db.Runtime()
	assert.Equal(t, "hello, world", hello.Fetch(rt, "world"))
	assert.Equal(t, "hello, world", hello.Fetch(rt, "world"))
	assert.Equal(t, 1, calls, "second fetch should reuse the memo")

	db.SetInput(DurabilityLow, func() {
		require.NoError(t, greeting.Set(db.Runtime(), "world", "salsa"))
	})

	rt = db.Runtime()
	assert.Equal(t, "hello, salsa", hello.Fetch(rt, "world"))
	assert.Equal(t, 2, calls, "changed input forces recomputation")
}

// TestBackdating covers recomputation that produces the same value: the
// memo's changed_at must not advance, so a dependent that only read the
// recomputed value (not the revision bump itself) avoids re-executing.
func TestBackdating(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	n := NewInputs[string, int](db, DurabilityLow)
	parity := NewFunction[string, int](db, func(db *Database, key string) int {
		return n.Get(db.Runtime(), key) % 2
	})
	var dependentCalls int
	dependent := NewFunction[string, int](db, func(db *Database, key string) int {
		dependentCalls++
		return parity.Fetch(db.Runtime(), key) * 10
	})

	db.SetInput(DurabilityLow, func() { require.NoError(t, n.Set(db.Runtime(), "x", 2)) })
	rt := db.Runtime()
	assert.Equal(t, 0, dependent.Fetch(rt, "x"))
	assert.Equal(t, 1, dependentCalls)

	// 4 has the same parity as 2: parity's memo recomputes but backdates,
	// so dependent should not need to re-execute.
	db.SetInput(DurabilityLow, func() { require.NoError(t, n.Set(db.Runtime(), "x", 4)) })
	rt = db.Runtime()
	assert.Equal(t, 0, dependent.Fetch(rt, "x"))
	assert.Equal(t, 1, dependentCalls, "backdated parity must not force dependent to re-execute")
}

// TestTrackedStructIdentity covers stable identity: re-creating a tracked
// struct with the same id-fields from the same creator across revisions
// reuses the same Id.
func TestTrackedStructIdentity(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	type personFields struct{ Age int }
	people := NewTrackedStructs[personFields](db)

	src := NewInputs[string, int](db, DurabilityLow)
	makePerson := NewFunction[string, Id](db, func(db *Database, name string) Id {
		age := src.Get(db.Runtime(), name)
		return people.New(db.Runtime(), name, personFields{Age: age})
	})

	db.SetInput(DurabilityLow, func() { require.NoError(t, src.Set(db.Runtime(), "alice", 30)) })
	rt := db.Runtime()
	id1 := makePerson.Fetch(rt, "alice")

	db.SetInput(DurabilityLow, func() { require.NoError(t, src.Set(db.Runtime(), "alice", 31)) })
	rt = db.Runtime()
	id2 := makePerson.Fetch(rt, "alice")

	assert.Equal(t, id1, id2, "same creator + same id-fields must reuse the same Id")

	fields, err := people.Fields(rt, id2)
	require.NoError(t, err)
	assert.Equal(t, 31, fields.Age)
}

// TestCycleFallback covers cycle detection and recovery: two functions
// that call each other resolve via a configured fallback instead of
// propagating a panic.
func TestCycleFallback(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	var a, b *Function[string, int]
	a = NewFunction[string, int](db, func(db *Database, key string) int {
		return b.Fetch(db.Runtime(), key) + 1
	}).WithCycleFallback(func(key string) int { return -1 })
	b = NewFunction[string, int](db, func(db *Database, key string) int {
		return a.Fetch(db.Runtime(), key) + 1
	})

	rt := db.Runtime()
	result := b.Fetch(rt, "x")
	assert.Equal(t, 0, result, "a's fallback (-1) + 1 from b == 0")
}

// TestCancellation covers a query observing Cancelled once a writer has
// begun a JarsMut call.
func TestCancellation(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	rt, release := db.Snapshot()
	db.storage.cancelled.Store(true)

	err := CatchCancelled(func() {
		rt.BlockOnCancellation(nil)
	})
	require.Error(t, err)
	var cancelled *Cancelled
	assert.ErrorAs(t, err, &cancelled)

	db.storage.cancelled.Store(false)
	release.Release()
}

// TestDurabilitySkip covers the verification fast path: a High-durability
// memo is not re-derived when only a Low-durability input changed
// elsewhere, because shallow verification only re-checks durability levels
// at or above the memo's own.
func TestDurabilitySkip(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	stable := NewInputs[string, int](db, DurabilityHigh)
	volatile := NewInputs[string, int](db, DurabilityLow)

	var calls int
	highMemo := NewFunction[string, int](db, func(db *Database, key string) int {
		calls++
		return stable.Get(db.Runtime(), key)
	})

	db.SetInput(DurabilityHigh, func() { require.NoError(t, stable.Set(db.Runtime(), "k", 1)) })
	rt := db.Runtime()
	assert.Equal(t, 1, highMemo.Fetch(rt, "k"))
	assert.Equal(t, 1, calls)

	// bump only the Low durability level
	db.SetInput(DurabilityLow, func() { require.NoError(t, volatile.Set(db.Runtime(), "k", 99)) })
	rt = db.Runtime()
	assert.Equal(t, 1, highMemo.Fetch(rt, "k"))
	assert.Equal(t, 1, calls, "a Low-durability-only write must not force a High-durability memo to recompute")
}
