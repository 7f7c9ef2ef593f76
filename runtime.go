package increco

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Runtime holds the per-connection state a Database needs to execute
// queries: the shared revision clock and durability table (owned by
// Storage, pointed to here), and a query stack private to this Runtime
// value. Each Storage.Snapshot hands out a fresh Runtime sharing the same
// atomics but an independent stack — the Go analogue of each Rust OS thread
// owning its own thread-local LocalState, grounded on
// network/proxy_balancer.go's convention of bare atomic fields on a struct.
type Runtime struct {
	runtimeID string

	clock     *revisionClock
	cancelled *atomic.Bool
	stack     queryStack
}

// revisionClock is the data Storage owns and every Runtime snapshot shares:
// the global counter and the per-durability "last changed" table.
type revisionClock struct {
	current    atomic.Uint64
	lastChange [durabilityCount]atomic.Uint64
	mu         sync.Mutex // guards multi-field bumps (current + lastChange) together
}

func newRevisionClock() *revisionClock {
	c := &revisionClock{}
	c.current.Store(uint64(R0.Next()))
	for i := range c.lastChange {
		c.lastChange[i].Store(uint64(R0.Next()))
	}
	return c
}

func (c *revisionClock) currentRevision() Revision { return Revision(c.current.Load()) }

func (c *revisionClock) lastChangedAt(d Durability) Revision {
	if d == DurabilityUntracked {
		return c.currentRevision()
	}
	return Revision(c.lastChange[d].Load())
}

// bump advances the global revision and records a write at writeDurability.
// lastChange[d] tracks "the latest revision in which any input with
// durability >= d changed", so a write at writeDurability must refresh
// every d from Low through writeDurability (inclusive) — not the levels
// above it. A memo can only depend on inputs whose durability is >= the
// memo's own reduced durability, so verifyMemo only ever needs to consult
// lastChange at or above the memo's durability to know whether anything it
// could possibly depend on has changed.
func (c *revisionClock) bump(writeDurability Durability) Revision {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := Revision(c.current.Load()).Next()
	c.current.Store(uint64(next))
	for d := DurabilityLow; d <= writeDurability; d++ {
		c.lastChange[d].Store(uint64(next))
	}
	return next
}

func newRuntime(clock *revisionClock, cancelled *atomic.Bool) *Runtime {
	return &Runtime{
		runtimeID: uuid.NewString(),
		clock:     clock,
		cancelled: cancelled,
	}
}

// ID returns a stable, human-readable identity for this Runtime, used in
// WillBlockOn diagnostics.
func (r *Runtime) ID() string { return r.runtimeID }

func (r *Runtime) currentRevision() Revision { return r.clock.currentRevision() }

// BlockOnCancellation panics with *Cancelled if the owning Storage has
// begun a jarsMut write and is waiting for this snapshot to finish. Called
// at the top of every memoized function's execute path, mirroring the
// source's WillCheckCancellation event point.
func (r *Runtime) BlockOnCancellation(sink EventSink) {
	if sink != nil {
		sink(WillCheckCancellation{RuntimeID: r.runtimeID})
	}
	if r.cancelled.Load() {
		panic(&Cancelled{Reason: "database is being mutated"})
	}
}

// reportTracked folds a tracked dependency read into the currently
// executing query's own frame (the top of the stack) only.
func (r *Runtime) reportTracked(dep DependencyIndex, durability Durability, changedAt Revision) {
	r.stack.recordRead(dep, durability, changedAt)
}

func (r *Runtime) reportUntracked() { r.stack.recordUntrackedRead() }

// pushQuery enters a new query frame, returning a pop function the caller
// must defer so a panicking body still unwinds the stack (the Go analogue
// of the source's drop-guard).
func (r *Runtime) pushQuery(key DatabaseKeyIndex, strategy CycleRecoveryStrategy) (*activeQuery, func()) {
	frame := r.stack.push(key, strategy)
	return frame, func() { r.stack.pop() }
}

func (r *Runtime) cycleFor(key DatabaseKeyIndex) ([]DatabaseKeyIndex, bool) {
	return r.stack.findCycle(key)
}

func (r *Runtime) topFrame() *activeQuery { return r.stack.top() }
