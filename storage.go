package increco

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Jar is implemented by a host package that wants to contribute one or more
// ingredients to a Database. It plays the role the source's code-generated
// per-struct Jar impls play, except here it is written by hand (the
// macro/codegen layer is explicitly out of this library's scope) — a Jar is
// simply anything that registers its ingredients when asked.
type Jar interface {
	// CreateIngredients is called once, when the Jar is attached to a
	// Database, and should construct and return every ingredient the jar
	// owns.
	CreateIngredients(db *Database) []Ingredient
}

// Storage owns the pieces every ingredient and Runtime needs to share: the
// revision clock, the ingredient route table, and the single-writer
// coordination Storage.JarsMut (reached through Database.SetInput) uses. The route table follows
// registry/registry.go's mutex-guarded map + Register/Get shape, keyed by
// IngredientIndex instead of a service id.
type Storage struct {
	clock *revisionClock

	mu         sync.RWMutex
	routes     map[IngredientIndex]Ingredient
	nextIndex  atomic.Uint32

	cancelled *atomic.Bool

	// writeMu + activeSnapshots coordinate JarsMut: a writer sets
	// cancelled, waits for activeSnapshots to drop to zero, performs the
	// write, then clears cancelled. Grounded on the same "stop the world,
	// wait for readers to drain" shape network/proxy_balancer.go's
	// HealthChecker start/stop uses, generalized with a condition variable
	// instead of a channel since there can be many live snapshots.
	writeMu         sync.Mutex
	snapCond        *sync.Cond
	activeSnapshots int

	debugLabel string
}

// NewStorage creates an empty Storage with its own revision clock, ready to
// have ingredients registered against it (normally via Database.AttachJar).
func NewStorage() *Storage {
	s := &Storage{
		clock:      newRevisionClock(),
		routes:     make(map[IngredientIndex]Ingredient),
		cancelled:  new(atomic.Bool),
		debugLabel: uuid.NewString(),
	}
	s.snapCond = sync.NewCond(&s.writeMu)
	return s
}

// register assigns the next IngredientIndex to ing and adds it to the route
// table. Called by each concrete ingredient constructor (NewFunction,
// NewInterned, ...).
func (s *Storage) register(ing Ingredient) IngredientIndex {
	idx := IngredientIndex(s.nextIndex.Add(1) - 1)
	s.mu.Lock()
	s.routes[idx] = ing
	s.mu.Unlock()
	return idx
}

// DebugLabel returns a stable identifier for this Storage, useful for
// telling apart multiple Database instances in logs.
func (s *Storage) DebugLabel() string { return s.debugLabel }

func (s *Storage) ingredientFor(idx IngredientIndex) Ingredient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes[idx]
}

// Snapshot hands out a new Runtime sharing this Storage's clock and
// cancellation flag, registering it as an active reader so a concurrent
// JarsMut call knows to wait. Callers must call Release on the returned
// handle (typically via defer) once done — Go has no destructor to do this
// automatically, which is the one place this port asks callers to do
// something Rust's ownership system would otherwise guarantee (see
// DESIGN.md).
func (s *Storage) Snapshot() (*Runtime, *SnapshotHandle) {
	s.writeMu.Lock()
	s.activeSnapshots++
	s.writeMu.Unlock()

	rt := newRuntime(s.clock, s.cancelled)
	return rt, &SnapshotHandle{storage: s}
}

// SnapshotHandle is the release capability returned alongside a Runtime
// snapshot.
type SnapshotHandle struct {
	storage  *Storage
	released bool
}

// Release returns the snapshot's slot, allowing a blocked JarsMut call to
// proceed once all snapshots have released. Calling Release more than once
// is a no-op.
func (h *SnapshotHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.storage.writeMu.Lock()
	h.storage.activeSnapshots--
	if h.storage.activeSnapshots == 0 {
		h.storage.snapCond.Broadcast()
	}
	h.storage.writeMu.Unlock()
}

// JarsMut sets the cancellation flag so any still-running query observes
// Cancelled at its next BlockOnCancellation check, blocks until every
// outstanding snapshot has released, bumps the revision clock at
// writeDurability, then runs fn with exclusive access so any Set call
// inside fn stamps its write with the already-bumped revision. The flag is
// cleared when fn returns.
func (s *Storage) JarsMut(writeDurability Durability, fn func()) Revision {
	s.writeMu.Lock()
	s.cancelled.Store(true)
	for s.activeSnapshots > 0 {
		s.snapCond.Wait()
	}
	defer func() {
		s.cancelled.Store(false)
		s.writeMu.Unlock()
	}()

	next := s.clock.bump(writeDurability)
	fn()
	return next
}

// Reset discards all ingredient state, for tests that want a clean slate
// without rebuilding the whole Storage.
func (s *Storage) Reset() {
	at := s.clock.currentRevision()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ing := range s.routes {
		ing.Reset(at)
	}
}
