package increco

// Database is the facade a host application holds: it owns a Storage, an
// EventSink, a Config, and the current Runtime used for top-level queries
// issued outside of any other memoized call. Ingredients (Function,
// Interned, TrackedStructs, Inputs, Accumulator) are constructed against a
// *Database so they can register themselves with its Storage and reach its
// EventSink.
//
// Database.Runtime is the owning side of Storage's exclusivity protocol: it
// does not count as an outstanding snapshot, matching the source's
// Arc-refcount rule where jars_mut only needs every *cloned* Snapshot
// dropped, not the database's own handle. Only Database.Snapshot (for
// fanning a read-only view out to another goroutine) registers as an
// active snapshot that SetInput must wait to drain.
type Database struct {
	storage *Storage
	sink    EventSink
	config  Config
	root    *Runtime
}

// NewDatabase creates a Database with a fresh Storage and the given
// configuration. If cfg.DefaultLRUCapacity is unset, DefaultConfig's zero
// (unbounded) is used. A nil sink installs NewDefaultLogSink(nil).
func NewDatabase(cfg Config, sink EventSink) *Database {
	if sink == nil {
		sink = NewDefaultLogSink(nil)
	}
	storage := NewStorage()
	return &Database{
		storage: storage,
		sink:    sink,
		config:  cfg,
		root:    newRuntime(storage.clock, storage.cancelled),
	}
}

// Runtime returns the Database's current top-level Runtime, for issuing
// queries directly against the database rather than from within another
// memoized call.
func (db *Database) Runtime() *Runtime { return db.root }

// AttachJar asks j to build its ingredients. Each ingredient constructor
// (NewFunction, NewInterned, ...) self-registers with db's Storage, so
// AttachJar's only remaining job is to trigger construction.
func (db *Database) AttachJar(j Jar) {
	j.CreateIngredients(db)
}

// Snapshot hands out a new Runtime usable concurrently with the Database's
// own queries and any other live snapshot. The returned handle's Release
// must be called (typically via defer) once the snapshot is no longer
// needed, so a concurrent SetInput call can proceed.
func (db *Database) Snapshot() (*Runtime, *SnapshotHandle) {
	return db.storage.Snapshot()
}

// SetInput runs fn with exclusive access to the database, bumping the
// revision clock at durability (and every less durable level) before fn
// runs so any Inputs.Set call inside fn stamps its write with the new
// revision. This is the only legal way to call Inputs.Set or
// TrackedStructs deletion helpers, matching the source's "&mut db" access
// discipline.
func (db *Database) SetInput(durability Durability, fn func()) Revision {
	return db.storage.JarsMut(durability, fn)
}

// Close discards every ingredient's state. A Database otherwise owns no
// external resources and needs no explicit shutdown sequence.
func (db *Database) Close() {
	db.storage.Reset()
}
