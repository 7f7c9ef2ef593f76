package increco

import "fmt"

// Cancelled is delivered to an in-flight query via panic once Storage.JarsMut
// has set the cancellation flag and is waiting for outstanding snapshots to
// release. Memoized call sites do not recover it; CatchCancelled turns it
// back into an error. A query that does not read any database state will
// never observe it.
type Cancelled struct {
	Reason string
}

func (c *Cancelled) Error() string { return fmt.Sprintf("query cancelled: %s", c.Reason) }

// cyclePanic is the unwinding payload used to implement cycle detection. It
// is thrown via panic and recovered at each memoized call site, which either
// re-panics (propagating the cycle to an outer frame) or resolves it via the
// participating function's cycle-recovery strategy.
type cyclePanic struct {
	participants []DatabaseKeyIndex
}

func (c *cyclePanic) Error() string {
	return fmt.Sprintf("dependency cycle across %d participants", len(c.participants))
}

// ErrIllegalUpdate is returned by Inputs.Set when a write targets a revision
// older than the input's last write, which can only happen if a caller holds
// a stale exclusive handle.
var ErrIllegalUpdate = fmt.Errorf("illegal update: input already advanced past this revision")

// ErrStructExpired is returned by a tracked-struct field accessor when the
// struct's Id is no longer in its table (deleted as stale, or never
// created). A struct that is still in the table is readable even if its
// creator has not re-created it in the current revision.
var ErrStructExpired = fmt.Errorf("tracked struct field read after expiry")

// CycleRecoveryStrategy selects what a memoized function does when it is
// discovered to participate in a dependency cycle.
type CycleRecoveryStrategy int

const (
	// CyclePanic re-panics the cycle payload; it propagates to the nearest
	// ancestor query that declared CycleFallback, or to the top-level caller
	// if none did.
	CyclePanic CycleRecoveryStrategy = iota
	// CycleFallback calls the function's configured fallback to produce a
	// value for the cycle participant instead of propagating the panic.
	CycleFallback
)
