package increco

import "fmt"

// Revision numbers the database's global write clock. R0 is the sentinel
// value no real write ever produces; every database starts at R1 and each
// call to Storage.JarsMut bumps the counter, whether or not an input's value
// actually changes.
type Revision uint64

// R0 is emitted by nothing; it exists only so zero-value Revision fields in
// not-yet-initialized structs are visibly invalid rather than a false "first
// revision".
const R0 Revision = 0

func (r Revision) String() string { return fmt.Sprintf("R%d", uint64(r)) }

// Next returns the revision immediately after r.
func (r Revision) Next() Revision { return r + 1 }

// Durability buckets inputs by how often they're expected to change.
// Verifying a memo only re-checks the durability levels at or above its
// reduced durability (the most volatile of its dependencies), so a memo
// whose inputs are all coarse-grained settles its shallow check faster.
type Durability uint8

const (
	DurabilityLow Durability = iota
	DurabilityMedium
	DurabilityHigh
	durabilityCount
)

// DurabilityUntracked is a sentinel one past the coarsest tracked level. No
// input or memo is stamped with it: revisionClock.lastChangedAt reports the
// current revision for it, and Memo.durability reports it for a nil memo.
// Memos that read untracked state are marked by their inputs kind
// (inputsUntracked), not by this durability.
const DurabilityUntracked Durability = durabilityCount

func (d Durability) String() string {
	switch d {
	case DurabilityLow:
		return "Low"
	case DurabilityMedium:
		return "Medium"
	case DurabilityHigh:
		return "High"
	case DurabilityUntracked:
		return "Untracked"
	default:
		return fmt.Sprintf("Durability(%d)", uint8(d))
	}
}

// MaxConst is the coarsest tracked durability; used as the default starting
// point when reducing a memo's durability across its recorded inputs.
const MaxConst = DurabilityHigh
