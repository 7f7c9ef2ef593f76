package increco

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// hashKey collapses an arbitrary comparable key into a uint64, used both to
// disambiguate tracked-struct identities within their creating query and to
// give memoized-function and input keys a single Id-sized representative. It is
// intentionally a hash of the key's %#v rendering rather than a
// reflect-based field walk: every kept teacher package that needs a stable
// cross-call key (job dedup, cache keys) does the same "stringify, then
// hash" thing rather than hand-rolling per-type hashers.
func hashKey(key any) uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%#v", key)
	return d.Sum64()
}
