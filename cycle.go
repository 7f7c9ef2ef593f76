package increco

// Catch runs fn and recovers a cycle panic raised anywhere inside it,
// returning the cycle's participants instead of letting the panic escape.
// It is the top-level counterpart to each Function's internal
// CyclePanic/CycleFallback handling: a host that issues a query without any
// ingredient configured to catch the cycle itself can use Catch to avoid
// crashing the whole program, mirroring the source's description of Cycle
// as "an unwinding payload intercepted at each memoized call site" — Catch
// is simply the outermost call site.
func Catch(fn func()) (participants []DatabaseKeyIndex, caught bool) {
	defer func() {
		if r := recover(); r != nil {
			if cp, ok := r.(*cyclePanic); ok {
				participants = cp.participants
				caught = true
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil, false
}

// CatchCancelled runs fn and recovers a *Cancelled panic, returning it as a
// normal error instead of letting it unwind past the caller. Used by a host
// that wants to treat a cancelled top-level query as a recoverable
// condition rather than a crash.
func CatchCancelled(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if c, ok := r.(*Cancelled); ok {
				err = c
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}
