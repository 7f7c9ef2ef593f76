package increco

// queryRevisions records what one memoized call observed: the revision at
// which it last changed, its reduced durability, and the set of
// dependencies it read (or the two special markers Untracked / NoInputs).
// The revision at which it was last verified lives on the owning Memo, not
// here, since two memos sharing identical revisions (e.g. after backdating)
// can still be independently re-verified at different times.
type inputsKind int

const (
	inputsTracked inputsKind = iota
	inputsUntracked
	inputsNoInputs
)

type queryRevisions struct {
	changedAt  Revision
	durability Durability
	kind       inputsKind
	inputs     []DependencyIndex
}

// activeQuery is one frame of a Runtime's query stack: the query currently
// executing, and everything it has recorded about itself so far.
type activeQuery struct {
	key            DatabaseKeyIndex
	durability     Durability
	changedAt      Revision
	inputs         []DependencyIndex
	untracked      bool
	noInputs       bool
	cycleStrategy  CycleRecoveryStrategy
	cycleHead      *DatabaseKeyIndex
}

func newActiveQuery(key DatabaseKeyIndex, strategy CycleRecoveryStrategy) *activeQuery {
	return &activeQuery{
		key:           key,
		durability:    MaxConst,
		changedAt:     R0,
		noInputs:      true,
		cycleStrategy: strategy,
	}
}

// addRead folds one dependency read into the active query: its reduced
// durability (min of the two), its changed_at (max of the two), and the
// dependency itself, unless the query has already been marked Untracked.
func (q *activeQuery) addRead(dep DependencyIndex, durability Durability, changedAt Revision) {
	q.noInputs = false
	if q.untracked {
		return
	}
	if durability < q.durability {
		q.durability = durability
	}
	if changedAt > q.changedAt {
		q.changedAt = changedAt
	}
	q.inputs = append(q.inputs, dep)
}

// addUntrackedRead marks the query as having consulted untracked state
// (e.g. current time, randomness, or another untracked-durability
// function): such a query can never be verified cheaply and must always be
// re-executed.
func (q *activeQuery) addUntrackedRead() {
	q.untracked = true
	q.noInputs = false
	q.inputs = nil
}

func (q *activeQuery) revisions() queryRevisions {
	kind := inputsTracked
	switch {
	case q.untracked:
		kind = inputsUntracked
	case q.noInputs:
		kind = inputsNoInputs
	}
	return queryRevisions{
		changedAt:  q.changedAt,
		durability: q.durability,
		kind:       kind,
		inputs:     q.inputs,
	}
}

// queryStack is a Runtime's LIFO of in-progress memoized calls, used both to
// record dependency reads against the right frame and to detect cycles
// (walking the stack for a key already on it is the same
// visited/in-recursion-stack shape graph/dag.go uses for checkCycleManual).
//
// Only the top frame ever receives a recorded read directly: a callee's own
// reads are folded into its caller's frame exactly once, when the callee
// finishes and the caller records a single dependency on the callee's output
// (Function.recordDependency). Replaying every leaf read into every ancestor
// frame would make an ancestor depend directly on inputs several calls deep,
// bypassing any backdating its immediate callee performed.
type queryStack struct {
	frames []*activeQuery
}

func (s *queryStack) push(key DatabaseKeyIndex, strategy CycleRecoveryStrategy) *activeQuery {
	q := newActiveQuery(key, strategy)
	s.frames = append(s.frames, q)
	return q
}

func (s *queryStack) pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *queryStack) top() *activeQuery {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// recordRead folds a dependency read into the frame currently executing
// (the top of the stack) only, mirroring report_tracked_read acting "on the
// top frame." A caller further down the stack picks up this read
// transitively only through the single recordDependency edge its own call
// to the callee produces, not by having the leaf read replayed into it
// directly.
func (s *queryStack) recordRead(dep DependencyIndex, durability Durability, changedAt Revision) {
	f := s.top()
	if f == nil {
		return
	}
	f.addRead(dep, durability, changedAt)
}

func (s *queryStack) recordUntrackedRead() {
	f := s.top()
	if f == nil {
		return
	}
	f.addUntrackedRead()
}

// findCycle reports whether key is already on the stack, and if so returns
// the cycle participants from that frame to the top (inclusive).
func (s *queryStack) findCycle(key DatabaseKeyIndex) ([]DatabaseKeyIndex, bool) {
	for i, f := range s.frames {
		if f.key == key {
			participants := make([]DatabaseKeyIndex, 0, len(s.frames)-i)
			for _, g := range s.frames[i:] {
				participants = append(participants, g.key)
			}
			return participants, true
		}
	}
	return nil, false
}
