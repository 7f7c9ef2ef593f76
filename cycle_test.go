package increco

import "testing"

func TestCatchUnrelatedPanicPropagates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a non-cycle panic to propagate through Catch")
		}
	}()
	Catch(func() { panic("boom") })
}

func TestCatchCapturesCycle(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	var a, b *Function[string, int]
	a = NewFunction[string, int](db, func(db *Database, key string) int {
		return b.Fetch(db.Runtime(), key)
	})
	b = NewFunction[string, int](db, func(db *Database, key string) int {
		return a.Fetch(db.Runtime(), key)
	})

	participants, caught := Catch(func() {
		a.Fetch(db.Runtime(), "x")
	})
	if !caught {
		t.Fatalf("expected a cycle to be caught")
	}
	if len(participants) == 0 {
		t.Fatalf("expected at least one cycle participant")
	}
}
