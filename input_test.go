package increco

import "testing"

func TestInputUnsetReadPanics(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	in := NewInputs[string, int](db, DurabilityLow)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic reading an unset input")
		}
	}()
	in.Get(db.Runtime(), "missing")
}

func TestInputIllegalUpdate(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	in := NewInputs[string, int](db, DurabilityLow)

	db.SetInput(DurabilityLow, func() {
		if err := in.Set(db.Runtime(), "k", 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	// simulate a stale write attempt: directly poke a future changedAt to
	// provoke ErrIllegalUpdate on the next Set at the current revision.
	in.mu.Lock()
	in.vals["k"].changedAt = in.vals["k"].changedAt + 1000
	in.mu.Unlock()

	db.SetInput(DurabilityLow, func() {
		err := in.Set(db.Runtime(), "k", 2)
		if err != ErrIllegalUpdate {
			t.Fatalf("expected ErrIllegalUpdate, got %v", err)
		}
	})
}
