package increco

import "testing"

func TestRevisionNext(t *testing.T) {
	if R0.Next() != Revision(1) {
		t.Fatalf("expected R0.Next() == R1, got %s", R0.Next())
	}
}

func TestDurabilityOrdering(t *testing.T) {
	if !(DurabilityLow < DurabilityMedium && DurabilityMedium < DurabilityHigh) {
		t.Fatalf("expected Low < Medium < High")
	}
	if DurabilityHigh >= DurabilityUntracked {
		t.Fatalf("expected High < Untracked")
	}
}

func TestIdValid(t *testing.T) {
	if NullId.Valid() {
		t.Fatalf("NullId must not be valid")
	}
	if !Id(0).Valid() {
		t.Fatalf("Id(0) must be valid")
	}
}
