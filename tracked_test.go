package increco

import "testing"

func TestTrackedStructDisambiguation(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	type fields struct{ N int }
	pts := NewTrackedStructs[fields](db)

	var ids []Id
	collect := NewFunction[string, int](db, func(db *Database, key string) int {
		rt := db.Runtime()
		for i := 0; i < 3; i++ {
			ids = append(ids, pts.New(rt, "same-key", fields{N: i}))
		}
		return len(ids)
	})

	collect.Fetch(db.Runtime(), "go")

	if len(ids) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(ids))
	}
	if ids[0] == ids[1] || ids[1] == ids[2] || ids[0] == ids[2] {
		t.Fatalf("three New calls with the same id-fields in one execution must disambiguate to distinct Ids, got %v", ids)
	}
}

func TestTrackedStructDeleteStaleInstances(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	type fields struct{ Name string }
	pts := NewTrackedStructs[fields](db)

	producer := DatabaseKeyIndex{Ingredient: 999, Key: 1}
	rt := db.Runtime()
	frame, pop := rt.pushQuery(producer, CyclePanic)
	_ = frame
	id := pts.New(rt, "gone-next-round", fields{Name: "x"})
	pop()

	pts.DeleteStaleInstances(producer, rt.currentRevision().Next())

	if _, err := pts.Fields(rt, id); err != ErrStructExpired {
		t.Fatalf("expected instance not recreated this revision to be deleted, got err=%v", err)
	}
}

// TestTrackedStructFieldGranularity covers the companion field ingredient:
// changing one field must not advance a sibling field's own changed_at.
func TestTrackedStructFieldGranularity(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	type fields struct {
		Name string
		Age  int
	}
	people := NewTrackedStructs[fields](db)
	src := NewInputs[string, int](db, DurabilityLow)

	var id Id
	makePerson := NewFunction[string, Id](db, func(db *Database, name string) Id {
		age := src.Get(db.Runtime(), name)
		id = people.New(db.Runtime(), name, fields{Name: name, Age: age})
		return id
	})

	db.SetInput(DurabilityLow, func() {
		if err := src.Set(db.Runtime(), "alice", 30); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	rt := db.Runtime()
	makePerson.Fetch(rt, "alice")

	name0, err := people.Field(rt, id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	age0, err := people.Field(rt, id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name0 != "alice" || age0 != 30 {
		t.Fatalf("got name=%v age=%v, want alice/30", name0, age0)
	}

	r1 := rt.currentRevision()

	db.SetInput(DurabilityLow, func() {
		if err := src.Set(db.Runtime(), "alice", 31); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	rt = db.Runtime()
	makePerson.Fetch(rt, "alice")

	if changed := people.fieldMaybeChangedAfter(fieldKeyId(id, 1), r1); !changed {
		t.Fatalf("Age field must report changed after Age was updated")
	}
	if changed := people.fieldMaybeChangedAfter(fieldKeyId(id, 0), r1); changed {
		t.Fatalf("Name field must not report changed when only Age was updated")
	}
}
