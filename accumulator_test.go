package increco

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorCollectsPerProducer(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	diagnostics := NewAccumulator[string](db)
	compute := NewFunction[string, int](db, func(db *Database, key string) int {
		diagnostics.Push(db.Runtime(), "visited "+key)
		return len(key)
	})

	rt := db.Runtime()
	compute.Fetch(rt, "abc")

	key := DatabaseKeyIndex{Ingredient: compute.IngredientIndex(), Key: Id(hashKey("abc"))}
	got := diagnostics.AccumulatedBy(rt, key)

	assert.Equal(t, []string{"visited abc"}, got)
}

func TestAccumulatorPushOutsideQueryPanics(t *testing.T) {
	db := NewDatabase(DefaultConfig(), nil)
	defer db.Close()

	acc := NewAccumulator[int](db)
	assert.Panics(t, func() {
		acc.Push(db.Runtime(), 1)
	})
}
