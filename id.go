package increco

import "fmt"

// Id is a small integer handle into an ingredient's internal storage: an
// interned value, a tracked struct instance, or a function's memo table
// entry. Ids are only meaningful relative to the ingredient that minted
// them; comparing Ids from two different ingredients is a caller bug.
type Id uint32

// NullId is reserved as the "absent" sentinel. Valid Ids never equal it.
const NullId Id = 0xFFFFFFFF

// Valid reports whether id is anything other than NullId.
func (id Id) Valid() bool { return id != NullId }

func (id Id) String() string {
	if id == NullId {
		return "Id(null)"
	}
	return fmt.Sprintf("Id(%d)", uint32(id))
}

// IngredientIndex identifies one ingredient (a memoized function, an
// interned struct, a tracked struct, an input, or an accumulator) within a
// Storage's route table.
type IngredientIndex uint32

func (i IngredientIndex) String() string { return fmt.Sprintf("Ingredient(%d)", uint32(i)) }

// DependencyIndex pairs an ingredient with an optional key Id within it. A
// zero-value key field combined with KeyPresent == false means "this
// ingredient as a whole" (used for input/accumulator dependencies that are
// not keyed by a specific Id).
type DependencyIndex struct {
	Ingredient IngredientIndex
	Key        Id
	KeyPresent bool
}

func NewDependencyIndex(ing IngredientIndex, key Id) DependencyIndex {
	return DependencyIndex{Ingredient: ing, Key: key, KeyPresent: true}
}

func NewUnkeyedDependencyIndex(ing IngredientIndex) DependencyIndex {
	return DependencyIndex{Ingredient: ing}
}

// DatabaseKeyIndex identifies one entry (one memoized call, one tracked
// struct instance) anywhere in the database: which ingredient, which key.
type DatabaseKeyIndex struct {
	Ingredient IngredientIndex
	Key        Id
}

func (k DatabaseKeyIndex) String() string {
	return fmt.Sprintf("%s/%s", k.Ingredient, k.Key)
}
