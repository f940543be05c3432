package idset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snomed-ct/refinteg/internal/types"
)

func TestSetBasics(t *testing.T) {
	s := New()
	assert.True(t, s.IsEmpty())

	s.Add(100)
	s.Add(200)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(100))
	assert.False(t, s.Contains(300))

	s.Remove(100)
	assert.False(t, s.Contains(100))
}

func TestSetDifference(t *testing.T) {
	a := FromSlice([]types.ConceptID{1, 2, 3})
	b := FromSlice([]types.ConceptID{2})

	diff := a.Difference(b)
	assert.ElementsMatch(t, []types.ConceptID{1, 3}, diff.Slice())
}

func TestSetUnionAndIntersect(t *testing.T) {
	a := FromSlice([]types.ConceptID{1, 2})
	b := FromSlice([]types.ConceptID{2, 3})

	assert.ElementsMatch(t, []types.ConceptID{1, 2, 3}, a.Union(b).Slice())
	assert.ElementsMatch(t, []types.ConceptID{2}, a.Intersect(b).Slice())
}

func TestAnyNotIn(t *testing.T) {
	active := FromSlice([]types.ConceptID{1, 2, 3})
	assert.False(t, active.AnyNotIn([]types.ConceptID{1, 2}))
	assert.True(t, active.AnyNotIn([]types.ConceptID{1, 999}))
}
