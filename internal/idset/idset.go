// Package idset provides a dense set over 64-bit concept identifiers.
//
// Concept-ID universes reach into the low millions; a plain Go
// map[uint64]struct{} boxes each entry and fragments the heap badly at that
// scale. IdSet instead wraps a Roaring bitmap (the same compressed
// bitmap structure used for large integer sets in other high-cardinality Go
// systems), giving checkpoint-friendly memory use for the "active concept
// set" and the various offending-ID collections the checker builds.
package idset

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/snomed-ct/refinteg/internal/types"
)

// Set is a dense, mutable set of concept IDs.
type Set struct {
	bitmap *roaring64.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{bitmap: roaring64.New()}
}

// FromSlice builds a Set containing every ID in ids.
func FromSlice(ids []types.ConceptID) *Set {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id into the set.
func (s *Set) Add(id types.ConceptID) {
	s.bitmap.Add(uint64(id))
}

// Remove deletes id from the set, if present.
func (s *Set) Remove(id types.ConceptID) {
	s.bitmap.Remove(uint64(id))
}

// Contains reports whether id is a member of the set.
func (s *Set) Contains(id types.ConceptID) bool {
	return s.bitmap.Contains(uint64(id))
}

// Len returns the number of members.
func (s *Set) Len() int {
	return int(s.bitmap.GetCardinality())
}

// Slice returns the members as a sorted slice of ConceptID. Intended for
// small result sets (offending-ID collections); callers should not call
// this on the full active-concept universe.
func (s *Set) Slice() []types.ConceptID {
	raw := s.bitmap.ToArray()
	out := make([]types.ConceptID, len(raw))
	for i, v := range raw {
		out[i] = types.ConceptID(v)
	}
	return out
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	return &Set{bitmap: s.bitmap.Clone()}
}

// Union returns a new Set containing every member of s and other.
func (s *Set) Union(other *Set) *Set {
	return &Set{bitmap: roaring64.Or(s.bitmap, other.bitmap)}
}

// Intersect returns a new Set containing members present in both s and other.
func (s *Set) Intersect(other *Set) *Set {
	return &Set{bitmap: roaring64.And(s.bitmap, other.bitmap)}
}

// Difference returns a new Set containing members of s that are not in other
// (s \ other). This is the operation the checker leans on throughout §4:
// "changed concepts minus those currently active", "referenced concepts
// minus the active set", and so on.
func (s *Set) Difference(other *Set) *Set {
	return &Set{bitmap: roaring64.AndNot(s.bitmap, other.bitmap)}
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.bitmap.IsEmpty()
}

// Iterator returns a forward iterator over members in ascending order.
func (s *Set) Iterator() roaring64.IntPeekable64 {
	return s.bitmap.Iterator()
}

// ContainsAny reports whether at least one of ids is a member of s, without
// materializing the intersection. Used by the changed-only check's
// semantic-index prefilter (§4.5(a)): a QueryConcept is a candidate when some
// attribute value is in D. The full check's "some attribute value ∉ A" test
// is AnyNotIn below.
func (s *Set) ContainsAny(ids []types.ConceptID) bool {
	for _, id := range ids {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

// AnyNotIn reports whether at least one of ids is absent from s. This is the
// exact predicate used to flag a QueryConcept as a prefilter candidate:
// "some attribute value ∉ A".
func (s *Set) AnyNotIn(ids []types.ConceptID) bool {
	for _, id := range ids {
		if !s.Contains(id) {
			return true
		}
	}
	return false
}
