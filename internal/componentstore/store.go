// Package componentstore implements the ComponentStore streaming interface
// (§4.2/§6): scoped, lazily-paged iteration over Concept, Relationship,
// ReferenceSetMember, and QueryConcept records under a BranchCriteria
// snapshot. The graph-entity stores are Dolt-backed; the QueryConcept
// semantic index is Bleve-backed, mirroring the two-stage prefilter design
// of §4.4 step 3.
package componentstore

import (
	"context"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/types"
)

// LargePage bounds how many hits a semantic-index stream fetches per search
// request (§4.2's LARGE_PAGE implementation constant). Dolt-backed streams
// issue one query and read it row by row through sql.Rows, without paging.
// Callers never see paging — Next/Close hide it behind a plain cursor.
const LargePage = 5000

// ConceptCursor is a scoped, closeable iterator over Concept rows.
type ConceptCursor interface {
	// Next advances the cursor, returning false at end-of-stream or on
	// error (check Err to distinguish the two).
	Next(ctx context.Context) bool
	Concept() types.Concept
	Err() error
	Close() error
}

// RelationshipCursor is a scoped, closeable iterator over Relationship rows.
type RelationshipCursor interface {
	Next(ctx context.Context) bool
	Relationship() types.Relationship
	Err() error
	Close() error
}

// ReferenceSetMemberCursor is a scoped, closeable iterator over
// ReferenceSetMember rows.
type ReferenceSetMemberCursor interface {
	Next(ctx context.Context) bool
	Member() types.ReferenceSetMember
	Err() error
	Close() error
}

// QueryConceptCursor is a scoped, closeable iterator over QueryConcept rows.
type QueryConceptCursor interface {
	Next(ctx context.Context) bool
	QueryConcept() types.QueryConcept
	Err() error
	Close() error
}

// QueryConceptFilter narrows a semantic-index scan to one form, per §4.4
// step 3a ("QueryConcept entries where stated=true").
type QueryConceptFilter struct {
	Stated bool
}

// GraphStore streams the version-controlled graph entities under a given
// visibility criteria, each combined with an entity-specific filter
// predicate built by the caller (internal/integrity).
type GraphStore interface {
	StreamConcepts(ctx context.Context, c *branchcriteria.Criteria, filter branchcriteria.Predicate) (ConceptCursor, error)
	StreamRelationships(ctx context.Context, c *branchcriteria.Criteria, filter branchcriteria.Predicate) (RelationshipCursor, error)
	StreamReferenceSetMembers(ctx context.Context, c *branchcriteria.Criteria, filter branchcriteria.Predicate) (ReferenceSetMemberCursor, error)
}

// SemanticIndexStore streams the precomputed QueryConcept prefilter rows.
type SemanticIndexStore interface {
	StreamQueryConcepts(ctx context.Context, c *branchcriteria.Criteria, filter QueryConceptFilter) (QueryConceptCursor, error)
}

// Store is the full ComponentStore surface the checker consumes (§6).
type Store interface {
	GraphStore
	SemanticIndexStore
}

// CompositeStore wires a Dolt-backed GraphStore and a Bleve-backed
// SemanticIndexStore behind the single Store surface the checker expects,
// so the two physically distinct backends can be swapped independently
// (e.g. an in-memory GraphStore against a real Bleve index in tests).
type CompositeStore struct {
	Graph    GraphStore
	Semantic SemanticIndexStore
}

var _ Store = (*CompositeStore)(nil)

func (c *CompositeStore) StreamConcepts(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (ConceptCursor, error) {
	return c.Graph.StreamConcepts(ctx, crit, filter)
}

func (c *CompositeStore) StreamRelationships(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (RelationshipCursor, error) {
	return c.Graph.StreamRelationships(ctx, crit, filter)
}

func (c *CompositeStore) StreamReferenceSetMembers(ctx context.Context, crit *branchcriteria.Criteria, filter branchcriteria.Predicate) (ReferenceSetMemberCursor, error) {
	return c.Graph.StreamReferenceSetMembers(ctx, crit, filter)
}

func (c *CompositeStore) StreamQueryConcepts(ctx context.Context, crit *branchcriteria.Criteria, filter QueryConceptFilter) (QueryConceptCursor, error) {
	return c.Semantic.StreamQueryConcepts(ctx, crit, filter)
}
