package componentstore

import (
	"context"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/types"
)

// MemoryStore is an in-memory Store test double. It ignores the Criteria
// and Predicate arguments entirely (except StreamQueryConcepts's Stated
// filter) and streams every seeded record unfiltered — adequate for
// exercising internal/integrity's algorithms without a live Dolt/Bleve
// backend, as long as callers defensively re-check activeness and
// characteristic type on the records they receive, the way checker.go does.
type MemoryStore struct {
	Concepts      []types.Concept
	Relationships []types.Relationship
	Members       []types.ReferenceSetMember
	QueryConcepts []types.QueryConcept
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) StreamConcepts(ctx context.Context, _ *branchcriteria.Criteria, _ branchcriteria.Predicate) (ConceptCursor, error) {
	return &memoryConceptCursor{items: m.Concepts, pos: -1}, nil
}

func (m *MemoryStore) StreamRelationships(ctx context.Context, _ *branchcriteria.Criteria, _ branchcriteria.Predicate) (RelationshipCursor, error) {
	return &memoryRelationshipCursor{items: m.Relationships, pos: -1}, nil
}

func (m *MemoryStore) StreamReferenceSetMembers(ctx context.Context, _ *branchcriteria.Criteria, _ branchcriteria.Predicate) (ReferenceSetMemberCursor, error) {
	return &memoryMemberCursor{items: m.Members, pos: -1}, nil
}

func (m *MemoryStore) StreamQueryConcepts(ctx context.Context, _ *branchcriteria.Criteria, filter QueryConceptFilter) (QueryConceptCursor, error) {
	var items []types.QueryConcept
	for _, qc := range m.QueryConcepts {
		if qc.Stated == filter.Stated {
			items = append(items, qc)
		}
	}
	return &memoryQueryConceptCursor{items: items, pos: -1}, nil
}

type memoryConceptCursor struct {
	items []types.Concept
	pos   int
}

func (c *memoryConceptCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.items)
}
func (c *memoryConceptCursor) Concept() types.Concept { return c.items[c.pos] }
func (c *memoryConceptCursor) Err() error             { return nil }
func (c *memoryConceptCursor) Close() error           { return nil }

type memoryRelationshipCursor struct {
	items []types.Relationship
	pos   int
}

func (c *memoryRelationshipCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.items)
}
func (c *memoryRelationshipCursor) Relationship() types.Relationship { return c.items[c.pos] }
func (c *memoryRelationshipCursor) Err() error                       { return nil }
func (c *memoryRelationshipCursor) Close() error                     { return nil }

type memoryMemberCursor struct {
	items []types.ReferenceSetMember
	pos   int
}

func (c *memoryMemberCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.items)
}
func (c *memoryMemberCursor) Member() types.ReferenceSetMember { return c.items[c.pos] }
func (c *memoryMemberCursor) Err() error                       { return nil }
func (c *memoryMemberCursor) Close() error                     { return nil }

type memoryQueryConceptCursor struct {
	items []types.QueryConcept
	pos   int
}

func (c *memoryQueryConceptCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.items)
}
func (c *memoryQueryConceptCursor) QueryConcept() types.QueryConcept { return c.items[c.pos] }
func (c *memoryQueryConceptCursor) Err() error                       { return nil }
func (c *memoryQueryConceptCursor) Close() error                     { return nil }
