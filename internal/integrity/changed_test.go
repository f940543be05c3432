package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/types"
)

func TestFindChangedComponentsWithBadIntegrity_RejectsRootBranch(t *testing.T) {
	c := NewChecker(&componentstore.MemoryStore{}, newStubCriteria(), newStubBranches(), 900000001)
	_, err := c.FindChangedComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMisuseError))
}

func TestFindChangedComponentsWithBadIntegrity_FindsReferenceIntoDeletedConcept(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{
			{ConceptID: 1, Active: true},
			{ConceptID: 50, Active: false},
		},
		Relationships: []types.Relationship{
			{RelationshipID: 500, SourceID: 1, TypeID: 1, DestinationID: 50, CharacteristicType: types.CharacteristicStated, Active: true},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)

	report, err := c.FindChangedComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN/task-1"})
	require.NoError(t, err)
	require.Contains(t, report.RelationshipsWithMissingOrInactiveDestination, uint64(500))
	assert.Equal(t, types.ConceptID(50), report.RelationshipsWithMissingOrInactiveDestination[500])
}

func TestFindChangedComponentsWithBadIntegrity_AxiomReferencingDeletedConcept(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{
			{ConceptID: 1, Active: true},
			{ConceptID: 60, Active: false},
		},
		QueryConcepts: []types.QueryConcept{
			{ConceptIDL: 10, Stated: true, Attributes: map[types.ConceptID][]types.ConceptID{2: {60}}},
		},
		Members: []types.ReferenceSetMember{
			{MemberID: "m1", ReferencedComponentID: 10, RefsetID: 900000001, Active: true, OWLExpression: "expr-referencing-60"},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)
	c.ParseAxiom = stubAxiomParser(map[string][]types.ConceptID{
		"expr-referencing-60": {60},
	})

	report, err := c.FindChangedComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN/task-1"})
	require.NoError(t, err)
	require.Contains(t, report.AxiomsWithMissingOrInactiveReferencedConcept, "m1")
	assert.Equal(t, []types.ConceptID{60}, report.AxiomsWithMissingOrInactiveReferencedConcept["m1"].OffendingConceptIDs)
}
