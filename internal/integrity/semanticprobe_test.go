package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/types"
)

func TestFindExtraConceptsInSemanticIndex_PartitionsByForm(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{{ConceptID: 1, Active: true}},
		QueryConcepts: []types.QueryConcept{
			{ConceptIDL: 1, Stated: true},
			{ConceptIDL: 99, Stated: true},
			{ConceptIDL: 1, Stated: false},
			{ConceptIDL: 88, Stated: false},
		},
	}
	branch := &types.Branch{Path: "MAIN"}
	c := NewChecker(store, newStubCriteria(), newStubBranches(branch), 900000001)

	result, err := c.FindExtraConceptsInSemanticIndex(context.Background(), branch.Path)
	require.NoError(t, err)
	assert.Equal(t, []types.ConceptID{99}, result.Stated)
	assert.Equal(t, []types.ConceptID{88}, result.Inferred)
}

func TestFindExtraConceptsInSemanticIndex_UnknownBranch(t *testing.T) {
	c := NewChecker(&componentstore.MemoryStore{}, newStubCriteria(), newStubBranches(), 900000001)
	_, err := c.FindExtraConceptsInSemanticIndex(context.Background(), "MAIN/does-not-exist")
	require.Error(t, err)
}
