package componentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/types"
)

func TestMemoryStoreStreamsSeededConcepts(t *testing.T) {
	store := &MemoryStore{
		Concepts: []types.Concept{
			{ConceptID: 1, Active: true},
			{ConceptID: 2, Active: false},
		},
	}
	cursor, err := store.StreamConcepts(context.Background(), &branchcriteria.Criteria{}, branchcriteria.Predicate{})
	require.NoError(t, err)
	defer cursor.Close()

	var got []types.ConceptID
	for cursor.Next(context.Background()) {
		got = append(got, cursor.Concept().ConceptID)
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, []types.ConceptID{1, 2}, got)
}

func TestMemoryStoreQueryConceptsFilterByStated(t *testing.T) {
	store := &MemoryStore{
		QueryConcepts: []types.QueryConcept{
			{ConceptIDL: 1, Stated: true},
			{ConceptIDL: 1, Stated: false},
			{ConceptIDL: 2, Stated: true},
		},
	}
	cursor, err := store.StreamQueryConcepts(context.Background(), &branchcriteria.Criteria{}, QueryConceptFilter{Stated: true})
	require.NoError(t, err)
	defer cursor.Close()

	var count int
	for cursor.Next(context.Background()) {
		assert.True(t, cursor.QueryConcept().Stated)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestCompositeStoreDelegatesToGraphAndSemantic(t *testing.T) {
	graph := &MemoryStore{Concepts: []types.Concept{{ConceptID: 42, Active: true}}}
	semantic := &MemoryStore{QueryConcepts: []types.QueryConcept{{ConceptIDL: 42, Stated: true}}}
	composite := &CompositeStore{Graph: graph, Semantic: semantic}

	concepts, err := composite.StreamConcepts(context.Background(), &branchcriteria.Criteria{}, branchcriteria.Predicate{})
	require.NoError(t, err)
	require.True(t, concepts.Next(context.Background()))
	assert.Equal(t, types.ConceptID(42), concepts.Concept().ConceptID)

	qcs, err := composite.StreamQueryConcepts(context.Background(), &branchcriteria.Criteria{}, QueryConceptFilter{Stated: true})
	require.NoError(t, err)
	require.True(t, qcs.Next(context.Background()))
	assert.Equal(t, types.ConceptID(42), qcs.QueryConcept().ConceptIDL)
}

func TestBuildQueryUsesAsOfForVisibleCriteria(t *testing.T) {
	crit := &branchcriteria.Criteria{Mode: branchcriteria.ModeVisible, AsOfRef: "hash1"}
	filter := branchcriteria.Predicate{SQL: "active = ?", Args: []any{true}}
	query, args := buildQuery(crit, "concept", []string{"concept_id", "active"}, filter)
	assert.Equal(t, "SELECT concept_id, active FROM `concept` AS OF 'hash1' WHERE (active = ?)", query)
	assert.Equal(t, []any{true}, args)
}

func TestBuildQueryUsesDoltDiffForUnpromotedCriteria(t *testing.T) {
	crit := &branchcriteria.Criteria{Mode: branchcriteria.ModeUnpromotedChanges, DiffFromRef: "base", DiffToRef: "head"}
	query, _ := buildQuery(crit, "relationship", []string{"relationship_id"}, branchcriteria.Predicate{})
	assert.Equal(t, "SELECT COALESCE(to_relationship_id, from_relationship_id) AS relationship_id FROM dolt_diff('base', 'head', 'relationship') WHERE (diff_type IN ('added', 'modified'))", query)
}
