package integrity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/idset"
	"github.com/snomed-ct/refinteg/internal/types"
)

// stubCriteria hands back a fixed Criteria regardless of the branch passed
// in, and records which mode was requested so tests can assert on call
// shape without a live Dolt connection.
type stubCriteria struct {
	visible    *branchcriteria.Criteria
	unpromoted *branchcriteria.Criteria
	unpromotedWithDeletions *branchcriteria.Criteria
	rootErr    error
}

func newStubCriteria() *stubCriteria {
	return &stubCriteria{
		visible:                 &branchcriteria.Criteria{Mode: branchcriteria.ModeVisible, AsOfRef: "head"},
		unpromoted:              &branchcriteria.Criteria{Mode: branchcriteria.ModeUnpromotedChanges, DiffFromRef: "base", DiffToRef: "head"},
		unpromotedWithDeletions: &branchcriteria.Criteria{Mode: branchcriteria.ModeUnpromotedChangesAndDeletions, DiffFromRef: "base", DiffToRef: "head"},
	}
}

func (s *stubCriteria) Visible(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return s.visible, s.rootErr
}
func (s *stubCriteria) UnpromotedChanges(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return s.unpromoted, s.rootErr
}
func (s *stubCriteria) UnpromotedChangesAndDeletions(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return s.unpromotedWithDeletions, s.rootErr
}
func (s *stubCriteria) VisibleIncludingOpenCommit(branch *types.Branch, openCommitRef string) *branchcriteria.Criteria {
	return &branchcriteria.Criteria{Mode: branchcriteria.ModeVisibleIncludingOpenCommit, AsOfRef: openCommitRef}
}

type stubBranches struct {
	branches map[string]*types.Branch
	updated  map[string]map[string]map[string]string
}

func newStubBranches(branches ...*types.Branch) *stubBranches {
	m := map[string]*types.Branch{}
	for _, b := range branches {
		m[b.Path] = b
	}
	return &stubBranches{branches: m, updated: map[string]map[string]map[string]string{}}
}

func (s *stubBranches) FindBranchOrThrow(ctx context.Context, path string) (*types.Branch, error) {
	b, ok := s.branches[path]
	if !ok {
		return nil, types.NewMisuseError("no such branch " + path)
	}
	return b, nil
}

func (s *stubBranches) UpdateMetadata(ctx context.Context, path string, metadata map[string]map[string]string) error {
	s.updated[path] = metadata
	return nil
}

// stubAxiomParser returns a fixed set of referenced concepts per OWL
// expression, keyed by the expression string itself, avoiding any
// dependency on internal/axiom's real parser for these unit tests.
func stubAxiomParser(refsByExpr map[string][]types.ConceptID) AxiomParserFunc {
	return func(owlExpression string) (*idset.Set, error) {
		return idset.FromSlice(refsByExpr[owlExpression]), nil
	}
}

func TestFindAllComponentsWithBadIntegrity_FlagsMissingSourceTypeDestination(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{
			{ConceptID: 1, Active: true},
			{ConceptID: 2, Active: true},
		},
		Relationships: []types.Relationship{
			{RelationshipID: 100, SourceID: 1, TypeID: 2, DestinationID: 999, CharacteristicType: types.CharacteristicStated, Active: true},
			{RelationshipID: 101, SourceID: 888, TypeID: 2, DestinationID: 1, CharacteristicType: types.CharacteristicStated, Active: true},
			{RelationshipID: 102, SourceID: 1, TypeID: 777, DestinationID: 2, CharacteristicType: types.CharacteristicStated, Active: true},
			{RelationshipID: 103, SourceID: 1, TypeID: 2, DestinationID: 999, Concrete: true, CharacteristicType: types.CharacteristicStated, Active: true},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)
	report, err := c.FindAllComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"}, true)
	require.NoError(t, err)

	assert.Equal(t, types.ConceptID(999), report.RelationshipsWithMissingOrInactiveDestination[100])
	assert.Equal(t, types.ConceptID(888), report.RelationshipsWithMissingOrInactiveSource[101])
	assert.Equal(t, types.ConceptID(777), report.RelationshipsWithMissingOrInactiveType[102])
	_, concreteFlagged := report.RelationshipsWithMissingOrInactiveDestination[103]
	assert.False(t, concreteFlagged, "concrete relationships must never be checked on destination")
}

func TestFindAllComponentsWithBadIntegrity_CharacteristicTypeFilter(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{{ConceptID: 1, Active: true}},
		Relationships: []types.Relationship{
			{RelationshipID: 200, SourceID: 1, TypeID: 1, DestinationID: 999, CharacteristicType: types.CharacteristicInferred, Active: true},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)

	statedReport, err := c.FindAllComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"}, true)
	require.NoError(t, err)
	assert.Empty(t, statedReport.RelationshipsWithMissingOrInactiveDestination, "inferred relationship must be excluded from the stated-form check")

	inferredReport, err := c.FindAllComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"}, false)
	require.NoError(t, err)
	assert.Equal(t, types.ConceptID(999), inferredReport.RelationshipsWithMissingOrInactiveDestination[200])
}

func TestFindAllComponentsWithBadIntegrity_AxiomPrefilterAndParse(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{{ConceptID: 1, Active: true}},
		QueryConcepts: []types.QueryConcept{
			{ConceptIDL: 10, Stated: true, Attributes: map[types.ConceptID][]types.ConceptID{2: {999}}},
			{ConceptIDL: 11, Stated: true, Attributes: map[types.ConceptID][]types.ConceptID{2: {1}}},
		},
		Members: []types.ReferenceSetMember{
			{MemberID: "m1", ReferencedComponentID: 10, RefsetID: 900000001, Active: true, OWLExpression: "axiom-with-bad-ref"},
			{MemberID: "m2", ReferencedComponentID: 11, RefsetID: 900000001, Active: true, OWLExpression: "axiom-all-active"},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)
	c.ParseAxiom = stubAxiomParser(map[string][]types.ConceptID{
		"axiom-with-bad-ref": {999},
		"axiom-all-active":   {1},
	})

	report, err := c.FindAllComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"}, true)
	require.NoError(t, err)
	require.Contains(t, report.AxiomsWithMissingOrInactiveReferencedConcept, "m1")
	assert.Equal(t, []types.ConceptID{999}, report.AxiomsWithMissingOrInactiveReferencedConcept["m1"].OffendingConceptIDs)
	assert.NotContains(t, report.AxiomsWithMissingOrInactiveReferencedConcept, "m2", "candidate whose attribute values are all active must not surface as a prefilter hit")
}

func TestFindAllComponentsWithBadIntegrity_AxiomParseErrorWrapped(t *testing.T) {
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{{ConceptID: 1, Active: true}},
		QueryConcepts: []types.QueryConcept{
			{ConceptIDL: 10, Stated: true, Attributes: map[types.ConceptID][]types.ConceptID{2: {999}}},
		},
		Members: []types.ReferenceSetMember{
			{MemberID: "bad", ReferencedComponentID: 10, RefsetID: 900000001, Active: true, OWLExpression: "malformed"},
		},
	}
	c := NewChecker(store, newStubCriteria(), newStubBranches(), 900000001)
	c.ParseAxiom = func(string) (*idset.Set, error) {
		return nil, assertErr{}
	}

	_, err := c.FindAllComponentsWithBadIntegrity(context.Background(), &types.Branch{Path: "MAIN"}, true)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAxiomParseError))
}

type assertErr struct{}

func (assertErr) Error() string { return "malformed axiom" }
