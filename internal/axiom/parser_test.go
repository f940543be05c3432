package axiom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/types"
)

func TestParseConceptReferenceCurie(t *testing.T) {
	id, ok := ParseConceptReference(":73211009")
	require.True(t, ok)
	assert.Equal(t, types.ConceptID(73211009), id)
}

func TestParseConceptReferenceIRI(t *testing.T) {
	id, ok := ParseConceptReference("<http://snomed.info/id/73211009>")
	require.True(t, ok)
	assert.Equal(t, types.ConceptID(73211009), id)
}

func TestParseConceptReferenceRejectsNonConceptAtoms(t *testing.T) {
	cases := []string{
		"xsd:decimal",
		"owl:Thing",
		"<http://www.w3.org/2002/07/owl#Thing>",
		"ObjectSomeValuesFrom",
		":abc",
		":123", // too short to be a real SCTID
	}
	for _, c := range cases {
		_, ok := ParseConceptReference(c)
		assert.False(t, ok, "expected %q to not parse as a concept reference", c)
	}
}

func TestExtractReferencedConceptsSimpleSubClassOf(t *testing.T) {
	refs, err := ExtractReferencedConcepts("SubClassOf(:73211009 :64572001)")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ConceptID{73211009, 64572001}, refs.Slice())
}

func TestExtractReferencedConceptsNestedExpression(t *testing.T) {
	expr := "EquivalentClasses(:195967001 ObjectIntersectionOf(:50043002 " +
		"ObjectSomeValuesFrom(:363698007 :39057004) ObjectSomeValuesFrom(:116676008 :415582006)))"
	refs, err := ExtractReferencedConcepts(expr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ConceptID{
		195967001, 50043002, 363698007, 39057004, 116676008, 415582006,
	}, refs.Slice())
}

func TestExtractReferencedConceptsIgnoresDatatypeLiterals(t *testing.T) {
	expr := `SubClassOf(:373873005 ObjectIntersectionOf(:105590001 ` +
		`DataHasValue(:1142135004 "3"^^xsd:decimal)))`
	refs, err := ExtractReferencedConcepts(expr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ConceptID{373873005, 105590001, 1142135004}, refs.Slice())
}

func TestExtractReferencedConceptsIgnoresAnnotationIRIs(t *testing.T) {
	expr := "SubClassOf(<http://www.w3.org/2002/07/owl#Thing> :73211009)"
	refs, err := ExtractReferencedConcepts(expr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ConceptID{73211009}, refs.Slice())
}

func TestExtractReferencedConceptsRejectsUnbalancedParens(t *testing.T) {
	_, err := ExtractReferencedConcepts("SubClassOf(:73211009 ObjectSomeValuesFrom(:246075003 :410942007)")
	assert.Error(t, err)
}

func TestExtractReferencedConceptsRejectsEmpty(t *testing.T) {
	_, err := ExtractReferencedConcepts("   ")
	assert.Error(t, err)
}

func TestExtractReferencedConceptsDeduplicates(t *testing.T) {
	refs, err := ExtractReferencedConcepts("SubClassOf(:73211009 ObjectIntersectionOf(:73211009 :64572001))")
	require.NoError(t, err)
	assert.Equal(t, 2, refs.Len())
}
