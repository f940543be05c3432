package branchcriteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromClauseVisibleModeUsesAsOf(t *testing.T) {
	c := &Criteria{Mode: ModeVisible, AsOfRef: "abcd1234"}
	assert.Equal(t, "`concept` AS OF 'abcd1234'", c.FromClause("concept"))
}

func TestFromClauseDiffModeUsesDoltDiff(t *testing.T) {
	c := &Criteria{Mode: ModeUnpromotedChanges, DiffFromRef: "base1", DiffToRef: "head1"}
	assert.Equal(t, "dolt_diff('base1', 'head1', 'relationship')", c.FromClause("relationship"))
}

func TestDiffTypeFilterExcludesDeletionsByDefault(t *testing.T) {
	c := &Criteria{Mode: ModeUnpromotedChanges}
	assert.Equal(t, "diff_type IN ('added', 'modified')", c.DiffTypeFilter())
}

func TestDiffTypeFilterIncludesDeletionsVariant(t *testing.T) {
	c := &Criteria{Mode: ModeUnpromotedChangesAndDeletions}
	assert.Equal(t, "diff_type IN ('added', 'modified', 'removed')", c.DiffTypeFilter())
	assert.True(t, c.IncludesDeletions())
}

func TestDiffTypeFilterEmptyForVisibleModes(t *testing.T) {
	assert.Equal(t, "", (&Criteria{Mode: ModeVisible}).DiffTypeFilter())
	assert.Equal(t, "", (&Criteria{Mode: ModeVisibleIncludingOpenCommit}).DiffTypeFilter())
}

func TestPredicateAndSkipsEmptyOperands(t *testing.T) {
	p := And(
		Predicate{SQL: "active = ?", Args: []any{true}},
		Predicate{},
		Predicate{SQL: "module_id = ?", Args: []any{900000000000207008}},
	)
	assert.Equal(t, "(active = ?) AND (module_id = ?)", p.SQL)
	assert.Equal(t, []any{true, 900000000000207008}, p.Args)
}

func TestPredicateOr(t *testing.T) {
	p := Or(
		Predicate{SQL: "source_id NOT IN (SELECT concept_id FROM active)"},
		Predicate{SQL: "type_id NOT IN (SELECT concept_id FROM active)"},
	)
	assert.Equal(t, "(source_id NOT IN (SELECT concept_id FROM active)) OR (type_id NOT IN (SELECT concept_id FROM active))", p.SQL)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "visible", ModeVisible.String())
	assert.Equal(t, "unpromotedChangesAndDeletions", ModeUnpromotedChangesAndDeletions.String())
}
