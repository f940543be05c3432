package commithook

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snomed-ct/refinteg/internal/branchcriteria"
	"github.com/snomed-ct/refinteg/internal/componentstore"
	"github.com/snomed-ct/refinteg/internal/integrity"
	"github.com/snomed-ct/refinteg/internal/types"
)

type fakeCriteria struct {
	openCommit *branchcriteria.Criteria
}

func (f *fakeCriteria) Visible(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return &branchcriteria.Criteria{Mode: branchcriteria.ModeVisible, AsOfRef: "head"}, nil
}
func (f *fakeCriteria) UnpromotedChanges(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return &branchcriteria.Criteria{Mode: branchcriteria.ModeUnpromotedChanges, DiffFromRef: "base", DiffToRef: "head"}, nil
}
func (f *fakeCriteria) UnpromotedChangesAndDeletions(ctx context.Context, branch *types.Branch) (*branchcriteria.Criteria, error) {
	return &branchcriteria.Criteria{Mode: branchcriteria.ModeUnpromotedChangesAndDeletions, DiffFromRef: "base", DiffToRef: "head"}, nil
}
func (f *fakeCriteria) VisibleIncludingOpenCommit(branch *types.Branch, openCommitRef string) *branchcriteria.Criteria {
	f.openCommit = &branchcriteria.Criteria{Mode: branchcriteria.ModeVisibleIncludingOpenCommit, AsOfRef: openCommitRef}
	return f.openCommit
}

type fakeBranches struct {
	updated map[string]map[string]map[string]string
}

func newFakeBranches() *fakeBranches {
	return &fakeBranches{updated: map[string]map[string]map[string]string{}}
}

func (f *fakeBranches) FindBranchOrThrow(ctx context.Context, path string) (*types.Branch, error) {
	return &types.Branch{Path: path}, nil
}

func (f *fakeBranches) UpdateMetadata(ctx context.Context, path string, metadata map[string]map[string]string) error {
	f.updated[path] = metadata
	return nil
}

func TestOnPreCommit_IgnoresRebaseCommit(t *testing.T) {
	branches := newFakeBranches()
	checker := integrity.NewChecker(&componentstore.MemoryStore{}, &fakeCriteria{}, branches, 900000001)
	hook := New(checker, slog.Default())

	branch := &types.Branch{Path: "MAIN/task1"}
	branch.SetIntegrityIssueFlag(true)

	hook.OnPreCommit(context.Background(), branch, "commit1", true)
	assert.True(t, branch.IntegrityIssueFlag(), "rebase commits must never trigger the probe")
	assert.Empty(t, branches.updated)
}

func TestOnPreCommit_SkipsWhenFlagNotSet(t *testing.T) {
	branches := newFakeBranches()
	checker := integrity.NewChecker(&componentstore.MemoryStore{}, &fakeCriteria{}, branches, 900000001)
	hook := New(checker, slog.Default())

	branch := &types.Branch{Path: "MAIN/task1"}
	hook.OnPreCommit(context.Background(), branch, "commit1", false)
	assert.Empty(t, branches.updated)
}

func TestOnPreCommit_SkipsRootBranch(t *testing.T) {
	branches := newFakeBranches()
	checker := integrity.NewChecker(&componentstore.MemoryStore{}, &fakeCriteria{}, branches, 900000001)
	hook := New(checker, slog.Default())

	branch := &types.Branch{Path: "MAIN"}
	branch.SetIntegrityIssueFlag(true)
	hook.OnPreCommit(context.Background(), branch, "commit1", false)
	assert.Empty(t, branches.updated)
}

func TestOnPreCommit_ClearsFlagOnCleanResult(t *testing.T) {
	branches := newFakeBranches()
	store := &componentstore.MemoryStore{} // empty store => empty report
	crit := &fakeCriteria{}
	checker := integrity.NewChecker(store, crit, branches, 900000001)
	hook := New(checker, slog.Default())

	branch := &types.Branch{Path: "MAIN/task1"}
	branch.SetIntegrityIssueFlag(true)

	hook.OnPreCommit(context.Background(), branch, "commit1", false)
	require.NotNil(t, crit.openCommit, "hook must resolve visibleIncludingOpenCommit")
	assert.False(t, branch.IntegrityIssueFlag())
	require.Contains(t, branches.updated, "MAIN/task1")
}

func TestOnPreCommit_LeavesFlagSetWhenReportNonEmpty(t *testing.T) {
	branches := newFakeBranches()
	store := &componentstore.MemoryStore{
		Concepts: []types.Concept{
			{ConceptID: 1, Active: true},
			{ConceptID: 2, Active: false},
		},
		Relationships: []types.Relationship{
			{RelationshipID: 1, SourceID: 1, TypeID: 1, DestinationID: 2, CharacteristicType: types.CharacteristicStated, Active: true},
		},
	}
	checker := integrity.NewChecker(store, &fakeCriteria{}, branches, 900000001)
	hook := New(checker, slog.Default())

	branch := &types.Branch{Path: "MAIN/task1"}
	branch.SetIntegrityIssueFlag(true)

	hook.OnPreCommit(context.Background(), branch, "commit1", false)
	assert.True(t, branch.IntegrityIssueFlag(), "flag must stay set while the probe still finds an issue")
	assert.NotContains(t, branches.updated, "MAIN/task1")
}
