package branchcriteria

import (
	"context"
	"database/sql"

	"github.com/snomed-ct/refinteg/internal/types"
)

// Provider is the Dolt-backed BranchCriteria implementation. It resolves
// branch/commit topology via DOLT_HASHOF and DOLT_MERGE_BASE and hands back
// opaque Criteria values; it never streams component rows itself — that is
// internal/componentstore's job, given the Criteria this type produces.
type Provider struct {
	db *sql.DB
}

// NewProvider wraps an established Dolt connection. db is shared with
// internal/storage/dolt and internal/componentstore; this type issues only
// read-only metadata queries against it.
func NewProvider(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// Visible builds the "visible(branch)" criteria (§4.1): every component
// visible on branch at its current head.
func (p *Provider) Visible(ctx context.Context, branch *types.Branch) (*Criteria, error) {
	head, err := p.headCommit(ctx, branch.Path)
	if err != nil {
		return nil, types.NewUpstreamStoreError("resolve branch head commit", err)
	}
	return &Criteria{Mode: ModeVisible, BranchPath: branch.Path, AsOfRef: head}, nil
}

// UnpromotedChanges builds the "unpromotedChanges(branch)" criteria:
// components created or modified on branch since it diverged from its
// parent, excluding deletions.
func (p *Provider) UnpromotedChanges(ctx context.Context, branch *types.Branch) (*Criteria, error) {
	return p.diffCriteria(ctx, branch, ModeUnpromotedChanges)
}

// UnpromotedChangesAndDeletions is UnpromotedChanges plus deletion
// tombstones.
func (p *Provider) UnpromotedChangesAndDeletions(ctx context.Context, branch *types.Branch) (*Criteria, error) {
	return p.diffCriteria(ctx, branch, ModeUnpromotedChangesAndDeletions)
}

func (p *Provider) diffCriteria(ctx context.Context, branch *types.Branch, mode Mode) (*Criteria, error) {
	parent := types.ParentPath(branch.Path)
	if parent == "" {
		return nil, types.NewMisuseError("unpromoted-changes criteria requested for root branch " + branch.Path)
	}
	head, err := p.headCommit(ctx, branch.Path)
	if err != nil {
		return nil, types.NewUpstreamStoreError("resolve branch head commit", err)
	}
	base, err := p.mergeBase(ctx, parent, branch.Path)
	if err != nil {
		return nil, types.NewUpstreamStoreError("resolve merge-base with parent", err)
	}
	return &Criteria{
		Mode:        mode,
		BranchPath:  branch.Path,
		DiffFromRef: base,
		DiffToRef:   head,
	}, nil
}

// VisibleIncludingOpenCommit builds the "visibleIncludingOpenCommit(commit)"
// criteria (§4.1, §4.7): like Visible but pinned to an in-progress commit
// ref rather than the branch's last completed head, so uncommitted writes
// made within that commit are overlaid.
func (p *Provider) VisibleIncludingOpenCommit(branch *types.Branch, openCommitRef string) *Criteria {
	return &Criteria{Mode: ModeVisibleIncludingOpenCommit, BranchPath: branch.Path, AsOfRef: openCommitRef}
}

func (p *Provider) headCommit(ctx context.Context, branchPath string) (string, error) {
	var hash string
	err := p.db.QueryRowContext(ctx, "SELECT DOLT_HASHOF(?) AS hash", branchPath).Scan(&hash)
	return hash, err
}

func (p *Provider) mergeBase(ctx context.Context, leftRef, rightRef string) (string, error) {
	var hash string
	err := p.db.QueryRowContext(ctx, "SELECT DOLT_MERGE_BASE(?, ?) AS hash", leftRef, rightRef).Scan(&hash)
	return hash, err
}
