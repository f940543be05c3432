// Package commithook implements the pre-commit listener (§4.7): a
// synchronous callback the version-control layer invokes before a commit
// completes, re-running the changed-only check against the open commit and
// clearing the branch's persisted integrity flag on a clean result.
package commithook

import (
	"context"
	"log/slog"

	"github.com/snomed-ct/refinteg/internal/integrity"
	"github.com/snomed-ct/refinteg/internal/types"
)

// Hook runs the changed-only check against an in-flight commit. It never
// blocks or fails a commit: every error is logged and swallowed.
type Hook struct {
	checker *integrity.Checker
	log     *slog.Logger
}

// New builds a Hook. checker supplies the CriteriaProvider and
// BranchService collaborators already wired for the commit's backing store.
func New(checker *integrity.Checker, log *slog.Logger) *Hook {
	if log == nil {
		log = slog.Default()
	}
	return &Hook{checker: checker, log: log}
}

// OnPreCommit is the synchronous pre-commit entry point. commitRef
// identifies the open, not-yet-finalized commit whose uncommitted writes
// visibleIncludingOpenCommit overlays on the branch's otherwise-visible
// view. isRebase marks a rebase commit, which carries no semantic change to
// the branch's own content and is always ignored.
func (h *Hook) OnPreCommit(ctx context.Context, branch *types.Branch, commitRef string, isRebase bool) {
	if isRebase {
		return
	}
	if branch.IsRoot() {
		// Defensive only: in practice this hook fires on non-root branches.
		return
	}
	if !branch.IntegrityIssueFlag() {
		return
	}

	if err := h.run(ctx, branch, commitRef); err != nil {
		h.log.Error("commit hook integrity probe failed",
			"branch", branch.Path, "commit", commitRef, "error", err)
	}
}

func (h *Hook) run(ctx context.Context, branch *types.Branch, commitRef string) error {
	crit := h.checker.Criteria.VisibleIncludingOpenCommit(branch, commitRef)

	report, err := h.checker.FindChangedComponentsWithCriteria(ctx, branch, crit)
	if err != nil {
		return types.NewCommitHookError("changed-only probe against open commit", err)
	}
	if !report.IsEmpty() {
		return nil
	}

	branch.SetIntegrityIssueFlag(false)
	if err := h.checker.Branches.UpdateMetadata(ctx, branch.Path, branch.Metadata); err != nil {
		return types.NewCommitHookError("clear integrityIssue flag", err)
	}
	return nil
}
