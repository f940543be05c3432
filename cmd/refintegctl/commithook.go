package main

import (
	"github.com/spf13/cobra"

	"github.com/snomed-ct/refinteg/internal/commithook"
)

var commitHookCommitRef string
var commitHookIsRebase bool

var commitHookCmd = &cobra.Command{
	Use:   "commit-hook <branch-path>",
	Short: "Run the pre-commit integrity probe (§4.7) against an in-flight commit",
	Long: `commit-hook is meant to be invoked by a Dolt pre-commit trigger (or a
wrapper script around CALL DOLT_COMMIT) with the open commit's ref. It never
fails the commit itself: every error is logged and swallowed, matching
internal/commithook.Hook.OnPreCommit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		backend, checker, err := openChecker(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = backend.Close() }()

		branch, err := checker.Branches.FindBranchOrThrow(ctx, args[0])
		if err != nil {
			return err
		}

		hook := commithook.New(checker, logger)
		hook.OnPreCommit(ctx, branch, commitHookCommitRef, commitHookIsRebase)
		return nil
	},
}

func init() {
	commitHookCmd.Flags().StringVar(&commitHookCommitRef, "commit-ref", "", "ref of the open, not-yet-finalized commit")
	commitHookCmd.Flags().BoolVar(&commitHookIsRebase, "rebase", false, "mark this invocation as a rebase commit (always a no-op)")
}
