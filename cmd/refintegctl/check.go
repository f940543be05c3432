package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snomed-ct/refinteg/internal/integrity"
	"github.com/snomed-ct/refinteg/internal/types"
)

var (
	checkStated     bool
	checkExtMainPath string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one of the three integrity checks (§4.4-§4.6) against a branch",
}

var checkFullCmd = &cobra.Command{
	Use:   "full <branch-path>",
	Short: "Run the full check: every active relationship and axiom on the branch",
	Args:  cobra.ExactArgs(1),
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
		logger.Info("running full check", "branch", branch.Path, "stated", checkStated)

		report, err := checker.FindAllComponentsWithBadIntegrity(ctx, branch, checkStated)
		if err != nil {
			return err
		}
		if err := integrity.JoinDescriptions(ctx, backend.Descriptions, branch.Path, report); err != nil {
			return err
		}
		return printReport(report)
	},
}

var checkChangedCmd = &cobra.Command{
	Use:   "changed <branch-path>",
	Short: "Run the changed-only check: integrity broken by this branch's own unpromoted edits",
	Args:  cobra.ExactArgs(1),
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
		logger.Info("running changed-only check", "branch", branch.Path)

		report, err := checker.FindChangedComponentsWithBadIntegrity(ctx, branch)
		if err != nil {
			return err
		}
		if err := integrity.JoinDescriptions(ctx, backend.Descriptions, branch.Path, report); err != nil {
			return err
		}
		return printReport(report)
	},
}

var checkTaskDiffCmd = &cobra.Command{
	Use:   "task-diff <task-branch-path>",
	Short: "Run the task+extension differential check against its extension-main ancestor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkExtMainPath == "" {
			return fmt.Errorf("--extension-main is required")
		}
		ctx := cmd.Context()
		backend, checker, err := openChecker(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = backend.Close() }()

		taskBranch, err := checker.Branches.FindBranchOrThrow(ctx, args[0])
		if err != nil {
			return err
		}
		logger.Info("running task-differential check", "task", taskBranch.Path, "extensionMain", checkExtMainPath)

		report, err := checker.FindTaskDifferentialIntegrity(ctx, taskBranch, checkExtMainPath)
		if err != nil {
			return err
		}
		if err := integrity.JoinDescriptions(ctx, backend.Descriptions, taskBranch.Path, report); err != nil {
			return err
		}
		return printReport(report)
	},
}

func init() {
	checkFullCmd.Flags().BoolVar(&checkStated, "stated", true, "check the stated form (false checks inferred)")
	checkCmd.AddCommand(checkFullCmd)
	checkCmd.AddCommand(checkChangedCmd)

	checkTaskDiffCmd.Flags().StringVar(&checkExtMainPath, "extension-main", "", "path of the extension-main branch this task was cut from")
	checkCmd.AddCommand(checkTaskDiffCmd)
}

func printReport(report *types.IntegrityReport) error {
	if report.IsEmpty() {
		fmt.Println("no integrity issues found")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
