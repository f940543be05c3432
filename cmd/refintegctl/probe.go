package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Diagnostic probes that report without mutating anything",
}

var probeSemanticCmd = &cobra.Command{
	Use:   "semantic <branch-path>",
	Short: "Report semantic-index rows referencing concepts outside the active universe (§4.8)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		backend, checker, err := openChecker(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = backend.Close() }()

		logger.Info("running semantic probe", "branch", args[0])
		result, err := checker.FindExtraConceptsInSemanticIndex(ctx, args[0])
		if err != nil {
			return err
		}

		if len(result.Stated) == 0 && len(result.Inferred) == 0 {
			fmt.Println("semantic index agrees with the active universe")
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	probeCmd.AddCommand(probeSemanticCmd)
}
