// Command refintegctl is the demo CLI wiring internal/integrity's checks,
// internal/commithook's pre-commit listener, and internal/storage/factory's
// Dolt backend together into a runnable tool. It carries no integrity logic
// of its own (§12): every subcommand just assembles collaborators and calls
// into internal/integrity.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snomed-ct/refinteg/internal/integrity"
	"github.com/snomed-ct/refinteg/internal/storage/factory"
	"github.com/snomed-ct/refinteg/internal/types"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refintegctl",
	Short: "Run referential-integrity checks against a SNOMED CT Dolt database",
	Long: `refintegctl wires the checker, commit hook, and semantic probe in
internal/integrity to a Dolt-backed ComponentStore and Bleve-backed semantic
index, configured via refinteg.toml (or REFINTEG_* environment overrides).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "refinteg.toml", "path to refinteg.toml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(commitHookCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openChecker loads refinteg.toml, opens the Dolt backend it describes, and
// assembles a *integrity.Checker against it. Callers must Close the
// returned backend once done.
func openChecker(ctx context.Context) (*factory.Backend, *integrity.Checker, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	opts, err := cfg.factoryOptions()
	if err != nil {
		return nil, nil, err
	}

	backend, err := factory.New(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend: %w", err)
	}

	checker := integrity.NewChecker(backend.Store, backend.Criteria, backend.Branches, types.ConceptID(cfg.OWLAxiomRefsetID))
	return backend, checker, nil
}
