package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/buildinfo"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

type globalFlags struct {
	repo    string
	verbose bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:     "quickyel",
		Short:   "Import bank, factoring and receipt records without duplicates",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logger.WithContext(ctx, logger.New(g.verbose)))
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.repo, "repo", ".", "workspace directory")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newInitCommand(),
		newImportCommand(&g),
		newLedgerCommand(&g),
		newRatesCommand(&g),
		newRecordsCommand(&g),
		newServeCommand(&g),
	)

	return rootCmd
}

// openWorkspace opens the workspace named by --repo.
func openWorkspace(cmd *cobra.Command, g *globalFlags) (*workspace.Workspace, error) {
	dir, err := filepath.Abs(g.repo)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	ws, err := workspace.Open(cmd.Context(), dir)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", dir, err)
	}
	return ws, nil
}
