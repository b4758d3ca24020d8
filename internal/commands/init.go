package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/config"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

func newInitCommand() *cobra.Command {
	var (
		name     string
		currency string
		driver   string
		noGit    bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			cfg := config.Default(name)
			cfg.Reporting.Currency = currency
			cfg.Storage.Driver = driver
			cfg.Git.AutoCommit = !noGit

			hash, err := workspace.Init(cmd.Context(), absDir, cfg)
			if err != nil {
				return err
			}
			if hash != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace at %s (%s)\n", absDir, hash)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace at %s\n", absDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&currency, "currency", "CAD", "reporting currency")
	cmd.Flags().StringVar(&driver, "storage", config.DriverFile, "storage driver: file, postgres or memory")
	cmd.Flags().BoolVar(&noGit, "no-git", false, "do not create a git repository")

	return cmd
}
