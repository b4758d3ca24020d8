package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

func newLedgerCommand(g *globalFlags) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the duplicate ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(g), newLedgerForgetCommand(g))
	return ledgerCmd
}

func newLedgerListCommand(g *globalFlags) *cobra.Command {
	var filesOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imported fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			entries, err := ws.Ledger.Entries(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINGERPRINT\tKIND\tSOURCE\tIMPORTED\tRECORDS")
			for _, e := range entries {
				if filesOnly && e.Kind != model.EntryFile {
					continue
				}
				count := ""
				if e.Kind == model.EntryFile {
					count = fmt.Sprint(e.RecordCount)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Fingerprint, e.Kind, e.SourceLabel, e.ImportedAt.Format(time.RFC3339), count)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&filesOnly, "files", false, "only list whole-file entries")
	return cmd
}

func newLedgerForgetCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <fingerprint>...",
		Short: "Remove fingerprints so their content can be imported again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			for _, fp := range args {
				if err := ws.Ledger.Forget(cmd.Context(), fp); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", fp)
			}
			return nil
		},
	}
}
