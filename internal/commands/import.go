package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/reconcile"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

func newImportCommand(g *globalFlags) *cobra.Command {
	var (
		opts      workspace.ImportOptions
		selection []string
		pending   bool
	)

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import statements, factoring reports or receipt extracts",
		Long: `Import reads each file, skips anything already imported and commits the rest.

With --all, every file waiting in import/ is imported and moved to import/processed/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !pending {
				return errors.New("name files to import or pass --all")
			}
			if cmd.Flags().Changed("select") {
				opts.Selection = []model.Kind{}
				for _, k := range selection {
					opts.Selection = append(opts.Selection, model.Kind(k))
				}
			}

			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			out := cmd.OutOrStdout()
			var failed []error
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				rep, err := ws.ImportFile(cmd.Context(), path, data, opts)
				if err != nil {
					printImportError(out, path, err)
					failed = append(failed, err)
					continue
				}
				printReport(out, rep)
			}

			if pending {
				reports, err := ws.ImportPending(cmd.Context(), opts)
				for _, rep := range reports {
					printReport(out, rep)
				}
				if err != nil {
					failed = append(failed, err)
					fmt.Fprintf(out, "some files in import/ were not imported: %v\n", err)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d import(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "parser to use (chase, sheet, json); default by file extension")
	cmd.Flags().StringVar(&opts.Label, "label", "", "source label recorded on the imported records")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace records that were imported before")
	cmd.Flags().StringSliceVar(&selection, "select", nil, "factoring kinds to import besides fees (purchase, collection, recourse)")
	cmd.Flags().BoolVar(&pending, "all", false, "import every file waiting in import/")

	return cmd
}

func printReport(out io.Writer, rep *workspace.ImportReport) {
	res := rep.Result
	fmt.Fprintf(out, "%s: %d expenses, %d revenues created", rep.Label, res.ExpensesCreated, res.RevenuesCreated)
	if res.Skipped > 0 {
		fmt.Fprintf(out, ", %d skipped", res.Skipped)
	}
	if res.Replaced > 0 {
		fmt.Fprintf(out, ", %d replaced", res.Replaced)
	}
	if res.DuplicatesSkipped > 0 {
		fmt.Fprintf(out, ", %d already imported", res.DuplicatesSkipped)
	}
	fmt.Fprintln(out)

	if res.FileSeenBefore {
		fmt.Fprintln(out, "  this file was imported before")
	}
	if res.NeedsForceOffer() {
		fmt.Fprintln(out, "  nothing new; rerun with --force to replace the existing records")
	}
	if res.ApproximateRates > 0 {
		fmt.Fprintf(out, "  %d record(s) converted with the fallback rate, review them\n", res.ApproximateRates)
	}
	if res.Linked > 0 || res.Ambiguous > 0 {
		fmt.Fprintf(out, "  %d linked, %d with several possible matches\n", res.Linked, res.Ambiguous)
	}
	if n := len(res.Failures); n > 0 {
		fmt.Fprintf(out, "  %d record(s) could not be saved and will be retried on the next import\n", n)
	}
	if rep.CommitHash != "" {
		fmt.Fprintf(out, "  committed %s\n", rep.CommitHash)
	}
}

func printImportError(out io.Writer, path string, err error) {
	var pf *reconcile.ParseFailure
	switch {
	case errors.As(err, &pf):
		fmt.Fprintf(out, "%s: nothing imported: %v\n", path, pf)
	case errors.Is(err, reconcile.ErrAborted):
		fmt.Fprintf(out, "%s: import cancelled, nothing was saved\n", path)
	default:
		fmt.Fprintf(out, "%s: import failed: %v\n", path, err)
	}
}
