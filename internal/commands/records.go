package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/linker"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/search"
)

func newRecordsCommand(g *globalFlags) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Find and link committed records",
	}
	recordsCmd.AddCommand(newRecordsSearchCommand(g), newRecordsLinkCommand(g))
	return recordsCmd
}

func newRecordsSearchCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search by vendor, description or amount (42, >100, <20, 10-50)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			recs, err := ws.Store.ListRecords(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				recs = search.Filter(recs, args[0])
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tAMOUNT\tREPORTING\tLINKED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
					r.ID, r.Date.Format(time.DateOnly), r.Description,
					r.Amount.StringFixed(2), r.Currency, r.AmountReporting.StringFixed(2), r.LinkedToID)
			}
			return tw.Flush()
		},
	}
}

func newRecordsLinkCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "link <record-id> [counterpart-id]",
		Short: "Link a receipt and a bank record, or look for a match",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			out := cmd.OutOrStdout()
			if len(args) == 2 {
				if err := ws.Linker.LinkPair(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(out, "linked %s and %s\n", args[0], args[1])
				return nil
			}

			rec, err := ws.Store.GetRecord(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("record %s: %w", args[0], err)
			}
			res, err := ws.Linker.Link(cmd.Context(), rec)
			if err != nil {
				return err
			}
			switch res.Status {
			case linker.StatusLinked:
				fmt.Fprintf(out, "linked %s and %s\n", res.RecordID, res.CounterpartID)
			case linker.StatusAmbiguous:
				fmt.Fprintf(out, "several possible matches for %s: %v\n", res.RecordID, res.CandidateIDs)
				fmt.Fprintln(out, "pick one with: records link <record-id> <counterpart-id>")
			default:
				fmt.Fprintf(out, "no match for %s\n", res.RecordID)
			}
			return nil
		},
	}
}
