package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
)

func newRatesCommand(g *globalFlags) *cobra.Command {
	ratesCmd := &cobra.Command{
		Use:   "rates",
		Short: "Exchange rates",
	}
	ratesCmd.AddCommand(newRatesResolveCommand(g))
	return ratesCmd
}

func newRatesResolveCommand(g *globalFlags) *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "resolve <currency> <YYYY-MM-DD>",
		Short: "Show the rate used for a currency on a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(time.DateOnly, args[1])
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}

			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			defer ws.Close()

			rate, err := ws.Resolver.Resolve(cmd.Context(), strings.ToUpper(args[0]), day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "1 %s = %s %s (%s", rate.Currency, rate.Value, ws.Resolver.ReportingCurrency(), rate.Source)
			if !rate.ObservedOn.IsZero() {
				fmt.Fprintf(out, ", published %s", rate.ObservedOn.Format(time.DateOnly))
			}
			fmt.Fprintln(out, ")")
			if rate.Approximate {
				fmt.Fprintf(out, "approximate: rates service unavailable (%v)\n", rate.Cause)
			}

			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("amount %q: %w", amount, err)
				}
				fmt.Fprintf(out, "%s %s = %s %s\n", d.StringFixed(2), rate.Currency,
					rates.Round2(d.Mul(rate.Value)).StringFixed(2), ws.Resolver.ReportingCurrency())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "also convert this amount")
	return cmd
}
