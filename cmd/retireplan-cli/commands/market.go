package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"retireplan/internal/market"
	"retireplan/internal/sheets/memory"
)

const lookupTimeout = 15 * time.Second

// marketService returns the live service, or one that only knows the
// fallback tables with --offline.
func marketService() *market.Service {
	if offline {
		return market.NewService(nil, nil, memory.New(), tbl, market.Options{Logger: logger})
	}
	return newMarket()
}

func upperAll(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func ratesCmd() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "rates [CURRENCY...]",
		Short: "Show exchange rates, falling back to the built-in table",
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := upperAll(args)
			if len(codes) == 0 {
				codes = tbl.Currencies()
			}
			base = strings.ToUpper(base)

			ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
			defer cancel()

			mkt := marketService()
			rates := make([]market.Rate, 0, len(codes))
			for _, code := range codes {
				v, source := mkt.FX(ctx, code, base)
				rates = append(rates, market.Rate{Currency: code, Value: v, Source: source})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, ratesOutput{Base: base, Rates: rates})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "CURRENCY\t%s PER UNIT\tSOURCE\n", base)
			for _, r := range rates {
				fmt.Fprintf(tw, "%s\t%.4f\t%s\n", r.Currency, r.Value, r.Source)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&base, "base", market.BaseCurrency, "currency the rates are quoted in")
	return cmd
}

type ratesOutput struct {
	Base  string        `json:"base"`
	Rates []market.Rate `json:"rates"`
}

func quotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quotes [SYMBOL...]",
		Short: "Show stock prices, falling back to the built-in table",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := upperAll(args)
			if len(symbols) == 0 {
				symbols = tbl.Symbols()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
			defer cancel()
			prices := marketService().Quotes(ctx, symbols)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, prices)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tPRICE\tCURRENCY\tSOURCE")
			for _, p := range prices {
				fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", p.Symbol, p.Price, p.Currency, p.Source)
			}
			return tw.Flush()
		},
	}
}
