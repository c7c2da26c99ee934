package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"retireplan/internal/calc"
	"retireplan/internal/core"
)

func projectCmd() *cobra.Command {
	var timeline bool
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project capital and retirement income",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInputs(cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := calculate(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, struct {
					calc.Results
					Timeline []calc.TimelineRow `json:"timeline"`
				}{Results: res, Timeline: res.Timeline()})
			}
			printIncome(out, res)
			if timeline {
				fmt.Fprintln(out)
				printTimeline(out, res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&timeline, "timeline", false, "also print the year by year capital")
	return cmd
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Print the financial health score",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInputs(cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := calculate(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res.Score)
			}

			fmt.Fprintf(out, "Score: %d/100 (%s)\n\n", res.Score.Total, res.Score.Status)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FACTOR\tWEIGHT\tSCORE")
			for _, f := range res.Score.Factors {
				fmt.Fprintf(tw, "%s\t%s\t%.0f\n", f.Label, core.FormatPercent(f.Weight), f.Score)
			}
			_ = tw.Flush()
			for _, r := range res.Score.Recommendations {
				fmt.Fprintf(out, "\n- %s", r.Message)
			}
			if len(res.Score.Recommendations) > 0 {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func taxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tax",
		Short: "Break down monthly income tax and deductions",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInputs(cmd.InOrStdin())
			if err != nil {
				return err
			}
			tax := calc.CalculateTax(in, tbl)
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, tax)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "\tGROSS\tINCOME TAX\tNI\tHEALTH\tNET\tEFFECTIVE\t")
			row := func(name string, b calc.TaxBreakdown) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", name,
					core.FormatMoney(b.Gross, in.Currency),
					core.FormatMoney(b.IncomeTax, in.Currency),
					core.FormatMoney(b.NationalInsurance, in.Currency),
					core.FormatMoney(b.HealthTax, in.Currency),
					core.FormatMoney(b.Net, in.Currency),
					core.FormatPercent(b.EffectiveRate))
			}
			for i, b := range tax.Earners {
				row(fmt.Sprintf("Earner %d", i+1), b)
			}
			if len(tax.Earners) > 1 {
				row("Household", tax.Total)
			}
			return tw.Flush()
		},
	}
}

func withdrawalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdrawals",
		Short: "Compare withdrawal strategies over retirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInputs(cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := calculate(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res.Withdrawals)
			}

			w := res.Withdrawals
			fmt.Fprintf(out, "Capital at retirement: %s\n\n", core.FormatMoney(w.Capital, in.Currency))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tFIRST YEAR\tAVG MONTHLY\tENDING\tDEPLETES AT\t")
			for _, s := range w.Strategies {
				mark := ""
				if s.Strategy == w.Best {
					mark = " *"
				}
				depletes := "-"
				if s.Depletes() {
					depletes = fmt.Sprint(s.DepletionAge)
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t\n", s.Name, mark,
					core.FormatMoney(s.FirstYearWithdrawal, in.Currency),
					core.FormatMoney(s.AverageMonthly, in.Currency),
					core.FormatMoney(s.EndingBalance, in.Currency),
					depletes)
			}
			return tw.Flush()
		},
	}
}

func printIncome(w io.Writer, res calc.Results) {
	cur := res.Inputs.Currency
	inc := res.Income
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Pension capital\t%s\n", core.FormatMoney(inc.PensionCapital, cur))
	fmt.Fprintf(tw, "Training fund capital\t%s\n", core.FormatMoney(inc.TrainingFundCapital, cur))
	fmt.Fprintf(tw, "Investment capital\t%s\n", core.FormatMoney(inc.InvestmentCapital, cur))
	if inc.RSUCapital > 0 {
		fmt.Fprintf(tw, "RSU capital\t%s (%s)\n", core.FormatMoney(inc.RSUCapital, cur), res.Market.PriceSource)
	}
	fmt.Fprintf(tw, "Total capital\t%s\n", core.FormatMoney(inc.TotalCapital, cur))
	fmt.Fprintf(tw, "Monthly income\t%s\n", core.FormatMoney(inc.TotalMonthly, cur))
	fmt.Fprintf(tw, "Monthly income, today's money\t%s\n", core.FormatMoney(inc.RealTotalMonthly, cur))
	fmt.Fprintf(tw, "Health score\t%d/100 (%s)\n", res.Score.Total, res.Score.Status)
	_ = tw.Flush()
}

func printTimeline(w io.Writer, res calc.Results) {
	cur := res.Inputs.Currency
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "YEAR\tAGE\tPENSION\tTRAINING FUND\tINVESTMENTS\tTOTAL\tREAL TOTAL\t")
	for _, r := range res.Timeline() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n", r.Year, r.Age,
			core.FormatAmount(r.Pension),
			core.FormatAmount(r.TrainingFund),
			core.FormatAmount(r.Investments),
			core.FormatMoney(r.Total, cur),
			core.FormatMoney(r.RealTotal, cur))
	}
	_ = tw.Flush()
}
