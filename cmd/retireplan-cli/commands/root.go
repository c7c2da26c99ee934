package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"retireplan/internal/calc"
	"retireplan/internal/cli"
	"retireplan/internal/config"
	"retireplan/internal/core"
	"retireplan/internal/log"
	"retireplan/internal/market"
	"retireplan/internal/services"
	"retireplan/internal/sheets/memory"
	"retireplan/internal/tables"
)

var (
	inputFile string
	asJSON    bool
	offline   bool

	cfg    *config.Config
	logger *log.Logger
	tbl    *tables.Tables
)

func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "retireplan-cli",
		Short:         "Retirement plan calculations from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(); err != nil {
				return err
			}
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			handler, err := log.NewHandler(cmd.ErrOrStderr(), cfg.LogFormat, log.ParseLevel(cfg.LogLevel))
			if err != nil {
				return err
			}
			logger = log.New(log.Config{Component: log.ComponentApp, Handler: handler})
			if tbl, err = tables.Load(); err != nil {
				return fmt.Errorf("load tables: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "plan inputs as YAML or JSON (default: built-in defaults)")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVar(&offline, "offline", false, "skip live market data and use the fallback tables")

	root.AddCommand(
		projectCmd(),
		scoreCmd(),
		taxCmd(),
		withdrawalsCmd(),
		ratesCmd(),
		quotesCmd(),
		migrateCmd(),
	)
	return root
}

// readInputs decodes the --file document over the defaults. YAML is a
// superset of JSON, so one decoder serves both.
func readInputs(stdin io.Reader) (core.Inputs, error) {
	in := core.DefaultInputs()
	if inputFile == "" {
		return in.Normalize(), nil
	}

	var r io.Reader
	if inputFile == "-" {
		r = stdin
	} else {
		f, err := os.Open(inputFile)
		if err != nil {
			return core.Inputs{}, err
		}
		defer f.Close()
		r = f
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && err != io.EOF {
		return core.Inputs{}, fmt.Errorf("decode %s: %w", inputFile, err)
	}
	return in.Normalize(), nil
}

// newMarket builds a market service over a throwaway snapshot store.
func newMarket() *market.Service {
	return cli.NewMarketService(cfg, memory.New(), tbl, logger, nil)
}

// calculate runs in through a plan service. With --offline the RSU price
// and FX rate come from the fallback tables.
func calculate(ctx context.Context, in core.Inputs) (calc.Results, error) {
	deps := services.PlanDeps{Tables: tbl, Logger: logger}
	if !offline {
		deps.Market = newMarket()
	}
	return services.NewPlanService(deps).Calculate(ctx, in)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
