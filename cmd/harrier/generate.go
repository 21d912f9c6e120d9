package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/harrier/internal/generate"
)

var genCfg = generate.DefaultConfig()

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Load a synthetic population with labelled fraud",
	Long: `Generate users and transactions and write them to the store. A share
of transactions follows one of the fraud patterns unusual_amount,
unusual_location, unusual_merchant, unusual_device or unusual_frequency and is
labelled fraudulent.

Examples:
  # Demo population
  harrier generate

  # Reproducible smaller population
  harrier generate --users 50 --transactions 2000 --seed 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := generate.Generate(genCfg)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := generate.Load(ctx, a.repo, ds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d users and %d transactions (%d fraudulent)\n",
				len(ds.Users), len(ds.Transactions), len(ds.Patterns))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&genCfg.Users, "users", "u", genCfg.Users, "number of users")
	generateCmd.Flags().IntVarP(&genCfg.Transactions, "transactions", "n", genCfg.Transactions, "number of transactions")
	generateCmd.Flags().Float64Var(&genCfg.FraudRate, "fraud-rate", genCfg.FraudRate, "share of fraudulent transactions")
	generateCmd.Flags().IntVar(&genCfg.Days, "days", genCfg.Days, "days of history ending now")
	generateCmd.Flags().Int64Var(&genCfg.Seed, "seed", 0, "random seed (default: clock)")
}
