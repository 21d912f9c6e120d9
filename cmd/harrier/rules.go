package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	rulesFile string
	rulesAll  bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the rule catalog",
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert rules from a YAML file or the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []*domain.Rule
		var err error
		if rulesFile != "" {
			list, err = catalog.LoadFile(rulesFile)
		} else {
			list, err = catalog.Defaults()
		}
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, a *app) error {
			if err := a.catalog.Seed(ctx, list); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d rules\n", len(list))
			return nil
		})
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			list, err := a.catalog.List(ctx, rulesAll)
			if err != nil {
				return err
			}
			return printRules(cmd, list)
		})
	},
}

var rulesActivateCmd = &cobra.Command{
	Use:   "activate <rule-id>",
	Short: "Activate a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], true)
	},
}

var rulesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <rule-id>",
	Short: "Deactivate a rule; alerts it already raised are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesSeedCmd, rulesListCmd, rulesActivateCmd, rulesDeactivateCmd)

	rulesSeedCmd.Flags().StringVarP(&rulesFile, "file", "f", "", "YAML rule file (default: built-in rules)")
	rulesListCmd.Flags().BoolVar(&rulesAll, "all", true, "include inactive rules")
}

// withApp opens the store for the duration of fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func setRuleActive(cmd *cobra.Command, ruleID string, active bool) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.catalog.SetActive(ctx, ruleID, active); err != nil {
			return err
		}
		state := "deactivated"
		if active {
			state = "activated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule %s %s\n", ruleID, state)
		return nil
	})
}

func printRules(cmd *cobra.Command, list []*domain.Rule) error {
	out := cmd.OutOrStdout()
	if output == "json" {
		return writeJSONTo(out, list)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tWEIGHT\tACTIVE")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%t\n", r.ID, r.Name, r.Kind, r.Weight, r.Active)
	}
	return tw.Flush()
}
