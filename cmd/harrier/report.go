package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	reportThreshold float64
	reportLimit     int
	reportTop       int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print reports from the last batch pass",
}

var reportPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Alert counts and precision per rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			perf, err := a.reports().RulePerformance(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return writeJSONTo(out, perf)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RULE\tNAME\tACTIVE\tALERTS\tFRAUD\tPRECISION")
			for _, p := range perf {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%s\n",
					p.RuleID, p.Name, p.Active, p.TotalAlerts, p.CaughtFraud, rate(p.Precision))
			}
			return tw.Flush()
		})
	},
}

var reportHighRiskCmd = &cobra.Command{
	Use:   "high-risk",
	Short: "Transactions at or above a final risk threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			txs, err := a.reports().HighRisk(ctx, threshold(cmd), reportLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return writeJSONTo(out, txs)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TRANSACTION\tUSER\tAMOUNT\tCOUNTRY\tMERCHANT\tRISK\tALERTS")
			for _, tx := range txs {
				risk := 0.0
				if tx.FinalRiskScore != nil {
					risk = *tx.FinalRiskScore
				}
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%.4f\t%d\n",
					tx.ID, tx.UserID, tx.Amount, tx.Country, tx.MerchantCategory, risk, tx.AlertCount)
			}
			return tw.Flush()
		})
	},
}

var reportDetectionCmd = &cobra.Command{
	Use:   "detection",
	Short: "Confusion matrix of final risk scores against fraud labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			d, err := a.reports().Detection(ctx, threshold(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return writeJSONTo(out, d)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Threshold\t%.2f\n", d.Threshold)
			fmt.Fprintln(tw, "\tFLAGGED\tNOT FLAGGED")
			fmt.Fprintf(tw, "Fraud\t%d\t%d\n", d.TruePositives, d.FalseNegatives)
			fmt.Fprintf(tw, "Legitimate\t%d\t%d\n", d.FalsePositives, d.TrueNegatives)
			fmt.Fprintf(tw, "Unlabelled\t%d\n", d.Unlabelled)
			fmt.Fprintf(tw, "Precision\t%s\n", rate(d.Precision))
			fmt.Fprintf(tw, "Recall\t%s\n", rate(d.Recall))
			fmt.Fprintf(tw, "F1\t%s\n", rate(d.F1))
			fmt.Fprintf(tw, "Accuracy\t%s\n", rate(d.Accuracy))
			return tw.Flush()
		})
	},
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Population overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sum, err := a.reports().Summary(ctx, threshold(cmd), reportTop)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return writeJSONTo(out, sum)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Transactions\t%d\n", sum.TotalTransactions)
			fmt.Fprintf(tw, "Fraudulent\t%d (%.2f%%)\n", sum.FraudTransactions, sum.FraudPercentage)
			fmt.Fprintf(tw, "High risk\t%d (%.2f%%)\n", sum.HighRiskTransactions, sum.HighRiskPercentage)
			fmt.Fprintf(tw, "Alerts\t%d (%d open)\n", sum.TotalAlerts, sum.OpenAlerts)
			fmt.Fprintf(tw, "Average amount\t%.2f\n", sum.AverageAmount)
			for _, m := range sum.TopMerchants {
				fmt.Fprintf(tw, "Merchant\t%s: %d\n", m.Value, m.Count)
			}
			for _, c := range sum.TopCountries {
				fmt.Fprintf(tw, "Country\t%s: %d\n", c.Value, c.Count)
			}
			return tw.Flush()
		})
	},
}

var reportUserCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Activity summary for one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sum, err := a.reports().UserSummary(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return writeJSONTo(out, sum)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "User\t%s (%s, %s)\n", sum.User.ID, sum.User.CountryOfResidence, sum.User.AccountType)
			fmt.Fprintf(tw, "Transactions\t%d (%d fraudulent)\n", sum.TotalTransactions, sum.FraudTransactions)
			fmt.Fprintf(tw, "Amount\tavg %.2f, min %.2f, max %.2f\n", sum.AverageAmount, sum.MinAmount, sum.MaxAmount)
			fmt.Fprintf(tw, "Countries\t%d\n", sum.UniqueCountries)
			fmt.Fprintf(tw, "Merchant categories\t%d\n", sum.UniqueMerchantCategories)
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportPerformanceCmd, reportHighRiskCmd, reportDetectionCmd, reportSummaryCmd, reportUserCmd)

	reportCmd.PersistentFlags().Float64Var(&reportThreshold, "threshold", 0, "high-risk threshold (default: engine.highRiskThreshold)")
	reportHighRiskCmd.Flags().IntVar(&reportLimit, "limit", 50, "maximum transactions")
	reportSummaryCmd.Flags().IntVar(&reportTop, "top", 5, "top merchants and countries to show")
}

func threshold(cmd *cobra.Command) float64 {
	if cmd.Flags().Changed("threshold") {
		return reportThreshold
	}
	return cfg.Engine.HighRiskThreshold
}

func rate(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}
