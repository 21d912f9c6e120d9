package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), buf.String())
	return buf.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HARRIER_REPOSITORY_SQLITEPATH", filepath.Join(dir, "cli.db"))
	t.Setenv("HARRIER_LOGGING_LEVEL", "error")

	out := execute(t, "generate", "--users", "5", "--transactions", "100", "--fraud-rate", "0.2", "--seed", "3")
	assert.Contains(t, out, "Generated 5 users and 100 transactions (20 fraudulent)")

	t.Run("Run", func(t *testing.T) {
		var run domain.BatchRun
		require.NoError(t, json.Unmarshal([]byte(execute(t, "run", "-o", "json", "--batch-id", "cli-1")), &run))
		assert.Equal(t, "cli-1", run.ID)
		assert.Equal(t, domain.BatchCompleted, run.Status)
		assert.Equal(t, 100, run.TransactionsEvaluated)
		assert.Equal(t, 7, run.RulesEvaluated)
		assert.Positive(t, run.AlertsCreated)
	})

	t.Run("RulesLifecycle", func(t *testing.T) {
		assert.Contains(t, execute(t, "rules", "deactivate", "high_amount"), "Rule high_amount deactivated")

		var list []*domain.Rule
		require.NoError(t, json.Unmarshal([]byte(execute(t, "rules", "list", "-o", "json")), &list))
		require.Len(t, list, 7)
		for _, r := range list {
			assert.Equal(t, r.ID != "high_amount", r.Active, r.ID)
		}

		assert.Contains(t, execute(t, "rules", "activate", "high_amount"), "Rule high_amount activated")
	})

	t.Run("Reports", func(t *testing.T) {
		var perf []*domain.RulePerformance
		require.NoError(t, json.Unmarshal([]byte(execute(t, "report", "performance", "-o", "json")), &perf))
		assert.Len(t, perf, 7)

		var sum domain.Summary
		require.NoError(t, json.Unmarshal([]byte(execute(t, "report", "summary", "-o", "json")), &sum))
		assert.Equal(t, 100, sum.TotalTransactions)
		assert.Equal(t, 20, sum.FraudTransactions)

		var det domain.Detection
		require.NoError(t, json.Unmarshal([]byte(execute(t, "report", "detection", "-o", "json")), &det))
		assert.Equal(t, 20, det.TruePositives+det.FalseNegatives)
		assert.Equal(t, 100, det.TruePositives+det.FalsePositives+det.FalseNegatives+det.TrueNegatives)
		assert.Zero(t, det.Unlabelled)

		assert.Contains(t, execute(t, "report", "user", "U000001", "-o", "table"), "U000001")
	})
}
