package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/reporting"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

type testEnv struct {
	server *Server
	repo   *repository.SQLRepository
	bus    *bus.ChannelBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine, err := rules.NewEngine(2, time.Minute)
	require.NoError(t, err)
	cat := catalog.New(repo, catalog.WithCheck(engine.ValidateRule))
	defaults, err := catalog.Defaults()
	require.NoError(t, err)
	require.NoError(t, cat.Seed(ctx, defaults))

	fraud := true
	require.NoError(t, repo.SaveUser(ctx, &domain.User{ID: "U1", CountryOfResidence: "US"}))
	require.NoError(t, repo.SaveTransactions(ctx, []*domain.Transaction{
		{ID: "T1", UserID: "U1", Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Amount: 1500, Country: "FR", MerchantCategory: "travel", IsFraud: &fraud},
		{ID: "T2", UserID: "U1", Timestamp: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), Amount: 20, Country: "US", MerchantCategory: "grocery"},
	}))
	require.NoError(t, repo.WriteScores(ctx, []domain.ScoreUpdate{
		{TransactionID: "T1", RuleScore: ptr(1.0), FinalRiskScore: ptr(1.0)},
	}))
	require.NoError(t, repo.CreateAlert(ctx, &domain.Alert{
		ID: "A1", TransactionID: "T1", RuleID: "high_amount", RiskScore: 0.7,
	}, true))
	require.NoError(t, repo.CreateAlert(ctx, &domain.Alert{
		ID: uuid.New().String(), TransactionID: "T1", RuleID: "foreign_transaction", RiskScore: 0.6,
	}, true))

	server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Repo:              repo,
		Cache:             cache.NewLRUCache(16),
		Bus:               eventBus,
		Catalog:           cat,
		Reports:           reporting.NewService(repo, 10),
		Lifecycle:         alerts.NewLifecycle(repo, eventBus),
		HighRiskThreshold: 0.7,
		Version:           "test-v1",
	})
	return &testEnv{server: server, repo: repo, bus: eventBus}
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	health := decode[map[string]any](t, rr)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test-v1", health["version"])
	assert.Equal(t, map[string]any{"repository": "ok", "cache": "ok", "eventBus": "ok"}, health["checks"])
	require.Contains(t, health, "cache")
	assert.EqualValues(t, 16, health["cache"].(map[string]any)["capacity"])
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	rr = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "harrier_http_requests_total")

	require.NoError(t, env.repo.Close())
	rr = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTransactionEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("ListWithRiskFilter", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/transactions?min_risk=0.5", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Transactions []domain.Transaction `json:"transactions"`
			Count        int                  `json:"count"`
		}](t, rr)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, "T1", body.Transactions[0].ID)
	})

	t.Run("BadQuery", func(t *testing.T) {
		for _, q := range []string{"min_risk=abc", "reviewed=maybe", "limit=-1", "max_risk=3"} {
			rr := env.do(t, http.MethodGet, "/transactions?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})

	t.Run("Detail", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/transactions/T1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		d := decode[domain.TransactionDetail](t, rr)
		assert.Equal(t, "T1", d.Transaction.ID)
		require.NotNil(t, d.User)
		require.Len(t, d.Alerts, 2)
		assert.Equal(t, "high_amount", d.Alerts[0].RuleID)
		assert.Len(t, d.UserHistory, 2)
	})

	t.Run("DetailNotFound", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/transactions/nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "error")
	})

	t.Run("Review", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions/T2/review", map[string]any{"notes": "called customer"})
		require.Equal(t, http.StatusOK, rr.Code)
		tx := decode[domain.Transaction](t, rr)
		assert.True(t, tx.Reviewed)
		require.NotNil(t, tx.ReviewNotes)
		assert.Equal(t, "called customer", *tx.ReviewNotes)
	})

	t.Run("FraudLabel", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions/T2/fraud", map[string]any{"isFraud": true})
		require.Equal(t, http.StatusOK, rr.Code)
		tx := decode[domain.Transaction](t, rr)
		require.NotNil(t, tx.IsFraud)
		assert.True(t, *tx.IsFraud)

		rr = env.do(t, http.MethodPost, "/transactions/T2/fraud", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MLScore", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/transactions/T2/ml-score", map[string]any{"score": 0.4})
		require.Equal(t, http.StatusOK, rr.Code)
		tx := decode[domain.Transaction](t, rr)
		require.NotNil(t, tx.MLScore)
		assert.Equal(t, 0.4, *tx.MLScore)

		rr = env.do(t, http.MethodPut, "/transactions/T2/ml-score", map[string]any{"score": 1.4})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodPut, "/transactions/T404/ml-score", map[string]any{"score": 0.1})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = env.do(t, http.MethodPut, "/transactions/T2/ml-score", "{")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("List", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/alerts?status=open&rule_id=high_amount", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Alerts []domain.Alert `json:"alerts"`
		}](t, rr)
		require.Len(t, body.Alerts, 1)
		assert.Equal(t, "A1", body.Alerts[0].ID)
		assert.Equal(t, "High Amount Transaction", body.Alerts[0].RuleName)

		rr = env.do(t, http.MethodGet, "/alerts?status=escalated", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/alerts/A1/status", map[string]any{"status": "in_progress"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, domain.AlertInProgress, decode[domain.Alert](t, rr).Status)

		rr = env.do(t, http.MethodPost, "/alerts/A1/status", map[string]any{"status": "closed", "resolution": "false positive"})
		require.Equal(t, http.StatusOK, rr.Code)
		closed := decode[domain.Alert](t, rr)
		assert.Equal(t, domain.AlertClosed, closed.Status)
		require.NotNil(t, closed.Resolution)
		assert.Equal(t, "false positive", *closed.Resolution)

		rr = env.do(t, http.MethodPost, "/alerts/A1/status", map[string]any{"status": "open"})
		assert.Equal(t, http.StatusConflict, rr.Code)

		rr = env.do(t, http.MethodPost, "/alerts/missing/status", map[string]any{"status": "closed"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Get", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/alerts/A1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "A1", decode[domain.Alert](t, rr).ID)
	})
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("List", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/rules", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(7), decode[map[string]any](t, rr)["count"])
	})

	t.Run("Create", func(t *testing.T) {
		rule := domain.Rule{
			ID: "night_owl", Name: "Night Owl", Weight: 0.3, Active: true,
			Kind:      domain.KindRowPredicate,
			Predicate: &domain.RowPredicate{Expression: "hour < 5 && amount > 200.0"},
		}
		rr := env.do(t, http.MethodPost, "/rules", rule)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, "night_owl", decode[domain.Rule](t, rr).ID)
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		rule := domain.Rule{
			ID: "broken", Name: "Broken", Weight: 0.3, Active: true,
			Kind:      domain.KindRowPredicate,
			Predicate: &domain.RowPredicate{Expression: "amount > "},
		}
		rr := env.do(t, http.MethodPost, "/rules", rule)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodGet, "/rules/broken", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("DeactivateKeepsAlerts", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/rules/high_amount/deactivate", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, decode[domain.Rule](t, rr).Active)

		rr = env.do(t, http.MethodGet, "/rules?active=true", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), `"high_amount"`)

		rr = env.do(t, http.MethodGet, "/alerts?rule_id=high_amount", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(1), decode[map[string]any](t, rr)["count"])

		rr = env.do(t, http.MethodPost, "/rules/high_amount/activate", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[domain.Rule](t, rr).Active)
	})

	t.Run("UnknownRule", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/rules/ghost/activate", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestReportEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/reports/rule-performance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	perf := decode[struct {
		Rules []domain.RulePerformance `json:"rules"`
	}](t, rr)
	for _, p := range perf.Rules {
		switch p.RuleID {
		case "high_amount", "foreign_transaction":
			assert.Equal(t, 1, p.TotalAlerts)
			require.NotNil(t, p.Precision)
			assert.Equal(t, 1.0, *p.Precision)
		default:
			assert.Nil(t, p.Precision, p.RuleID)
		}
	}

	rr = env.do(t, http.MethodGet, "/reports/high-risk?threshold=0.9", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	hr := decode[struct {
		Transactions []domain.HighRiskTransaction `json:"transactions"`
	}](t, rr)
	require.Len(t, hr.Transactions, 1)
	assert.Equal(t, "T1", hr.Transactions[0].ID)
	assert.Equal(t, 2, hr.Transactions[0].AlertCount)

	rr = env.do(t, http.MethodGet, "/reports/high-risk?threshold=2", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/reports/detection", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	det := decode[domain.Detection](t, rr)
	assert.Equal(t, 0.7, det.Threshold)
	assert.Equal(t, 1, det.TruePositives)
	assert.Equal(t, 1, det.Unlabelled)
	require.NotNil(t, det.Recall)
	assert.Equal(t, 1.0, *det.Recall)

	rr = env.do(t, http.MethodGet, "/reports/detection?threshold=2", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/reports/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[domain.Summary](t, rr)
	assert.Equal(t, 2, sum.TotalTransactions)
	assert.Equal(t, 1, sum.HighRiskTransactions)
	assert.Equal(t, 2, sum.TotalAlerts)

	rr = env.do(t, http.MethodGet, "/users/U1/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[domain.UserSummary](t, rr).TotalTransactions)

	rr = env.do(t, http.MethodGet, "/users/U404/summary", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBatchEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requested := make(chan domain.BatchRequest, 1)
	_, err := env.bus.Subscribe(ctx, domain.TopicBatchRequested, func(ctx context.Context, msg *domain.Message) error {
		var req domain.BatchRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		requested <- req
		return nil
	})
	require.NoError(t, err)

	rr := env.do(t, http.MethodPost, "/batches", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	batchID := decode[map[string]string](t, rr)["batchId"]
	require.NotEmpty(t, batchID)

	select {
	case req := <-requested:
		assert.Equal(t, batchID, req.BatchID)
		assert.Equal(t, "api", req.RequestedBy)
	case <-time.After(time.Second):
		t.Fatal("batch request was not published")
	}

	now := time.Now().UTC()
	require.NoError(t, env.repo.SaveBatchRun(ctx, &domain.BatchRun{
		ID: batchID, StartedAt: now, FinishedAt: now, Status: domain.BatchCompleted, AlertsCreated: 3,
	}))

	rr = env.do(t, http.MethodGet, "/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decode[domain.BatchRun](t, rr).AlertsCreated)

	rr = env.do(t, http.MethodGet, "/batches", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), batchID))

	rr = env.do(t, http.MethodGet, "/batches/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecovererReturnsErrorBody(t *testing.T) {
	h := instrument(recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}
