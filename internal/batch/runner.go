// Package batch runs a full pass of the rule catalog over the transaction
// population: evaluate, alert, score, record.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/model"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
)

var tracer = otel.Tracer("harrier-batch")

// Store is the persistence a pass needs beyond the rule catalog.
type Store interface {
	ScanPopulation(ctx context.Context) ([]*domain.Transaction, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	SetMLScore(ctx context.Context, txID string, score *float64) error
	WriteScores(ctx context.Context, updates []domain.ScoreUpdate) error
	SaveBatchRun(ctx context.Context, run *domain.BatchRun) error
}

// Runner executes batch passes. Passes on one Runner never overlap.
type Runner struct {
	catalog   *catalog.Catalog
	store     Store
	engine    *rules.Engine
	generator *alerts.Generator
	scorer    model.Scorer
	bus       domain.EventBus
	workers   int
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithScorer fetches fresh model scores at the start of every pass.
func WithScorer(s model.Scorer) Option {
	return func(r *Runner) { r.scorer = s }
}

// WithBus publishes a completion event after every pass.
func WithBus(bus domain.EventBus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithWorkers bounds concurrent model score requests.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewRunner wires the pass pipeline.
func NewRunner(cat *catalog.Catalog, store Store, engine *rules.Engine, gen *alerts.Generator, opts ...Option) *Runner {
	r := &Runner{
		catalog:   cat,
		store:     store,
		engine:    engine,
		generator: gen,
		scorer:    model.StoredScorer{},
		workers:   8,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one pass and returns its summary. The summary is returned
// even on failure; the error is ErrCatalogUnavailable or a store error for a
// failed pass, or the context error for a cancelled one. Rules that cannot
// be evaluated are skipped and listed in the summary. Alerts created before
// a cancellation remain, but scores are only written by a complete pass.
func (r *Runner) Run(ctx context.Context, batchID string) (*domain.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if batchID == "" {
		batchID = uuid.New().String()
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "batch.run",
		trace.WithAttributes(attribute.String("batch.id", batchID)),
	)
	defer span.End()

	run := &domain.BatchRun{ID: batchID, StartedAt: r.now()}
	slog.Info("batch pass started", "batch_id", batchID)

	err := r.execute(ctx, run)
	switch {
	case err == nil:
		run.Status = domain.BatchCompleted
	case ctx.Err() != nil:
		run.Status = domain.BatchCancelled
		run.Error = err.Error()
	default:
		run.Status = domain.BatchFailed
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	run.FinishedAt = r.now()

	// The record is written even when ctx is done.
	if saveErr := r.store.SaveBatchRun(context.WithoutCancel(ctx), run); saveErr != nil {
		slog.Error("failed to save batch run", "batch_id", batchID, "error", saveErr)
	}

	metrics.BatchRuns.WithLabelValues(run.Status).Inc()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("batch.status", run.Status),
		attribute.Int("batch.alerts_created", run.AlertsCreated),
	)

	r.publish(context.WithoutCancel(ctx), run)

	slog.Info("batch pass finished",
		"batch_id", batchID,
		"status", run.Status,
		"transactions", run.TransactionsEvaluated,
		"rules_evaluated", run.RulesEvaluated,
		"rules_skipped", run.RulesSkipped,
		"alerts_created", run.AlertsCreated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return run, err
}

func (r *Runner) execute(ctx context.Context, run *domain.BatchRun) error {
	active, err := r.catalog.LoadActive(ctx)
	if err != nil {
		return err
	}

	txs, err := r.store.ScanPopulation(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	pop := rules.NewPopulation(txs, users)
	run.TransactionsEvaluated = pop.Size()

	if !model.IsStored(r.scorer) {
		fetched, err := r.fetchModelScores(ctx, pop.Transactions)
		run.ModelScoresFetched = fetched
		if err != nil {
			return err
		}
	}

	agg := scoring.NewAggregator()
	for _, rule := range active {
		if err := ctx.Err(); err != nil {
			return err
		}

		triggers, err := r.engine.Evaluate(ctx, rule, pop)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			run.RulesSkipped++
			run.SkippedRules = append(run.SkippedRules, domain.RuleFailure{RuleID: rule.ID, Reason: err.Error()})
			metrics.RulesSkipped.WithLabelValues(rule.ID).Inc()
			slog.Warn("rule skipped", "batch_id", run.ID, "rule_id", rule.ID, "error", err)
			continue
		}

		run.RulesEvaluated++
		run.TriggersFound += len(triggers)
		agg.Add(triggers)

		res, err := r.generator.Generate(ctx, run.ID, triggers)
		run.AlertsCreated += res.Created
		run.AlertsDeduplicated += res.Deduplicated
		run.AlertsFailed += res.Failed
		if err != nil {
			return err
		}

		slog.Debug("rule evaluated",
			"batch_id", run.ID,
			"rule_id", rule.ID,
			"triggers", len(triggers),
			"alerts_created", res.Created,
		)
	}

	updates := agg.Updates(pop.Transactions)
	if err := r.store.WriteScores(ctx, updates); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}
	run.ScoresWritten = len(updates)
	return nil
}

// fetchModelScores asks the scorer for every transaction and stores the
// scores it has. Individual model failures leave the stored score in place.
func (r *Runner) fetchModelScores(ctx context.Context, txs []*domain.Transaction) (int, error) {
	var fetched, failed atomic.Int64
	var storeErr error
	var once sync.Once

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(tx *domain.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()

			score, ok, err := r.scorer.Score(ctx, tx.ID)
			if err != nil {
				failed.Add(1)
				return
			}
			if !ok {
				return
			}
			if err := r.store.SetMLScore(ctx, tx.ID, &score); err != nil {
				once.Do(func() { storeErr = fmt.Errorf("store model score: %w", err) })
				return
			}
			tx.MLScore = &score
			fetched.Add(1)
		}(tx)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		slog.Warn("model scores unavailable", "count", n)
	}
	if err := ctx.Err(); err != nil {
		return int(fetched.Load()), err
	}
	return int(fetched.Load()), storeErr
}

func (r *Runner) publish(ctx context.Context, run *domain.BatchRun) {
	if r.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, r.bus, domain.TopicBatchCompleted, run); err != nil {
		slog.Warn("failed to publish batch completion", "batch_id", run.ID, "error", err)
	}
}
