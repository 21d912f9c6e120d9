// Package worker runs batch passes requested over the EventBus, one at a
// time, and optionally on a fixed schedule.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
)

// BatchRunner executes a batch pass.
type BatchRunner interface {
	Run(ctx context.Context, batchID string) (*domain.BatchRun, error)
}

// Worker consumes batch requests and feeds them to a single runner loop.
type Worker struct {
	bus    domain.EventBus
	runner BatchRunner

	requests      chan domain.BatchRequest
	subscriptions []domain.Subscription
	mu            sync.Mutex
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Schedule requests a pass at this interval when positive.
	Schedule time.Duration

	// QueueSize is the number of pending requests held before new ones are
	// dropped.
	QueueSize int
}

// NewWorker creates a batch worker.
func NewWorker(bus domain.EventBus, runner BatchRunner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to batch requests and starts the runner loop.
func (w *Worker) Start(cfg Config) error {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	w.requests = make(chan domain.BatchRequest, cfg.QueueSize)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchRequested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchRequested, err)
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	if cfg.Schedule > 0 {
		w.wg.Add(1)
		go w.tick(cfg.Schedule)
	}

	slog.Info("batch worker started",
		"topic", domain.TopicBatchRequested,
		"schedule", cfg.Schedule.String(),
	)
	return nil
}

// handleMessage queues a batch request from the bus.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.BatchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse batch request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.BatchID == "" {
		req.BatchID = msg.ID
	}
	w.enqueue(req)
	return nil
}

func (w *Worker) enqueue(req domain.BatchRequest) {
	select {
	case w.requests <- req:
	case <-w.ctx.Done():
	default:
		w.dropped.Add(1)
		slog.Warn("batch queue full, request dropped", "batch_id", req.BatchID)
	}
}

// loop runs queued passes sequentially.
func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.requests:
			run, err := w.runner.Run(w.ctx, req.BatchID)
			if err != nil {
				w.failed.Add(1)
				slog.Error("batch pass failed",
					"batch_id", req.BatchID,
					"requested_by", req.RequestedBy,
					"error", err,
				)
				continue
			}
			w.completed.Add(1)
			slog.Info("batch pass processed",
				"batch_id", run.ID,
				"requested_by", req.RequestedBy,
				"alerts_created", run.AlertsCreated,
			)
		}
	}
}

func (w *Worker) tick(every time.Duration) {
	defer w.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			w.enqueue(domain.BatchRequest{BatchID: uuid.New().String(), RequestedBy: "schedule"})
		}
	}
}

// Stop cancels any running pass and waits for the loop to exit.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("batch worker stopped")
	return nil
}

// Request publishes a batch request and returns its batch id.
func Request(ctx context.Context, b domain.EventBus, requestedBy string) (string, error) {
	req := domain.BatchRequest{BatchID: uuid.New().String(), RequestedBy: requestedBy}
	if err := bus.PublishJSON(ctx, b, domain.TopicBatchRequested, req); err != nil {
		return "", fmt.Errorf("publish batch request: %w", err)
	}
	return req.BatchID, nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Pending           int      `json:"pending"`
	Completed         int64    `json:"completed"`
	Failed            int64    `json:"failed"`
	Dropped           int64    `json:"dropped"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Pending:           len(w.requests),
		Completed:         w.completed.Load(),
		Failed:            w.failed.Load(),
		Dropped:           w.dropped.Load(),
	}
}
